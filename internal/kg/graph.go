package kg

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/oncoscout/oncoscout/internal/storage"
	"github.com/oncoscout/oncoscout/internal/vecindex"
)

// Conflict types.
const (
	ConflictDirectional = "directional"
	ConflictMagnitude   = "magnitude"
)

// rescoreDelta is the aggregate-confidence shift that triggers rescoring of
// dependent pairs.
const rescoreDelta = 0.05

// manualReviewAbove routes a conflict straight to manual review when both
// sides carry confidence above it.
const manualReviewAbove = 0.70

// Magnitude conflicts need two strong study types disagreeing hard on
// confidence despite the same direction.
const (
	magnitudeWeightFloor = 0.6
	magnitudeDeltaAbove  = 0.4
)

// Assertion is a candidate fact before the confidence model is applied.
type Assertion struct {
	SubjectID    string
	Predicate    string
	ObjectID     string
	EvidenceType string
	Modifiers    Modifiers
	SourcePMID   string
	SourceDOI    string
	SourceDB     string
	StudyType    string
}

// Graph is the knowledge-graph service over the fact store.
type Graph struct {
	db     *storage.DB
	index  *vecindex.Index
	queue  *RescoreQueue
	logger *log.Logger
}

// New creates a Graph. index may be nil; retraction then skips vector-index
// cleanup.
func New(db *storage.DB, index *vecindex.Index, logger *log.Logger) *Graph {
	return &Graph{
		db:     db,
		index:  index,
		queue:  NewRescoreQueue(),
		logger: logger,
	}
}

// Queue exposes the coalescing rescore queue for the scoring engine to drain.
func (g *Graph) Queue() *RescoreQueue {
	return g.queue
}

// Assert applies the confidence model, appends the fact, detects conflicts
// against the active facts of the triple, and enqueues rescores when the
// aggregate moves enough. Conflict detection never fails the insert.
func (g *Graph) Assert(a *Assertion) (*storage.Fact, *Aggregate, error) {
	conf, err := Confidence(a.EvidenceType, a.Modifiers)
	if err != nil {
		return nil, nil, err
	}
	base, _ := BaseWeight(a.EvidenceType)

	before, err := g.AggregateTriple(a.SubjectID, a.Predicate, a.ObjectID)
	if err != nil {
		return nil, nil, err
	}

	fact := &storage.Fact{
		SubjectID:      a.SubjectID,
		Predicate:      a.Predicate,
		ObjectID:       a.ObjectID,
		Confidence:     conf,
		EvidenceType:   a.EvidenceType,
		EvidenceWeight: base,
		SourcePMID:     a.SourcePMID,
		SourceDOI:      a.SourceDOI,
		SourceDB:       a.SourceDB,
		SampleSize:     a.Modifiers.SampleSize,
		StudyType:      a.StudyType,
	}
	if err := g.db.InsertFact(fact); err != nil {
		return nil, nil, err
	}

	if err := g.detectConflicts(fact); err != nil {
		// Conflict bookkeeping is never fatal to the insert.
		g.logger.Warn("conflict detection failed", "fact", fact.ID, "err", err)
	}

	after, err := g.AggregateTriple(a.SubjectID, a.Predicate, a.ObjectID)
	if err != nil {
		return fact, nil, err
	}

	if math.Abs(after.Confidence-before.Confidence) > rescoreDelta {
		g.enqueueDependents(a.SubjectID, a.ObjectID)
	}
	return fact, after, nil
}

// AggregateTriple computes the effective view of a triple from its active
// facts, both polarities of the predicate included.
func (g *Graph) AggregateTriple(subjectID, predicate, objectID string) (*Aggregate, error) {
	basePred, _ := PredicatePolarity(predicate)

	facts, err := g.db.ActiveFactsBySubject(subjectID)
	if err != nil {
		return nil, err
	}

	var supporting, opposing []float64
	for _, f := range facts {
		if f.ObjectID != objectID {
			continue
		}
		b, positive := PredicatePolarity(f.Predicate)
		if b != basePred {
			continue
		}
		if positive {
			supporting = append(supporting, f.Confidence)
		} else {
			opposing = append(opposing, f.Confidence)
		}
	}

	agg := aggregate(supporting, opposing)
	agg.Subject = subjectID
	agg.Predicate = basePred
	agg.Object = objectID
	return &agg, nil
}

// TriplesForSubject aggregates every triple under a subject. Disputed triples
// are excluded unless includeDisputed is set.
func (g *Graph) TriplesForSubject(subjectID string, includeDisputed bool) ([]Aggregate, error) {
	facts, err := g.db.ActiveFactsBySubject(subjectID)
	if err != nil {
		return nil, err
	}

	type key struct{ pred, obj string }
	type group struct{ supporting, opposing []float64 }
	groups := make(map[key]*group)
	var order []key

	for _, f := range facts {
		basePred, positive := PredicatePolarity(f.Predicate)
		k := key{pred: basePred, obj: f.ObjectID}
		grp, ok := groups[k]
		if !ok {
			grp = &group{}
			groups[k] = grp
			order = append(order, k)
		}
		if positive {
			grp.supporting = append(grp.supporting, f.Confidence)
		} else {
			grp.opposing = append(grp.opposing, f.Confidence)
		}
	}

	var out []Aggregate
	for _, k := range order {
		grp := groups[k]
		agg := aggregate(grp.supporting, grp.opposing)
		if agg.Status == StatusDisputed && !includeDisputed {
			continue
		}
		agg.Subject = subjectID
		agg.Predicate = k.pred
		agg.Object = k.obj
		out = append(out, agg)
	}
	return out, nil
}

// detectConflicts compares the new fact against the other active facts of its
// triple and records conflicts. Directional: opposite polarity. Magnitude:
// same polarity, both evidence weights strong, confidences far apart.
func (g *Graph) detectConflicts(newFact *storage.Fact) error {
	newBase, newPositive := PredicatePolarity(newFact.Predicate)

	facts, err := g.db.ActiveFactsBySubject(newFact.SubjectID)
	if err != nil {
		return err
	}

	agg, err := g.AggregateTriple(newFact.SubjectID, newFact.Predicate, newFact.ObjectID)
	if err != nil {
		return err
	}

	for _, other := range facts {
		if other.ID == newFact.ID || other.ObjectID != newFact.ObjectID {
			continue
		}
		otherBase, otherPositive := PredicatePolarity(other.Predicate)
		if otherBase != newBase {
			continue
		}

		var conflictType string
		switch {
		case otherPositive != newPositive:
			conflictType = ConflictDirectional
		case other.EvidenceWeight > magnitudeWeightFloor &&
			newFact.EvidenceWeight > magnitudeWeightFloor &&
			math.Abs(other.Confidence-newFact.Confidence) > magnitudeDeltaAbove:
			conflictType = ConflictMagnitude
		default:
			continue
		}

		resolution := storage.ResolutionUnresolved
		if other.Confidence > manualReviewAbove && newFact.Confidence > manualReviewAbove {
			resolution = storage.ResolutionManualReview
		}

		conflict := &storage.Conflict{
			FactAID:       other.ID,
			FactBID:       newFact.ID,
			ConflictType:  conflictType,
			NetConfidence: agg.Net,
			Resolution:    resolution,
		}
		if err := g.db.InsertConflict(conflict); err != nil {
			return err
		}
		if err := g.db.SetContradictionFlag(other.ID, true); err != nil {
			return err
		}
		if err := g.db.SetContradictionFlag(newFact.ID, true); err != nil {
			return err
		}
		g.logger.Info("kg conflict recorded",
			"type", conflictType, "net", agg.Net, "resolution", resolution,
			"subject", newFact.SubjectID, "object", newFact.ObjectID)
	}
	return nil
}

// SupersedeFact closes a live fact and appends its zero-confidence
// replacement, preserving the append-only history.
func (g *Graph) SupersedeFact(fact *storage.Fact, studyType string) error {
	if err := g.db.SupersedeFacts([]uuid.UUID{fact.ID}, time.Now().UTC()); err != nil {
		return err
	}
	replacement := &storage.Fact{
		SubjectID:      fact.SubjectID,
		Predicate:      fact.Predicate,
		ObjectID:       fact.ObjectID,
		Confidence:     0,
		EvidenceType:   fact.EvidenceType,
		EvidenceWeight: fact.EvidenceWeight,
		SourcePMID:     fact.SourcePMID,
		SourceDOI:      fact.SourceDOI,
		SourceDB:       fact.SourceDB,
		SampleSize:     fact.SampleSize,
		StudyType:      studyType,
	}
	return g.db.InsertFact(replacement)
}

// RetractPaper cascades a retraction: every live fact sourced from the paper
// is superseded with a zero-confidence replacement, the paper's chunks leave
// the vector index, and dependent pairs are queued for rescoring. Returns the
// number of facts superseded.
func (g *Graph) RetractPaper(pmid string) (int, error) {
	facts, err := g.db.FactsBySourcePMID(pmid)
	if err != nil {
		return 0, err
	}

	superseded := 0
	for i := range facts {
		f := &facts[i]
		if f.ValidUntil != nil {
			continue
		}
		if err := g.SupersedeFact(f, "retraction"); err != nil {
			return superseded, err
		}
		superseded++
		g.enqueueDependents(f.SubjectID, f.ObjectID)
	}

	var paperID *uuid.UUID
	if paper, err := g.db.FindPaperByPMID(pmid); err == nil && paper != nil {
		paperID = &paper.ID
		if g.index != nil {
			removed := g.index.Remove(paper.ID.String())
			g.logger.Info("retraction removed chunks from vector index",
				"pmid", pmid, "chunks", removed)
		}
	}

	detail := fmt.Sprintf("pmid=%s facts=%d", pmid, superseded)
	if err := g.db.Audit(storage.AuditRetraction, paperID, "kg", detail); err != nil {
		g.logger.Warn("audit failed", "err", err)
	}
	return superseded, nil
}

// ResolveConflict moves a conflict into a terminal resolution state.
func (g *Graph) ResolveConflict(id uuid.UUID, resolution string) error {
	switch resolution {
	case storage.ResolutionDisputed, storage.ResolutionResolved, storage.ResolutionManualReview:
	default:
		return fmt.Errorf("invalid conflict resolution %q", resolution)
	}
	return g.db.UpdateConflictResolution(id, resolution)
}

// enqueueDependents queues every (gene, cancer) pair whose score depends on
// the shifted triple: the triple's own pair plus every current score for the
// subject gene.
func (g *Graph) enqueueDependents(subjectID, objectID string) {
	pairs, err := g.db.ScoredPairs()
	if err != nil {
		g.logger.Warn("listing scored pairs", "err", err)
		pairs = nil
	}

	queued := 0
	if objectID != "" && g.queue.Enqueue(Pair{GeneID: subjectID, CancerID: objectID}) {
		queued++
	}
	for _, p := range pairs {
		if p[0] != subjectID {
			continue
		}
		if g.queue.Enqueue(Pair{GeneID: p[0], CancerID: p[1]}) {
			queued++
		}
	}
	if queued > 0 {
		detail := fmt.Sprintf("subject=%s pairs=%d", subjectID, queued)
		if err := g.db.Audit(storage.AuditRescoreQueued, nil, "kg", detail); err != nil {
			g.logger.Warn("audit failed", "err", err)
		}
	}
}
