package kg

import (
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/oncoscout/oncoscout/internal/storage"
)

func openGraph(t *testing.T) (*Graph, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, nil, log.New(io.Discard)), db
}

func TestBaseWeights(t *testing.T) {
	tests := []struct {
		evidenceType string
		want         float64
	}{
		{EvidenceInVivo, 1.00},
		{EvidenceInVitro, 0.85},
		{EvidencePhase3Plus, 1.00},
		{EvidencePhase12, 0.75},
		{EvidenceComputedML, 0.50},
		{EvidenceComputedRule, 0.35},
		{EvidenceTextMined, 0.30},
		{EvidenceDBAssertion, 0.40},
	}
	for _, tt := range tests {
		got, err := BaseWeight(tt.evidenceType)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, tt.evidenceType)
	}
	_, err := BaseWeight("hearsay")
	require.ErrorIs(t, err, ErrUnknownEvidence)
}

func TestConfidenceModifiers(t *testing.T) {
	big := int64(5000)
	tests := []struct {
		name string
		typ  string
		mods Modifiers
		want float64
	}{
		{"plain in vitro", EvidenceInVitro, Modifiers{}, 0.85},
		{"large cohort", EvidenceInVitro, Modifiers{SampleSize: &big}, 0.85 * 1.20},
		{"replicated", EvidenceInVitro, Modifiers{ReplicatedCount: 2}, 0.85 * 1.15},
		{"preprint", EvidenceInVivo, Modifiers{PreprintOnly: true}, 0.70},
		{"cell line only", EvidenceInVivo, Modifiers{CellLineOnly: true}, 0.85},
		{"retracted", EvidenceInVivo, Modifiers{Retracted: true, HighImpact: true}, 0},
		{"capped at one", EvidenceInVivo, Modifiers{SampleSize: &big, ReplicatedCount: 3, HighImpact: true}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Confidence(tt.typ, tt.mods)
			require.NoError(t, err)
			require.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestNoisyOR(t *testing.T) {
	require.InDelta(t, 0.92, NoisyOR([]float64{0.8, 0.6}), 1e-9)
	require.InDelta(t, 0.8, NoisyOR([]float64{0.8, 0}), 1e-9)
	require.InDelta(t, 1.0, NoisyOR([]float64{0.3, 1.0}), 1e-9)
	require.Zero(t, NoisyOR(nil))

	// Monotonic non-decreasing in supporting evidence.
	prev := 0.0
	confs := []float64{}
	for i := 0; i < 5; i++ {
		confs = append(confs, 0.4)
		cur := NoisyOR(confs)
		require.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestPredicatePolarity(t *testing.T) {
	tests := []struct {
		in       string
		base     string
		positive bool
	}{
		{"inhibits", "inhibit", true},
		{"does_not_inhibit", "inhibit", false},
		{"mutated_in", "mutated_in", true},
		{"not_mutated_in", "mutated_in", false},
		{"no_dependency_on", "dependency_on", false},
	}
	for _, tt := range tests {
		base, positive := PredicatePolarity(tt.in)
		require.Equal(t, tt.base, base, tt.in)
		require.Equal(t, tt.positive, positive, tt.in)
	}
}

func TestAssertAndAggregate(t *testing.T) {
	g, _ := openGraph(t)

	// Two independent in-vitro observations of the same triple from distinct
	// papers: noisy-OR, no conflict.
	a1 := &Assertion{
		SubjectID: "HGNC:6407", Predicate: "mutated_in", ObjectID: "PAAD",
		EvidenceType: EvidenceInVivo, Modifiers: Modifiers{PreprintOnly: false, CellLineOnly: false},
		SourcePMID: "111",
	}
	_, agg, err := g.Assert(a1)
	require.NoError(t, err)
	require.InDelta(t, 1.0, agg.Confidence, 1e-9)

	g2, db := openGraph(t)
	mkAssert := func(pmid string) *Assertion {
		return &Assertion{
			SubjectID: "HGNC:6407", Predicate: "mutated_in", ObjectID: "PAAD",
			EvidenceType: EvidenceInVitro, SourcePMID: pmid,
		}
	}
	_, _, err = g2.Assert(mkAssert("111"))
	require.NoError(t, err)
	_, agg, err = g2.Assert(mkAssert("222"))
	require.NoError(t, err)
	require.Equal(t, StatusSupported, agg.Status)
	require.InDelta(t, 1-0.15*0.15, agg.Confidence, 1e-9)
	require.False(t, agg.Contradicted)

	conflicts, err := db.ListConflicts("")
	require.NoError(t, err)
	require.Empty(t, conflicts)
}

func TestAssertDirectionalConflictDisputed(t *testing.T) {
	g, db := openGraph(t)

	// confidence 0.9: in_vivo with cell-line-only would be 0.85; use phase 3
	// (1.0) with no modifiers against in_vitro (0.85): net = 0.15, disputed.
	_, _, err := g.Assert(&Assertion{
		SubjectID: "CHEMBL:25", Predicate: "inhibits", ObjectID: "HGNC:6407",
		EvidenceType: EvidencePhase3Plus, SourcePMID: "111",
	})
	require.NoError(t, err)

	_, agg, err := g.Assert(&Assertion{
		SubjectID: "CHEMBL:25", Predicate: "does_not_inhibit", ObjectID: "HGNC:6407",
		EvidenceType: EvidenceInVitro, SourcePMID: "222",
	})
	require.NoError(t, err)

	require.True(t, agg.Contradicted)
	require.InDelta(t, 0.15, agg.Net, 1e-9)
	require.Equal(t, StatusDisputed, agg.Status)
	require.InDelta(t, 0.15*0.7, agg.Confidence, 1e-9)

	conflicts, err := db.ListConflicts(storage.ResolutionUnresolved)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.Equal(t, ConflictDirectional, conflicts[0].ConflictType)

	// Both facts stay in the store, flagged.
	active, err := db.ActiveFactsBySubject("CHEMBL:25")
	require.NoError(t, err)
	require.Len(t, active, 2)
	for _, f := range active {
		require.True(t, f.ContradictionFlag)
	}

	// Disputed triples are excluded from default subject views.
	triples, err := g.TriplesForSubject("CHEMBL:25", false)
	require.NoError(t, err)
	require.Empty(t, triples)
	triples, err = g.TriplesForSubject("CHEMBL:25", true)
	require.NoError(t, err)
	require.Len(t, triples, 1)
}

func TestAssertConflictManualReview(t *testing.T) {
	g, db := openGraph(t)

	_, _, err := g.Assert(&Assertion{
		SubjectID: "HGNC:1097", Predicate: "activates", ObjectID: "PW:MAPK",
		EvidenceType: EvidenceInVivo, SourcePMID: "111",
	})
	require.NoError(t, err)
	_, agg, err := g.Assert(&Assertion{
		SubjectID: "HGNC:1097", Predicate: "does_not_activate", ObjectID: "PW:MAPK",
		EvidenceType: EvidencePhase3Plus, SourcePMID: "222",
	})
	require.NoError(t, err)

	// 1.0 against 1.0: both above the review bar.
	conflicts, err := db.ListConflicts(storage.ResolutionManualReview)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.Equal(t, StatusDisputed, agg.Status)
}

func TestAssertDominantDirection(t *testing.T) {
	g, _ := openGraph(t)

	for _, pmid := range []string{"1", "2"} {
		_, _, err := g.Assert(&Assertion{
			SubjectID: "HGNC:6407", Predicate: "drives", ObjectID: "PAAD",
			EvidenceType: EvidenceInVivo, SourcePMID: pmid,
		})
		require.NoError(t, err)
	}
	_, agg, err := g.Assert(&Assertion{
		SubjectID: "HGNC:6407", Predicate: "does_not_drive", ObjectID: "PAAD",
		EvidenceType: EvidenceTextMined, SourcePMID: "3",
	})
	require.NoError(t, err)

	// net = 1.0 + 1.0 - 0.3 = 1.7, at least 0.60: dominant, minority counted.
	require.Equal(t, StatusDominant, agg.Status)
	require.Equal(t, DirectionSupporting, agg.Direction)
	require.Equal(t, 2, agg.Supporting)
	require.Equal(t, 1, agg.Opposing)
}

func TestAggregateDirectionDistinguishesPolarity(t *testing.T) {
	// Mirrored evidence must not collapse into the same view: the prevailing
	// polarity is part of the aggregate.
	fwd := aggregate([]float64{0.9}, []float64{0.2})
	rev := aggregate([]float64{0.2}, []float64{0.9})

	require.InDelta(t, fwd.Confidence, rev.Confidence, 1e-9)
	require.Equal(t, fwd.Status, rev.Status)
	require.Equal(t, DirectionSupporting, fwd.Direction)
	require.Equal(t, DirectionOpposing, rev.Direction)

	// Exactly balanced evidence favors neither polarity.
	require.Empty(t, aggregate([]float64{0.5}, []float64{0.5}).Direction)
}

func TestAssertOpposingDominant(t *testing.T) {
	g, _ := openGraph(t)

	for _, pmid := range []string{"1", "2"} {
		_, _, err := g.Assert(&Assertion{
			SubjectID: "CHEMBL:25", Predicate: "does_not_inhibit", ObjectID: "HGNC:6407",
			EvidenceType: EvidenceInVivo, SourcePMID: pmid,
		})
		require.NoError(t, err)
	}
	_, agg, err := g.Assert(&Assertion{
		SubjectID: "CHEMBL:25", Predicate: "inhibits", ObjectID: "HGNC:6407",
		EvidenceType: EvidenceTextMined, SourcePMID: "3",
	})
	require.NoError(t, err)

	// The positive base form names the triple; Direction says the negation
	// prevails.
	require.Equal(t, "inhibit", agg.Predicate)
	require.Equal(t, StatusDominant, agg.Status)
	require.Equal(t, DirectionOpposing, agg.Direction)
	require.Equal(t, 1, agg.Supporting)
	require.Equal(t, 2, agg.Opposing)
}

func TestMagnitudeConflict(t *testing.T) {
	g, db := openGraph(t)

	_, _, err := g.Assert(&Assertion{
		SubjectID: "HGNC:6407", Predicate: "essential_in", ObjectID: "PAAD",
		EvidenceType: EvidenceInVivo, SourcePMID: "111",
	})
	require.NoError(t, err)

	// Same direction, both strong study types, confidences far apart
	// (1.0 vs 0.85 * 0.70 * 0.85, about 0.506).
	_, _, err = g.Assert(&Assertion{
		SubjectID: "HGNC:6407", Predicate: "essential_in", ObjectID: "PAAD",
		EvidenceType: EvidenceInVitro, SourcePMID: "222",
		Modifiers:    Modifiers{PreprintOnly: true, CellLineOnly: true},
	})
	require.NoError(t, err)

	conflicts, err := db.ListConflicts("")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.Equal(t, ConflictMagnitude, conflicts[0].ConflictType)
}

func TestRescoreQueueCoalesces(t *testing.T) {
	q := NewRescoreQueue()
	p := Pair{GeneID: "HGNC:6407", CancerID: "PAAD"}
	require.True(t, q.Enqueue(p))
	require.False(t, q.Enqueue(p))
	require.Equal(t, 1, q.Len())

	q.Enqueue(Pair{GeneID: "HGNC:1097", CancerID: "SKCM"})
	drained := q.Drain()
	require.Len(t, drained, 2)
	require.Zero(t, q.Len())
	require.Equal(t, "PAAD", drained[0].CancerID)
}

func TestAssertEnqueuesRescore(t *testing.T) {
	g, db := openGraph(t)

	// A current score for the pair makes it a dependent.
	require.NoError(t, db.InsertScore(&storage.TargetScore{
		GeneID: "HGNC:6407", CancerID: "PAAD", Composite: 0.5, ConfAdjusted: 0.4,
		Components: map[string]float64{}, Weights: map[string]float64{},
		ShortlistTier: storage.TierNone,
	}))

	_, _, err := g.Assert(&Assertion{
		SubjectID: "HGNC:6407", Predicate: "mutated_in", ObjectID: "PAAD",
		EvidenceType: EvidenceInVivo, SourcePMID: "111",
	})
	require.NoError(t, err)

	pairs := g.Queue().Drain()
	require.Equal(t, []Pair{{GeneID: "HGNC:6407", CancerID: "PAAD"}}, pairs)

	audits, err := db.ListAudit(storage.AuditRescoreQueued, 10)
	require.NoError(t, err)
	require.NotEmpty(t, audits)
}

func TestRetractPaperCascade(t *testing.T) {
	g, db := openGraph(t)

	_, _, err := g.Assert(&Assertion{
		SubjectID: "HGNC:6407", Predicate: "mutated_in", ObjectID: "PAAD",
		EvidenceType: EvidenceInVivo, SourcePMID: "999",
	})
	require.NoError(t, err)
	_, _, err = g.Assert(&Assertion{
		SubjectID: "HGNC:6407", Predicate: "drives", ObjectID: "PAAD",
		EvidenceType: EvidenceInVitro, SourcePMID: "999",
	})
	require.NoError(t, err)

	n, err := g.RetractPaper("999")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Old rows closed, zero-confidence replacements live.
	all, err := db.FactsBySourcePMID("999")
	require.NoError(t, err)
	require.Len(t, all, 4)
	live := 0
	for _, f := range all {
		if f.ValidUntil == nil {
			live++
			require.Zero(t, f.Confidence)
		}
	}
	require.Equal(t, 2, live)

	// Aggregate for the triple collapses to zero.
	agg, err := g.AggregateTriple("HGNC:6407", "mutated_in", "PAAD")
	require.NoError(t, err)
	require.True(t, math.Abs(agg.Confidence) < 1e-9)

	audits, err := db.ListAudit(storage.AuditRetraction, 10)
	require.NoError(t, err)
	require.Len(t, audits, 1)
}

func TestResolveConflictValidation(t *testing.T) {
	g, db := openGraph(t)

	_, _, err := g.Assert(&Assertion{
		SubjectID: "A", Predicate: "binds", ObjectID: "B",
		EvidenceType: EvidenceInVivo, SourcePMID: "1",
	})
	require.NoError(t, err)
	_, _, err = g.Assert(&Assertion{
		SubjectID: "A", Predicate: "does_not_bind", ObjectID: "B",
		EvidenceType: EvidenceTextMined, SourcePMID: "2",
	})
	require.NoError(t, err)

	conflicts, err := db.ListConflicts("")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	require.Error(t, g.ResolveConflict(conflicts[0].ID, "whatever"))
	require.Error(t, g.ResolveConflict(conflicts[0].ID, storage.ResolutionUnresolved))
	require.NoError(t, g.ResolveConflict(conflicts[0].ID, storage.ResolutionResolved))

	updated, err := db.ListConflicts(storage.ResolutionResolved)
	require.NoError(t, err)
	require.Len(t, updated, 1)
}
