package feedback

import (
	"fmt"
	"math"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/oncoscout/oncoscout/internal/kg"
	"github.com/oncoscout/oncoscout/internal/scoring"
	"github.com/oncoscout/oncoscout/internal/storage"
)

// Proposal bounds. A single proposal moves each weight by at most maxDelta
// and never outside [weightFloor, weightCeil].
const (
	maxDelta    = 0.05
	weightFloor = 0.01
	weightCeil  = 0.40
)

// Correlation bands: components correlating above boostAbove get boosted,
// below decayBelow get decayed, the middle band is left alone.
const (
	boostAbove  = 0.30
	decayBelow  = 0.10
	boostFactor = 0.05
	decayFactor = 0.95
)

// impactThreshold is the rank movement that counts as a material impact.
const impactThreshold = 5

// algorithmName identifies the proposal algorithm in stored updates.
const algorithmName = "component-correlation-v1"

// Observation pairs one target's normalized component values with an outcome
// signal (validation success, benchmark score).
type Observation struct {
	GeneID     string
	CancerID   string
	Components map[string]float64
	Outcome    float64
}

// Controller computes outcome metrics and proposes weight updates. Proposals
// are inert until a reviewer applies them.
type Controller struct {
	db           *storage.DB
	graph        *kg.Graph
	logger       *log.Logger
	targetSignal string
}

// Option configures a Controller.
type Option func(*Controller)

// WithTargetSignal selects the metric the controller optimizes for.
func WithTargetSignal(metric string) Option {
	return func(c *Controller) { c.targetSignal = metric }
}

// NewController creates a feedback controller. The default target signal is
// recall over validated targets.
func NewController(db *storage.DB, graph *kg.Graph, logger *log.Logger, opts ...Option) *Controller {
	c := &Controller{db: db, graph: graph, logger: logger, targetSignal: MetricRecallAtN}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TargetSignal reports the metric the controller optimizes for.
func (c *Controller) TargetSignal() string { return c.targetSignal }

// Record appends one feedback event.
func (c *Controller) Record(e *storage.FeedbackEvent) error {
	if err := c.db.InsertFeedbackEvent(e); err != nil {
		return err
	}
	c.logger.Info("feedback recorded", "type", e.EventType, "metric", e.MetricName, "value", e.MetricValue)
	return nil
}

// Propose derives a bounded weight update from component-outcome correlations
// and stores it pending review. Returns nil when no component clears a
// correlation band, so nothing would change.
func (c *Controller) Propose(observations []Observation, reason string) (*storage.WeightUpdate, error) {
	if len(observations) < 2 {
		return nil, ErrInsufficientData
	}

	previous, err := c.currentWeights()
	if err != nil {
		return nil, err
	}

	correlations := componentCorrelations(observations)
	desired := make(map[string]float64, len(previous))
	changed := false
	for comp, w := range previous {
		r, ok := correlations[comp]
		switch {
		case ok && r > boostAbove:
			desired[comp] = w * (1 + boostFactor*r)
			changed = true
		case ok && r < decayBelow:
			desired[comp] = w * decayFactor
			changed = true
		default:
			desired[comp] = w
		}
	}
	if !changed {
		return nil, nil
	}

	proposed := boundProposal(previous, desired)
	impact, err := c.rankingImpact(previous, proposed)
	if err != nil {
		return nil, err
	}

	update := &storage.WeightUpdate{
		Previous:      previous,
		Proposed:      proposed,
		TriggerReason: reason,
		Algorithm:     algorithmName,
		DeltaSummary:  deltaSummary(previous, proposed),
		Impact:        impact,
	}
	if err := c.db.InsertWeightUpdate(update); err != nil {
		return nil, err
	}
	c.logger.Info("weight update proposed",
		"id", update.ID, "reason", reason, "impacted", len(impact))
	return update, nil
}

// Apply marks a proposal as applied and queues every scored pair for
// rescoring under the new weights.
func (c *Controller) Apply(id uuid.UUID, approvedBy string) (int, error) {
	if approvedBy == "" {
		return 0, fmt.Errorf("weight update %s: reviewer name required", id)
	}
	if err := c.db.ApplyWeightUpdate(id, approvedBy); err != nil {
		return 0, err
	}

	pairs, err := c.db.ScoredPairs()
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, p := range pairs {
		if c.graph.Queue().Enqueue(kg.Pair{GeneID: p[0], CancerID: p[1]}) {
			queued++
		}
	}
	c.logger.Info("weight update applied", "id", id, "by", approvedBy, "requeued", queued)
	return queued, nil
}

func (c *Controller) currentWeights() (map[string]float64, error) {
	applied, err := c.db.CurrentWeights()
	if err != nil {
		return nil, err
	}
	if applied != nil {
		return applied, nil
	}
	return scoring.DefaultWeights(), nil
}

// boundProposal clamps each weight to within maxDelta of its previous value
// and inside [weightFloor, weightCeil], then redistributes the normalization
// residual over weights that still have slack.
func boundProposal(previous, desired map[string]float64) map[string]float64 {
	p := make(map[string]float64, len(desired))
	for k, v := range desired {
		p[k] = v
	}

	lo := func(k string) float64 { return math.Max(weightFloor, previous[k]-maxDelta) }
	hi := func(k string) float64 { return math.Min(weightCeil, previous[k]+maxDelta) }

	for iter := 0; iter < 16; iter++ {
		sum := 0.0
		for k := range p {
			p[k] = math.Min(hi(k), math.Max(lo(k), p[k]))
			sum += p[k]
		}
		residual := 1 - sum
		if math.Abs(residual) < 1e-12 {
			break
		}
		var free []string
		for k := range p {
			if residual > 0 && p[k] < hi(k) {
				free = append(free, k)
			}
			if residual < 0 && p[k] > lo(k) {
				free = append(free, k)
			}
		}
		if len(free) == 0 {
			break
		}
		share := residual / float64(len(free))
		for _, k := range free {
			p[k] += share
		}
	}
	return p
}

// rankingImpact compares current rankings against a reweighting of the stored
// component values, reporting targets that move impactThreshold or more
// positions within their cancer type.
func (c *Controller) rankingImpact(previous, proposed map[string]float64) ([]storage.RankingImpact, error) {
	pairs, err := c.db.ScoredPairs()
	if err != nil {
		return nil, err
	}
	byCancer := map[string][]storage.TargetScore{}
	for _, p := range pairs {
		if _, ok := byCancer[p[1]]; ok {
			continue
		}
		scores, err := c.db.CurrentScoresForCancer(p[1])
		if err != nil {
			return nil, err
		}
		byCancer[p[1]] = scores
	}

	var impact []storage.RankingImpact
	for cancer, scores := range byCancer {
		oldRank := rankBy(scores, func(s storage.TargetScore) float64 {
			return s.ConfAdjusted
		})
		newRank := rankBy(scores, func(s storage.TargetScore) float64 {
			return reweighted(s, proposed)
		})
		for _, s := range scores {
			moved := newRank[s.GeneID] - oldRank[s.GeneID]
			if moved >= impactThreshold || moved <= -impactThreshold {
				impact = append(impact, storage.RankingImpact{
					GeneID:   s.GeneID,
					CancerID: cancer,
					OldRank:  oldRank[s.GeneID],
					NewRank:  newRank[s.GeneID],
				})
			}
		}
	}
	sort.Slice(impact, func(i, j int) bool {
		if impact[i].CancerID != impact[j].CancerID {
			return impact[i].CancerID < impact[j].CancerID
		}
		return impact[i].GeneID < impact[j].GeneID
	})
	return impact, nil
}

// reweighted recombines a score's stored normalized components under a
// candidate weight vector, preserving its penalty and confidence scaling.
func reweighted(s storage.TargetScore, weights map[string]float64) float64 {
	used := make(map[string]float64)
	for comp := range s.Components {
		if w, ok := weights[comp]; ok {
			used[comp] = w
		}
	}
	used = scoring.Renormalize(used)

	composite := 0.0
	for comp, w := range used {
		composite += w * s.Components[comp]
	}
	composite -= s.Penalty
	if composite < 0 {
		composite = 0
	}
	if composite > 1 {
		composite = 1
	}
	if s.Composite > 0 {
		return composite * (s.ConfAdjusted / s.Composite)
	}
	return composite
}

// rankBy assigns 1-based ranks by descending value, gene id as tiebreak.
func rankBy(scores []storage.TargetScore, value func(storage.TargetScore) float64) map[string]int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		va, vb := value(scores[idx[a]]), value(scores[idx[b]])
		if va != vb {
			return va > vb
		}
		return scores[idx[a]].GeneID < scores[idx[b]].GeneID
	})
	out := make(map[string]int, len(scores))
	for rank, i := range idx {
		out[scores[i].GeneID] = rank + 1
	}
	return out
}

func deltaSummary(previous, proposed map[string]float64) string {
	keys := make([]string, 0, len(proposed))
	for k := range proposed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	summary := ""
	for _, k := range keys {
		d := proposed[k] - previous[k]
		if math.Abs(d) < 1e-9 {
			continue
		}
		if summary != "" {
			summary += ", "
		}
		summary += fmt.Sprintf("%s %+.3f", k, d)
	}
	if summary == "" {
		return "no change"
	}
	return summary
}
