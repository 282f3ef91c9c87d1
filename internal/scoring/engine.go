package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/oncoscout/oncoscout/internal/evidence"
	"github.com/oncoscout/oncoscout/internal/kg"
	"github.com/oncoscout/oncoscout/internal/storage"
)

// Penalty terms. Additive, applied after the weighted sum.
const (
	penaltyInhibitorSaturation = 0.15
	penaltyLowSpecificity      = 0.10
	penaltyStructuralVoid      = 0.08
)

// Penalty thresholds.
const (
	inhibitorSaturationCount = 50
	lowSpecificityRatio      = 1.5
	structuralVoidPLDDT      = 50.0
)

// Shortlist thresholds.
const (
	primaryAdjustedFloor   = 0.60
	primaryMutFreqFloor    = 0.05
	primaryStructuralFloor = 0.40
	secondaryAdjustedFloor = 0.45
	exclusionNoveltyBelow  = 0.20
)

// Warning thresholds.
const warnSpecificityBelow = 1.2

// Structural composite weights: PDB coverage, predicted pLDDT, pocket
// druggability.
const (
	structPDBWeight    = 0.40
	structPLDDTWeight  = 0.35
	structPocketWeight = 0.25
	pdbCoverageCap     = 5
)

// Scales for the saturation-style raw components.
const (
	inhibitorNoveltyScale  = 10.0
	literatureNoveltyScale = 20.0
)

// rawComponents holds the unnormalized component values for one gene. Nil
// means the component is missing, which is never the same as zero.
type rawComponents struct {
	values map[string]float64

	mutFreqRaw     *float64
	specificityRaw *float64
	structuralRaw  *float64
	inhibitors     *int
	noExperimental bool
	noPrediction   bool
	lowPLDDT       bool
}

// Engine scores (gene, cancer) pairs and persists versioned results.
type Engine struct {
	db              *storage.DB
	graph           *kg.Graph
	logger          *log.Logger
	overrides       map[string]float64
	includeExcluded bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWeightOverrides supplies config-file weights used when no applied
// weight update exists.
func WithWeightOverrides(w map[string]float64) EngineOption {
	return func(e *Engine) { e.overrides = w }
}

// WithIncludeExcluded disables the hard-exclusion tier (caller opt-in).
func WithIncludeExcluded() EngineOption {
	return func(e *Engine) { e.includeExcluded = true }
}

// NewEngine creates a scoring engine.
func NewEngine(db *storage.DB, graph *kg.Graph, logger *log.Logger, opts ...EngineOption) *Engine {
	e := &Engine{db: db, graph: graph, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Weights resolves the active weight vector: the last applied weight update,
// then config overrides, then defaults.
func (e *Engine) Weights() (map[string]float64, error) {
	applied, err := e.db.CurrentWeights()
	if err != nil {
		return nil, err
	}
	for _, w := range []map[string]float64{applied, e.overrides} {
		if w == nil {
			continue
		}
		if err := ValidateWeights(w); err != nil {
			return nil, err
		}
		return w, nil
	}
	return DefaultWeights(), nil
}

// ScoreCohort scores every gene of the cohort for one cancer type and
// persists a new version per pair, skipping pairs whose inputs are unchanged.
// Rank normalization spans the whole cohort, so scores are comparable only
// within one run.
func (e *Engine) ScoreCohort(ctx context.Context, cancerID string, geneIDs []string) ([]storage.TargetScore, error) {
	if len(geneIDs) == 0 {
		return nil, nil
	}
	weights, err := e.Weights()
	if err != nil {
		return nil, err
	}

	raws := make(map[string]*rawComponents, len(geneIDs))
	for _, gene := range geneIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := e.gather(gene, cancerID)
		if err != nil {
			return nil, fmt.Errorf("gathering components for %s: %w", gene, err)
		}
		raws[gene] = raw
	}

	normalized := normalizeCohort(raws)

	var out []storage.TargetScore
	for _, gene := range geneIDs {
		score, err := e.scoreOne(gene, cancerID, raws[gene], normalized[gene], weights)
		if err != nil {
			return nil, err
		}
		out = append(out, *score)
	}
	return out, nil
}

// ScorePair scores one pair within its evidence cohort and returns its
// result.
func (e *Engine) ScorePair(ctx context.Context, geneID, cancerID string) (*storage.TargetScore, error) {
	cohort, err := e.Cohort(cancerID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, g := range cohort {
		if g == geneID {
			found = true
			break
		}
	}
	if !found {
		cohort = append(cohort, geneID)
	}

	scores, err := e.ScoreCohort(ctx, cancerID, cohort)
	if err != nil {
		return nil, err
	}
	for i := range scores {
		if scores[i].GeneID == geneID {
			return &scores[i], nil
		}
	}
	return nil, fmt.Errorf("pair %s/%s missing from cohort result", geneID, cancerID)
}

// Cohort returns the genes with evidence rows for a cancer type.
func (e *Engine) Cohort(cancerID string) ([]string, error) {
	return e.db.DependencyGenes(cancerID)
}

// DrainQueue scores every pair pending in the knowledge-graph rescore queue.
func (e *Engine) DrainQueue(ctx context.Context) (int, error) {
	pairs := e.graph.Queue().Drain()
	for _, p := range pairs {
		if _, err := e.ScorePair(ctx, p.GeneID, p.CancerID); err != nil {
			return 0, fmt.Errorf("rescoring %s/%s: %w", p.GeneID, p.CancerID, err)
		}
	}
	return len(pairs), nil
}

// gather collects the raw component values for one pair. Missing upstream
// data stays missing.
func (e *Engine) gather(geneID, cancerID string) (*rawComponents, error) {
	raw := &rawComponents{values: make(map[string]float64)}

	if mf, err := e.db.MutationFrequencyFor(geneID, cancerID); err != nil {
		return nil, err
	} else if mf != nil {
		raw.values[CompMutationFreq] = mf.Frequency
		raw.mutFreqRaw = &mf.Frequency
	}

	if dep, err := evidence.SummarizeDependency(e.db, geneID, cancerID); err != nil {
		return nil, err
	} else if dep != nil {
		raw.values[CompDependency] = ClampDependency(dep.Mean)
	}

	if sv, err := e.db.SurvivalFor(geneID, cancerID); err != nil {
		return nil, err
	} else if sv != nil {
		raw.values[CompSurvival] = sv.Correlation
	}

	if ex, err := e.db.ExpressionFor(geneID, cancerID); err != nil {
		return nil, err
	} else if ex != nil {
		raw.values[CompSpecificity] = ex.Ratio
		raw.specificityRaw = &ex.Ratio
	}

	st, err := e.db.StructureFor(geneID)
	if err != nil {
		return nil, err
	}
	if st != nil {
		composite := StructuralComposite(st)
		raw.values[CompStructural] = composite
		raw.structuralRaw = &composite
		raw.noExperimental = st.PDBCount == 0
		raw.noPrediction = st.PredictedPLDDT == nil
		raw.lowPLDDT = st.PredictedPLDDT != nil && *st.PredictedPLDDT < structuralVoidPLDDT
		if st.PocketDruggability != nil {
			raw.values[CompPocket] = *st.PocketDruggability
		}
	} else {
		raw.noExperimental = true
		raw.noPrediction = true
	}

	if cp, err := e.db.CompoundFor(geneID); err != nil {
		return nil, err
	} else if cp != nil {
		raw.values[CompNovelty] = 1 / (1 + float64(cp.InhibitorCount)/inhibitorNoveltyScale)
		raw.inhibitors = &cp.InhibitorCount
	}

	if pws, err := e.db.PathwaysFor(geneID); err != nil {
		return nil, err
	} else if len(pws) > 0 {
		// Worst case across memberships: the most escape routes.
		escapes := 0
		for _, pw := range pws {
			if pw.EscapeRoutes > escapes {
				escapes = pw.EscapeRoutes
			}
		}
		raw.values[CompPathway] = 1 / (1 + float64(escapes))
	}

	// Literature novelty falls as the knowledge graph accumulates evidence
	// about the gene.
	facts, err := e.db.ActiveFactsBySubject(geneID)
	if err != nil {
		return nil, err
	}
	raw.values[CompLitNovelty] = 1 / (1 + float64(len(facts))/literatureNoveltyScale)

	return raw, nil
}

// StructuralComposite combines PDB coverage, predicted pLDDT, and pocket
// druggability. Absent terms contribute zero; absence is still penalized
// separately through the structural-void rules.
func StructuralComposite(st *storage.StructureRow) float64 {
	coverage := float64(st.PDBCount) / pdbCoverageCap
	if coverage > 1 {
		coverage = 1
	}
	c := structPDBWeight * coverage
	if st.PredictedPLDDT != nil {
		c += structPLDDTWeight * (*st.PredictedPLDDT / 100)
	}
	if st.PocketDruggability != nil {
		c += structPocketWeight * *st.PocketDruggability
	}
	return c
}

// normalizeCohort rank-normalizes each component across the genes that have
// it.
func normalizeCohort(raws map[string]*rawComponents) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(raws))
	for gene := range raws {
		out[gene] = make(map[string]float64)
	}
	for _, comp := range Components {
		values := make(map[string]float64)
		for gene, raw := range raws {
			if v, ok := raw.values[comp]; ok {
				values[gene] = v
			}
		}
		for gene, n := range RankNormalize(values) {
			out[gene][comp] = n
		}
	}
	return out
}

// scoreOne combines normalized components into a persisted score row.
func (e *Engine) scoreOne(geneID, cancerID string, raw *rawComponents,
	normalized map[string]float64, weights map[string]float64) (*storage.TargetScore, error) {

	used := make(map[string]float64)
	var flags []string
	missingCritical := 0
	for _, comp := range Components {
		if _, ok := normalized[comp]; ok {
			used[comp] = weights[comp]
			continue
		}
		flags = append(flags, "missing:"+comp)
		if criticalComponents[comp] {
			missingCritical++
		}
	}
	used = Renormalize(used)

	composite := 0.0
	for comp, w := range used {
		composite += w * normalized[comp]
	}

	penalty := e.penalty(raw)
	composite -= penalty
	composite = clamp01(composite)

	confidence, disputed, err := e.kgConfidence(geneID)
	if err != nil {
		return nil, err
	}
	adjusted := composite * confidence *
		math.Pow(missingCriticalMultiplier, float64(missingCritical))

	warnings := e.warnings(raw, disputed)
	tier := e.tier(raw, adjusted)
	if tier == storage.TierExcluded {
		flags = append(flags, "hard_exclusion")
	}

	score := &storage.TargetScore{
		GeneID:        geneID,
		CancerID:      cancerID,
		Composite:     composite,
		ConfAdjusted:  adjusted,
		Components:    componentsFor(normalized),
		Weights:       used,
		Penalty:       penalty,
		ShortlistTier: tier,
		Flags:         flags,
		Warnings:      warnings,
	}

	// Recomputing with unchanged inputs does not burn a version.
	current, err := e.db.CurrentScore(geneID, cancerID)
	if err != nil {
		return nil, err
	}
	if current != nil && scoresEqual(current, score) {
		return current, nil
	}

	if err := e.db.InsertScore(score); err != nil {
		return nil, err
	}
	e.logger.Info("scored target",
		"gene", geneID, "cancer", cancerID, "version", score.ScoreVersion,
		"composite", score.Composite, "adjusted", score.ConfAdjusted, "tier", tier)
	return score, nil
}

// penalty sums the additive penalty terms from raw inputs.
func (e *Engine) penalty(raw *rawComponents) float64 {
	p := 0.0
	if raw.inhibitors != nil && *raw.inhibitors > inhibitorSaturationCount {
		p += penaltyInhibitorSaturation
	}
	if raw.specificityRaw != nil && *raw.specificityRaw < lowSpecificityRatio {
		p += penaltyLowSpecificity
	}
	// Structural void: nothing experimental and the prediction is poor or
	// absent entirely.
	if raw.noExperimental && (raw.lowPLDDT || raw.noPrediction) {
		p += penaltyStructuralVoid
	}
	return p
}

// kgConfidence is the mean aggregated confidence over the gene's active
// triples, with no adjustment when the graph knows nothing yet. Also reports
// whether any triple is disputed.
func (e *Engine) kgConfidence(geneID string) (float64, bool, error) {
	triples, err := e.graph.TriplesForSubject(geneID, true)
	if err != nil {
		return 0, false, err
	}
	disputed := false
	sum, n := 0.0, 0
	for _, tr := range triples {
		if tr.Status == kg.StatusDisputed {
			disputed = true
			continue
		}
		sum += tr.Confidence
		n++
	}
	if n == 0 {
		return 1.0, disputed, nil
	}
	return sum / float64(n), disputed, nil
}

func (e *Engine) warnings(raw *rawComponents, disputed bool) []string {
	var out []string
	if raw.specificityRaw != nil && *raw.specificityRaw < warnSpecificityBelow {
		out = append(out, "low_specificity")
	}
	if raw.noExperimental && (raw.noPrediction || raw.lowPLDDT) {
		out = append(out, "structurally_unresolved")
	}
	if disputed {
		out = append(out, "disputed_evidence")
	}
	return out
}

// tier assigns the shortlist tier. Hard exclusion applies before anything
// else unless the caller opted in.
func (e *Engine) tier(raw *rawComponents, adjusted float64) string {
	excluded := raw.inhibitors != nil && *raw.inhibitors > inhibitorSaturationCount &&
		noveltyOf(raw) < exclusionNoveltyBelow
	if excluded && !e.includeExcluded {
		return storage.TierExcluded
	}

	if adjusted > primaryAdjustedFloor &&
		raw.mutFreqRaw != nil && *raw.mutFreqRaw > primaryMutFreqFloor &&
		raw.structuralRaw != nil && *raw.structuralRaw > primaryStructuralFloor {
		return storage.TierPrimary
	}
	if adjusted > secondaryAdjustedFloor && !excluded {
		return storage.TierSecondary
	}
	return storage.TierNone
}

func noveltyOf(raw *rawComponents) float64 {
	if v, ok := raw.values[CompNovelty]; ok {
		return v
	}
	return 1
}

func componentsFor(normalized map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(normalized))
	for k, v := range normalized {
		out[k] = v
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// scoresEqual compares the inputs that define a score version.
func scoresEqual(a, b *storage.TargetScore) bool {
	if math.Abs(a.Composite-b.Composite) > 1e-9 ||
		math.Abs(a.ConfAdjusted-b.ConfAdjusted) > 1e-9 ||
		math.Abs(a.Penalty-b.Penalty) > 1e-9 ||
		a.ShortlistTier != b.ShortlistTier {
		return false
	}
	return floatMapsEqual(a.Components, b.Components) && floatMapsEqual(a.Weights, b.Weights) &&
		stringSlicesEqual(a.Flags, b.Flags) && stringSlicesEqual(a.Warnings, b.Warnings)
}

func floatMapsEqual(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || math.Abs(va-vb) > 1e-9 {
			return false
		}
	}
	return true
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	ac := append([]string(nil), a...)
	bc := append([]string(nil), b...)
	sort.Strings(ac)
	sort.Strings(bc)
	for i := range ac {
		if ac[i] != bc[i] {
			return false
		}
	}
	return true
}
