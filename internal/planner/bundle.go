package planner

import (
	"context"
	"sort"
	"strings"
	"time"

	doc "github.com/oncoscout/oncoscout/internal/docstore"
	"github.com/oncoscout/oncoscout/internal/evidence"
	"github.com/oncoscout/oncoscout/internal/kg"
	"github.com/oncoscout/oncoscout/internal/scoring"
	"github.com/oncoscout/oncoscout/internal/storage"
)

// Bundle is the ranked output of a query. Similarity queries populate only
// Excerpts.
type Bundle struct {
	QueryID           string         `json:"query_id"`
	QueryText         string         `json:"query_text,omitempty"`
	GeneratedAt       time.Time      `json:"generated_at"`
	OverallConfidence float64        `json:"overall_confidence"`
	Caveats           []string       `json:"caveats,omitempty"`
	RankedTargets     []RankedTarget `json:"ranked_targets,omitempty"`
	Excerpts          []doc.Result   `json:"excerpts,omitempty"`
}

// ComponentScore is one entry of the score breakdown. Raw is nil when the
// underlying measurement is missing.
type ComponentScore struct {
	Raw        *float64 `json:"raw,omitempty"`
	Normalised float64  `json:"normalised"`
	Weight     float64  `json:"weight"`
}

// TripleSummary is the aggregated view of one knowledge-graph relation for a
// target. Direction reports which polarity prevails, so minority evidence on
// a contested relation stays visible next to the headline confidence.
type TripleSummary struct {
	Predicate  string  `json:"predicate"`
	ObjectID   string  `json:"object_id"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
	Direction  string  `json:"direction,omitempty"`
	Supporting int     `json:"supporting"`
	Opposing   int     `json:"opposing"`
}

// Citation traces one claim to a source. Inferred citations carry no source
// id and their confidence is capped.
type Citation struct {
	PMID       string  `json:"pmid,omitempty"`
	DOI        string  `json:"doi,omitempty"`
	SourceDB   string  `json:"source_db,omitempty"`
	Predicate  string  `json:"predicate,omitempty"`
	ObjectID   string  `json:"object_id,omitempty"`
	Confidence float64 `json:"confidence"`
	Inferred   bool    `json:"inferred,omitempty"`
}

// StructuralFeasibility summarizes structural evidence for one target.
type StructuralFeasibility struct {
	PDBCount           int      `json:"pdb_count"`
	PredictedPLDDT     *float64 `json:"predicted_plddt,omitempty"`
	PocketDruggability *float64 `json:"pocket_druggability,omitempty"`
	Composite          float64  `json:"composite"`
	PredictedOnly      bool     `json:"predicted_only,omitempty"`
}

// NoveltyAssessment summarizes the competitive inhibitor landscape.
type NoveltyAssessment struct {
	InhibitorCount int     `json:"inhibitor_count"`
	NoveltyScore   float64 `json:"novelty_score"`
	Saturated      bool    `json:"saturated,omitempty"`
}

// RankedTarget is one candidate in the output bundle.
type RankedTarget struct {
	Rank                    int                       `json:"rank"`
	GeneSymbol              string                    `json:"gene_symbol"`
	GeneID                  string                    `json:"gene_id"`
	CompositeScore          float64                   `json:"composite_score"`
	ConfidenceAdjustedScore float64                   `json:"confidence_adjusted_score"`
	Percentile              float64                   `json:"percentile"`
	ShortlistTier           string                    `json:"shortlist_tier"`
	Flags                   []string                  `json:"flags,omitempty"`
	Warnings                []string                  `json:"warnings,omitempty"`
	ScoreBreakdown          map[string]ComponentScore `json:"score_breakdown"`
	EvidenceCitations       []Citation                `json:"evidence_citations"`
	EvidenceTriples         []TripleSummary           `json:"evidence_triples,omitempty"`
	StructuralFeasibility   *StructuralFeasibility    `json:"structural_feasibility,omitempty"`
	NoveltyAssessment       *NoveltyAssessment        `json:"novelty_assessment,omitempty"`
	SupportingExcerpts      []doc.Result              `json:"supporting_excerpts,omitempty"`
	SuggestedNextSteps      []string                  `json:"suggested_next_steps,omitempty"`
}

// candidate pairs a stored score with the evidence fetched for ranking.
type candidate struct {
	score      storage.TargetScore
	confidence float64
	rankKey    float64
	structure  *storage.StructureRow
	compound   *storage.CompoundRow
	triples    []kg.Aggregate
	facts      []storage.Fact
}

// prioritize runs the target-prioritization pipeline: resolve, fetch, filter,
// rank, bundle.
func (p *Planner) prioritize(ctx context.Context, q Query, plan *Plan) (*Bundle, error) {
	cancer, err := p.resolveCancer(q.CancerType)
	if err != nil {
		return nil, err
	}
	plan.step("resolve", "cancer_type %q -> %s", q.CancerType, cancer.CanonicalID)

	scores, err := p.db.CurrentScoresForCancer(cancer.CanonicalID)
	if err != nil {
		return nil, err
	}
	if len(scores) == 0 && p.engine != nil {
		cohort, err := p.engine.Cohort(cancer.CanonicalID)
		if err != nil {
			return nil, err
		}
		if len(cohort) > 0 {
			if _, err := p.engine.ScoreCohort(ctx, cancer.CanonicalID, cohort); err != nil {
				return nil, err
			}
			if scores, err = p.db.CurrentScoresForCancer(cancer.CanonicalID); err != nil {
				return nil, err
			}
		}
	}
	plan.step("fetch_candidates", "%d scored targets for %s", len(scores), cancer.CanonicalID)

	if q.Gene != "" {
		gene, err := p.resolveGene(q.Gene)
		if err != nil {
			return nil, err
		}
		var kept []storage.TargetScore
		for _, s := range scores {
			if s.GeneID == gene.CanonicalID {
				kept = append(kept, s)
			}
		}
		scores = kept
		plan.step("filter_entity", "gene %s -> %d candidates", gene.CanonicalID, len(scores))
	}

	candidates := make([]candidate, 0, len(scores))
	for _, s := range scores {
		c, keep, err := p.loadCandidate(s, q.Constraints)
		if err != nil {
			return nil, err
		}
		if keep {
			candidates = append(candidates, c)
		}
	}
	plan.step("filter_constraints", "%d of %d candidates pass", len(candidates), len(scores))

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].rankKey != candidates[j].rankKey {
			return candidates[i].rankKey > candidates[j].rankKey
		}
		return candidates[i].score.GeneID < candidates[j].score.GeneID
	})
	if len(candidates) > q.TopN {
		candidates = candidates[:q.TopN]
	}
	plan.step("rank", "composite x evidence_confidence, top %d", len(candidates))

	bundle := &Bundle{}
	total := len(candidates)
	for i, c := range candidates {
		target, err := p.buildTarget(ctx, q, cancer.Name, c, i+1, total)
		if err != nil {
			return nil, err
		}
		bundle.RankedTargets = append(bundle.RankedTargets, *target)
	}
	bundle.OverallConfidence = overallConfidence(bundle.RankedTargets)
	bundle.Caveats = caveats(bundle.RankedTargets)
	plan.step("bundle", "%d targets, overall_confidence %.3f", total, bundle.OverallConfidence)
	return bundle, nil
}

// loadCandidate fetches per-candidate evidence and applies the constraint
// filters.
func (p *Planner) loadCandidate(s storage.TargetScore, cons Constraints) (candidate, bool, error) {
	c := candidate{score: s}

	if s.ShortlistTier == storage.TierExcluded && !cons.IncludeExcluded {
		return c, false, nil
	}

	st, err := p.db.StructureFor(s.GeneID)
	if err != nil {
		return c, false, err
	}
	c.structure = st
	structural := 0.0
	if st != nil {
		structural = scoring.StructuralComposite(st)
	}
	if cons.MinStructural > 0 && structural < cons.MinStructural {
		return c, false, nil
	}

	cp, err := p.db.CompoundFor(s.GeneID)
	if err != nil {
		return c, false, err
	}
	c.compound = cp
	if cons.MaxInhibitors > 0 && cp != nil && cp.InhibitorCount > cons.MaxInhibitors {
		return c, false, nil
	}

	c.triples, err = p.graph.TriplesForSubject(s.GeneID, true)
	if err != nil {
		return c, false, err
	}
	c.facts, err = p.db.ActiveFactsBySubject(s.GeneID)
	if err != nil {
		return c, false, err
	}
	c.confidence = meanConfidence(c.triples)
	c.rankKey = s.Composite * c.confidence

	if cons.MinConfidence > 0 && s.ConfAdjusted < cons.MinConfidence {
		return c, false, nil
	}
	return c, true, nil
}

// buildTarget assembles one ranked entry with citations and excerpts.
func (p *Planner) buildTarget(ctx context.Context, q Query, cancerName string,
	c candidate, rank, total int) (*RankedTarget, error) {

	s := c.score
	target := &RankedTarget{
		Rank:                    rank,
		GeneSymbol:              p.geneSymbol(s.GeneID),
		GeneID:                  s.GeneID,
		CompositeScore:          s.Composite,
		ConfidenceAdjustedScore: s.ConfAdjusted,
		Percentile:              100 * float64(total-rank+1) / float64(total),
		ShortlistTier:           s.ShortlistTier,
		Flags:                   s.Flags,
		Warnings:                s.Warnings,
	}

	breakdown, err := p.scoreBreakdown(s)
	if err != nil {
		return nil, err
	}
	target.ScoreBreakdown = breakdown
	target.EvidenceCitations = citationsFor(c)
	target.EvidenceTriples = tripleSummaries(c.triples)

	if c.structure != nil {
		target.StructuralFeasibility = &StructuralFeasibility{
			PDBCount:           c.structure.PDBCount,
			PredictedPLDDT:     c.structure.PredictedPLDDT,
			PocketDruggability: c.structure.PocketDruggability,
			Composite:          scoring.StructuralComposite(c.structure),
			PredictedOnly:      c.structure.PDBCount == 0 && c.structure.PredictedPLDDT != nil,
		}
	}
	if c.compound != nil {
		target.NoveltyAssessment = &NoveltyAssessment{
			InhibitorCount: c.compound.InhibitorCount,
			NoveltyScore:   1 / (1 + float64(c.compound.InhibitorCount)/10),
			Saturated:      c.compound.InhibitorCount > 50,
		}
	}

	if p.store != nil {
		results, err := p.store.Search(ctx, target.GeneSymbol+" "+cancerName, q.ExcerptsPerTarget)
		if err != nil {
			p.logger.Warn("excerpt search failed", "gene", s.GeneID, "err", err)
		} else {
			target.SupportingExcerpts = results
		}
	}

	target.SuggestedNextSteps = nextSteps(target)
	return target, nil
}

// scoreBreakdown joins stored normalized components and weights with the raw
// measurements still on record.
func (p *Planner) scoreBreakdown(s storage.TargetScore) (map[string]ComponentScore, error) {
	raw, err := p.rawComponents(s.GeneID, s.CancerID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ComponentScore, len(s.Components))
	for comp, normalised := range s.Components {
		entry := ComponentScore{Normalised: normalised, Weight: s.Weights[comp]}
		if v, ok := raw[comp]; ok {
			value := v
			entry.Raw = &value
		}
		out[comp] = entry
	}
	return out, nil
}

func (p *Planner) rawComponents(geneID, cancerID string) (map[string]float64, error) {
	out := make(map[string]float64)

	if mf, err := p.db.MutationFrequencyFor(geneID, cancerID); err != nil {
		return nil, err
	} else if mf != nil {
		out[scoring.CompMutationFreq] = mf.Frequency
	}
	if dep, err := evidence.SummarizeDependency(p.db, geneID, cancerID); err != nil {
		return nil, err
	} else if dep != nil {
		out[scoring.CompDependency] = dep.Mean
	}
	if sv, err := p.db.SurvivalFor(geneID, cancerID); err != nil {
		return nil, err
	} else if sv != nil {
		out[scoring.CompSurvival] = sv.Correlation
	}
	if ex, err := p.db.ExpressionFor(geneID, cancerID); err != nil {
		return nil, err
	} else if ex != nil {
		out[scoring.CompSpecificity] = ex.Ratio
	}
	if st, err := p.db.StructureFor(geneID); err != nil {
		return nil, err
	} else if st != nil {
		out[scoring.CompStructural] = scoring.StructuralComposite(st)
		if st.PocketDruggability != nil {
			out[scoring.CompPocket] = *st.PocketDruggability
		}
	}
	if cp, err := p.db.CompoundFor(geneID); err != nil {
		return nil, err
	} else if cp != nil {
		out[scoring.CompNovelty] = float64(cp.InhibitorCount)
	}
	return out, nil
}

// citationsFor maps the candidate's live facts to traceable citations. Facts
// with no source id are dropped; a candidate with no sourced evidence gets a
// single INFERRED entry whose confidence never exceeds the cap.
func citationsFor(c candidate) []Citation {
	var out []Citation
	for _, f := range c.facts {
		if f.SourcePMID == "" && f.SourceDOI == "" && f.SourceDB == "" {
			continue
		}
		out = append(out, Citation{
			PMID:       f.SourcePMID,
			DOI:        f.SourceDOI,
			SourceDB:   f.SourceDB,
			Predicate:  f.Predicate,
			ObjectID:   f.ObjectID,
			Confidence: f.Confidence,
		})
	}
	if len(out) == 0 {
		conf := c.score.ConfAdjusted
		if conf > inferredConfidenceCap {
			conf = inferredConfidenceCap
		}
		out = append(out, Citation{Confidence: conf, Inferred: true})
	}
	return out
}

// tripleSummaries flattens aggregated triples for the bundle.
func tripleSummaries(triples []kg.Aggregate) []TripleSummary {
	out := make([]TripleSummary, 0, len(triples))
	for _, tr := range triples {
		out = append(out, TripleSummary{
			Predicate:  tr.Predicate,
			ObjectID:   tr.Object,
			Confidence: tr.Confidence,
			Status:     tr.Status,
			Direction:  tr.Direction,
			Supporting: tr.Supporting,
			Opposing:   tr.Opposing,
		})
	}
	return out
}

// meanConfidence averages non-disputed triple confidences, defaulting to 1.0
// when the graph knows nothing about the gene.
func meanConfidence(triples []kg.Aggregate) float64 {
	sum, n := 0.0, 0
	for _, tr := range triples {
		if tr.Status == kg.StatusDisputed {
			continue
		}
		sum += tr.Confidence
		n++
	}
	if n == 0 {
		return 1.0
	}
	return sum / float64(n)
}

// overallConfidence is the rank-weighted mean of the bundle's adjusted
// scores.
func overallConfidence(targets []RankedTarget) float64 {
	if len(targets) == 0 {
		return 0
	}
	num, den := 0.0, 0.0
	for _, t := range targets {
		w := 1 / float64(t.Rank)
		num += w * t.ConfidenceAdjustedScore
		den += w
	}
	return num / den
}

// caveats collects bundle-level limitations from the ranked targets.
func caveats(targets []RankedTarget) []string {
	seen := map[string]bool{}
	var out []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, t := range targets {
		if t.StructuralFeasibility != nil && t.StructuralFeasibility.PredictedOnly {
			add("some targets have predicted-only structures")
		}
		for _, w := range t.Warnings {
			switch w {
			case "structurally_unresolved":
				add("some targets are structurally unresolved")
			case "disputed_evidence":
				add("some targets carry disputed knowledge-graph evidence")
			case "low_specificity":
				add("some targets have low tumor/normal expression specificity")
			}
		}
		for _, cit := range t.EvidenceCitations {
			if cit.Inferred {
				add("some targets rank on inferred evidence only")
				break
			}
		}
		for _, tr := range t.EvidenceTriples {
			if tr.Direction == kg.DirectionOpposing {
				add("some knowledge-graph relations are dominated by opposing evidence")
				break
			}
		}
	}
	return out
}

// nextSteps derives concrete follow-ups from a target's evidence profile.
func nextSteps(t *RankedTarget) []string {
	var out []string
	if t.StructuralFeasibility == nil || t.StructuralFeasibility.PDBCount == 0 {
		out = append(out, "obtain an experimental structure or a high-confidence model before pocket analysis")
	}
	if t.NoveltyAssessment != nil && t.NoveltyAssessment.Saturated {
		out = append(out, "assess selectivity against the existing inhibitor landscape")
	}
	for _, w := range t.Warnings {
		if w == "disputed_evidence" {
			out = append(out, "resolve the conflicting knowledge-graph evidence before committing resources")
		}
	}
	if len(out) == 0 {
		out = append(out, "design a validation screen in disease-relevant cell lines")
	}
	return out
}

// lookupEvidence returns the knowledge-graph evidence for one gene as a
// single-entry bundle.
func (p *Planner) lookupEvidence(ctx context.Context, q Query, plan *Plan) (*Bundle, error) {
	gene, err := p.resolveGene(q.Gene)
	if err != nil {
		return nil, err
	}
	plan.step("resolve", "gene %q -> %s", q.Gene, gene.CanonicalID)

	triples, err := p.graph.TriplesForSubject(gene.CanonicalID, true)
	if err != nil {
		return nil, err
	}
	facts, err := p.db.ActiveFactsBySubject(gene.CanonicalID)
	if err != nil {
		return nil, err
	}
	plan.step("fetch_evidence", "%d aggregated triples, %d facts", len(triples), len(facts))

	c := candidate{
		score:   storage.TargetScore{GeneID: gene.CanonicalID},
		triples: triples,
		facts:   facts,
	}
	target := &RankedTarget{
		Rank:              1,
		GeneSymbol:        gene.Name,
		GeneID:            gene.CanonicalID,
		Percentile:        100,
		EvidenceCitations: citationsFor(c),
		EvidenceTriples:   tripleSummaries(triples),
	}
	for _, tr := range triples {
		if tr.Status == kg.StatusDisputed {
			target.Warnings = append(target.Warnings, "disputed_evidence")
			break
		}
	}

	if p.store != nil && q.Text != "" {
		results, err := p.store.Search(ctx, q.Text, q.ExcerptsPerTarget)
		if err == nil {
			target.SupportingExcerpts = results
		}
	}
	plan.step("bundle", "1 target, %d citations", len(target.EvidenceCitations))

	return &Bundle{
		OverallConfidence: meanOrZero(triples),
		RankedTargets:     []RankedTarget{*target},
		Caveats:           caveats([]RankedTarget{*target}),
	}, nil
}

func meanOrZero(triples []kg.Aggregate) float64 {
	sum, n := 0.0, 0
	for _, tr := range triples {
		sum += tr.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// similarity runs a hybrid search and returns the fused excerpts.
func (p *Planner) similarity(ctx context.Context, q Query, plan *Plan) (*Bundle, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, ErrMissingEntity
	}
	if p.store == nil {
		return &Bundle{}, nil
	}
	results, err := p.store.Search(ctx, text, q.TopN)
	if err != nil {
		return nil, err
	}
	plan.step("hybrid_search", "%d fused chunks", len(results))
	return &Bundle{Excerpts: results}, nil
}
