// Package kg maintains the append-only knowledge graph: fact insertion with
// the evidence confidence model, noisy-OR aggregation, conflict detection,
// supersession, and the coalescing rescore queue.
package kg

import (
	"errors"
	"fmt"
)

// Evidence types, strongest first.
const (
	EvidenceInVivo       = "experimental_in_vivo"
	EvidenceInVitro      = "experimental_in_vitro"
	EvidencePhase3Plus   = "clinical_trial_phase_3_plus"
	EvidencePhase12      = "clinical_trial_phase_1_2"
	EvidenceComputedML   = "computational_ml"
	EvidenceComputedRule = "computational_rule"
	EvidenceTextMined    = "text_mined"
	EvidenceDBAssertion  = "database_assertion"
)

// ErrUnknownEvidence rejects facts with an evidence type outside the model.
var ErrUnknownEvidence = errors.New("unknown evidence type")

var baseWeights = map[string]float64{
	EvidenceInVivo:       1.00,
	EvidenceInVitro:      0.85,
	EvidencePhase3Plus:   1.00,
	EvidencePhase12:      0.75,
	EvidenceComputedML:   0.50,
	EvidenceComputedRule: 0.35,
	EvidenceTextMined:    0.30,
	EvidenceDBAssertion:  0.40,
}

// BaseWeight returns the fixed base weight for an evidence type.
func BaseWeight(evidenceType string) (float64, error) {
	w, ok := baseWeights[evidenceType]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownEvidence, evidenceType)
	}
	return w, nil
}

// largeSampleThreshold is the sample size above which the large-cohort
// modifier applies.
const largeSampleThreshold = 1000

// Modifiers are the multiplicative study-quality adjustments applied on top
// of the base weight.
type Modifiers struct {
	SampleSize      *int64
	ReplicatedCount int // independent studies reporting the same finding
	HighImpact      bool
	PreprintOnly    bool
	CellLineOnly    bool
	Retracted       bool
}

// factor returns the combined multiplier.
func (m Modifiers) factor() float64 {
	if m.Retracted {
		return 0
	}
	f := 1.0
	if m.SampleSize != nil && *m.SampleSize > largeSampleThreshold {
		f *= 1.20
	}
	if m.ReplicatedCount >= 2 {
		f *= 1.15
	}
	if m.HighImpact {
		f *= 1.05
	}
	if m.PreprintOnly {
		f *= 0.70
	}
	if m.CellLineOnly {
		f *= 0.85
	}
	return f
}

// Confidence computes the base weight times the modifiers, capped at 1.0.
func Confidence(evidenceType string, mods Modifiers) (float64, error) {
	base, err := BaseWeight(evidenceType)
	if err != nil {
		return 0, err
	}
	c := base * mods.factor()
	if c > 1.0 {
		c = 1.0
	}
	return c, nil
}
