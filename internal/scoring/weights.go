// Package scoring computes versioned target scores: nine rank-normalized
// evidence components combined by a weight vector, minus additive penalties,
// adjusted by knowledge-graph confidence, then shortlisted.
package scoring

import (
	"errors"
	"fmt"
	"math"
)

// Component keys, in weight-table order.
const (
	CompMutationFreq = "mutation_frequency"
	CompDependency   = "dependency"
	CompSurvival     = "survival_correlation"
	CompSpecificity  = "expression_specificity"
	CompStructural   = "structural_tractability"
	CompPocket       = "pocket_detectability"
	CompNovelty      = "inhibitor_novelty"
	CompPathway      = "pathway_independence"
	CompLitNovelty   = "literature_novelty"
)

// Components lists every component key in canonical order.
var Components = []string{
	CompMutationFreq,
	CompDependency,
	CompSurvival,
	CompSpecificity,
	CompStructural,
	CompPocket,
	CompNovelty,
	CompPathway,
	CompLitNovelty,
}

// criticalComponents each cost a 0.85 confidence multiplier when missing.
var criticalComponents = map[string]bool{
	CompMutationFreq: true,
	CompDependency:   true,
	CompStructural:   true,
}

// missingCriticalMultiplier applies per missing critical component.
const missingCriticalMultiplier = 0.85

// ErrBadWeights rejects weight vectors that cannot be used.
var ErrBadWeights = errors.New("invalid weight vector")

// weightTolerance is the allowed drift of the weight sum from 1.0.
const weightTolerance = 1e-6

// DefaultWeights returns the initial weight vector.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		CompMutationFreq: 0.20,
		CompDependency:   0.18,
		CompSurvival:     0.15,
		CompSpecificity:  0.12,
		CompStructural:   0.12,
		CompPocket:       0.08,
		CompNovelty:      0.07,
		CompPathway:      0.05,
		CompLitNovelty:   0.03,
	}
}

// ValidateWeights checks that the vector covers exactly the nine components
// with positive weights summing to 1.0.
func ValidateWeights(w map[string]float64) error {
	if len(w) != len(Components) {
		return fmt.Errorf("%w: %d entries, want %d", ErrBadWeights, len(w), len(Components))
	}
	sum := 0.0
	for _, key := range Components {
		v, ok := w[key]
		if !ok {
			return fmt.Errorf("%w: missing component %q", ErrBadWeights, key)
		}
		if v <= 0 {
			return fmt.Errorf("%w: non-positive weight for %q", ErrBadWeights, key)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %f", ErrBadWeights, sum)
	}
	return nil
}

// Renormalize scales a weight subset to sum to 1.0. Used when missing
// components are dropped from the sum.
func Renormalize(w map[string]float64) map[string]float64 {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	out := make(map[string]float64, len(w))
	if sum == 0 {
		return out
	}
	for k, v := range w {
		out[k] = v / sum
	}
	return out
}
