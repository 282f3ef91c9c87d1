// Package feedback measures how well the current weight vector predicts
// validated outcomes and proposes bounded, human-gated weight adjustments.
package feedback

import (
	"errors"
	"math"
	"sort"
)

// Metric names recorded as feedback events.
const (
	MetricRecallAtN        = "recall_at_n"
	MetricBenchmarkPearson = "benchmark_pearson"
	MetricBenchmarkKendall = "benchmark_kendall"
	MetricLiteratureRecall = "literature_recall"
)

// ErrInsufficientData rejects metric computations over too few observations.
var ErrInsufficientData = errors.New("insufficient observations")

// RecallAtN is the fraction of validated targets found in the top n of a
// ranking. Ranked is the system ordering, best first.
func RecallAtN(ranked []string, validated map[string]bool, n int) (float64, error) {
	if len(validated) == 0 {
		return 0, ErrInsufficientData
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	hits := 0
	for _, id := range ranked[:n] {
		if validated[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(validated)), nil
}

// Pearson computes the linear correlation between system scores and external
// benchmark scores over paired observations.
func Pearson(xs, ys []float64) (float64, error) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, ErrInsufficientData
	}
	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, ErrInsufficientData
	}
	return cov / math.Sqrt(varX*varY), nil
}

// KendallTau computes the rank correlation between two paired score lists
// (tau-a, concordant minus discordant over all pairs).
func KendallTau(xs, ys []float64) (float64, error) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, ErrInsufficientData
	}
	n := len(xs)
	concordant, discordant := 0, 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := sign(xs[i] - xs[j])
			dy := sign(ys[i] - ys[j])
			switch {
			case dx*dy > 0:
				concordant++
			case dx*dy < 0:
				discordant++
			}
		}
	}
	pairs := n * (n - 1) / 2
	return float64(concordant-discordant) / float64(pairs), nil
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// LiteratureRecall is the fraction of later-confirmed gene-cancer findings
// that the system had already surfaced in a shortlist tier.
func LiteratureRecall(surfaced map[string]bool, confirmed []string) (float64, error) {
	if len(confirmed) == 0 {
		return 0, ErrInsufficientData
	}
	hits := 0
	for _, id := range confirmed {
		if surfaced[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(confirmed)), nil
}

// componentCorrelations computes the Pearson correlation of each component's
// normalized value against the outcome signal, over paired observations.
// Components with fewer than two usable pairs or zero variance are omitted.
func componentCorrelations(observations []Observation) map[string]float64 {
	keys := map[string]bool{}
	for _, obs := range observations {
		for k := range obs.Components {
			keys[k] = true
		}
	}

	out := make(map[string]float64)
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, comp := range sorted {
		var xs, ys []float64
		for _, obs := range observations {
			v, ok := obs.Components[comp]
			if !ok {
				continue
			}
			xs = append(xs, v)
			ys = append(ys, obs.Outcome)
		}
		r, err := Pearson(xs, ys)
		if err != nil {
			continue
		}
		out[comp] = r
	}
	return out
}
