package scoring

import "sort"

// Dependency clamp range. CERES values outside it are not biologically
// meaningful for prioritization.
const (
	dependencyFloor = -2.0
	dependencyCeil  = 0.0
)

// ClampDependency restricts a raw CERES mean to [-2, 0] and inverts it so
// more-essential genes score higher, yielding [0, 2] before ranking.
func ClampDependency(ceres float64) float64 {
	if ceres < dependencyFloor {
		ceres = dependencyFloor
	}
	if ceres > dependencyCeil {
		ceres = dependencyCeil
	}
	return -ceres
}

// RankNormalize maps raw values to (0, 1] by ascending rank: the best value
// gets rank N, so the top of the cohort is exactly 1.0 and a single-candidate
// cohort yields 1.0. Tied values share the average of their ranks.
func RankNormalize(values map[string]float64) map[string]float64 {
	n := len(values)
	if n == 0 {
		return map[string]float64{}
	}

	keys := make([]string, 0, n)
	for k := range values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if values[keys[i]] != values[keys[j]] {
			return values[keys[i]] < values[keys[j]]
		}
		return keys[i] < keys[j]
	})

	out := make(map[string]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && values[keys[j]] == values[keys[i]] {
			j++
		}
		// Ranks are 1-based; the tie group [i, j) shares the average rank.
		avgRank := float64(i+1+j) / 2
		for _, k := range keys[i:j] {
			out[k] = avgRank / float64(n)
		}
		i = j
	}
	return out
}
