package kg

import "strings"

// Triple statuses after aggregation.
const (
	StatusSupported = "supported"
	StatusDisputed  = "disputed"
	StatusDominant  = "dominant"
	StatusFlagged   = "surfaced_with_flag"
)

// Contradiction thresholds on the net confidence of a contested triple.
const (
	disputedBelow = 0.30
	dominantFrom  = 0.60
)

// Direction of the prevailing evidence on a triple.
const (
	DirectionSupporting = "supporting"
	DirectionOpposing   = "opposing"
)

// contradictionPenalty discounts the aggregate of a contested triple.
const contradictionPenalty = 0.7

// Aggregate is the effective view of one (subject, predicate, object) triple
// across its active evidence rows.
type Aggregate struct {
	Subject      string  `json:"subject"`
	Predicate    string  `json:"predicate"` // positive form
	Object       string  `json:"object"`
	Confidence   float64 `json:"confidence"`
	Status       string  `json:"status"`
	Direction    string  `json:"direction,omitempty"`
	Contradicted bool    `json:"contradicted"`
	Supporting   int     `json:"supporting"`
	Opposing     int     `json:"opposing"`
	Net          float64 `json:"net,omitempty"`
}

// NoisyOR combines independent evidence confidences: one minus the product
// of the misses. Zero-confidence terms contribute nothing; any 1.0 saturates
// the result.
func NoisyOR(confidences []float64) float64 {
	miss := 1.0
	for _, c := range confidences {
		miss *= 1 - c
	}
	return 1 - miss
}

// negationPrefixes mark a predicate as asserting the absence of the positive
// relation.
var negationPrefixes = []string{"does_not_", "not_", "no_"}

// PredicatePolarity splits a predicate into its positive base form and
// direction. Negated forms drop the prefix and a trailing plural-s mismatch
// ("does_not_inhibit" opposes "inhibits").
func PredicatePolarity(predicate string) (base string, positive bool) {
	for _, pre := range negationPrefixes {
		if strings.HasPrefix(predicate, pre) {
			return basePredicate(strings.TrimPrefix(predicate, pre)), false
		}
	}
	return basePredicate(predicate), true
}

func basePredicate(p string) string {
	return strings.TrimSuffix(p, "s")
}

// aggregate computes the triple view from signed confidence lists. Both fact
// rows of a contested triple stay in the store; only the aggregate view
// applies the contradiction discount. Direction records which polarity the
// net favors, so a refuted relation is never mistaken for a supported one.
func aggregate(supporting, opposing []float64) Aggregate {
	agg := Aggregate{Supporting: len(supporting), Opposing: len(opposing)}

	if len(opposing) == 0 {
		agg.Confidence = NoisyOR(supporting)
		agg.Status = StatusSupported
		agg.Direction = DirectionSupporting
		return agg
	}

	var signed float64
	for _, c := range supporting {
		signed += c
	}
	for _, c := range opposing {
		signed -= c
	}
	net := signed
	if net < 0 {
		net = -net
		agg.Direction = DirectionOpposing
	} else if signed > 0 {
		agg.Direction = DirectionSupporting
	}

	agg.Contradicted = true
	agg.Net = net
	agg.Confidence = net * contradictionPenalty
	switch {
	case net < disputedBelow:
		agg.Status = StatusDisputed
	case net >= dominantFrom:
		agg.Status = StatusDominant
	default:
		agg.Status = StatusFlagged
	}
	return agg
}
