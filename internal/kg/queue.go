package kg

import (
	"sort"
	"sync"
)

// Pair identifies one (gene, cancer) scoring target.
type Pair struct {
	GeneID   string `json:"gene_id"`
	CancerID string `json:"cancer_id"`
}

// RescoreQueue coalesces score-recomputation requests: at most one pending
// entry per pair, however many triggers fire. Safe for concurrent use.
type RescoreQueue struct {
	mu      sync.Mutex
	pending map[Pair]struct{}
}

// NewRescoreQueue creates an empty queue.
func NewRescoreQueue() *RescoreQueue {
	return &RescoreQueue{pending: make(map[Pair]struct{})}
}

// Enqueue adds a pair, reporting whether it was newly queued.
func (q *RescoreQueue) Enqueue(p Pair) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[p]; ok {
		return false
	}
	q.pending[p] = struct{}{}
	return true
}

// Drain removes and returns all pending pairs in deterministic order.
func (q *RescoreQueue) Drain() []Pair {
	q.mu.Lock()
	pairs := make([]Pair, 0, len(q.pending))
	for p := range q.pending {
		pairs = append(pairs, p)
	}
	q.pending = make(map[Pair]struct{})
	q.mu.Unlock()

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].CancerID != pairs[j].CancerID {
			return pairs[i].CancerID < pairs[j].CancerID
		}
		return pairs[i].GeneID < pairs[j].GeneID
	})
	return pairs
}

// Len returns the number of pending pairs.
func (q *RescoreQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
