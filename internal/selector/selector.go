// Package selector bounds the analysis-candidate pool under unbounded input.
// It keeps one fixed-capacity min-heap of candidates per platform so memory
// stays proportional to capacity times the number of platforms, never to the
// stream length.
package selector

import (
	"container/heap"

	"github.com/calebmorris/trendwatch/internal/filter"
	"github.com/calebmorris/trendwatch/internal/model"
)

// TopK retains the highest-engagement items seen so far, per platform.
// Not safe for concurrent use; the intake loop is single-pass.
type TopK struct {
	capacity int
	seq      int64
	groups   map[string]*candidateHeap
	order    []string
}

// New creates a TopK selector with the given per-platform capacity.
// Capacity below 1 is coerced to 1.
func New(capacity int) *TopK {
	if capacity < 1 {
		capacity = 1
	}
	return &TopK{
		capacity: capacity,
		groups:   make(map[string]*candidateHeap),
	}
}

// Observe scores an item and offers it to its platform heap. When the heap
// is full, the item only displaces the current minimum if its score is
// strictly greater; on equal scores the earlier-observed item survives.
// Returns the candidate that was admitted, or false if it was discarded.
func (t *TopK) Observe(item model.Item) (model.Candidate, bool) {
	t.seq++
	cand := model.Candidate{
		Item:       item,
		Engagement: filter.EngagementScore(item),
		Sequence:   t.seq,
	}

	h, ok := t.groups[item.Platform]
	if !ok {
		h = &candidateHeap{}
		t.groups[item.Platform] = h
		t.order = append(t.order, item.Platform)
	}

	if h.Len() < t.capacity {
		heap.Push(h, cand)
		return cand, true
	}

	min := (*h)[0]
	if cand.Engagement > min.Engagement {
		(*h)[0] = cand
		heap.Fix(h, 0)
		return cand, true
	}
	return model.Candidate{}, false
}

// Len returns the total number of retained candidates across all platforms.
func (t *TopK) Len() int {
	n := 0
	for _, h := range t.groups {
		n += h.Len()
	}
	return n
}

// GroupLen returns the number of retained candidates for one platform.
func (t *TopK) GroupLen(platform string) int {
	if h, ok := t.groups[platform]; ok {
		return h.Len()
	}
	return 0
}

// Min returns the lowest retained engagement score for a platform, or false
// when the platform has no retained candidates.
func (t *TopK) Min(platform string) (int, bool) {
	h, ok := t.groups[platform]
	if !ok || h.Len() == 0 {
		return 0, false
	}
	return (*h)[0].Engagement, true
}

// Candidates returns the concatenation of all platform heaps, in platform
// observation order. Heap-internal ordering is not meaningful; callers sort.
func (t *TopK) Candidates() []model.Candidate {
	out := make([]model.Candidate, 0, t.Len())
	for _, platform := range t.order {
		out = append(out, *t.groups[platform]...)
	}
	return out
}

// candidateHeap is a min-heap ordered by (engagement, sequence), so among
// equal scores the earliest-observed candidate sits at the root and is the
// first eviction target.
type candidateHeap []model.Candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].Engagement != h[j].Engagement {
		return h[i].Engagement < h[j].Engagement
	}
	return h[i].Sequence < h[j].Sequence
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) {
	*h = append(*h, x.(model.Candidate))
}

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}
