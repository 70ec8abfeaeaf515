// Package sample reduces a bounded candidate pool to a small, diverse subset
// by clustering text embeddings. Each cluster contributes its most prototypical
// members proportionally to its size, with reserved slots for far-from-centroid
// outliers so minority viewpoints survive the reduction.
package sample

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/calebmorris/trendwatch/internal/embed"
	"github.com/calebmorris/trendwatch/internal/logging"
	"github.com/calebmorris/trendwatch/internal/model"
)

// Options tunes the sampler. Out-of-range values are clamped by New.
type Options struct {
	TargetCount   int
	KMin          int
	KMax          int
	OutlierRatio  float64
	BatchSize     int
	TextMaxLength int
}

// Sampler selects a representative subset of candidates.
type Sampler struct {
	embedder embed.BatchEmbedder
	opts     Options
}

// New creates a Sampler using the given embedding provider. The provider is
// owned by the caller and may be shared across runs; a nil provider makes
// every Sample call take the deterministic truncation fallback.
func New(embedder embed.BatchEmbedder, opts Options) *Sampler {
	if opts.TargetCount < 1 {
		opts.TargetCount = 1
	}
	if opts.KMin < 1 {
		opts.KMin = 1
	}
	if opts.KMax < opts.KMin {
		opts.KMax = opts.KMin
	}
	if opts.OutlierRatio < 0 {
		opts.OutlierRatio = 0
	}
	if opts.OutlierRatio > 0.5 {
		opts.OutlierRatio = 0.5
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.TextMaxLength < 50 {
		opts.TextMaxLength = 50
	}
	return &Sampler{embedder: embedder, opts: opts}
}

// Sample returns exactly min(TargetCount, len(cands)) candidates, a subset of
// the input with no duplicate identity keys. On embedding failure it degrades
// to the first TargetCount candidates in input order.
func (s *Sampler) Sample(ctx context.Context, cands []model.Candidate) []model.Candidate {
	if len(cands) == 0 {
		return nil
	}

	target := s.opts.TargetCount
	if target > len(cands) {
		target = len(cands)
	}
	if len(cands) <= target {
		out := make([]model.Candidate, len(cands))
		copy(out, cands)
		return out
	}

	embeddings, ok := s.embedAll(ctx, cands)
	if !ok {
		return cands[:target:target]
	}

	indices := s.clusterAndSelect(embeddings, target)
	if len(indices) == 0 {
		return cands[:target:target]
	}

	sort.Ints(indices)
	if len(indices) > target {
		indices = indices[:target]
	}
	out := make([]model.Candidate, 0, len(indices))
	for _, i := range indices {
		out = append(out, cands[i])
	}
	return out
}

// embedAll builds per-candidate texts and requests unit-normalized embeddings.
// Any provider failure or shape mismatch reports not-ok so the caller can
// fall back.
func (s *Sampler) embedAll(ctx context.Context, cands []model.Candidate) ([][]float32, bool) {
	if s.embedder == nil || !s.embedder.Available() {
		return nil, false
	}

	texts := make([]string, len(cands))
	for i, c := range cands {
		texts[i] = s.buildText(c.Item)
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		logging.Warn("sampling: embedding failed, falling back to truncation", "error", err)
		return nil, false
	}
	if len(embeddings) != len(cands) {
		logging.Warn("sampling: embedding count mismatch", "got", len(embeddings), "want", len(cands))
		return nil, false
	}

	dim := 0
	for i, e := range embeddings {
		if len(e) == 0 {
			return nil, false
		}
		if i == 0 {
			dim = len(e)
		} else if len(e) != dim {
			logging.Warn("sampling: embedding dimension mismatch", "index", i)
			return nil, false
		}
		embed.Normalize(e)
	}

	return embeddings, true
}

// buildText collapses whitespace and truncates the candidate's text for
// embedding.
func (s *Sampler) buildText(item model.Item) string {
	text := strings.Join(strings.Fields(item.Text()), " ")
	if runes := []rune(text); len(runes) > s.opts.TextMaxLength {
		text = string(runes[:s.opts.TextMaxLength])
	}
	return text
}

// clusterAndSelect picks target indices: proportional per-cluster quotas
// filled closest-to-centroid first, an outlier reservation filled farthest
// first, then trim or fill to land exactly on target.
func (s *Sampler) clusterAndSelect(embeddings [][]float32, target int) []int {
	n := len(embeddings)
	if n <= target {
		return seq(n)
	}

	k := int(math.Round(math.Sqrt(float64(n))))
	if k < s.opts.KMin {
		k = s.opts.KMin
	}
	if k > s.opts.KMax {
		k = s.opts.KMax
	}
	if k >= n {
		return seq(target)
	}

	labels, centroids := kmeans(embeddings, k)
	for _, c := range centroids {
		embed.Normalize(c)
	}

	// Cosine distance to the assigned cluster's re-normalized centroid.
	distances := make([]float64, n)
	for i, e := range embeddings {
		distances[i] = 1 - embed.Dot(e, centroids[labels[i]])
	}

	members := make(map[int][]int)
	for i, label := range labels {
		members[label] = append(members[label], i)
	}

	desired := make(map[int]int)
	totalDesired := 0
	for label, idxs := range members {
		d := int(math.Round(float64(target) * float64(len(idxs)) / float64(n)))
		if d < 1 {
			d = 1
		}
		desired[label] = d
		totalDesired += d
	}

	// Shed excess quota from the largest clusters until the sum fits.
	if totalDesired > target {
		order := make([]int, 0, len(members))
		for label := range members {
			order = append(order, label)
		}
		sort.Slice(order, func(i, j int) bool {
			if len(members[order[i]]) != len(members[order[j]]) {
				return len(members[order[i]]) > len(members[order[j]])
			}
			return order[i] < order[j]
		})
		for totalDesired > target {
			shrunk := false
			for _, label := range order {
				if totalDesired <= target {
					break
				}
				if desired[label] > 1 {
					desired[label]--
					totalDesired--
					shrunk = true
				}
			}
			if !shrunk {
				break
			}
		}
	}

	selected := make(map[int]bool)
	for label, idxs := range members {
		byCloseness := make([]int, len(idxs))
		copy(byCloseness, idxs)
		sort.Slice(byCloseness, func(i, j int) bool {
			if distances[byCloseness[i]] != distances[byCloseness[j]] {
				return distances[byCloseness[i]] < distances[byCloseness[j]]
			}
			return byCloseness[i] < byCloseness[j]
		})
		take := desired[label]
		if take > len(byCloseness) {
			take = len(byCloseness)
		}
		for _, idx := range byCloseness[:take] {
			selected[idx] = true
		}
	}

	// Reserve additional slots for atypical members, farthest first.
	outlierCount := int(math.Round(float64(target) * s.opts.OutlierRatio))
	if outlierCount > target {
		outlierCount = target
	}
	outliers := make(map[int]bool)
	if outlierCount > 0 {
		for _, idx := range byDistance(distances, false) {
			if selected[idx] {
				continue
			}
			selected[idx] = true
			outliers[idx] = true
			if len(outliers) >= outlierCount {
				break
			}
		}
	}

	// Overshoot: drop the least distinctive non-outlier picks.
	if len(selected) > target {
		var trimmable []int
		for idx := range selected {
			if !outliers[idx] {
				trimmable = append(trimmable, idx)
			}
		}
		sort.Slice(trimmable, func(i, j int) bool {
			if distances[trimmable[i]] != distances[trimmable[j]] {
				return distances[trimmable[i]] < distances[trimmable[j]]
			}
			return trimmable[i] < trimmable[j]
		})
		for _, idx := range trimmable {
			if len(selected) <= target {
				break
			}
			delete(selected, idx)
		}
	}

	// Undershoot: fill from the globally closest unselected members.
	if len(selected) < target {
		for _, idx := range byDistance(distances, true) {
			if selected[idx] {
				continue
			}
			selected[idx] = true
			if len(selected) >= target {
				break
			}
		}
	}

	out := make([]int, 0, len(selected))
	for idx := range selected {
		out = append(out, idx)
	}
	return out
}

// byDistance returns all indices ordered by distance; ascending when asc is
// true, descending otherwise. Ties break on the lower index.
func byDistance(distances []float64, asc bool) []int {
	idxs := seq(len(distances))
	sort.Slice(idxs, func(i, j int) bool {
		a, b := idxs[i], idxs[j]
		if distances[a] != distances[b] {
			if asc {
				return distances[a] < distances[b]
			}
			return distances[a] > distances[b]
		}
		return a < b
	})
	return idxs
}

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
