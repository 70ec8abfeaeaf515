package sample

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/calebmorris/trendwatch/internal/model"
)

// stubEmbedder returns pre-seeded vectors positionally.
type stubEmbedder struct {
	vectors   [][]float32
	available bool
	fail      bool
}

func (s *stubEmbedder) Available() bool { return s.available }

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("not used")
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if s.fail {
		return nil, fmt.Errorf("embedding service down")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, len(s.vectors[i]))
		copy(v, s.vectors[i])
		out[i] = v
	}
	return out, nil
}

func candidates(n int) []model.Candidate {
	out := make([]model.Candidate, n)
	for i := range out {
		out[i] = model.Candidate{
			Item: model.Item{
				Platform: "reddit",
				SourceID: fmt.Sprintf("id%d", i),
				Content:  fmt.Sprintf("candidate number %d with enough text to embed", i),
			},
			Engagement: n - i,
			Sequence:   int64(i + 1),
		}
	}
	return out
}

// clusteredVectors places n points around k well-separated unit anchors.
func clusteredVectors(n, k, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	anchors := make([][]float32, k)
	for c := range anchors {
		anchors[c] = make([]float32, dim)
		anchors[c][c%dim] = 1
	}
	out := make([][]float32, n)
	for i := range out {
		a := anchors[i%k]
		v := make([]float32, dim)
		for d := range v {
			v[d] = a[d] + float32(rng.NormFloat64())*0.05
		}
		out[i] = v
	}
	return out
}

func TestSampleEmpty(t *testing.T) {
	s := New(nil, Options{TargetCount: 10})
	if got := s.Sample(context.Background(), nil); got != nil {
		t.Errorf("Sample(nil) = %v, want nil", got)
	}
}

func TestSampleSmallInputCopiesAll(t *testing.T) {
	s := New(nil, Options{TargetCount: 10})
	cands := candidates(4)

	got := s.Sample(context.Background(), cands)
	if len(got) != 4 {
		t.Fatalf("got %d candidates, want 4", len(got))
	}
	for i := range got {
		if got[i].SourceID != cands[i].SourceID {
			t.Errorf("candidate %d = %s, want %s", i, got[i].SourceID, cands[i].SourceID)
		}
	}
}

func TestSampleNilEmbedderFallsBackToPrefix(t *testing.T) {
	s := New(nil, Options{TargetCount: 5, KMin: 2, KMax: 8})
	cands := candidates(20)

	got := s.Sample(context.Background(), cands)
	if len(got) != 5 {
		t.Fatalf("got %d candidates, want 5", len(got))
	}
	for i := range got {
		if got[i].SourceID != cands[i].SourceID {
			t.Errorf("fallback must keep input order: got[%d] = %s, want %s",
				i, got[i].SourceID, cands[i].SourceID)
		}
	}
}

func TestSampleEmbeddingFailureFallsBack(t *testing.T) {
	emb := &stubEmbedder{available: true, fail: true}
	s := New(emb, Options{TargetCount: 5, KMin: 2, KMax: 8})
	cands := candidates(20)

	got := s.Sample(context.Background(), cands)
	if len(got) != 5 {
		t.Fatalf("got %d candidates, want 5", len(got))
	}
	if got[0].SourceID != "id0" {
		t.Errorf("fallback should start at the first candidate, got %s", got[0].SourceID)
	}
}

func TestSampleExactSizeAndSubset(t *testing.T) {
	const n, target = 60, 15
	emb := &stubEmbedder{available: true, vectors: clusteredVectors(n, 4, 8, 1)}
	s := New(emb, Options{TargetCount: target, KMin: 3, KMax: 10, OutlierRatio: 0.1})
	cands := candidates(n)

	got := s.Sample(context.Background(), cands)
	if len(got) != target {
		t.Fatalf("got %d candidates, want exactly %d", len(got), target)
	}

	valid := make(map[string]bool, n)
	for _, c := range cands {
		valid[c.Key()] = true
	}
	seen := make(map[string]bool, len(got))
	for _, c := range got {
		if !valid[c.Key()] {
			t.Errorf("sampled %s is not in the input pool", c.Key())
		}
		if seen[c.Key()] {
			t.Errorf("duplicate key %s in sample", c.Key())
		}
		seen[c.Key()] = true
	}
}

func TestSampleDeterministic(t *testing.T) {
	const n, target = 50, 12
	vectors := clusteredVectors(n, 5, 6, 2)
	opts := Options{TargetCount: target, KMin: 3, KMax: 10, OutlierRatio: 0.1}

	run := func() []string {
		emb := &stubEmbedder{available: true, vectors: vectors}
		got := New(emb, opts).Sample(context.Background(), candidates(n))
		ids := make([]string, len(got))
		for i, c := range got {
			ids[i] = c.SourceID
		}
		return ids
	}

	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("sampling not deterministic:\n%v\n%v", first, second)
	}
}

func TestSampleCoversClusters(t *testing.T) {
	// 40 points in 4 tight clusters; a 8-item sample should touch all 4.
	const n, k, target = 40, 4, 8
	emb := &stubEmbedder{available: true, vectors: clusteredVectors(n, k, 8, 3)}
	s := New(emb, Options{TargetCount: target, KMin: 2, KMax: 6, OutlierRatio: 0})

	got := s.Sample(context.Background(), candidates(n))
	if len(got) != target {
		t.Fatalf("got %d candidates, want %d", len(got), target)
	}

	// Input index i belongs to synthetic cluster i%k.
	covered := make(map[int]bool)
	for _, c := range got {
		var idx int
		fmt.Sscanf(c.SourceID, "id%d", &idx)
		covered[idx%k] = true
	}
	if len(covered) != k {
		t.Errorf("sample covers %d of %d clusters", len(covered), k)
	}
}

func TestKmeansDeterministic(t *testing.T) {
	vectors := clusteredVectors(30, 3, 4, 4)

	l1, c1 := kmeans(vectors, 3)
	l2, c2 := kmeans(vectors, 3)

	if !reflect.DeepEqual(l1, l2) {
		t.Error("labels differ between identical runs")
	}
	if !reflect.DeepEqual(c1, c2) {
		t.Error("centroids differ between identical runs")
	}
}

func TestKmeansAssignsEveryPoint(t *testing.T) {
	vectors := clusteredVectors(25, 4, 4, 5)

	labels, centroids := kmeans(vectors, 4)
	if len(labels) != 25 {
		t.Fatalf("got %d labels, want 25", len(labels))
	}
	if len(centroids) != 4 {
		t.Fatalf("got %d centroids, want 4", len(centroids))
	}
	for i, l := range labels {
		if l < 0 || l >= 4 {
			t.Errorf("label[%d] = %d out of range", i, l)
		}
	}
}
