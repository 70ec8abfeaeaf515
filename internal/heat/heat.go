// Package heat computes the composite 0-100 trend score for a run.
// The score blends time-decayed engagement, volume sufficiency, and platform
// coverage, and is computed over the full accepted raw set independently of
// candidate bounding or sampling.
package heat

import (
	"math"
	"sort"
	"time"

	"github.com/calebmorris/trendwatch/internal/model"
)

// Config tunes the scorer. Zero values mean: 24h half-life, no expected
// volume, no expected platform set.
type Config struct {
	HalfLifeHours     float64
	ExpectedCount     int
	ExpectedPlatforms []string
}

// Scorer accumulates per-item weighted engagement in a single streaming pass.
type Scorer struct {
	now         time.Time
	decayLambda float64
	cfg         Config

	engagements []float64
	total       float64
	items       int
	platforms   map[string]bool
}

// NewScorer creates a Scorer that decays engagement relative to now.
func NewScorer(now time.Time, cfg Config) *Scorer {
	if cfg.HalfLifeHours <= 0 {
		cfg.HalfLifeHours = 24
	}
	return &Scorer{
		now:         now,
		decayLambda: math.Ln2 / cfg.HalfLifeHours,
		cfg:         cfg,
		platforms:   make(map[string]bool),
	}
}

// Observe folds one raw item into the accumulator.
func (s *Scorer) Observe(item model.Item) {
	w := s.weightedEngagement(item)
	s.engagements = append(s.engagements, w)
	s.total += w
	s.items++
	s.platforms[item.Platform] = true
}

// weightedEngagement computes base engagement decayed by item age. The base
// formula deliberately weighs views and comments differently from the
// filtering-stage engagement score. Items without a timestamp are not
// decayed; naive timestamps are treated as UTC upstream during decoding.
func (s *Scorer) weightedEngagement(item model.Item) float64 {
	base := item.Metric("upvotes") +
		item.Metric("likes") +
		item.Metric("views")/100 +
		item.Metric("num_comments")*5

	weight := 1.0
	if item.PublishedAt != nil {
		ageHours := s.now.Sub(*item.PublishedAt).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		weight = math.Exp(-s.decayLambda * ageHours)
	}

	return float64(base) * weight
}

// Index returns the composite heat index, rounded to two decimals.
// Returns 0.0 when no items were observed.
func (s *Scorer) Index() float64 {
	if s.items == 0 {
		return 0.0
	}

	avg := s.total / float64(s.items)

	sorted := make([]float64, len(s.engagements))
	copy(sorted, s.engagements)
	sort.Float64s(sorted)
	p90Index := int(float64(len(sorted)) * 0.9)
	if p90Index > 0 {
		p90Index--
	}
	p90 := sorted[p90Index]

	scale := math.Log1p(1_000_000)
	engagementScore := math.Log1p(math.Max(avg, 0))/scale*70 +
		math.Log1p(math.Max(p90, 0))/scale*30
	if engagementScore > 100 {
		engagementScore = 100
	}

	volumeRatio := 1.0
	if s.cfg.ExpectedCount > 0 {
		volumeRatio = float64(s.items) / float64(s.cfg.ExpectedCount)
	}
	volumeScore := math.Min(1, volumeRatio) * 100

	platformRatio := 1.0
	if len(s.cfg.ExpectedPlatforms) > 0 {
		platformRatio = float64(len(s.platforms)) / float64(len(s.cfg.ExpectedPlatforms))
	}
	platformScore := math.Min(1, platformRatio) * 100

	index := 0.6*engagementScore + 0.25*volumeScore + 0.15*platformScore
	return math.Round(math.Min(100, index)*100) / 100
}

// Count returns the number of items observed so far.
func (s *Scorer) Count() int { return s.items }

// Platforms returns the number of distinct platforms observed so far.
func (s *Scorer) Platforms() int { return len(s.platforms) }
