// Package pipeline wires the analysis stages into one run: streaming intake
// with validity filtering and candidate bounding, representative sampling,
// the three LLM extraction stages, and final aggregation into an immutable
// analysis record.
package pipeline

import (
	"context"
	"errors"
	"iter"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calebmorris/trendwatch/internal/config"
	"github.com/calebmorris/trendwatch/internal/embed"
	"github.com/calebmorris/trendwatch/internal/extract"
	"github.com/calebmorris/trendwatch/internal/filter"
	"github.com/calebmorris/trendwatch/internal/heat"
	"github.com/calebmorris/trendwatch/internal/llm"
	"github.com/calebmorris/trendwatch/internal/logging"
	"github.com/calebmorris/trendwatch/internal/model"
	"github.com/calebmorris/trendwatch/internal/sample"
	"github.com/calebmorris/trendwatch/internal/selector"
)

// ErrNoData means the input stream produced zero items. The caller gets this
// before any provider or embedding call is made.
var ErrNoData = errors.New("no items to analyze")

// Analyzer runs the full analysis pipeline for one keyword.
type Analyzer struct {
	cfg      *config.Config
	provider llm.Provider
	embedder embed.BatchEmbedder
	now      func() time.Time
}

// New creates an Analyzer. The embedder may be nil, in which case sampling
// degrades to deterministic truncation.
func New(cfg *config.Config, provider llm.Provider, embedder embed.BatchEmbedder) *Analyzer {
	return &Analyzer{
		cfg:      cfg,
		provider: provider,
		embedder: embedder,
		now:      time.Now,
	}
}

// Run consumes the item stream in a single pass and produces the analysis
// record. Heat and platform distribution cover every streamed item; the
// validity filter and the per-platform candidate bound apply only to what
// flows into sampling and extraction. A cancelled context aborts the run
// without producing a record.
func (a *Analyzer) Run(ctx context.Context, keyword string, items iter.Seq[model.Item]) (*model.AnalysisRecord, error) {
	pre := filter.New(filter.Options{
		MinLength:      a.cfg.Filter.MinLength,
		MaxLength:      a.cfg.Filter.MaxLength,
		TargetLanguage: a.cfg.Filter.TargetLanguage,
		FilterAds:      a.cfg.Filter.FilterAds,
		FilterBots:     a.cfg.Filter.FilterBots,
	})
	scorer := heat.NewScorer(a.now(), heat.Config{HalfLifeHours: a.cfg.Analysis.HalfLifeHours})
	bound := selector.New(a.cfg.Sampling.MaxItems)

	total := 0
	platformCounts := make(map[string]int)
	for item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		total++
		platformCounts[item.Platform]++
		scorer.Observe(item)
		if pre.IsValid(item) {
			bound.Observe(item)
		}
	}
	if total == 0 {
		return nil, ErrNoData
	}

	cands := pre.Dedup(bound.Candidates())
	top := pre.ExtractTopItems(cands, a.cfg.Filter.TopLimit, a.cfg.Filter.MinEngagement, true)

	sampled := top
	if a.cfg.Sampling.Enabled && len(top) > 0 {
		sampler := sample.New(a.embedder, sample.Options{
			TargetCount:   a.cfg.Sampling.TargetCount,
			KMin:          a.cfg.Sampling.KMin,
			KMax:          a.cfg.Sampling.KMax,
			OutlierRatio:  a.cfg.Sampling.OutlierRatio,
			BatchSize:     a.cfg.Sampling.BatchSize,
			TextMaxLength: a.cfg.Sampling.TextMaxLength,
		})
		sampled = sampler.Sample(ctx, top)
	}

	logging.Info("intake complete",
		"keyword", keyword,
		"total", total,
		"retained", len(cands),
		"top", len(top),
		"sampled", len(sampled))

	if len(sampled) == 0 {
		// Everything was filtered out. Produce a degraded record locally
		// rather than prompting a provider with nothing.
		return a.record(keyword, 50, extract.ClusteringResult{Degraded: true},
			extract.SafeMindmap(keyword, nil, 50), scorer.Index(), total, platformCounts), nil
	}

	sentiments, err := a.scoreSentiment(ctx, keyword, sampled)
	if err != nil {
		return nil, err
	}
	score := extract.WeightedScore(sentiments)

	planner := extract.NewCountPlanner(
		a.cfg.Analysis.OpinionCountMin,
		a.cfg.Analysis.OpinionCountMax,
		a.cfg.Analysis.OpinionCountThresholds)
	clustering := extract.NewClusteringAnalyzer(a.provider, planner, a.cfg.Analysis.ReportLanguage)
	clustered := clustering.Analyze(ctx, keyword, a.clusteringTexts(sampled), sentiments)

	mindmap := extract.NewMindmapGenerator(a.provider).
		Generate(ctx, keyword, clustered.Opinions, score)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.record(keyword, score, clustered, mindmap, scorer.Index(), total, platformCounts), nil
}

// RunItems is Run over an in-memory slice.
func (a *Analyzer) RunItems(ctx context.Context, keyword string, items []model.Item) (*model.AnalysisRecord, error) {
	return a.Run(ctx, keyword, slices.Values(items))
}

// scoreSentiment fans the sampled candidates out in fixed-size batches with a
// bounded number of concurrent provider calls, then reassembles the results
// in input order.
func (a *Analyzer) scoreSentiment(ctx context.Context, keyword string, sampled []model.Candidate) ([]model.SentimentResult, error) {
	analyzer := extract.NewSentimentAnalyzer(a.provider, keyword)

	batchSize := a.cfg.Analysis.SentimentBatchSize
	var batches [][]model.Candidate
	for start := 0; start < len(sampled); start += batchSize {
		end := start + batchSize
		if end > len(sampled) {
			end = len(sampled)
		}
		batches = append(batches, sampled[start:end])
	}

	results := make([][]model.SentimentResult, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Analysis.SentimentFanout)
	for i, batch := range batches {
		g.Go(func() error {
			r, err := analyzer.AnalyzeBatch(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.SentimentResult, 0, len(sampled))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (a *Analyzer) clusteringTexts(sampled []model.Candidate) []string {
	limit := a.cfg.Analysis.TextTruncationLimit
	texts := make([]string, len(sampled))
	for i, c := range sampled {
		text := c.Text()
		if runes := []rune(text); len(runes) > limit {
			text = string(runes[:limit])
		}
		texts[i] = text
	}
	return texts
}

func (a *Analyzer) record(keyword string, score int, clustered extract.ClusteringResult, mindmap string, heatIndex float64, total int, platformCounts map[string]int) *model.AnalysisRecord {
	distribution := make(map[string]int, len(platformCounts))
	for platform, count := range platformCounts {
		distribution[platform] = int(math.Round(float64(count) / float64(total) * 100))
	}
	return &model.AnalysisRecord{
		ID:                   uuid.NewString(),
		Keyword:              keyword,
		SentimentScore:       score,
		KeyOpinions:          clustered.Opinions,
		Summary:              clustered.Summary,
		MindmapCode:          mindmap,
		HeatIndex:            heatIndex,
		TotalItems:           total,
		PlatformDistribution: distribution,
		AnalyzedAt:           a.now().UTC(),
	}
}
