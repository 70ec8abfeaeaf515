package extract

import (
	"context"
	"fmt"
	"math"

	"github.com/calebmorris/trendwatch/internal/llm"
	"github.com/calebmorris/trendwatch/internal/logging"
	"github.com/calebmorris/trendwatch/internal/model"
)

const sentimentTextLimit = 500

// SentimentAnalyzer scores batches of item texts on a 0-100 scale.
type SentimentAnalyzer struct {
	provider llm.Provider
	keyword  string
}

func NewSentimentAnalyzer(provider llm.Provider, keyword string) *SentimentAnalyzer {
	return &SentimentAnalyzer{provider: provider, keyword: keyword}
}

// AnalyzeBatch scores one batch of candidates. Results come back in batch
// order. If the provider output cannot be validated even after repair, every
// item in the batch falls back to a neutral score.
func (s *SentimentAnalyzer) AnalyzeBatch(ctx context.Context, batch []model.Candidate) ([]model.SentimentResult, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	texts := make([]string, len(batch))
	for i, cand := range batch {
		text := cand.Text()
		if len([]rune(text)) > sentimentTextLimit {
			text = truncateRunes(text, sentimentTextLimit) + "..."
		}
		texts[i] = fmt.Sprintf("[%d] %s", i+1, text)
	}

	expected := len(batch)
	payload, fail := Run(ctx, s.provider, Spec{
		System:       sentimentSystem,
		Prompt:       buildSentimentPrompt(texts, s.keyword),
		RepairSystem: sentimentRepairSystem,
		BuildRepair:  buildRepairPrompt("JSON"),
		Parse:        DecodeJSON,
		Validate: func(v any) (bool, string) {
			return ValidateSentiment(v, expected)
		},
		MaxTokens:   2000,
		Temperature: 0.7,
		JSON:        true,
	})
	if fail != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Warn("sentiment batch failed, using neutral fallback",
			"kind", fail.Kind.String(), "reason", fail.Detail, "batch_size", len(batch))
		return neutralResults(batch), nil
	}

	return s.collect(payload, batch), nil
}

// collect maps validated score entries back onto the batch by index. The
// validator has already pinned indices to 1..N in order, so the mapping is
// positional.
func (s *SentimentAnalyzer) collect(payload any, batch []model.Candidate) []model.SentimentResult {
	results := neutralResults(batch)
	root, _ := payload.(map[string]any)
	scores, _ := root["scores"].([]any)
	for i, entry := range scores {
		if i >= len(batch) {
			break
		}
		item, _ := entry.(map[string]any)
		pos := i
		if idx, ok := asInt(item["index"]); ok && idx >= 1 && idx <= len(batch) {
			pos = idx - 1
		}
		score, _ := asInt(item["score"])
		var phrases []string
		if list, ok := item["key_phrases"].([]any); ok {
			for _, p := range list {
				if str, ok := p.(string); ok {
					phrases = append(phrases, str)
				}
			}
		}
		cand := batch[pos]
		results[pos] = model.SentimentResult{
			SourceID:   cand.SourceID,
			Platform:   cand.Platform,
			Score:      score,
			KeyPhrases: phrases,
			Engagement: cand.Metric("upvotes") + cand.Metric("likes"),
		}
	}
	return results
}

func neutralResults(batch []model.Candidate) []model.SentimentResult {
	results := make([]model.SentimentResult, len(batch))
	for i, cand := range batch {
		results[i] = model.SentimentResult{
			SourceID: cand.SourceID,
			Platform: cand.Platform,
			Score:    50,
		}
	}
	return results
}

// WeightedScore aggregates per-item scores into a single 0-100 score,
// weighting each item by its engagement so loud items count for more. An
// empty input yields the neutral 50.
func WeightedScore(results []model.SentimentResult) int {
	if len(results) == 0 {
		return 50
	}
	var weightedSum, totalWeight float64
	for _, r := range results {
		// Integer division: engagement buckets of 10 share a weight.
		weight := float64(r.Engagement/10 + 1)
		if weight < 1 {
			weight = 1
		}
		weightedSum += float64(r.Score) * weight
		totalWeight += weight
	}
	return int(math.Round(weightedSum / totalWeight))
}
