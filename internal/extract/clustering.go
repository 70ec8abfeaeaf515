package extract

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/calebmorris/trendwatch/internal/llm"
	"github.com/calebmorris/trendwatch/internal/logging"
	"github.com/calebmorris/trendwatch/internal/model"
)

const pointRuneLimit = 80

var pointSplitter = regexp.MustCompile(`[。.!?;；，,、]+`)

// CountPlanner maps an input size to the number of opinion clusters to ask
// for. Each threshold strictly below the input size adds one opinion on top
// of the minimum, capped at the maximum.
type CountPlanner struct {
	min        int
	max        int
	thresholds []int
}

// NewCountPlanner builds a planner from a comma-separated threshold list such
// as "12,24,36,48". Malformed or non-positive entries are dropped and
// duplicates collapse.
func NewCountPlanner(min, max int, thresholds string) *CountPlanner {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	seen := make(map[int]bool)
	var parsed []int
	for _, field := range strings.Split(thresholds, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil || n <= 0 || seen[n] {
			continue
		}
		seen[n] = true
		parsed = append(parsed, n)
	}
	sort.Ints(parsed)
	return &CountPlanner{min: min, max: max, thresholds: parsed}
}

// Plan returns the opinion count for n input items: the minimum plus one per
// threshold strictly below n, capped at the maximum; once every threshold is
// exhausted the maximum applies. Without thresholds the count is fixed at 3
// clamped into [min, max].
func (p *CountPlanner) Plan(n int) int {
	if len(p.thresholds) == 0 {
		count := 3
		if count < p.min {
			count = p.min
		}
		if count > p.max {
			count = p.max
		}
		return count
	}
	count := p.min
	for _, t := range p.thresholds {
		if n <= t {
			if count > p.max {
				count = p.max
			}
			return count
		}
		count++
	}
	return p.max
}

// ClusteringResult is the validated (or degraded fallback) clustering output.
type ClusteringResult struct {
	Opinions []model.Opinion
	Summary  string
	// Degraded marks results synthesized locally after the provider failed
	// to produce a valid payload.
	Degraded bool
}

// ClusteringAnalyzer groups scored items into distinct viewpoints with a
// prose summary.
type ClusteringAnalyzer struct {
	provider       llm.Provider
	planner        *CountPlanner
	reportLanguage string
}

func NewClusteringAnalyzer(provider llm.Provider, planner *CountPlanner, reportLanguage string) *ClusteringAnalyzer {
	if reportLanguage == "" {
		reportLanguage = "auto"
	}
	return &ClusteringAnalyzer{provider: provider, planner: planner, reportLanguage: reportLanguage}
}

// Analyze clusters opinions about keyword from the sampled texts and their
// sentiment results. It never returns an error: provider failures degrade to
// a locally built placeholder result.
func (c *ClusteringAnalyzer) Analyze(ctx context.Context, keyword string, texts []string, sentiments []model.SentimentResult) ClusteringResult {
	var positive, neutral, negative int
	var phrases []string
	for _, r := range sentiments {
		switch {
		case r.Score >= 60:
			positive++
		case r.Score >= 40:
			neutral++
		default:
			negative++
		}
		phrases = append(phrases, r.KeyPhrases...)
	}

	targetCount := c.planner.Plan(len(sentiments))

	payload, fail := Run(ctx, c.provider, Spec{
		System:       clusteringSystem,
		Prompt:       buildClusteringPrompt(keyword, texts, phrases, positive, neutral, negative, targetCount, c.reportLanguage),
		RepairSystem: clusteringRepairSystem,
		BuildRepair:  buildRepairPrompt("JSON"),
		Parse:        DecodeJSON,
		Validate: func(v any) (bool, string) {
			return ValidateClustering(v, targetCount, c.planner.min, c.planner.max)
		},
		MaxTokens:   3000,
		Temperature: 0.7,
		JSON:        true,
	})
	if fail != nil {
		logging.Warn("clustering failed, using placeholder result",
			"kind", fail.Kind.String(), "reason", fail.Detail, "keyword", keyword)
		return fallbackClustering(keyword)
	}

	root := payload.(map[string]any)
	rawOpinions := root["key_opinions"].([]any)
	opinions := make([]model.Opinion, 0, len(rawOpinions))
	for _, entry := range rawOpinions {
		item := entry.(map[string]any)
		title, _ := item["title"].(string)
		description, _ := item["description"].(string)
		var points []string
		if list, ok := item["points"].([]any); ok {
			for _, p := range list {
				if str, ok := p.(string); ok {
					if cleaned := sanitizePoint(str); cleaned != "" {
						points = append(points, cleaned)
					}
				}
			}
		}
		if len(points) == 0 {
			points = extractPoints(description)
		}
		if len(points) > 4 {
			points = points[:4]
		}
		opinions = append(opinions, model.Opinion{
			Title:       strings.TrimSpace(title),
			Description: strings.TrimSpace(description),
			Points:      points,
		})
	}

	summary, _ := root["summary"].(string)
	return ClusteringResult{
		Opinions: opinions,
		Summary:  strings.TrimSpace(summary),
	}
}

func fallbackClustering(keyword string) ClusteringResult {
	return ClusteringResult{
		Opinions: []model.Opinion{
			{
				Title:       "Analysis Error",
				Description: "Unable to cluster opinions.",
			},
		},
		Summary:  fmt.Sprintf("Unable to generate summary for %s.", keyword),
		Degraded: true,
	}
}

func sanitizePoint(s string) string {
	return truncateRunes(strings.TrimSpace(s), pointRuneLimit)
}

// extractPoints splits a description into short sentence fragments when the
// provider omitted explicit points.
func extractPoints(description string) []string {
	var points []string
	for _, part := range pointSplitter.Split(description, -1) {
		cleaned := sanitizePoint(part)
		if cleaned == "" {
			continue
		}
		points = append(points, cleaned)
		if len(points) == 4 {
			break
		}
	}
	return points
}
