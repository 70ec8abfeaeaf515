package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/calebmorris/trendwatch/internal/llm"
	"github.com/calebmorris/trendwatch/internal/logging"
	"github.com/calebmorris/trendwatch/internal/model"
)

var (
	mermaidFence = regexp.MustCompile("(?s)```(?:mermaid)?\\s*\\n(.*?)```")
	labelStrip   = regexp.MustCompile(`["'()\[\]{}:;|]`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

// SentimentLabel renders a 0-100 score as a human-readable band.
func SentimentLabel(score int) string {
	switch {
	case score >= 80:
		return "Very Positive"
	case score >= 60:
		return "Positive"
	case score >= 40:
		return "Neutral"
	case score >= 20:
		return "Negative"
	default:
		return "Very Negative"
	}
}

// MindmapGenerator produces a Mermaid mindmap for the analysis result.
type MindmapGenerator struct {
	provider llm.Provider
}

func NewMindmapGenerator(provider llm.Provider) *MindmapGenerator {
	return &MindmapGenerator{provider: provider}
}

// Generate asks the provider for a mindmap and falls back to a locally built
// one if the output cannot be validated after repair. The returned code
// always passes ValidateMindmap.
func (m *MindmapGenerator) Generate(ctx context.Context, keyword string, opinions []model.Opinion, sentimentScore int) string {
	if len(opinions) < 2 {
		return fallbackMindmap(keyword, opinions, sentimentScore)
	}

	label := SentimentLabel(sentimentScore)
	payload, fail := Run(ctx, m.provider, Spec{
		System:       mindmapSystem,
		Prompt:       buildMindmapPrompt(keyword, opinionsText(opinions), label, sentimentScore, len(opinions)),
		RepairSystem: mindmapRepairSystem,
		BuildRepair:  buildRepairPrompt("Mermaid mindmap code"),
		Parse: func(raw string) (any, error) {
			return extractMindmapCode(raw)
		},
		Validate: func(v any) (bool, string) {
			code, _ := v.(string)
			return ValidateMindmap(code)
		},
		MaxTokens:       1000,
		Temperature:     0.5,
		RepairMaxTokens: 800,
		RepairTemp:      0.2,
	})
	if fail != nil {
		logging.Warn("mindmap generation failed, using local fallback",
			"kind", fail.Kind.String(), "reason", fail.Detail, "keyword", keyword)
		return fallbackMindmap(keyword, opinions, sentimentScore)
	}
	return payload.(string)
}

func opinionsText(opinions []model.Opinion) string {
	var b strings.Builder
	for _, op := range opinions {
		fmt.Fprintf(&b, "- %s: %s\n", op.Title, op.Description)
		for _, p := range op.Points {
			fmt.Fprintf(&b, "  * %s\n", p)
		}
	}
	return b.String()
}

// extractMindmapCode pulls mindmap source out of a raw response that may wrap
// it in a markdown fence or surround it with prose.
func extractMindmapCode(raw string) (string, error) {
	if match := mermaidFence.FindStringSubmatch(raw); match != nil {
		raw = match[1]
	}
	idx := strings.Index(raw, "mindmap")
	if idx < 0 {
		return "", fmt.Errorf("no mindmap block found in response")
	}
	return strings.TrimRight(raw[idx:], " \t\n"), nil
}

// sanitizeLabel makes a string safe as a Mermaid node label: punctuation that
// breaks the parser is stripped, whitespace collapses, and the result is
// truncated to limit runes.
func sanitizeLabel(s string, limit int) string {
	s = labelStrip.ReplaceAllString(s, "")
	s = strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
	if s == "" {
		return "Point"
	}
	return truncateRunes(s, limit)
}

// SafeMindmap builds a deterministic mindmap from the structured result
// alone, without any provider call.
func SafeMindmap(keyword string, opinions []model.Opinion, sentimentScore int) string {
	return fallbackMindmap(keyword, opinions, sentimentScore)
}

// fallbackMindmap builds a deterministic mindmap from the structured result
// alone.
func fallbackMindmap(keyword string, opinions []model.Opinion, sentimentScore int) string {
	var b strings.Builder
	b.WriteString("mindmap\n")
	fmt.Fprintf(&b, "  root((%s))\n", sanitizeLabel(keyword, 40))
	b.WriteString("    Sentiment\n")
	fmt.Fprintf(&b, "      %s\n", sanitizeLabel(SentimentLabel(sentimentScore), 20))
	if len(opinions) == 0 {
		b.WriteString("    No Opinions\n")
		b.WriteString("    No Data\n")
		return strings.TrimRight(b.String(), "\n")
	}
	for _, op := range opinions {
		fmt.Fprintf(&b, "    %s\n", sanitizeLabel(op.Title, 30))
		if len(op.Points) == 0 {
			continue
		}
		b.WriteString("      Points\n")
		points := op.Points
		if len(points) > 3 {
			points = points[:3]
		}
		for _, p := range points {
			fmt.Fprintf(&b, "        %s\n", sanitizeLabel(p, 30))
		}
	}
	if len(opinions) == 1 {
		b.WriteString("    Other Views\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
