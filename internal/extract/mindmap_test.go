package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/calebmorris/trendwatch/internal/model"
)

func twoOpinions() []model.Opinion {
	return []model.Opinion{
		{Title: "Performance gains", Description: "d", Points: []string{"faster builds", "lower memory"}},
		{Title: "Migration pain", Description: "d", Points: []string{"plugin breakage"}},
	}
}

func validMindmapCode() string {
	return strings.Join([]string{
		"mindmap",
		"  root((go release))",
		"    Sentiment",
		"      Positive",
		"    Performance gains",
		"      Points",
		"        faster builds",
		"    Migration pain",
	}, "\n")
}

func TestSentimentLabel(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, "Very Positive"},
		{80, "Very Positive"},
		{79, "Positive"},
		{60, "Positive"},
		{59, "Neutral"},
		{40, "Neutral"},
		{39, "Negative"},
		{20, "Negative"},
		{19, "Very Negative"},
		{0, "Very Negative"},
	}
	for _, tt := range tests {
		if got := SentimentLabel(tt.score); got != tt.want {
			t.Errorf("SentimentLabel(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestGenerateHappyPath(t *testing.T) {
	p := &scriptedProvider{responses: []string{validMindmapCode()}}
	g := NewMindmapGenerator(p)

	got := g.Generate(context.Background(), "go release", twoOpinions(), 75)
	if got != validMindmapCode() {
		t.Errorf("Generate = %q", got)
	}
	if len(p.calls) != 1 {
		t.Errorf("provider called %d times, want 1", len(p.calls))
	}
	if p.calls[0].JSON {
		t.Error("mindmap request must not force JSON output")
	}
}

func TestGenerateExtractsFromFence(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		"Here you go:\n```mermaid\n" + validMindmapCode() + "\n```\nHope that helps!",
	}}
	g := NewMindmapGenerator(p)

	got := g.Generate(context.Background(), "go release", twoOpinions(), 75)
	if got != validMindmapCode() {
		t.Errorf("Generate = %q", got)
	}
}

func TestGenerateRepairsInvalidOutput(t *testing.T) {
	p := &scriptedProvider{responses: []string{"no diagram here", validMindmapCode()}}
	g := NewMindmapGenerator(p)

	got := g.Generate(context.Background(), "go release", twoOpinions(), 75)
	if got != validMindmapCode() {
		t.Errorf("Generate after repair = %q", got)
	}
	if len(p.calls) != 2 {
		t.Errorf("provider called %d times, want 2", len(p.calls))
	}
	if p.calls[1].MaxTokens != 800 {
		t.Errorf("repair MaxTokens = %d, want 800", p.calls[1].MaxTokens)
	}
}

func TestGenerateFallsBackAfterFailedRepair(t *testing.T) {
	p := &scriptedProvider{responses: []string{"junk", "more junk"}}
	g := NewMindmapGenerator(p)

	got := g.Generate(context.Background(), "go release", twoOpinions(), 75)
	if ok, reason := ValidateMindmap(got); !ok {
		t.Errorf("fallback mindmap invalid: %s\n%s", reason, got)
	}
	if !strings.Contains(got, "go release") {
		t.Error("fallback missing keyword root")
	}
}

func TestGenerateFewOpinionsSkipsProvider(t *testing.T) {
	p := &scriptedProvider{}
	g := NewMindmapGenerator(p)

	one := twoOpinions()[:1]
	got := g.Generate(context.Background(), "kw", one, 50)
	if len(p.calls) != 0 {
		t.Errorf("provider called %d times, want 0 for a single opinion", len(p.calls))
	}
	if ok, reason := ValidateMindmap(got); !ok {
		t.Errorf("fallback mindmap invalid: %s\n%s", reason, got)
	}
}

func TestSafeMindmapAlwaysValidates(t *testing.T) {
	cases := []struct {
		name     string
		opinions []model.Opinion
	}{
		{"no opinions", nil},
		{"one opinion", twoOpinions()[:1]},
		{"two opinions", twoOpinions()},
		{"opinion without points", []model.Opinion{{Title: "A"}, {Title: "B"}}},
		{"many points", []model.Opinion{
			{Title: "A", Points: []string{"1", "2", "3", "4", "5"}},
			{Title: "B", Points: []string{"1"}},
		}},
		{"hostile labels", []model.Opinion{
			{Title: `break (the) [parser]: "now"; {please}|`, Points: []string{"a:b"}},
			{Title: strings.Repeat("long title ", 20)},
		}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			code := SafeMindmap("some keyword", tt.opinions, 55)
			if ok, reason := ValidateMindmap(code); !ok {
				t.Errorf("SafeMindmap invalid: %s\n%s", reason, code)
			}
		})
	}
}

func TestSafeMindmapCapsPoints(t *testing.T) {
	code := SafeMindmap("kw", []model.Opinion{
		{Title: "A", Points: []string{"p1", "p2", "p3", "p4", "p5"}},
		{Title: "B"},
	}, 50)
	for _, banned := range []string{"p4", "p5"} {
		if strings.Contains(code, banned) {
			t.Errorf("point %q should be trimmed:\n%s", banned, code)
		}
	}
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{`root((x))`, 30, "rootx"},
		{"multi\n line \t text", 30, "multi line text"},
		{"", 30, "Point"},
		{"():;|{}[]", 30, "Point"},
		{"abcdefghij", 5, "abcde"},
	}
	for _, tt := range tests {
		if got := sanitizeLabel(tt.in, tt.limit); got != tt.want {
			t.Errorf("sanitizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractMindmapCode(t *testing.T) {
	code := validMindmapCode()

	t.Run("bare", func(t *testing.T) {
		got, err := extractMindmapCode(code)
		if err != nil || got != code {
			t.Errorf("got %q, %v", got, err)
		}
	})
	t.Run("generic fence", func(t *testing.T) {
		got, err := extractMindmapCode("```\n" + code + "\n```")
		if err != nil || got != code {
			t.Errorf("got %q, %v", got, err)
		}
	})
	t.Run("leading prose", func(t *testing.T) {
		got, err := extractMindmapCode("Sure! Here it is:\n" + code)
		if err != nil || got != code {
			t.Errorf("got %q, %v", got, err)
		}
	})
	t.Run("no mindmap", func(t *testing.T) {
		if _, err := extractMindmapCode("nothing relevant"); err == nil {
			t.Error("expected error")
		}
	})
}
