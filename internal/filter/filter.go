// Package filter removes invalid and duplicate items from a collected batch
// and ranks the survivors by naive engagement.
package filter

import (
	"regexp"
	"sort"
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/calebmorris/trendwatch/internal/model"
)

// Ad phrasing that marks an item as promotional noise.
var adPattern = regexp.MustCompile(`(?i)buy\s+now|click\s+here|limited\s+offer|subscribe\s+to|follow\s+me|check\s+out\s+my|promo\s*code|discount|free\s+shipping`)

// Author names that look like bots.
var botPattern = regexp.MustCompile(`(?i)bot$|automoderator|^auto|_bot$`)

// Options configures a Preprocessor. Zero values fall back to defaults.
type Options struct {
	MinLength      int
	MaxLength      int
	TargetLanguage string
	FilterAds      bool
	FilterBots     bool
}

// Preprocessor applies the validity predicate, deduplicates by identity key,
// and sorts by engagement.
type Preprocessor struct {
	minLength      int
	maxLength      int
	targetLanguage string
	filterAds      bool
	filterBots     bool
}

// New creates a Preprocessor with the given options.
func New(opts Options) *Preprocessor {
	if opts.MinLength <= 0 {
		opts.MinLength = 10
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = 5000
	}
	if opts.TargetLanguage == "" {
		opts.TargetLanguage = "en"
	}
	return &Preprocessor{
		minLength:      opts.MinLength,
		maxLength:      opts.MaxLength,
		targetLanguage: opts.TargetLanguage,
		filterAds:      opts.FilterAds,
		filterBots:     opts.FilterBots,
	}
}

// EngagementScore is the naive engagement formula used for filtering and
// top-item extraction. Note this intentionally differs from the decayed
// base-engagement formula in the heat package; the two are used at
// different stages and are not interchangeable.
func EngagementScore(item model.Item) int {
	return item.Metric("upvotes") +
		item.Metric("num_comments")*2 +
		item.Metric("views")/1000 +
		item.Metric("likes")*10
}

// IsValid reports whether an item passes the validity predicate: text length
// bounds, bot-author and advertisement rejection, and best-effort language
// matching. Language detection failures never reject (fail-open).
func (p *Preprocessor) IsValid(item model.Item) bool {
	text := item.Text()

	// Length bounds count characters, not bytes, so CJK content is measured
	// the same as ASCII.
	runeLen := len([]rune(text))
	if runeLen < p.minLength || runeLen > p.maxLength {
		return false
	}

	if p.filterBots && item.Author != "" && botPattern.MatchString(item.Author) {
		return false
	}

	if p.filterAds && adPattern.MatchString(text) {
		return false
	}

	// Detection is unreliable on short fragments, so only texts longer than
	// 50 characters are checked.
	if runeLen > 50 {
		if lang, ok := detectLanguage(text); ok && !languageMatches(p.targetLanguage, lang) {
			return false
		}
	}

	return true
}

// Preprocess filters, deduplicates (first occurrence wins), scores, and sorts
// a raw batch. The result is ordered by engagement descending with insertion
// order as the tie-break.
func (p *Preprocessor) Preprocess(items []model.Item) []model.Candidate {
	result := make([]model.Candidate, 0, len(items))
	seen := make(map[string]bool, len(items))

	var seq int64
	for _, item := range items {
		if seen[item.Key()] {
			continue
		}
		if !p.IsValid(item) {
			continue
		}
		seen[item.Key()] = true
		seq++
		result = append(result, model.Candidate{
			Item:       item,
			Engagement: EngagementScore(item),
			Sequence:   seq,
		})
	}

	sortByEngagement(result)
	return result
}

// Dedup removes duplicate identity keys from an already-scored candidate
// pool, keeping the earliest-observed occurrence, and re-sorts by engagement.
func (p *Preprocessor) Dedup(cands []model.Candidate) []model.Candidate {
	ordered := make([]model.Candidate, len(cands))
	copy(ordered, cands)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	result := make([]model.Candidate, 0, len(ordered))
	seen := make(map[string]bool, len(ordered))
	for _, c := range ordered {
		if seen[c.Key()] {
			continue
		}
		seen[c.Key()] = true
		result = append(result, c)
	}

	sortByEngagement(result)
	return result
}

func sortByEngagement(cands []model.Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Engagement != cands[j].Engagement {
			return cands[i].Engagement > cands[j].Engagement
		}
		return cands[i].Sequence < cands[j].Sequence
	})
}

// detectLanguage returns the ISO 639-3 code of the detected language.
// ok is false when detection is too uncertain to act on.
func detectLanguage(text string) (string, bool) {
	info := whatlanggo.Detect(text)
	if info.Lang == -1 || !info.IsReliable() {
		return "", false
	}
	return info.Lang.Iso6393(), true
}

// languageMatches maps the configured target language to the detector's
// ISO 639-3 codes. Unknown targets accept everything.
func languageMatches(target, detected string) bool {
	switch strings.ToLower(target) {
	case "en":
		return detected == "eng"
	case "zh":
		return detected == "cmn"
	default:
		return true
	}
}
