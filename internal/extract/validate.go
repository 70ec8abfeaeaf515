package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var sentenceMarkers = regexp.MustCompile(`[.!?。！？]`)

// ValidateSentiment checks a decoded sentiment payload: a "scores" list with
// exactly expected entries, 1-based contiguous indices, integer scores in
// [0,100], and at most 3 string key phrases per entry.
func ValidateSentiment(v any, expected int) (bool, string) {
	root, ok := v.(map[string]any)
	if !ok {
		return false, "Root must be an object."
	}
	scores, ok := root["scores"].([]any)
	if !ok {
		return false, `"scores" must be a list.`
	}
	if len(scores) != expected {
		return false, fmt.Sprintf(`"scores" must contain exactly %d items.`, expected)
	}
	for i, entry := range scores {
		pos := i + 1
		item, ok := entry.(map[string]any)
		if !ok {
			return false, fmt.Sprintf("Item %d must be an object.", pos)
		}
		index, ok := asInt(item["index"])
		if !ok || index != pos {
			return false, fmt.Sprintf(`Item %d must have "index" == %d.`, pos, pos)
		}
		score, ok := asInt(item["score"])
		if !ok || score < 0 || score > 100 {
			return false, fmt.Sprintf(`Item %d must have integer "score" in [0,100].`, pos)
		}
		phrases, ok := item["key_phrases"].([]any)
		if !ok {
			return false, fmt.Sprintf(`Item %d must have "key_phrases" list.`, pos)
		}
		if len(phrases) > 3 {
			return false, fmt.Sprintf("Item %d has too many key phrases.", pos)
		}
		for _, p := range phrases {
			if _, ok := p.(string); !ok {
				return false, fmt.Sprintf("Item %d has a non-string key phrase.", pos)
			}
		}
	}
	return true, ""
}

// ValidateClustering checks a decoded clustering payload. When expectedCount
// is positive the opinion list must have exactly that many entries; otherwise
// it must fall within [minCount, maxCount]. Every opinion needs a non-empty
// title and description; points, when present, must be a list of strings.
// The summary must be non-empty and either contain at least 3 sentence
// terminators or be at least 180 characters.
func ValidateClustering(v any, expectedCount, minCount, maxCount int) (bool, string) {
	root, ok := v.(map[string]any)
	if !ok {
		return false, "Root must be an object."
	}
	opinions, ok := root["key_opinions"].([]any)
	if !ok {
		return false, `"key_opinions" must be a list.`
	}
	if expectedCount > 0 {
		if len(opinions) != expectedCount {
			return false, fmt.Sprintf(`"key_opinions" must contain exactly %d items.`, expectedCount)
		}
	} else if len(opinions) < minCount || len(opinions) > maxCount {
		return false, fmt.Sprintf(`"key_opinions" must contain between %d and %d items.`, minCount, maxCount)
	}

	for i, entry := range opinions {
		pos := i + 1
		item, ok := entry.(map[string]any)
		if !ok {
			return false, fmt.Sprintf("Opinion %d must be an object.", pos)
		}
		title, ok := item["title"].(string)
		if !ok || strings.TrimSpace(title) == "" {
			return false, fmt.Sprintf("Opinion %d must have non-empty title.", pos)
		}
		description, ok := item["description"].(string)
		if !ok || strings.TrimSpace(description) == "" {
			return false, fmt.Sprintf("Opinion %d must have non-empty description.", pos)
		}
		if points, present := item["points"]; present && points != nil {
			list, ok := points.([]any)
			if !ok {
				return false, fmt.Sprintf(`Opinion %d "points" must be a list.`, pos)
			}
			for _, p := range list {
				if _, ok := p.(string); !ok {
					return false, fmt.Sprintf("Opinion %d has a non-string point.", pos)
				}
			}
		}
	}

	summary, ok := root["summary"].(string)
	if !ok || strings.TrimSpace(summary) == "" {
		return false, `"summary" must be a non-empty string.`
	}
	markers := sentenceMarkers.FindAllString(summary, -1)
	if len(markers) < 3 && len([]rune(strings.TrimSpace(summary))) < 180 {
		return false, `"summary" is too short; expected 4-6 sentences.`
	}
	return true, ""
}

// ValidateMindmap checks the structural outline of a Mermaid mindmap: the
// fixed "mindmap" first line, exactly one root declaration, exactly one
// Sentiment branch with exactly one label directly beneath it, and at least
// two opinion branches at the Sentiment branch's indentation level.
func ValidateMindmap(code string) (bool, string) {
	var lines []string
	for _, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimRight(line, " \t"))
		}
	}
	if len(lines) == 0 {
		return false, "Mindmap output is empty."
	}
	if strings.TrimSpace(lines[0]) != "mindmap" {
		return false, `First line must be "mindmap".`
	}

	rootCount := 0
	sentimentAt := -1
	sentimentCount := 0
	opinionCount := 0
	for i, line := range lines {
		label := strings.TrimSpace(line)
		switch indentOf(line) {
		case 2:
			if strings.HasPrefix(label, "root((") {
				rootCount++
			}
		case 4:
			if label == "Sentiment" {
				sentimentCount++
				sentimentAt = i
			} else if !strings.HasPrefix(label, "root((") {
				opinionCount++
			}
		}
	}

	if rootCount != 1 {
		return false, `Expected exactly one root node "root((keyword))".`
	}
	if sentimentCount != 1 {
		return false, `Expected a "Sentiment" branch under root.`
	}

	labels := 0
	for i := sentimentAt + 1; i < len(lines) && indentOf(lines[i]) >= 6; i++ {
		if indentOf(lines[i]) == 6 {
			labels++
		}
	}
	if labels != 1 {
		return false, `Expected exactly one sentiment label under "Sentiment".`
	}

	if opinionCount < 2 {
		return false, "Expected at least 2 opinion branches under root."
	}
	return true, ""
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		if r != ' ' {
			break
		}
		n++
	}
	return n
}

// asInt accepts a json.Number only when it is a whole number.
func asInt(v any) (int, bool) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	n, err := num.Int64()
	if err != nil {
		return 0, false
	}
	return int(n), true
}
