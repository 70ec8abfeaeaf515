package filter

import "github.com/calebmorris/trendwatch/internal/model"

// ExtractTopItems picks up to limit candidates for downstream analysis.
// With balance enabled it partitions the pool by platform, takes the top
// limit/#platforms per platform above the engagement floor (falling back to
// the platform's items regardless of the floor if none clear it), then
// backfills remaining slots from the engagement-sorted remainder across all
// platforms.
func (p *Preprocessor) ExtractTopItems(cands []model.Candidate, limit, minEngagement int, balance bool) []model.Candidate {
	if limit <= 0 || len(cands) == 0 {
		return nil
	}

	if !balance {
		filtered := make([]model.Candidate, 0, len(cands))
		for _, c := range cands {
			if c.Engagement >= minEngagement {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) > limit {
			filtered = filtered[:limit]
		}
		return filtered
	}

	byPlatform := make(map[string][]model.Candidate)
	var platforms []string
	for _, c := range cands {
		if _, ok := byPlatform[c.Platform]; !ok {
			platforms = append(platforms, c.Platform)
		}
		byPlatform[c.Platform] = append(byPlatform[c.Platform], c)
	}
	for _, items := range byPlatform {
		sortByEngagement(items)
	}

	perPlatform := limit / len(byPlatform)
	if perPlatform < 1 {
		perPlatform = 1
	}

	var selected []model.Candidate
	for _, platform := range platforms {
		items := byPlatform[platform]
		cleared := make([]model.Candidate, 0, len(items))
		for _, c := range items {
			if c.Engagement >= minEngagement {
				cleared = append(cleared, c)
			}
		}
		// If nothing on this platform clears the floor, keep it represented
		// anyway.
		if len(cleared) == 0 {
			cleared = items
		}
		if len(cleared) > perPlatform {
			cleared = cleared[:perPlatform]
		}
		selected = append(selected, cleared...)
	}

	if len(selected) < limit {
		var remaining []model.Candidate
		for _, platform := range platforms {
			items := byPlatform[platform]
			if len(items) > perPlatform {
				remaining = append(remaining, items[perPlatform:]...)
			}
		}
		sortByEngagement(remaining)
		slots := limit - len(selected)
		if slots > len(remaining) {
			slots = len(remaining)
		}
		selected = append(selected, remaining[:slots]...)
	}

	if len(selected) > limit {
		selected = selected[:limit]
	}
	return selected
}
