// Package tokens provides prompt-size estimation for context budgeting.
package tokens

// Estimate estimates the token count for a given text using a Unicode-aware
// heuristic: ASCII characters weigh ~4 per token, everything else (CJK,
// Cyrillic, emoji) is counted conservatively at ~1 character per token.
func Estimate(text string) int {
	weight := 0
	for _, r := range text {
		if r <= 127 {
			weight += 1
		} else {
			weight += 4
		}
	}
	return (weight + 3) / 4
}

// Truncate cuts text so its estimated token count stays at or under limit.
// The cut happens on a rune boundary; a best-effort last resort when
// summarization is not an option.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if Estimate(text) <= limit {
		return text
	}

	weight := 0
	budget := limit * 4
	for i, r := range text {
		if r <= 127 {
			weight += 1
		} else {
			weight += 4
		}
		if weight > budget {
			return text[:i]
		}
	}
	return text
}
