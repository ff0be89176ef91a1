package ui

import (
	"sort"
	"strings"
	"unicode"
)

// fuzzyResult is one label that matched the query.
type fuzzyResult struct {
	// Index into the label slice handed to fuzzyFilter.
	Index int

	Score int

	// Matches holds the rune indices of matched characters in the
	// label, for highlighting.
	Matches []int
}

// fuzzyFilter matches labels against the query and returns results
// sorted by score, best first. Ties keep the original label order. An
// empty query returns every label in order.
func fuzzyFilter(query string, labels []string) []fuzzyResult {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		results := make([]fuzzyResult, len(labels))
		for i := range labels {
			results[i] = fuzzyResult{Index: i}
		}
		return results
	}

	queryRunes := []rune(query)
	results := make([]fuzzyResult, 0, len(labels))
	for i, label := range labels {
		score, matches := fuzzyMatch(queryRunes, label)
		if score > 0 {
			results = append(results, fuzzyResult{Index: i, Score: score, Matches: matches})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// fuzzyMatch scores one label against the query runes. Every query
// rune must appear in order in the label; a zero score means no
// match.
func fuzzyMatch(queryRunes []rune, label string) (int, []int) {
	if label == "" || len(queryRunes) == 0 {
		return 0, nil
	}

	originalRunes := []rune(label)
	textRunes := []rune(strings.ToLower(label))

	// Greedy left-to-right subsequence scan.
	matches := make([]int, 0, len(queryRunes))
	queryIdx := 0
	for i := 0; i < len(textRunes) && queryIdx < len(queryRunes); i++ {
		if textRunes[i] == queryRunes[queryIdx] {
			matches = append(matches, i)
			queryIdx++
		}
	}
	if queryIdx != len(queryRunes) {
		return 0, nil
	}

	score := 100

	// Consecutive runs beat scattered matches.
	for i := 1; i < len(matches); i++ {
		if matches[i] == matches[i-1]+1 {
			score += 20
		}
	}

	// Matches on word boundaries rank higher.
	for _, idx := range matches {
		if isWordBoundary(originalRunes, idx) {
			score += 15
		}
	}

	if matches[0] == 0 {
		score += 25
	}

	// Penalize gaps and late starts.
	if len(matches) > 1 {
		totalGap := matches[len(matches)-1] - matches[0] - len(matches) + 1
		if totalGap > 0 {
			score -= totalGap * 2
		}
	}
	if matches[0] > 0 {
		score -= matches[0]
	}

	// Shorter labels are more specific matches.
	if len(textRunes) < 20 {
		score += 20 - len(textRunes)
	}

	// Exact prefix is the strongest signal.
	if len(textRunes) >= len(queryRunes) {
		isPrefix := true
		for i, qr := range queryRunes {
			if textRunes[i] != qr {
				isPrefix = false
				break
			}
		}
		if isPrefix {
			score += 50
		}
	}

	if score < 1 {
		score = 1
	}
	return score, matches
}

// isWordBoundary reports whether the rune at idx starts a word:
// label start, after space or punctuation, or a camelCase hump.
func isWordBoundary(runes []rune, idx int) bool {
	if idx == 0 {
		return true
	}
	if idx >= len(runes) {
		return false
	}
	prev := runes[idx-1]
	curr := runes[idx]
	if unicode.IsSpace(prev) || unicode.IsPunct(prev) {
		return true
	}
	if unicode.IsLower(prev) && unicode.IsUpper(curr) {
		return true
	}
	return false
}
