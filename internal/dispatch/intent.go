package dispatch

import (
	"regexp"
	"strings"
)

var (
	newCasePhrases = []string{"new case", "new analysis", "start over", "another insect", "another one"}
	analyseWords   = []string{"analy", "identify", "investigate", "insect", "bug", "pest", "what is this", "check this"}

	// "location: Hawke's Bay", "location = -36.8, 174.7"
	labelledLocation = regexp.MustCompile(`(?i)\blocation\s*[:=]\s*(.+)$`)
	// "found it near Pukekohe", "in 12 Queen Street": the place must start with
	// an upper-case letter or a digit so "interested in analysing" is ignored.
	prepLocation = regexp.MustCompile(`\b(?:[Ii]n|[Aa]t|[Nn]ear|[Aa]round)\s+([\p{Lu}0-9][^.?!;]*)`)
)

func containsAny(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func wantsNewCase(msg string) bool { return containsAny(msg, newCasePhrases) }

func wantsAnalysis(msg string) bool {
	return wantsNewCase(msg) || containsAny(msg, analyseWords)
}

// locationPhrase pulls a place description out of a chat message. It returns
// "" when the message names no place.
func locationPhrase(msg string) string {
	if m := labelledLocation.FindStringSubmatch(msg); m != nil {
		return cleanPlace(m[1])
	}
	if m := prepLocation.FindStringSubmatch(msg); m != nil {
		return cleanPlace(m[1])
	}
	return ""
}

func cleanPlace(s string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), ".?!;,"))
}
