package channels

import (
	"regexp"
	"strings"
)

var (
	disallowedChars = regexp.MustCompile(`[^a-z0-9_.\-]+`)
	separatorRuns   = regexp.MustCompile(`[._-]+`)
	trimSeparators  = regexp.MustCompile(`^[._-]+|[._-]+$`)
	mentionPattern  = regexp.MustCompile(`(?i)(?:^|[^A-Za-z0-9_-])@([A-Za-z0-9_-]+)`)
)

// NormalizeUsername lowercases, strips everything outside
// [a-z0-9_.-], collapses runs of "._-", trims leading/trailing "._-", and
// replaces an empty result with "unknown" (§4.4). It is idempotent
// (testable property 7).
func NormalizeUsername(raw string) string {
	s := strings.ToLower(raw)
	s = disallowedChars.ReplaceAllString(s, "")
	s = separatorRuns.ReplaceAllString(s, "_")
	s = trimSeparators.ReplaceAllString(s, "")
	if s == "" {
		return "unknown"
	}
	return s
}

// ExtractMentions returns the set of @agentID mentions in text that match a
// non-"human:"-prefixed member of members (§4.4, testable property 8).
// Matching is case-insensitive and word-boundary delimited.
func ExtractMentions(text string, members []string) []string {
	candidateSet := map[string]string{} // lowercase -> canonical member ID
	for _, m := range members {
		if strings.HasPrefix(m, "human:") {
			continue
		}
		candidateSet[strings.ToLower(m)] = m
	}

	seen := map[string]bool{}
	var out []string
	for _, match := range mentionPattern.FindAllStringSubmatch(text, -1) {
		candidate := strings.ToLower(match[1])
		if canonical, ok := candidateSet[candidate]; ok && !seen[canonical] {
			seen[canonical] = true
			out = append(out, canonical)
		}
	}
	return out
}
