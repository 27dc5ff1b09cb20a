package mention

import "regexp"

var tokenPattern = regexp.MustCompile(`@(\w+)`)

// Parse extracts mention tokens ("@" followed by word characters) from
// message text. Tokens are returned without the "@", de-duplicated
// case-sensitively, in first-occurrence order. No resolution happens
// here.
func Parse(text string) []string {
	matches := tokenPattern.FindAllStringSubmatch(text, -1)

	seen := make(map[string]struct{}, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		token := m[1]
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens
}
