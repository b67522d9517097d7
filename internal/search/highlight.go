package search

import "strings"

// snippetRadius is the number of bytes kept on each side of a match.
const snippetRadius = 50

// Highlights builds display snippets for a hit: the title when it contains
// the query, and a window of the description around its first match.
// Matching is case-insensitive.
func Highlights(query, title, description string) []string {
	out := []string{}
	q := strings.ToLower(query)
	if q == "" {
		return out
	}
	if strings.Contains(strings.ToLower(title), q) {
		out = append(out, "Title: "+title)
	}
	lower := strings.ToLower(description)
	if pos := strings.Index(lower, q); pos >= 0 {
		// offsets index the lowered text when lowering changed its length
		src := description
		if len(lower) != len(description) {
			src = lower
		}
		start := max(pos-snippetRadius, 0)
		end := min(pos+len(q)+snippetRadius, len(src))
		out = append(out, "..."+validUTF8(src[start:end])+"...")
	}
	return out
}

// validUTF8 drops partial runes left at the edges of a byte window.
func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
