package query

import "strings"

// ExtractCitations returns the [[citation-id]] tags found in text, in order
// of first appearance with duplicates removed. Ids are restricted to the
// charset used when serializing the context; anything else inside brackets is
// treated as plain text.
func ExtractCitations(text string) []string {
	var out []string
	seen := map[string]bool{}

	for i := 0; i+1 < len(text); i++ {
		if text[i] != '[' || text[i+1] != '[' {
			continue
		}
		end := strings.Index(text[i+2:], "]]")
		if end < 0 {
			break
		}
		id := text[i+2 : i+2+end]
		if validCitationID(id) && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
		i += end + 3
	}
	return out
}

func validCitationID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if !isCitationRune(r) {
			return false
		}
	}
	return true
}

func isCitationRune(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '_' || r == '-'
}
