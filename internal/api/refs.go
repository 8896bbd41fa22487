package api

import (
	"strings"
	"unicode"
)

// ParseContextRefs extracts @name references from text. A reference is
// either @"quoted name" or @token up to the next whitespace, with trailing
// punctuation ignored. Only names for which exists reports true are kept,
// deduplicated, in order of first mention.
func ParseContextRefs(text string, exists func(name string) bool) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(name string) bool {
		if name == "" || !exists(name) {
			return false
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			out = append(out, name)
		}
		return true
	}

	for i := 0; i < len(text); i++ {
		if text[i] != '@' {
			continue
		}
		rest := text[i+1:]

		if strings.HasPrefix(rest, `"`) {
			if end := strings.IndexByte(rest[1:], '"'); end >= 0 {
				add(rest[1 : end+1])
				i += end + 2
			}
			continue
		}

		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			end = len(rest)
		}
		token := rest[:end]
		if !add(token) {
			add(strings.TrimRightFunc(token, unicode.IsPunct))
		}
		i += end
	}
	return out
}
