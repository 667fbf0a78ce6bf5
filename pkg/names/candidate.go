package names

import "strings"

// Candidate is one name pulled from an import row, with the role of the
// column it came from.
type Candidate struct {
	Text string
	Role Role
}

// SplitContacts splits a contacts cell on semicolons, bullets, pipes and line
// breaks.
func SplitContacts(cell string) []string {
	fields := strings.FieldsFunc(cell, func(r rune) bool {
		switch r {
		case ';', '•', '·', '|', '\n', '\r':
			return true
		}
		return false
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
