// Package stage derives a pipeline stage from an import row and decides
// whether that stage may be written back to the registry.
package stage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DefaultLabels is the built-in ordered pipeline, earliest first.
var DefaultLabels = []string{
	"Target Identified",
	"Early Dialogue",
	"First Meeting",
	"Deck Sent",
	"Invited to Data Room",
	"Accessed Data Room",
	"Sub Docs Sent",
	"Sub Docs Pending Review",
	"Sub Docs Signed",
}

// DefaultAliases maps phrases seen in exports and registries onto vocabulary
// labels.
var DefaultAliases = map[string]string{
	"Identified":                "Target Identified",
	"In Dialogue":               "Early Dialogue",
	"Intro Call":                "First Meeting",
	"Meeting Held":              "First Meeting",
	"Teaser Sent":               "Deck Sent",
	"Data Room Invited":         "Invited to Data Room",
	"Data Room Accessed":        "Accessed Data Room",
	"Subscription Docs Sent":    "Sub Docs Sent",
	"Subscription Under Review": "Sub Docs Pending Review",
	"Subscription Docs Signed":  "Sub Docs Signed",
}

var (
	ErrEmptyVocabulary = errors.New("stage: empty vocabulary")
	ErrDuplicateLabel  = errors.New("stage: duplicate label")
)

// Vocabulary is the ordered list of stage labels; a label's rank is its index.
// Lookups fold case and whitespace and go through the alias table. It is
// immutable after construction.
type Vocabulary struct {
	labels  []string
	rank    map[string]int
	aliases map[string]string
	dropped []string
}

// NewVocabulary builds a Vocabulary. Aliases whose target is not a label are
// dropped and reported by Dropped; an alias never shadows a real label.
func NewVocabulary(labels []string, aliases map[string]string) (*Vocabulary, error) {
	if len(labels) == 0 {
		return nil, ErrEmptyVocabulary
	}
	v := &Vocabulary{
		labels:  make([]string, 0, len(labels)),
		rank:    make(map[string]int, len(labels)),
		aliases: make(map[string]string, len(aliases)),
	}
	for _, l := range labels {
		l = strings.TrimSpace(l)
		k := fold(l)
		if k == "" {
			return nil, fmt.Errorf("%w: blank label at position %d", ErrEmptyVocabulary, len(v.labels))
		}
		if _, dup := v.rank[k]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLabel, l)
		}
		v.rank[k] = len(v.labels)
		v.labels = append(v.labels, l)
	}

	phrases := make([]string, 0, len(aliases))
	for p := range aliases {
		phrases = append(phrases, p)
	}
	sort.Strings(phrases)
	for _, p := range phrases {
		k := fold(p)
		if k == "" {
			continue
		}
		if _, isLabel := v.rank[k]; isLabel {
			continue
		}
		r, ok := v.rank[fold(aliases[p])]
		if !ok {
			v.dropped = append(v.dropped, p)
			continue
		}
		v.aliases[k] = v.labels[r]
	}
	return v, nil
}

// Labels returns a copy of the ordered labels.
func (v *Vocabulary) Labels() []string {
	return append([]string(nil), v.labels...)
}

// Len returns the number of ranked labels.
func (v *Vocabulary) Len() int { return len(v.labels) }

// Label returns the label at rank r, or "" when r is out of range.
func (v *Vocabulary) Label(r int) string {
	if r < 0 || r >= len(v.labels) {
		return ""
	}
	return v.labels[r]
}

// Canonical returns the vocabulary label text denotes, directly or through an
// alias.
func (v *Vocabulary) Canonical(text string) (string, bool) {
	k := fold(text)
	if r, ok := v.rank[k]; ok {
		return v.labels[r], true
	}
	if l, ok := v.aliases[k]; ok {
		return l, true
	}
	return "", false
}

// Rank returns the rank of text, directly or through an alias.
func (v *Vocabulary) Rank(text string) (int, bool) {
	l, ok := v.Canonical(text)
	if !ok {
		return 0, false
	}
	return v.rank[fold(l)], true
}

// Equal reports whether a and b name the same stage. Labels outside the
// vocabulary compare by folded text.
func (v *Vocabulary) Equal(a, b string) bool {
	ca, okA := v.Canonical(a)
	cb, okB := v.Canonical(b)
	if okA && okB {
		return ca == cb
	}
	return fold(a) != "" && fold(a) == fold(b)
}

// Dropped returns the alias phrases discarded because their target was not a
// label.
func (v *Vocabulary) Dropped() []string {
	return append([]string(nil), v.dropped...)
}

// fold lowercases s and collapses whitespace runs.
func fold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
