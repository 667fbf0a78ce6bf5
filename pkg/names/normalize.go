// Package names turns free-text organization and person names into
// comparable lookup keys and guesses which of the two a bare name denotes.
package names

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Role is the kind of entity a name denotes.
type Role int

const (
	Organization Role = iota + 1
	Person
)

func (r Role) String() string {
	switch r {
	case Organization:
		return "organization"
	case Person:
		return "person"
	default:
		return "none"
	}
}

// Opposite returns the other role. Associations always cross roles: an
// organization links persons, a person links an organization.
func (r Role) Opposite() Role {
	if r == Organization {
		return Person
	}
	return Organization
}

// Options configures a Normalizer. Nil fields fall back to the defaults; an
// empty non-nil value disables the table.
type Options struct {
	// Nicknames maps a canonical given name to its variants ("matthew" -> "matt").
	Nicknames      map[string][]string `yaml:"nicknames"`
	OrgSuffixes    []string            `yaml:"org_suffixes"`
	Honorifics     []string            `yaml:"honorifics"`
	PersonSuffixes []string            `yaml:"person_suffixes"`
}

// Normalizer produces NormalizedKeys. It is immutable after construction and
// safe for concurrent use.
type Normalizer struct {
	orgSuffixes    map[string]struct{}
	honorifics     map[string]struct{}
	personSuffixes map[string]struct{}
	// groups holds nickname groups, canonical first; groupsOf indexes every
	// member of every group.
	groups   [][]string
	groupsOf map[string][]int
}

// NewNormalizer builds a Normalizer from opts.
func NewNormalizer(opts Options) *Normalizer {
	defaults := DefaultOptions()
	if opts.Nicknames == nil {
		opts.Nicknames = defaults.Nicknames
	}
	if opts.OrgSuffixes == nil {
		opts.OrgSuffixes = defaults.OrgSuffixes
	}
	if opts.Honorifics == nil {
		opts.Honorifics = defaults.Honorifics
	}
	if opts.PersonSuffixes == nil {
		opts.PersonSuffixes = defaults.PersonSuffixes
	}

	n := &Normalizer{
		orgSuffixes:    tokenSet(opts.OrgSuffixes),
		honorifics:     tokenSet(opts.Honorifics),
		personSuffixes: tokenSet(opts.PersonSuffixes),
		groupsOf:       make(map[string][]int),
	}

	canonicals := make([]string, 0, len(opts.Nicknames))
	for c := range opts.Nicknames {
		canonicals = append(canonicals, c)
	}
	sort.Strings(canonicals)
	for _, c := range canonicals {
		canonical := Base(c)
		if canonical == "" || strings.Contains(canonical, " ") {
			continue
		}
		group := []string{canonical}
		for _, v := range opts.Nicknames[c] {
			v = Base(v)
			if v == "" || strings.Contains(v, " ") || containsString(group, v) {
				continue
			}
			group = append(group, v)
		}
		idx := len(n.groups)
		n.groups = append(n.groups, group)
		for _, member := range group {
			n.groupsOf[member] = append(n.groupsOf[member], idx)
		}
	}
	return n
}

// Base strips diacritics, lowercases and collapses every run of
// non-alphanumeric characters into a single space. Dots and apostrophes are
// dropped rather than spaced so "L.L.C." and "O'Brien" stay single tokens.
func Base(s string) string {
	// Transformers carry state; build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		folded = strings.ToLower(s)
	}

	var b strings.Builder
	b.Grow(len(folded))
	gap := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if gap && b.Len() > 0 {
				b.WriteByte(' ')
			}
			gap = false
			b.WriteRune(r)
		case r == '.' || r == '\'' || r == '’':
		default:
			gap = true
		}
	}
	return b.String()
}

// OrgKey returns the organization key of text: Base with leading "the"s and
// trailing legal suffixes removed. The last remaining token is never removed,
// which keeps OrgKey a fixed point of itself.
func (n *Normalizer) OrgKey(text string) string {
	tokens := strings.Fields(Base(text))
	for len(tokens) > 1 && tokens[0] == "the" {
		tokens = tokens[1:]
	}
	for len(tokens) > 1 {
		if _, ok := n.orgSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// PersonKeys returns every person key of text, one per nickname variant of the
// first name, the as-written form first. Empty input yields nil.
func (n *Normalizer) PersonKeys(text string) []string {
	tokens := n.personTokens(text)
	if len(tokens) == 0 {
		return nil
	}
	first, last := tokens[0], ""
	if len(tokens) > 1 {
		last = tokens[len(tokens)-1]
	}

	variants := n.Variants(first)
	keys := make([]string, 0, len(variants))
	for _, v := range variants {
		if last == "" {
			keys = append(keys, v)
			continue
		}
		keys = append(keys, v+" "+last)
	}
	return keys
}

// PersonKey returns the as-written person key of text.
func (n *Normalizer) PersonKey(text string) string {
	keys := n.PersonKeys(text)
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// Keys returns the keys of text for role: a single OrgKey or all PersonKeys.
func (n *Normalizer) Keys(text string, role Role) []string {
	if role == Person {
		return n.PersonKeys(text)
	}
	if k := n.OrgKey(text); k != "" {
		return []string{k}
	}
	return nil
}

// Variants returns the given name followed by every name sharing a nickname
// group with it.
func (n *Normalizer) Variants(given string) []string {
	out := []string{given}
	for _, idx := range n.groupsOf[given] {
		for _, member := range n.groups[idx] {
			if !containsString(out, member) {
				out = append(out, member)
			}
		}
	}
	return out
}

// IsGivenName reports whether token appears in the nickname table.
func (n *Normalizer) IsGivenName(token string) bool {
	_, ok := n.groupsOf[token]
	return ok
}

// IsHonorific reports whether token is a configured honorific.
func (n *Normalizer) IsHonorific(token string) bool {
	_, ok := n.honorifics[token]
	return ok
}

func (n *Normalizer) personTokens(text string) []string {
	tokens := strings.Fields(Base(n.uncomma(text)))
	for len(tokens) > 1 {
		if _, ok := n.honorifics[tokens[0]]; !ok {
			break
		}
		tokens = tokens[1:]
	}
	for len(tokens) > 1 {
		if _, ok := n.personSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// uncomma rewrites "Lee, Matt" to "Matt Lee". Comma parts made only of
// generational suffixes or credentials ("Matt Lee, Jr.") are dropped first.
func (n *Normalizer) uncomma(text string) string {
	if !strings.Contains(text, ",") {
		return text
	}
	var parts []string
	for _, p := range strings.Split(text, ",") {
		p = strings.TrimSpace(p)
		if p == "" || n.onlySuffixes(p) {
			continue
		}
		parts = append(parts, p)
	}
	if len(parts) == 2 {
		return parts[1] + " " + parts[0]
	}
	return strings.Join(parts, " ")
}

func (n *Normalizer) onlySuffixes(part string) bool {
	tokens := strings.Fields(Base(part))
	if len(tokens) == 0 {
		return false
	}
	for _, t := range tokens {
		if _, ok := n.personSuffixes[t]; !ok {
			return false
		}
	}
	return true
}

func tokenSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v = Base(v); v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func containsString(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
