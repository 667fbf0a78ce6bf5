// CLAUDE:SUMMARY Resolution of stage labels onto registry status options (alias, direct, keyword, fuzzy) and ranking of written option labels.
package stage

import (
	"strings"
	"sync"

	"github.com/hazyhaar/rostersync/pkg/names"
)

// Option is one selectable value of the registry status field.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// OptionMethod names how a label was resolved to an option.
type OptionMethod string

const (
	MethodAlias   OptionMethod = "alias"
	MethodDirect  OptionMethod = "direct"
	MethodKeyword OptionMethod = "keyword"
	MethodFuzzy   OptionMethod = "fuzzy"
)

// fuzzyOptionThreshold is the similarity floor for the last resolution step.
const fuzzyOptionThreshold = 0.80

// OptionResolver maps stage labels onto registry option identifiers.
type OptionResolver struct {
	options []Option
	byLabel map[string]Option
	// aliases maps a folded stage label to a folded option label.
	aliases map[string]string
	// keys holds the Base form of each option label, parallel to options.
	keys   []string
	tokens [][]string

	mu sync.Mutex
	// ranked caches rankedOptions per vocabulary.
	ranked map[*Vocabulary]map[string]int
}

// NewOptionResolver indexes options. Aliases map a stage label to the option
// label the registry uses for it. Options with an empty id or label are
// ignored; on duplicate labels the first option wins.
func NewOptionResolver(options []Option, aliases map[string]string) *OptionResolver {
	r := &OptionResolver{
		byLabel: make(map[string]Option, len(options)),
		aliases: make(map[string]string, len(aliases)),
	}
	for _, o := range options {
		k := fold(o.Label)
		if o.ID == "" || k == "" {
			continue
		}
		if _, dup := r.byLabel[k]; dup {
			continue
		}
		r.byLabel[k] = o
		r.options = append(r.options, o)
		base := names.Base(o.Label)
		r.keys = append(r.keys, base)
		r.tokens = append(r.tokens, strings.Fields(base))
	}
	for from, to := range aliases {
		if f, t := fold(from), fold(to); f != "" && t != "" {
			r.aliases[f] = t
		}
	}
	return r
}

// Labels returns the option labels in registry order.
func (r *OptionResolver) Labels() []string {
	out := make([]string, len(r.options))
	for i, o := range r.options {
		out[i] = o.Label
	}
	return out
}

// Resolve maps label to an option: alias table, direct label, keyword family
// (every label token prefixes a token of exactly one option), then fuzzy
// similarity.
func (r *OptionResolver) Resolve(label string) (Option, OptionMethod, bool) {
	k := fold(label)
	if k == "" {
		return Option{}, "", false
	}
	if target, ok := r.aliases[k]; ok {
		if o, ok := r.byLabel[target]; ok {
			return o, MethodAlias, true
		}
	}
	if o, ok := r.byLabel[k]; ok {
		return o, MethodDirect, true
	}
	if o, ok := r.keyword(label); ok {
		return o, MethodKeyword, true
	}
	if key, _ := names.BestMatch(names.Base(label), r.keys, fuzzyOptionThreshold); key != "" {
		for i, candidate := range r.keys {
			if candidate == key {
				return r.options[i], MethodFuzzy, true
			}
		}
	}
	return Option{}, "", false
}

// rankedOptions maps each folded option label outside v to the rank of the
// stages that resolve to it, so a label written on an earlier run ranks again
// when it comes back as the current stage. When several stages resolve to one
// option the highest rank wins.
func (r *OptionResolver) rankedOptions(v *Vocabulary) map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.ranked[v]; ok {
		return m
	}
	m := make(map[string]int)
	for rank := 0; rank < v.Len(); rank++ {
		o, _, ok := r.Resolve(v.Label(rank))
		if !ok {
			continue
		}
		if _, known := v.Rank(o.Label); known {
			continue
		}
		k := fold(o.Label)
		if prev, seen := m[k]; !seen || rank > prev {
			m[k] = rank
		}
	}
	if r.ranked == nil {
		r.ranked = make(map[*Vocabulary]map[string]int)
	}
	r.ranked[v] = m
	return m
}

func (r *OptionResolver) keyword(label string) (Option, bool) {
	want := significant(strings.Fields(names.Base(label)))
	if len(want) == 0 {
		return Option{}, false
	}
	found := -1
	for i, have := range r.tokens {
		if !coversAll(have, want) {
			continue
		}
		if found >= 0 {
			return Option{}, false
		}
		found = i
	}
	if found < 0 {
		return Option{}, false
	}
	return r.options[found], true
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "to": {}, "of": {}, "and": {}, "in": {}, "for": {},
}

func significant(tokens []string) []string {
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, stop := stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

// coversAll reports whether every wanted token prefixes some token in have.
func coversAll(have, want []string) bool {
	for _, w := range want {
		hit := false
		for _, h := range have {
			if strings.HasPrefix(h, w) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}
