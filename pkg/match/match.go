// CLAUDE:SUMMARY Matcher strategies (org-anchored pair, person-anchored pair, association-only, type-only) with per-strategy score thresholds.
package match

import "github.com/hazyhaar/rostersync/pkg/names"

// Type tells whether an entity was identified through its organization or
// its person identity.
type Type string

const (
	TypeNone         Type = "none"
	TypeOrganization Type = "organization"
	TypePerson       Type = "person"
)

// Strategy names the rule that produced a Result.
type Strategy string

const (
	StrategyPairOrg     Strategy = "pair_org"
	StrategyPairPerson  Strategy = "pair_person"
	StrategyAssociation Strategy = "association"
	StrategyDirect      Strategy = "direct"
	StrategyFuzzy       Strategy = "fuzzy"
)

// Thresholds are the similarity floors and fixed scores of the matcher.
type Thresholds struct {
	OrgFuzzy          float64 `yaml:"org_fuzzy"`
	OrgFuzzyPaired    float64 `yaml:"org_fuzzy_paired"`
	PersonFuzzy       float64 `yaml:"person_fuzzy"`
	PersonFuzzyPaired float64 `yaml:"person_fuzzy_paired"`
	// PairValidation is the floor for fuzzy association checks.
	PairValidation float64 `yaml:"pair_validation"`

	PersonAssocUnique        float64 `yaml:"person_assoc_unique"`
	PersonAssocDisambiguated float64 `yaml:"person_assoc_disambiguated"`
	OrgAssocUnique           float64 `yaml:"org_assoc_unique"`
}

// DefaultThresholds returns the tiered thresholds the matcher is tuned for.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OrgFuzzy:                 0.88,
		OrgFuzzyPaired:           0.90,
		PersonFuzzy:              0.85,
		PersonFuzzyPaired:        0.90,
		PairValidation:           0.90,
		PersonAssocUnique:        0.95,
		PersonAssocDisambiguated: 0.93,
		OrgAssocUnique:           0.92,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	pick := func(v, def float64) float64 {
		if v <= 0 {
			return def
		}
		return v
	}
	return Thresholds{
		OrgFuzzy:                 pick(t.OrgFuzzy, d.OrgFuzzy),
		OrgFuzzyPaired:           pick(t.OrgFuzzyPaired, d.OrgFuzzyPaired),
		PersonFuzzy:              pick(t.PersonFuzzy, d.PersonFuzzy),
		PersonFuzzyPaired:        pick(t.PersonFuzzyPaired, d.PersonFuzzyPaired),
		PairValidation:           pick(t.PairValidation, d.PairValidation),
		PersonAssocUnique:        pick(t.PersonAssocUnique, d.PersonAssocUnique),
		PersonAssocDisambiguated: pick(t.PersonAssocDisambiguated, d.PersonAssocDisambiguated),
		OrgAssocUnique:           pick(t.OrgAssocUnique, d.OrgAssocUnique),
	}
}

// Result is the single best match of a row. Entity is nil when nothing matched.
type Result struct {
	Entity   *Entity
	Type     Type
	Score    float64
	Strategy Strategy
}

// Matched reports whether r resolved an entity.
func (r Result) Matched() bool { return r.Entity != nil }

func (r *Result) consider(e *Entity, t Type, score float64, s Strategy) {
	if e == nil || score <= r.Score {
		return
	}
	*r = Result{Entity: e, Type: t, Score: score, Strategy: s}
}

// Match returns the best entity for a row's organization and person
// candidates. Strategies run in order and can only raise the best score:
// org-anchored pair validation, person-anchored pair validation, association
// fallback (only while nothing matched), then direct/fuzzy type-only lookup.
func (idx *Index) Match(orgs, persons []string) Result {
	orgKeys := make([]string, 0, len(orgs))
	for _, o := range orgs {
		if k := idx.normalizer.OrgKey(o); k != "" {
			orgKeys = append(orgKeys, k)
		}
	}
	personKeys := make([][]string, 0, len(persons))
	for _, p := range persons {
		if ks := idx.normalizer.PersonKeys(p); len(ks) > 0 {
			personKeys = append(personKeys, ks)
		}
	}

	best := Result{Type: TypeNone}
	idx.pairOrg(orgKeys, personKeys, &best)
	idx.pairPerson(orgKeys, personKeys, &best)
	if !best.Matched() {
		idx.associationOnly(orgKeys, personKeys, &best)
	}
	idx.typeOnly(orgKeys, personKeys, &best)
	return best
}

// MatchCandidates splits candidates by role and calls Match.
func (idx *Index) MatchCandidates(cands []names.Candidate) Result {
	var orgs, persons []string
	for _, c := range cands {
		if c.Role == names.Person {
			persons = append(persons, c.Text)
		} else {
			orgs = append(orgs, c.Text)
		}
	}
	return idx.Match(orgs, persons)
}

func (idx *Index) pairOrg(orgKeys []string, personKeys [][]string, best *Result) {
	if len(personKeys) == 0 {
		return
	}
	threshold := idx.orgThreshold(len(personKeys) > 0)
	for _, ok := range orgKeys {
		e := idx.resolveOrg(ok, threshold)
		if e == nil {
			continue
		}
		en := idx.entries[e]
		var score float64
		for _, variants := range personKeys {
			if s := idx.validate(variants, en.personSet, en.personKeys); s > score {
				score = s
			}
		}
		best.consider(e, TypeOrganization, score, StrategyPairOrg)
	}
}

func (idx *Index) pairPerson(orgKeys []string, personKeys [][]string, best *Result) {
	if len(orgKeys) == 0 {
		return
	}
	threshold := idx.personThreshold(len(orgKeys) > 0)
	for _, variants := range personKeys {
		e := idx.resolvePerson(variants, threshold)
		if e == nil {
			continue
		}
		en := idx.entries[e]
		var score float64
		for _, ok := range orgKeys {
			if s := idx.validate([]string{ok}, en.orgSet, en.orgKeys); s > score {
				score = s
			}
		}
		best.consider(e, TypePerson, score, StrategyPairPerson)
	}
}

// validate scores candidate keys against an entity's association keys: 1.0 on
// an exact hit, else the best similarity reaching the pair floor.
func (idx *Index) validate(candidate []string, set map[string]struct{}, keys []string) float64 {
	for _, k := range candidate {
		if _, ok := set[k]; ok {
			return 1
		}
	}
	var score float64
	for _, k := range candidate {
		if _, s := names.BestMatch(k, keys, idx.thresholds.PairValidation); s > score {
			score = s
		}
	}
	return score
}

// associationOnly accepts a unique association hit, or the first of several
// hits whose organization associations contain one of the row's org names.
// The first acceptable entity wins even if a later one would score higher.
func (idx *Index) associationOnly(orgKeys []string, personKeys [][]string, best *Result) {
	t := idx.thresholds
	for _, variants := range personKeys {
		var hits []*Entity
		for _, v := range variants {
			for _, e := range idx.personAssoc[v] {
				if !containsEntity(hits, e) {
					hits = append(hits, e)
				}
			}
		}
		switch {
		case len(hits) == 1:
			best.consider(hits[0], TypePerson, t.PersonAssocUnique, StrategyAssociation)
		case len(hits) > 1 && len(orgKeys) > 0:
			for _, e := range hits {
				en := idx.entries[e]
				if idx.validate(orgKeys, en.orgSet, en.orgKeys) > 0 {
					best.consider(e, TypePerson, t.PersonAssocDisambiguated, StrategyAssociation)
					break
				}
			}
		}
	}
	if best.Matched() {
		return
	}
	for _, ok := range orgKeys {
		if hits := idx.orgAssoc[ok]; len(hits) == 1 {
			best.consider(hits[0], TypeOrganization, t.OrgAssocUnique, StrategyAssociation)
		}
	}
}

func (idx *Index) typeOnly(orgKeys []string, personKeys [][]string, best *Result) {
	t := idx.thresholds
	for _, ok := range orgKeys {
		if e, found := idx.orgs[ok]; found {
			best.consider(e, TypeOrganization, 1, StrategyDirect)
			continue
		}
		if k, s := names.BestMatch(ok, idx.orgKeys, t.OrgFuzzy); k != "" {
			best.consider(idx.orgs[k], TypeOrganization, s, StrategyFuzzy)
		}
	}
	for _, variants := range personKeys {
		if e := idx.exactPerson(variants); e != nil {
			best.consider(e, TypePerson, 1, StrategyDirect)
			continue
		}
		if k, s := idx.fuzzyPerson(variants, t.PersonFuzzy); k != "" {
			best.consider(idx.persons[k], TypePerson, s, StrategyFuzzy)
		}
	}
}

func (idx *Index) resolveOrg(key string, threshold float64) *Entity {
	if e, ok := idx.orgs[key]; ok {
		return e
	}
	if k, _ := names.BestMatch(key, idx.orgKeys, threshold); k != "" {
		return idx.orgs[k]
	}
	return nil
}

func (idx *Index) resolvePerson(variants []string, threshold float64) *Entity {
	if e := idx.exactPerson(variants); e != nil {
		return e
	}
	if k, _ := idx.fuzzyPerson(variants, threshold); k != "" {
		return idx.persons[k]
	}
	return nil
}

func (idx *Index) exactPerson(variants []string) *Entity {
	for _, v := range variants {
		if e, ok := idx.persons[v]; ok {
			return e
		}
	}
	return nil
}

func (idx *Index) fuzzyPerson(variants []string, threshold float64) (string, float64) {
	var best string
	var score float64
	for _, v := range variants {
		if k, s := names.BestMatch(v, idx.personKeys, threshold); s > score {
			best, score = k, s
		}
	}
	return best, score
}

func (idx *Index) orgThreshold(paired bool) float64 {
	if paired {
		return idx.thresholds.OrgFuzzyPaired
	}
	return idx.thresholds.OrgFuzzy
}

func (idx *Index) personThreshold(paired bool) float64 {
	if paired {
		return idx.thresholds.PersonFuzzyPaired
	}
	return idx.thresholds.PersonFuzzy
}
