package names

import "strings"

// Evidence is what a registry record or an import row tells us about a name.
type Evidence struct {
	Name      string
	Type      string
	FirstName string
	LastName  string
}

// Source names the evidence a Classification was decided on.
type Source string

const (
	SourceTag        Source = "tag"
	SourceFields     Source = "fields"
	SourceShape      Source = "shape"
	SourcePreference Source = "preference"
)

// Classification is a tagged classifier result.
type Classification struct {
	Role   Role
	Source Source
}

// ClassifierOptions configures a Classifier. Nil slices fall back to defaults.
type ClassifierOptions struct {
	OrgKeywords        []string `yaml:"org_keywords"`
	OrgTags            []string `yaml:"org_tags"`
	PersonTags         []string `yaml:"person_tags"`
	PreferOrganization bool     `yaml:"prefer_organization"`
}

// Classifier decides whether evidence denotes an organization or a person.
// The name-shape rule is best effort; callers must tolerate misclassification.
type Classifier struct {
	normalizer  *Normalizer
	orgKeywords map[string]struct{}
	orgTags     map[string]struct{}
	personTags  map[string]struct{}
	preference  Role
}

// NewClassifier builds a Classifier on top of n.
func NewClassifier(n *Normalizer, opts ClassifierOptions) *Classifier {
	if opts.OrgKeywords == nil {
		opts.OrgKeywords = DefaultOrgKeywords
	}
	if opts.OrgTags == nil {
		opts.OrgTags = []string{
			"organization", "organisation", "org", "company", "firm", "fund",
			"family office", "institution", "institutional", "corporate",
			"entity", "foundation", "endowment", "bank", "lp", "gp",
		}
	}
	if opts.PersonTags == nil {
		opts.PersonTags = []string{
			"person", "individual", "contact", "people", "natural person",
			"angel", "hnwi", "individual investor",
		}
	}
	c := &Classifier{
		normalizer:  n,
		orgKeywords: tokenSet(opts.OrgKeywords),
		orgTags:     tokenSet(opts.OrgTags),
		personTags:  tokenSet(opts.PersonTags),
		preference:  Person,
	}
	if opts.PreferOrganization {
		c.preference = Organization
	}
	return c
}

// Classify applies, in order: explicit type tag, separate first/last name
// fields, then the name shape.
func (c *Classifier) Classify(ev Evidence) Classification {
	if tag := Base(ev.Type); tag != "" {
		if _, ok := c.orgTags[tag]; ok {
			return Classification{Role: Organization, Source: SourceTag}
		}
		if _, ok := c.personTags[tag]; ok {
			return Classification{Role: Person, Source: SourceTag}
		}
	}
	if strings.TrimSpace(ev.FirstName) != "" || strings.TrimSpace(ev.LastName) != "" {
		return Classification{Role: Person, Source: SourceFields}
	}
	return c.shape(ev.Name)
}

// ClassifyName classifies a bare name.
func (c *Classifier) ClassifyName(name string) Classification {
	return c.Classify(Evidence{Name: name})
}

func (c *Classifier) shape(name string) Classification {
	if strings.Contains(name, "&") {
		return Classification{Role: Organization, Source: SourceShape}
	}
	tokens := strings.Fields(Base(name))
	if len(tokens) == 0 {
		return Classification{Role: c.preference, Source: SourcePreference}
	}
	if len(tokens) < 2 || len(tokens) > 4 {
		return Classification{Role: Organization, Source: SourceShape}
	}
	for _, t := range tokens {
		if _, ok := c.orgKeywords[t]; ok {
			return Classification{Role: Organization, Source: SourceShape}
		}
	}
	if c.normalizer != nil && (c.normalizer.IsGivenName(tokens[0]) || c.normalizer.IsHonorific(tokens[0])) {
		return Classification{Role: Person, Source: SourceShape}
	}
	return Classification{Role: c.preference, Source: SourcePreference}
}
