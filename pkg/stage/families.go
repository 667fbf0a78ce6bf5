// CLAUDE:SUMMARY Regex pattern families with negation vetoes for subscription states and free-text stage hints.
package stage

import (
	"fmt"
	"regexp"
)

// family is a named set of patterns that point at one stage role. A veto
// match anywhere in the text disables the family, so "not yet signed" never
// counts as signed.
type family struct {
	name    string
	role    string
	matches []*regexp.Regexp
	vetoes  []*regexp.Regexp
}

// familySpec is the uncompiled form of a family.
type familySpec struct {
	Name    string
	Role    string
	Matches []string
	Vetoes  []string
}

// subscriptionFamilies are evaluated in order: signed, awaiting, started.
var subscriptionFamilies = []familySpec{
	{
		Name: "signed",
		Role: RoleSigned,
		Matches: []string{
			`\b(counter[\s-]?signed|fully\s+executed|executed|signed)\b`,
		},
		Vetoes: []string{
			`\b(not|never)\s+(yet\s+)?(been\s+)?(fully\s+)?(counter[\s-]?signed|executed|signed)\b`,
			`\bunsigned\b`,
			`\b(to\s+be|needs?\s+to\s+be|awaiting|pending)\s+(counter[\s-]?signed|executed|signed)\b`,
		},
	},
	{
		Name: "awaiting",
		Role: RoleAwaiting,
		Matches: []string{
			`\b(awaiting|pending)\s+(counter[\s-]?)?signature`,
			`\b(awaiting|pending)\s+(staff\s+|legal\s+|gp\s+|admin\s+)?review\b`,
			`\b(staff|legal|gp|admin)\s+review\s+(pending|in\s+progress)\b`,
			`\bunder\s+review\b`,
			`\bsubmitted\b`,
		},
	},
	{
		Name: "started",
		Role: RoleStarted,
		Matches: []string{
			`\b(started|in\s+progress|drafts?|drafted|invited|sent|opened)\b`,
		},
		Vetoes: []string{
			`\bnot\s+(yet\s+)?(been\s+)?(started|sent|opened|invited)\b`,
		},
	},
}

// hintFamilies map free-text status and notes onto the earliest stages.
var hintFamilies = []familySpec{
	{
		Name: "deck_sent",
		Role: RoleDeckSent,
		Matches: []string{
			`\b(deck|teaser|pitch\s*book|presentation|materials?|ppm)\s+(sent|shared|delivered|circulated)\b`,
			`\b(sent|shared)\s+(the\s+)?(deck|teaser|pitch\s*book|ppm)\b`,
		},
		Vetoes: []string{
			`\b(no|not|never)\s+(yet\s+)?(\w+\s+)?(sent|shared|delivered)\b`,
		},
	},
	{
		Name: "first_meeting",
		Role: RoleFirstMeeting,
		Matches: []string{
			`\b(first|intro|introductory|initial)\s+(meeting|call|zoom)\b`,
			`\bmeeting\s+(held|scheduled|booked|set)\b`,
			`\bmet\s+(with|on|at)\b`,
		},
		Vetoes: []string{
			`\b(no|not|never)\s+(yet\s+)?(met|meeting|call)\b`,
		},
	},
	{
		Name: "early_dialogue",
		Role: RoleEarlyDialogue,
		Matches: []string{
			`\b(early|initial|ongoing)\s+(dialogue|dialog|conversations?|discussions?)\b`,
			`\bin\s+(dialogue|dialog|discussions?|contact)\b`,
			`\b(reached\s+out|responded|replied|follow(ed)?[\s-]?up)\b`,
		},
	},
	{
		Name: "target_identified",
		Role: RoleTargetIdentified,
		Matches: []string{
			`\b(target(ed)?|identified|prospect|to\s+contact|cold)\b`,
		},
	},
}

func compileFamilies(specs []familySpec) ([]family, error) {
	out := make([]family, 0, len(specs))
	for _, spec := range specs {
		f := family{name: spec.Name, role: spec.Role}
		for _, expr := range spec.Matches {
			re, err := regexp.Compile(`(?i)` + expr)
			if err != nil {
				return nil, fmt.Errorf("family %q: %w", spec.Name, err)
			}
			f.matches = append(f.matches, re)
		}
		for _, expr := range spec.Vetoes {
			re, err := regexp.Compile(`(?i)` + expr)
			if err != nil {
				return nil, fmt.Errorf("family %q veto: %w", spec.Name, err)
			}
			f.vetoes = append(f.vetoes, re)
		}
		out = append(out, f)
	}
	return out, nil
}

// match returns the matched fragment when the family fires on text.
func (f family) match(text string) (string, bool) {
	for _, re := range f.vetoes {
		if re.MatchString(text) {
			return "", false
		}
	}
	for _, re := range f.matches {
		if m := re.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}

// firstMatch returns the first family in order that fires on text.
func firstMatch(families []family, text string) (family, string, bool) {
	for _, f := range families {
		if frag, ok := f.match(text); ok {
			return f, frag, true
		}
	}
	return family{}, "", false
}

// softCircled is an indication of interest, not a stage; hint text has it
// removed before matching.
var softCircled = regexp.MustCompile(`(?i)\bsoft[\s-]?circl(e|ed|es|ing)\b`)
