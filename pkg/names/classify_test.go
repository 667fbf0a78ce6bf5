package names

import "testing"

func TestClassify(t *testing.T) {
	c := NewClassifier(NewNormalizer(Options{}), ClassifierOptions{})

	tests := []struct {
		name   string
		ev     Evidence
		role   Role
		source Source
	}{
		{"tag org", Evidence{Name: "Matt Lee", Type: "Family Office"}, Organization, SourceTag},
		{"tag person", Evidence{Name: "Blackstone", Type: "Individual"}, Person, SourceTag},
		{"unknown tag falls through", Evidence{Name: "Acme", Type: "Whatever"}, Organization, SourceShape},
		{"first/last fields", Evidence{Name: "Bental Group", FirstName: "Matt"}, Person, SourceFields},
		{"single token", Evidence{Name: "Acme"}, Organization, SourceShape},
		{"too many tokens", Evidence{Name: "North Shore Teachers Retirement System"}, Organization, SourceShape},
		{"org keyword", Evidence{Name: "Bental Group"}, Organization, SourceShape},
		{"ampersand", Evidence{Name: "Smith & Wesson"}, Organization, SourceShape},
		{"known given name", Evidence{Name: "Matt Lee"}, Person, SourceShape},
		{"honorific", Evidence{Name: "Dr Xi Ying"}, Person, SourceShape},
		{"unknown shape", Evidence{Name: "Zorblat Quux"}, Person, SourcePreference},
		{"empty", Evidence{}, Person, SourcePreference},
	}
	for _, tt := range tests {
		got := c.Classify(tt.ev)
		if got.Role != tt.role || got.Source != tt.source {
			t.Errorf("%s: Classify(%+v) = %v/%s, want %v/%s", tt.name, tt.ev, got.Role, got.Source, tt.role, tt.source)
		}
	}
}

func TestClassifyPreferOrganization(t *testing.T) {
	c := NewClassifier(NewNormalizer(Options{}), ClassifierOptions{PreferOrganization: true})

	if got := c.ClassifyName("Zorblat Quux"); got.Role != Organization || got.Source != SourcePreference {
		t.Errorf("ClassifyName(unknown shape) = %v/%s, want organization/preference", got.Role, got.Source)
	}
	// Shape evidence still wins over the preference.
	if got := c.ClassifyName("Matt Lee"); got.Role != Person {
		t.Errorf("ClassifyName(Matt Lee) = %v, want person", got.Role)
	}
}

func TestRoleOpposite(t *testing.T) {
	if Organization.Opposite() != Person || Person.Opposite() != Organization {
		t.Error("Opposite is not an involution over the two roles")
	}
	if Organization.String() != "organization" || Person.String() != "person" || Role(0).String() != "none" {
		t.Error("unexpected Role.String values")
	}
}
