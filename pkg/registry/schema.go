// CLAUDE:SUMMARY Registry field discovery by id or title and conversion of raw items into matcher entities with associations.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/rostersync/pkg/match"
	"github.com/hazyhaar/rostersync/pkg/names"
	"github.com/hazyhaar/rostersync/pkg/stage"
)

// ErrFieldNotFound means a required registry field does not exist.
var ErrFieldNotFound = errors.New("registry: field not found")

// SchemaConfig names the registry fields the engine reads, by id or title.
// Only StatusField is required.
type SchemaConfig struct {
	StatusField       string   `yaml:"status_field"`
	NameField         string   `yaml:"name_field"`
	TypeField         string   `yaml:"type_field"`
	FirstNameField    string   `yaml:"first_name_field"`
	LastNameField     string   `yaml:"last_name_field"`
	AssociationFields []string `yaml:"association_fields"`
}

// Schema is a SchemaConfig resolved against the registry's field list.
type Schema struct {
	Status       Field
	Name         *Field
	Type         *Field
	FirstName    *Field
	LastName     *Field
	Associations []Field
}

// DiscoverSchema locates the configured fields. A missing status field is
// fatal; optional fields that are missing stay nil and their references are
// returned.
func DiscoverSchema(fields []Field, cfg SchemaConfig) (*Schema, []string, error) {
	status, ok := findField(fields, cfg.StatusField)
	if !ok {
		return nil, nil, fmt.Errorf("%w: status field %q", ErrFieldNotFound, cfg.StatusField)
	}
	s := &Schema{Status: status}

	var missing []string
	optional := func(ref string) *Field {
		if strings.TrimSpace(ref) == "" {
			return nil
		}
		f, ok := findField(fields, ref)
		if !ok {
			missing = append(missing, ref)
			return nil
		}
		return &f
	}
	s.Name = optional(cfg.NameField)
	s.Type = optional(cfg.TypeField)
	s.FirstName = optional(cfg.FirstNameField)
	s.LastName = optional(cfg.LastNameField)
	for _, ref := range cfg.AssociationFields {
		if f := optional(ref); f != nil {
			s.Associations = append(s.Associations, *f)
		}
	}
	return s, missing, nil
}

func findField(fields []Field, ref string) (Field, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Field{}, false
	}
	for _, f := range fields {
		if f.ID == ref {
			return f, true
		}
	}
	for _, f := range fields {
		if strings.EqualFold(strings.TrimSpace(f.Title), ref) {
			return f, true
		}
	}
	return Field{}, false
}

// Options returns the status field's selectable options.
func (s *Schema) Options() []stage.Option {
	return append([]stage.Option(nil), s.Status.Options...)
}

// Entities converts items into matcher entities. Items without a display name
// are dropped.
func (s *Schema) Entities(items []Item) []*match.Entity {
	out := make([]*match.Entity, 0, len(items))
	for _, it := range items {
		e := &match.Entity{
			ID:    it.ID,
			Name:  strings.TrimSpace(it.Name),
			Stage: s.statusLabel(it),
		}
		if s.Name != nil {
			if v := it.Text(s.Name.ID); v != "" {
				e.Name = v
			}
		}
		if e.Name == "" {
			continue
		}
		if s.Type != nil {
			e.Type = it.Text(s.Type.ID)
		}
		if s.FirstName != nil {
			e.FirstName = it.Text(s.FirstName.ID)
		}
		if s.LastName != nil {
			e.LastName = it.Text(s.LastName.ID)
		}
		for _, f := range s.Associations {
			for _, v := range it.List(f.ID) {
				for _, name := range splitAssociations(v) {
					if !contains(e.Associations, name) {
						e.Associations = append(e.Associations, name)
					}
				}
			}
		}
		out = append(out, e)
	}
	return out
}

// statusLabel returns the current status label, mapping an option id to its
// label when the registry stores ids.
func (s *Schema) statusLabel(it Item) string {
	v := it.Text(s.Status.ID)
	for _, o := range s.Status.Options {
		if o.ID == v {
			return o.Label
		}
	}
	return v
}

// Text decodes a field value into display text. Option objects yield their
// label, lists are joined with "; ".
func (it Item) Text(fieldID string) string {
	return strings.Join(it.List(fieldID), "; ")
}

// List decodes a field value into its text parts: a scalar yields one part,
// an array one part per element.
func (it Item) List(fieldID string) []string {
	raw, ok := it.Fields[fieldID]
	if !ok || len(raw) == 0 {
		return nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		var out []string
		for _, el := range arr {
			if s := scalarText(el); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := scalarText(raw); s != "" {
		return []string{s}
	}
	return nil
}

func scalarText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Label string `json:"label"`
		Name  string `json:"name"`
		Title string `json:"title"`
		Text  string `json:"text"`
		ID    string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, v := range []string{obj.Label, obj.Name, obj.Title, obj.Text, obj.ID} {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "true"
		}
		return "false"
	}
	return ""
}

// splitAssociations splits a link-field value on commas, semicolons and line
// breaks. "Lee, Matt" style person names are rare in link fields and are not
// preserved.
func splitAssociations(v string) []string {
	return names.SplitContacts(strings.ReplaceAll(v, ",", ";"))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
