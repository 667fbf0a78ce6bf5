// CLAUDE:SUMMARY Header mapping from export column names onto Record fields, with default candidates per field.
package importer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoHeader means the file has no header row.
	ErrNoHeader = errors.New("importer: missing header row")
	// ErrNoNameColumn means no header maps to a column that names an entity.
	ErrNoNameColumn = errors.New("importer: no name, organization or contact column")
)

// Columns lists, per Record field, the header names that map to it. Matching
// ignores case, spacing and punctuation. Nil fields fall back to the defaults.
type Columns struct {
	Name                 []string `yaml:"name"`
	Organization         []string `yaml:"organization"`
	Contacts             []string `yaml:"contacts"`
	EntityType           []string `yaml:"entity_type"`
	FirstName            []string `yaml:"first_name"`
	LastName             []string `yaml:"last_name"`
	SubscriptionStatus   []string `yaml:"subscription_status"`
	DataRoomDetail       []string `yaml:"data_room_detail"`
	DataRoomLastAccessed []string `yaml:"data_room_last_accessed"`
	DataRoomGranted      []string `yaml:"data_room_granted"`
	Status               []string `yaml:"status"`
	Notes                []string `yaml:"notes"`
}

// DefaultColumns returns the built-in header candidates.
func DefaultColumns() Columns {
	return Columns{
		Name:                 []string{"name", "investor", "investor name", "account", "account name", "lp", "lp name"},
		Organization:         []string{"organization", "organisation", "company", "firm", "institution", "entity"},
		Contacts:             []string{"contacts", "contact", "contact name", "contact names", "people", "primary contact"},
		EntityType:           []string{"type", "investor type", "entity type", "account type"},
		FirstName:            []string{"first name", "firstname", "given name"},
		LastName:             []string{"last name", "lastname", "surname", "family name"},
		SubscriptionStatus:   []string{"subscription status", "sub docs status", "subscription", "agreement status", "docusign status"},
		DataRoomDetail:       []string{"data room activity", "data room detail", "data room details", "dataroom activity"},
		DataRoomLastAccessed: []string{"data room last accessed", "last accessed", "last access", "last viewed"},
		DataRoomGranted:      []string{"data room access", "data room granted", "dataroom access", "vdr access"},
		Status:               []string{"status", "stage", "pipeline stage"},
		Notes:                []string{"notes", "note", "comments", "comment"},
	}
}

// WithDefaults returns c with nil fields replaced by the defaults.
func (c Columns) WithDefaults() Columns {
	d := DefaultColumns()
	return Columns{
		Name:                 pickStrings(c.Name, d.Name),
		Organization:         pickStrings(c.Organization, d.Organization),
		Contacts:             pickStrings(c.Contacts, d.Contacts),
		EntityType:           pickStrings(c.EntityType, d.EntityType),
		FirstName:            pickStrings(c.FirstName, d.FirstName),
		LastName:             pickStrings(c.LastName, d.LastName),
		SubscriptionStatus:   pickStrings(c.SubscriptionStatus, d.SubscriptionStatus),
		DataRoomDetail:       pickStrings(c.DataRoomDetail, d.DataRoomDetail),
		DataRoomLastAccessed: pickStrings(c.DataRoomLastAccessed, d.DataRoomLastAccessed),
		DataRoomGranted:      pickStrings(c.DataRoomGranted, d.DataRoomGranted),
		Status:               pickStrings(c.Status, d.Status),
		Notes:                pickStrings(c.Notes, d.Notes),
	}
}

// binding ties a header position to a Record field setter.
type binding struct {
	header string
	set    func(*Record, string)
}

// layout is a header row resolved against Columns.
type layout struct {
	fields []binding
	named  bool
}

// column is one Record field with its header candidates. names marks the
// fields that identify an entity.
type column struct {
	candidates []string
	set        func(*Record, string)
	names      bool
}

func (c Columns) columns() []column {
	return []column{
		{c.Name, func(r *Record, v string) { r.Name = v }, true},
		{c.Organization, func(r *Record, v string) { r.Organization = v }, true},
		{c.Contacts, func(r *Record, v string) { r.Contacts = v }, true},
		{c.EntityType, func(r *Record, v string) { r.EntityType = v }, false},
		{c.FirstName, func(r *Record, v string) { r.FirstName = v }, true},
		{c.LastName, func(r *Record, v string) { r.LastName = v }, true},
		{c.SubscriptionStatus, func(r *Record, v string) { r.SubscriptionStatus = v }, false},
		{c.DataRoomDetail, func(r *Record, v string) { r.DataRoomDetail = v }, false},
		{c.DataRoomLastAccessed, func(r *Record, v string) { r.DataRoomLastAccessed = v }, false},
		{c.DataRoomGranted, func(r *Record, v string) { r.DataRoomGranted = v }, false},
		{c.Status, func(r *Record, v string) { r.Status = v }, false},
		{c.Notes, func(r *Record, v string) { r.Notes = v }, false},
	}
}

// resolve maps every header cell to a field. The first header claiming a
// field wins; later duplicates and unknown headers go to Extra.
func (c Columns) resolve(header []string) (layout, error) {
	if len(header) == 0 {
		return layout{}, ErrNoHeader
	}
	blank := true
	for _, h := range header {
		if strings.TrimSpace(h) != "" {
			blank = false
			break
		}
	}
	if blank {
		return layout{}, ErrNoHeader
	}

	setters := c.WithDefaults().columns()
	claimed := make([]bool, len(setters))
	l := layout{fields: make([]binding, len(header))}
	for i, h := range header {
		h = strings.TrimSpace(h)
		l.fields[i].header = h
		key := headerKey(h)
		if key == "" {
			continue
		}
		for j, s := range setters {
			if claimed[j] || !containsHeader(s.candidates, key) {
				continue
			}
			claimed[j] = true
			l.fields[i].set = s.set
			if s.names {
				l.named = true
			}
			break
		}
	}
	if !l.named {
		return layout{}, fmt.Errorf("%w in header %q", ErrNoNameColumn, header)
	}
	return l, nil
}

// records converts data rows; fully blank rows are skipped but still counted.
func (l layout) records(rows [][]string) []Record {
	out := make([]Record, 0, len(rows))
	for n, row := range rows {
		rec := Record{Row: n + 1}
		for i, b := range l.fields {
			if i >= len(row) {
				break
			}
			v := strings.TrimSpace(row[i])
			if b.set != nil {
				b.set(&rec, v)
				continue
			}
			if b.header == "" || v == "" {
				continue
			}
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[b.header] = v
		}
		if rec.empty() {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// headerKey lowercases h and keeps only letters and digits, single-spaced.
func headerKey(h string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(h) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r > 127:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

func containsHeader(candidates []string, key string) bool {
	for _, c := range candidates {
		if headerKey(c) == key {
			return true
		}
	}
	return false
}

func pickStrings(custom, fallback []string) []string {
	if custom == nil {
		return append([]string(nil), fallback...)
	}
	return append([]string(nil), custom...)
}
