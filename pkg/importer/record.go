// Package importer reads roster exports (CSV, XLSX) into Records.
package importer

import (
	"strings"

	"github.com/hazyhaar/rostersync/pkg/names"
)

// Record is one data row of an import file. Known columns land in named
// fields; anything else is kept in Extra under its header.
type Record struct {
	// Row is the 1-based data row number, header excluded.
	Row int `json:"row"`

	Name         string `json:"name,omitempty"`
	Organization string `json:"organization,omitempty"`
	Contacts     string `json:"contacts,omitempty"`
	EntityType   string `json:"entity_type,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`

	SubscriptionStatus   string `json:"subscription_status,omitempty"`
	DataRoomDetail       string `json:"data_room_detail,omitempty"`
	DataRoomLastAccessed string `json:"data_room_last_accessed,omitempty"`
	DataRoomGranted      string `json:"data_room_granted,omitempty"`
	Status               string `json:"status,omitempty"`
	Notes                string `json:"notes,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// Candidates returns the names the row offers for matching. The organization
// column feeds the organization side and each contact the person side; the
// name column goes to whichever side c classifies it as.
func (r Record) Candidates(c *names.Classifier) []names.Candidate {
	var out []names.Candidate
	add := func(text string, role names.Role) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		for _, have := range out {
			if have.Role == role && strings.EqualFold(have.Text, text) {
				return
			}
		}
		out = append(out, names.Candidate{Text: text, Role: role})
	}

	add(r.Organization, names.Organization)
	for _, contact := range names.SplitContacts(r.Contacts) {
		add(contact, names.Person)
	}

	name := strings.TrimSpace(r.Name)
	if name == "" {
		name = strings.TrimSpace(r.FirstName + " " + r.LastName)
	}
	if name != "" {
		role := names.Organization
		if c != nil {
			role = c.Classify(names.Evidence{
				Name:      name,
				Type:      r.EntityType,
				FirstName: r.FirstName,
				LastName:  r.LastName,
			}).Role
		}
		add(name, role)
	}
	return out
}

// DisplayName is the label a row is reported under: organization, else name,
// else the first contact.
func (r Record) DisplayName() string {
	if s := strings.TrimSpace(r.Organization); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.Name); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.FirstName + " " + r.LastName); s != "" {
		return s
	}
	if contacts := names.SplitContacts(r.Contacts); len(contacts) > 0 {
		return contacts[0]
	}
	return ""
}

// empty reports whether the row carries no known field and no extra value.
func (r Record) empty() bool {
	for _, s := range []string{
		r.Name, r.Organization, r.Contacts, r.EntityType, r.FirstName, r.LastName,
		r.SubscriptionStatus, r.DataRoomDetail, r.DataRoomLastAccessed,
		r.DataRoomGranted, r.Status, r.Notes,
	} {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	for _, s := range r.Extra {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}
