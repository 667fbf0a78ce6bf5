// CLAUDE:SUMMARY Status deriver mapping subscription, data-room and free-text roster columns onto one pipeline stage by rule priority.
package stage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hazyhaar/rostersync/pkg/importer"
	"github.com/hazyhaar/rostersync/pkg/names"
)

// Stage roles: the evidence kinds a Deriver maps onto vocabulary labels.
const (
	RoleSigned           = "signed"
	RoleAwaiting         = "awaiting"
	RoleStarted          = "started"
	RoleAccessed         = "accessed"
	RoleInvited          = "invited"
	RoleDeckSent         = "deck_sent"
	RoleFirstMeeting     = "first_meeting"
	RoleEarlyDialogue    = "early_dialogue"
	RoleTargetIdentified = "target_identified"
)

// Signals name the rule that produced a Derivation.
const (
	SignalOverride      = "subscription_override"
	SignalSubscription  = "subscription"
	SignalDataRoomEvent = "data_room_detail"
	SignalLastAccessed  = "data_room_last_accessed"
	SignalGranted       = "data_room_granted"
	SignalHint          = "hint"
)

// DefaultRoles returns the role targets for DefaultLabels.
func DefaultRoles() map[string]string {
	return map[string]string{
		RoleSigned:           "Sub Docs Signed",
		RoleAwaiting:         "Sub Docs Pending Review",
		RoleStarted:          "Sub Docs Sent",
		RoleAccessed:         "Accessed Data Room",
		RoleInvited:          "Invited to Data Room",
		RoleDeckSent:         "Deck Sent",
		RoleFirstMeeting:     "First Meeting",
		RoleEarlyDialogue:    "Early Dialogue",
		RoleTargetIdentified: "Target Identified",
	}
}

// Derivation is the outcome of Derive. An empty Label means undetermined.
type Derivation struct {
	Label  string `json:"label,omitempty"`
	Signal string `json:"signal,omitempty"`
	// Detail is the text fragment the rule fired on.
	Detail string `json:"detail,omitempty"`
}

// Determined reports whether a stage was derived.
func (d Derivation) Determined() bool { return d.Label != "" }

// DeriverOptions configures a Deriver. Nil Roles fall back to DefaultRoles.
type DeriverOptions struct {
	Roles map[string]string
	// Overrides maps an exact subscription phrase to a stage label.
	Overrides map[string]string
}

// Deriver turns a record into a stage label. It is immutable and safe for
// concurrent use.
type Deriver struct {
	vocab        *Vocabulary
	roles        map[string]string
	overrides    map[string]string
	subscription []family
	hints        []family
	dropped      []string
}

// NewDeriver validates role targets against v. Overrides pointing outside v
// are dropped and reported by Dropped.
func NewDeriver(v *Vocabulary, opts DeriverOptions) (*Deriver, error) {
	d := &Deriver{
		vocab:     v,
		roles:     make(map[string]string),
		overrides: make(map[string]string),
	}

	roles := DefaultRoles()
	for role, label := range opts.Roles {
		if _, known := roles[role]; !known {
			return nil, fmt.Errorf("stage: unknown role %q", role)
		}
		roles[role] = label
	}
	for role, label := range roles {
		canonical, ok := v.Canonical(label)
		if !ok {
			return nil, fmt.Errorf("stage: role %q targets %q which is not in the vocabulary", role, label)
		}
		d.roles[role] = canonical
	}

	phrases := make([]string, 0, len(opts.Overrides))
	for p := range opts.Overrides {
		phrases = append(phrases, p)
	}
	sort.Strings(phrases)
	for _, p := range phrases {
		canonical, ok := v.Canonical(opts.Overrides[p])
		if !ok {
			d.dropped = append(d.dropped, p)
			continue
		}
		if k := fold(p); k != "" {
			d.overrides[k] = canonical
		}
	}

	var err error
	if d.subscription, err = compileFamilies(subscriptionFamilies); err != nil {
		return nil, err
	}
	if d.hints, err = compileFamilies(hintFamilies); err != nil {
		return nil, err
	}
	return d, nil
}

// Dropped returns the override phrases discarded because their target was not
// in the vocabulary.
func (d *Deriver) Dropped() []string {
	return append([]string(nil), d.dropped...)
}

// Role returns the label a role maps to.
func (d *Deriver) Role(role string) string { return d.roles[role] }

// Derive applies the rules in priority order; the first that fires wins:
// subscription status, data-room evidence, then free-text hints.
func (d *Deriver) Derive(rec importer.Record) Derivation {
	if out, ok := d.subscriptionStage(rec.SubscriptionStatus); ok {
		return out
	}
	if out, ok := d.dataRoomStage(rec); ok {
		return out
	}
	for _, text := range []string{rec.Status, rec.Notes} {
		if out, ok := d.hintStage(text); ok {
			return out
		}
	}
	return Derivation{}
}

func (d *Deriver) subscriptionStage(text string) (Derivation, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Derivation{}, false
	}
	if label, ok := d.overrides[fold(text)]; ok {
		return Derivation{Label: label, Signal: SignalOverride, Detail: text}, true
	}
	if f, frag, ok := firstMatch(d.subscription, text); ok {
		return Derivation{Label: d.roles[f.role], Signal: SignalSubscription, Detail: frag}, true
	}
	return Derivation{}, false
}

func (d *Deriver) dataRoomStage(rec importer.Record) (Derivation, bool) {
	for _, seg := range strings.Split(rec.DataRoomDetail, ";") {
		if accessEvent(seg) {
			return Derivation{Label: d.roles[RoleAccessed], Signal: SignalDataRoomEvent, Detail: strings.TrimSpace(seg)}, true
		}
	}
	if last := strings.TrimSpace(rec.DataRoomLastAccessed); last != "" && !notAccessed(last) {
		return Derivation{Label: d.roles[RoleAccessed], Signal: SignalLastAccessed, Detail: last}, true
	}
	if granted(rec.DataRoomGranted) {
		return Derivation{Label: d.roles[RoleInvited], Signal: SignalGranted, Detail: strings.TrimSpace(rec.DataRoomGranted)}, true
	}
	return Derivation{}, false
}

func (d *Deriver) hintStage(text string) (Derivation, bool) {
	text = softCircled.ReplaceAllString(text, " ")
	if strings.TrimSpace(text) == "" {
		return Derivation{}, false
	}
	if f, frag, ok := firstMatch(d.hints, text); ok {
		return Derivation{Label: d.roles[f.role], Signal: SignalHint, Detail: frag}, true
	}
	return Derivation{}, false
}

// accessEvent reports whether a "name: status" detail segment records an
// access: its status is not "not yet accessed" and carries a digit or a month.
func accessEvent(segment string) bool {
	status := segment
	if i := strings.Index(segment, ":"); i >= 0 {
		status = segment[i+1:]
	}
	if strings.TrimSpace(status) == "" || notAccessed(status) {
		return false
	}
	for _, r := range status {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	for _, tok := range strings.Fields(names.Base(status)) {
		if _, ok := months[tok]; ok {
			return true
		}
	}
	return false
}

func notAccessed(s string) bool {
	switch fold(s) {
	case "not yet accessed", "not accessed", "never", "never accessed", "n/a", "na", "-", "none":
		return true
	}
	return false
}

func granted(s string) bool {
	switch fold(s) {
	case "yes", "y", "true", "1", "x", "granted", "invited", "access granted":
		return true
	}
	return false
}

var months = map[string]struct{}{
	"jan": {}, "january": {}, "feb": {}, "february": {}, "mar": {}, "march": {},
	"apr": {}, "april": {}, "may": {}, "jun": {}, "june": {}, "jul": {}, "july": {},
	"aug": {}, "august": {}, "sep": {}, "sept": {}, "september": {}, "oct": {},
	"october": {}, "nov": {}, "november": {}, "dec": {}, "december": {},
}
