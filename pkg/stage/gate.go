// CLAUDE:SUMMARY Write-safety gate: hard locks, minimum stage, non-downgrade, unchanged and option resolution checks.
package stage

import (
	"fmt"
	"strings"
)

// Kind is the outcome category of a write decision.
type Kind string

const (
	Unchanged      Kind = "unchanged"
	BelowThreshold Kind = "below_threshold"
	HardLocked     Kind = "hard_locked"
	WouldDowngrade Kind = "would_downgrade"
	UnknownLabel   Kind = "unknown_label"
	Authorized     Kind = "authorized"
)

// Kinds lists every decision kind in check order.
var Kinds = []Kind{HardLocked, BelowThreshold, UnknownLabel, WouldDowngrade, Unchanged, Authorized}

// DefaultHardLocks are current labels that are never overwritten.
var DefaultHardLocks = []string{"Passed", "Pass", "Declined"}

// Decision is the gate's verdict on one row. OptionID is set only when Kind is
// Authorized; KnownOptions only when the derived label could not be resolved.
type Decision struct {
	Kind         Kind     `json:"kind"`
	OptionID     string   `json:"option_id,omitempty"`
	Reason       string   `json:"reason"`
	KnownOptions []string `json:"known_options,omitempty"`
}

// Authorized reports whether the decision allows a write.
func (d Decision) Authorized() bool { return d.Kind == Authorized }

// GateOptions configures a Gate. A nil HardLocks falls back to
// DefaultHardLocks; an empty Minimum means the first label.
type GateOptions struct {
	Minimum   string
	HardLocks []string
}

// Gate decides whether a derived stage may replace the registry's current one.
type Gate struct {
	vocab     *Vocabulary
	minimum   string
	minRank   int
	hardLocks map[string]struct{}
}

// NewGate builds a Gate over v. The minimum stage must be in v.
func NewGate(v *Vocabulary, opts GateOptions) (*Gate, error) {
	g := &Gate{vocab: v, minimum: v.Label(0), hardLocks: make(map[string]struct{})}
	if strings.TrimSpace(opts.Minimum) != "" {
		r, ok := v.Rank(opts.Minimum)
		if !ok {
			return nil, fmt.Errorf("stage: minimum stage %q is not in the vocabulary", opts.Minimum)
		}
		g.minimum, g.minRank = v.Label(r), r
	}
	locks := opts.HardLocks
	if locks == nil {
		locks = DefaultHardLocks
	}
	for _, l := range locks {
		if k := fold(l); k != "" {
			g.hardLocks[k] = struct{}{}
		}
	}
	return g, nil
}

// Minimum returns the lowest stage the gate will write.
func (g *Gate) Minimum() string { return g.minimum }

// Vocabulary returns the vocabulary the gate ranks against.
func (g *Gate) Vocabulary() *Vocabulary { return g.vocab }

// HardLocked reports whether label is a hard-lock label.
func (g *Gate) HardLocked(label string) bool {
	_, ok := g.hardLocks[fold(label)]
	return ok
}

// Decide runs the checks in order: hard lock, threshold, vocabulary
// membership, downgrade, unchanged, then option resolution. A current label
// outside the vocabulary is ranked through the options its stages resolve to.
// With a nil resolver the canonical label stands in for the option id.
func (g *Gate) Decide(current, derived string, r *OptionResolver) Decision {
	if g.HardLocked(current) {
		return Decision{Kind: HardLocked, Reason: fmt.Sprintf("current stage %q is hard-locked", strings.TrimSpace(current))}
	}
	if strings.TrimSpace(derived) == "" {
		return Decision{Kind: BelowThreshold, Reason: "no stage could be derived"}
	}
	canonical, ok := g.vocab.Canonical(derived)
	if !ok {
		return g.unknown(fmt.Sprintf("derived stage %q is not in the vocabulary", derived), r)
	}
	derivedRank, _ := g.vocab.Rank(canonical)
	if derivedRank < g.minRank {
		return Decision{Kind: BelowThreshold, Reason: fmt.Sprintf("derived stage %q is below the minimum %q", canonical, g.minimum)}
	}
	currentRank, known := g.rank(current, r)
	if known && derivedRank < currentRank {
		return Decision{Kind: WouldDowngrade, Reason: fmt.Sprintf("derived stage %q ranks below current stage %q", canonical, strings.TrimSpace(current))}
	}
	if known && derivedRank == currentRank {
		return Decision{Kind: Unchanged, Reason: fmt.Sprintf("current stage is already %q", canonical)}
	}

	if r == nil {
		return Decision{Kind: Authorized, OptionID: canonical, Reason: authorizedReason(current, canonical)}
	}
	opt, method, ok := r.Resolve(canonical)
	if !ok {
		return g.unknown(fmt.Sprintf("no registry option for stage %q", canonical), r)
	}
	// An option that names another ranked stage would write the wrong rank.
	if optRank, known := g.vocab.Rank(opt.Label); known && optRank != derivedRank {
		return g.unknown(fmt.Sprintf("stage %q resolved (%s) to option %q of a different rank", canonical, method, opt.Label), r)
	}
	return Decision{Kind: Authorized, OptionID: opt.ID, Reason: authorizedReason(current, canonical)}
}

// rank ranks a current label: the vocabulary first, then the registry option
// labels r resolves stages to.
func (g *Gate) rank(label string, r *OptionResolver) (int, bool) {
	if rank, ok := g.vocab.Rank(label); ok {
		return rank, true
	}
	if r == nil {
		return 0, false
	}
	rank, ok := r.rankedOptions(g.vocab)[fold(label)]
	return rank, ok
}

func (g *Gate) unknown(reason string, r *OptionResolver) Decision {
	d := Decision{Kind: UnknownLabel, Reason: reason}
	if r != nil {
		d.KnownOptions = r.Labels()
	}
	return d
}

func authorizedReason(current, derived string) string {
	if strings.TrimSpace(current) == "" {
		return fmt.Sprintf("set stage to %q", derived)
	}
	return fmt.Sprintf("advance stage from %q to %q", strings.TrimSpace(current), derived)
}
