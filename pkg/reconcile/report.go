// CLAUDE:SUMMARY Row results, run summary and the redacted report variant returned to callers.
package reconcile

import (
	"time"

	"github.com/hazyhaar/rostersync/pkg/match"
	"github.com/hazyhaar/rostersync/pkg/stage"
)

// Row decisions beyond the gate's kinds.
const (
	DecisionUnmatched = "unmatched"
	DecisionError     = "error"
)

// RowResult is the outcome of one import row.
type RowResult struct {
	Row          int            `json:"row"`
	DisplayName  string         `json:"display_name,omitempty"`
	DerivedLabel string         `json:"derived_label,omitempty"`
	Signal       string         `json:"signal,omitempty"`
	Matched      bool           `json:"matched"`
	MatchType    match.Type     `json:"match_type,omitempty"`
	Strategy     match.Strategy `json:"strategy,omitempty"`
	Score        float64        `json:"score,omitempty"`
	EntityID     string         `json:"entity_id,omitempty"`
	CurrentLabel string         `json:"current_label,omitempty"`
	Decision     string         `json:"decision"`
	Reason       string         `json:"reason,omitempty"`
	OptionID     string         `json:"option_id,omitempty"`
	Written      bool           `json:"written"`
	Error        string         `json:"error,omitempty"`
	KnownOptions []string       `json:"known_options,omitempty"`
}

// Summary aggregates a run's row results.
type Summary struct {
	Rows      int            `json:"rows"`
	Matched   int            `json:"matched"`
	Written   int            `json:"written"`
	Failed    int            `json:"failed"`
	Decisions map[string]int `json:"decisions"`
}

// Report is the result of one reconciliation run. Results are in input order.
type Report struct {
	RunID      string      `json:"run_id"`
	Source     string      `json:"source"`
	DryRun     bool        `json:"dry_run"`
	IsRedacted bool        `json:"redacted,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Summary    Summary     `json:"summary"`
	Results    []RowResult `json:"results"`
}

// Redacted returns a copy without names, entity ids, scores or current labels.
// Match flags, decisions and reasons are kept.
func (r *Report) Redacted() *Report {
	out := *r
	out.IsRedacted = true
	out.Results = make([]RowResult, len(r.Results))
	for i, res := range r.Results {
		res.DisplayName = ""
		res.EntityID = ""
		res.Score = 0
		res.CurrentLabel = ""
		if res.Decision == string(stage.HardLocked) || res.Decision == string(stage.WouldDowngrade) || res.Decision == string(stage.Unchanged) {
			res.Reason = redactedReason(res.Decision)
		}
		res.KnownOptions = append([]string(nil), res.KnownOptions...)
		out.Results[i] = res
	}
	out.Summary.Decisions = make(map[string]int, len(r.Summary.Decisions))
	for k, v := range r.Summary.Decisions {
		out.Summary.Decisions[k] = v
	}
	return &out
}

// redactedReason drops the current label quoted in policy-skip reasons.
func redactedReason(decision string) string {
	switch decision {
	case string(stage.HardLocked):
		return "current stage is hard-locked"
	case string(stage.WouldDowngrade):
		return "derived stage ranks below the current stage"
	default:
		return "current stage already matches"
	}
}

func summarize(results []RowResult) Summary {
	s := Summary{Rows: len(results), Decisions: make(map[string]int)}
	for _, r := range results {
		if r.Matched {
			s.Matched++
		}
		if r.Written {
			s.Written++
		}
		if r.Error != "" {
			s.Failed++
		}
		s.Decisions[r.Decision]++
	}
	return s
}
