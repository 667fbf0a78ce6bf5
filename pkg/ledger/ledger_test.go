package ledger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/rostersync/pkg/match"
	"github.com/hazyhaar/rostersync/pkg/reconcile"
)

func tempLedger(t *testing.T) *DB {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func report(id string, started time.Time) *reconcile.Report {
	results := []reconcile.RowResult{
		{
			Row: 1, DisplayName: "Bental Group", DerivedLabel: "Sub Docs Signed", Signal: "subscription",
			Matched: true, MatchType: match.TypeOrganization, Strategy: match.StrategyPairOrg, Score: 1,
			EntityID: "bental", CurrentLabel: "Deck Sent", Decision: "authorized",
			Reason: `advance stage from "Deck Sent" to "Sub Docs Signed"`, OptionID: "oi", Written: true,
		},
		{
			Row: 3, DisplayName: "Zebra Worldwide", Decision: reconcile.DecisionUnmatched,
			MatchType: match.TypeNone, Reason: "no registry entity matched",
		},
		{
			Row: 2, DisplayName: "Acme", Matched: true, MatchType: match.TypeOrganization,
			Strategy: match.StrategyDirect, Score: 1, EntityID: "acme", Decision: "authorized",
			OptionID: "od", Error: "PATCH /items/acme: HTTP 502: bad gateway",
		},
	}
	return &reconcile.Report{
		RunID:      id,
		Source:     "roster.csv",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Summary: reconcile.Summary{
			Rows: 3, Matched: 2, Written: 1, Failed: 1,
			Decisions: map[string]int{"authorized": 2, reconcile.DecisionUnmatched: 1},
		},
		Results: results,
	}
}

func TestOpen_CreatesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file not created: %v", err)
	}
	runs, err := l.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns on empty ledger: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected 0 runs, got %d", len(runs))
	}
}

func TestRecordAndRead(t *testing.T) {
	l := tempLedger(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	if err := l.Record(ctx, report("run-1", started)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	run, err := l.Run(ctx, "run-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Source != "roster.csv" || run.DryRun {
		t.Errorf("run = %+v", run)
	}
	if !run.StartedAt.Equal(started) || !run.FinishedAt.Equal(started.Add(2*time.Second)) {
		t.Errorf("times = %v..%v", run.StartedAt, run.FinishedAt)
	}
	if run.Summary.Rows != 3 || run.Summary.Failed != 1 || run.Summary.Decisions["authorized"] != 2 {
		t.Errorf("summary = %+v", run.Summary)
	}

	rows, err := l.RunRows(ctx, "run-1")
	if err != nil {
		t.Fatalf("RunRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, want := range []int{1, 2, 3} {
		if rows[i].Row != want {
			t.Errorf("rows[%d].Row = %d, want %d", i, rows[i].Row, want)
		}
	}
	first := rows[0]
	if !first.Matched || !first.Written || first.MatchType != match.TypeOrganization ||
		first.Strategy != match.StrategyPairOrg || first.OptionID != "oi" || first.Error != "" {
		t.Errorf("rows[0] = %+v", first)
	}
	if rows[1].Error != "PATCH /items/acme: HTTP 502: bad gateway" || rows[1].Written {
		t.Errorf("rows[1] = %+v", rows[1])
	}
	if rows[2].Matched || rows[2].Decision != reconcile.DecisionUnmatched {
		t.Errorf("rows[2] = %+v", rows[2])
	}
}

func TestRecordDuplicateRunIsRolledBack(t *testing.T) {
	l := tempLedger(t)
	ctx := context.Background()
	started := time.Now().UTC()

	if err := l.Record(ctx, report("run-1", started)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Record(ctx, report("run-1", started)); err == nil {
		t.Fatal("expected error recording the same run twice")
	}
	rows, err := l.RunRows(ctx, "run-1")
	if err != nil {
		t.Fatalf("RunRows: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("got %d rows after failed duplicate, want 3", len(rows))
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	l := tempLedger(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := l.Record(ctx, report(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}

	runs, err := l.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("ListRuns(2) = %+v", runs)
	}
}

func TestRunNotFound(t *testing.T) {
	l := tempLedger(t)
	_, err := l.Run(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Run(missing) error = %v, want ErrRunNotFound", err)
	}
}
