package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/rostersync/pkg/importer"
	"github.com/hazyhaar/rostersync/pkg/match"
	"github.com/hazyhaar/rostersync/pkg/metrics"
	"github.com/hazyhaar/rostersync/pkg/names"
	"github.com/hazyhaar/rostersync/pkg/registry"
	"github.com/hazyhaar/rostersync/pkg/stage"
)

type write struct{ item, field, option string }

type fakeRegistry struct {
	fields   []registry.Field
	items    []registry.Item
	fieldErr error
	failOn   map[string]error

	mu     sync.Mutex
	writes []write
}

func (f *fakeRegistry) Fields(context.Context) ([]registry.Field, error) {
	return f.fields, f.fieldErr
}

func (f *fakeRegistry) Items(context.Context) ([]registry.Item, error) {
	return f.items, nil
}

func (f *fakeRegistry) SetOption(_ context.Context, item, field, option string) error {
	if err := f.failOn[item]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, write{item, field, option})
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	reports []*Report
}

func (l *fakeLedger) Record(_ context.Context, r *Report) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, r)
	return nil
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func newFakeRegistry() *fakeRegistry {
	var options []stage.Option
	for i, l := range append(stage.DefaultLabels, "Passed") {
		options = append(options, stage.Option{ID: "o" + string(rune('a'+i)), Label: l})
	}
	return &fakeRegistry{
		fields: []registry.Field{
			{ID: "status", Title: "Stage", Type: "select", Options: options},
			{ID: "contacts", Title: "Contacts"},
			{ID: "kind", Title: "Type"},
		},
		items: []registry.Item{
			{ID: "bental", Name: "Bental Group Inc", Fields: map[string]json.RawMessage{
				"status":   raw(`"od"`), // Deck Sent
				"contacts": raw(`"Matthew Lee"`),
			}},
			{ID: "acme", Name: "Acme", Fields: map[string]json.RawMessage{
				"status": raw(`{"label":"Passed"}`),
			}},
			{ID: "jane", Name: "Jane Doe", Fields: map[string]json.RawMessage{
				"kind":   raw(`"Person"`),
				"status": raw(`"Sub Docs Sent"`),
			}},
			{ID: "quill", Name: "Quillfeather Trust"},
		},
	}
}

func newEngine(t *testing.T, reg Registry, ledger Recorder) *Engine {
	t.Helper()
	n := names.NewNormalizer(names.Options{})
	c := names.NewClassifier(n, names.ClassifierOptions{})
	v, err := stage.NewVocabulary(stage.DefaultLabels, stage.DefaultAliases)
	require.NoError(t, err)
	d, err := stage.NewDeriver(v, stage.DeriverOptions{})
	require.NoError(t, err)
	g, err := stage.NewGate(v, stage.GateOptions{})
	require.NoError(t, err)

	return NewEngine(Config{
		Schema: registry.SchemaConfig{
			StatusField:       "Stage",
			TypeField:         "Type",
			AssociationFields: []string{"Contacts"},
		},
		Workers: 3,
	}, Components{
		Registry:   reg,
		Normalizer: n,
		Classifier: c,
		Deriver:    d,
		Gate:       g,
		Ledger:     ledger,
		Metrics:    metrics.New(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

var batch = []importer.Record{
	{Row: 1, Organization: "Bental Group", Contacts: "Matt Lee", SubscriptionStatus: "Countersigned by all parties"},
	{Row: 2, Organization: "Acme Capital, LLC", DataRoomDetail: "Jane: 3 March"},
	{Row: 3, Contacts: "Jane Doe", DataRoomGranted: "Yes"},
	{Row: 4, Organization: "Zebra Worldwide Holdings", Status: "first meeting held"},
	{Row: 5, Organization: "Quillfeather Trust", Status: "Soft circled"},
}

func TestRun(t *testing.T) {
	reg := newFakeRegistry()
	ledger := &fakeLedger{}
	e := newEngine(t, reg, ledger)

	report, err := e.Run(context.Background(), "roster.csv", batch, RunOptions{})
	require.NoError(t, err)
	require.Len(t, report.Results, len(batch))

	for i, res := range report.Results {
		assert.Equal(t, batch[i].Row, res.Row, "results keep input order")
	}

	signed := report.Results[0]
	assert.True(t, signed.Matched)
	assert.Equal(t, "bental", signed.EntityID)
	assert.Equal(t, match.StrategyPairOrg, signed.Strategy)
	assert.Equal(t, "Sub Docs Signed", signed.DerivedLabel)
	assert.Equal(t, "Deck Sent", signed.CurrentLabel)
	assert.Equal(t, string(stage.Authorized), signed.Decision)
	assert.Equal(t, "oi", signed.OptionID)
	assert.True(t, signed.Written)

	assert.Equal(t, string(stage.HardLocked), report.Results[1].Decision)
	assert.Equal(t, "Accessed Data Room", report.Results[1].DerivedLabel)

	assert.Equal(t, string(stage.WouldDowngrade), report.Results[2].Decision)
	assert.Equal(t, "Invited to Data Room", report.Results[2].DerivedLabel)
	assert.Equal(t, match.TypePerson, report.Results[2].MatchType)

	assert.False(t, report.Results[3].Matched)
	assert.Equal(t, DecisionUnmatched, report.Results[3].Decision)
	assert.Equal(t, "First Meeting", report.Results[3].DerivedLabel)

	assert.True(t, report.Results[4].Matched)
	assert.Equal(t, string(stage.BelowThreshold), report.Results[4].Decision)
	assert.Empty(t, report.Results[4].DerivedLabel)

	assert.Equal(t, []write{{"bental", "status", "oi"}}, reg.writes)

	assert.Equal(t, Summary{
		Rows:    5,
		Matched: 4,
		Written: 1,
		Decisions: map[string]int{
			string(stage.Authorized):     1,
			string(stage.HardLocked):     1,
			string(stage.WouldDowngrade): 1,
			string(stage.BelowThreshold): 1,
			DecisionUnmatched:            1,
		},
	}, report.Summary)

	require.Len(t, ledger.reports, 1)
	assert.Equal(t, report.RunID, ledger.reports[0].RunID)
	assert.Equal(t, "roster.csv", report.Source)
}

func TestRun_DryRun(t *testing.T) {
	reg := newFakeRegistry()
	e := newEngine(t, reg, nil)

	report, err := e.Run(context.Background(), "roster.csv", batch, RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Empty(t, reg.writes)
	assert.Equal(t, string(stage.Authorized), report.Results[0].Decision)
	assert.Equal(t, "oi", report.Results[0].OptionID)
	assert.False(t, report.Results[0].Written)
}

func TestRun_WriteFailureIsPerRow(t *testing.T) {
	reg := newFakeRegistry()
	reg.items = append(reg.items, registry.Item{ID: "north", Name: "Northwind Partners"})
	reg.failOn = map[string]error{
		"bental": &registry.APIError{Method: "PATCH", Path: "/items/bental", Status: 502, Body: "bad gateway"},
	}
	e := newEngine(t, reg, nil)

	records := append([]importer.Record{}, batch[0], importer.Record{
		Row: 2, Organization: "Northwind Partners", SubscriptionStatus: "awaiting signature",
	})
	report, err := e.Run(context.Background(), "roster.csv", records, RunOptions{})
	require.NoError(t, err)

	failed := report.Results[0]
	assert.False(t, failed.Written)
	assert.Contains(t, failed.Error, "HTTP 502")
	assert.Contains(t, failed.Error, "bad gateway")

	ok := report.Results[1]
	assert.True(t, ok.Written)
	assert.Equal(t, "Sub Docs Pending Review", ok.DerivedLabel)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.Written)
}

func TestRun_FatalErrors(t *testing.T) {
	e := newEngine(t, nil, nil)
	_, err := e.Run(context.Background(), "x", batch, RunOptions{})
	assert.ErrorIs(t, err, ErrMissingCredential)

	reg := newFakeRegistry()
	reg.fields = reg.fields[1:]
	e = newEngine(t, reg, nil)
	_, err = e.Run(context.Background(), "x", batch, RunOptions{})
	assert.ErrorIs(t, err, registry.ErrFieldNotFound)

	reg = newFakeRegistry()
	reg.fieldErr = errors.New("connection refused")
	e = newEngine(t, reg, nil)
	_, err = e.Run(context.Background(), "x", batch, RunOptions{})
	assert.ErrorContains(t, err, "connection refused")
}

func TestReportRedacted(t *testing.T) {
	e := newEngine(t, newFakeRegistry(), nil)
	report, err := e.Run(context.Background(), "roster.csv", batch, RunOptions{DryRun: true})
	require.NoError(t, err)

	red := report.Redacted()
	assert.True(t, red.IsRedacted)
	for i, res := range red.Results {
		assert.Empty(t, res.DisplayName)
		assert.Empty(t, res.EntityID)
		assert.Zero(t, res.Score)
		assert.Empty(t, res.CurrentLabel)
		assert.Equal(t, report.Results[i].Matched, res.Matched)
		assert.Equal(t, report.Results[i].Decision, res.Decision)
		assert.NotContains(t, res.Reason, "Passed")
	}
	// The original is untouched.
	assert.Equal(t, "Bental Group", report.Results[0].DisplayName)
	assert.Equal(t, report.Summary, red.Summary)
}
