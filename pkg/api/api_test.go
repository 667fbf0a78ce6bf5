package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/rostersync/pkg/config"
	"github.com/hazyhaar/rostersync/pkg/ledger"
	"github.com/hazyhaar/rostersync/pkg/metrics"
	"github.com/hazyhaar/rostersync/pkg/reconcile"
	"github.com/hazyhaar/rostersync/pkg/registry"
	"github.com/hazyhaar/rostersync/pkg/stage"
)

const testKey = "secret-key"

type fakeRegistry struct {
	fields   []registry.Field
	items    []registry.Item
	fieldErr error

	mu     sync.Mutex
	writes int
}

func (f *fakeRegistry) Fields(context.Context) ([]registry.Field, error) {
	return f.fields, f.fieldErr
}

func (f *fakeRegistry) Items(context.Context) ([]registry.Item, error) {
	return f.items, nil
}

func (f *fakeRegistry) SetOption(context.Context, string, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	return nil
}

func newFakeRegistry() *fakeRegistry {
	var options []stage.Option
	for _, l := range stage.DefaultLabels {
		options = append(options, stage.Option{ID: "id-" + strings.ReplaceAll(strings.ToLower(l), " ", "-"), Label: l})
	}
	return &fakeRegistry{
		fields: []registry.Field{
			{ID: "stage", Title: "Stage", Options: options},
			{ID: "contacts", Title: "Contacts"},
		},
		items: []registry.Item{
			{ID: "bental", Name: "Bental Group Inc", Fields: map[string]json.RawMessage{
				"stage":    json.RawMessage(`"Deck Sent"`),
				"contacts": json.RawMessage(`["Matthew Lee"]`),
			}},
			{ID: "acme", Name: "Acme", Fields: map[string]json.RawMessage{
				"stage": json.RawMessage(`"Passed"`),
			}},
		},
	}
}

type fakeHealth struct{ h registry.Health }

func (f fakeHealth) Last() registry.Health { return f.h }

type fixture struct {
	srv    *Server
	reg    *fakeRegistry
	ledger *ledger.DB
}

func newFixture(t *testing.T, reg reconcile.Registry) fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Schema.AssociationFields = []string{"Contacts"}
	p, err := cfg.Pipeline(nil)
	if err != nil {
		t.Fatalf("Pipeline: %v", err)
	}
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	engine := reconcile.NewEngine(reconcile.Config{
		Schema:        cfg.Schema,
		Thresholds:    cfg.Matching,
		OptionAliases: cfg.Stages.OptionAliases,
		Workers:       2,
	}, reconcile.Components{
		Registry:   reg,
		Normalizer: p.Normalizer,
		Classifier: p.Classifier,
		Deriver:    p.Deriver,
		Gate:       p.Gate,
		Ledger:     l,
		Metrics:    m,
		Logger:     logger,
	})
	srv := NewServer(engine, Options{
		APIKey:         testKey,
		MaxUploadBytes: 1 << 20,
		Read:           cfg.ReadOptions(),
		Runs:           l,
		Metrics:        m,
		Logger:         logger,
	})
	f := fixture{srv: srv, ledger: l}
	if fr, ok := reg.(*fakeRegistry); ok {
		f.reg = fr
	}
	return f
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

const roster = "Organization,Contacts,Subscription Status,Data Room Activity\n" +
	"Bental Group,Matt Lee,Countersigned,\n" +
	"Acme Capital LLC,,,Jane: 3 March\n" +
	"Zebra Worldwide Holdings,,,\n"

var withKey = map[string]string{"X-API-Key": testKey, "Content-Type": "text/csv"}

func TestHealth(t *testing.T) {
	f := newFixture(t, newFakeRegistry())
	rec := do(t, f.srv, "GET", "/v1/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	var resp healthResponse
	decode(t, rec, &resp)
	if resp.Status != "ok" || !resp.Ledger || len(resp.Stages) != len(stage.DefaultLabels) {
		t.Errorf("health = %+v", resp)
	}

	f.srv.health = fakeHealth{registry.Health{OK: false, CheckedAt: time.Now(), Error: "dial tcp: refused"}}
	var degraded healthResponse
	decode(t, do(t, f.srv, "GET", "/v1/health", nil, nil), &degraded)
	if degraded.Status != "degraded" || degraded.Registry == nil || degraded.Registry.Error == "" {
		t.Errorf("health = %+v", degraded)
	}
}

func TestReconcileRequiresKey(t *testing.T) {
	f := newFixture(t, newFakeRegistry())
	for _, key := range []string{"", "wrong"} {
		rec := do(t, f.srv, "POST", "/v1/reconcile", strings.NewReader(roster), map[string]string{"X-API-Key": key})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("key %q: status = %d, want 401", key, rec.Code)
		}
	}
	if f.reg.writes != 0 {
		t.Errorf("writes = %d, want 0", f.reg.writes)
	}
}

func TestReconcileRawBody(t *testing.T) {
	f := newFixture(t, newFakeRegistry())
	rec := do(t, f.srv, "POST", "/v1/reconcile", strings.NewReader(roster), withKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var report reconcile.Report
	decode(t, rec, &report)

	if report.Source != "upload.csv" || report.DryRun {
		t.Errorf("report = %+v", report)
	}
	if len(report.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(report.Results))
	}
	want := []string{string(stage.Authorized), string(stage.HardLocked), reconcile.DecisionUnmatched}
	for i, w := range want {
		if report.Results[i].Decision != w {
			t.Errorf("results[%d].Decision = %q, want %q", i, report.Results[i].Decision, w)
		}
	}
	if !report.Results[0].Written || report.Results[0].OptionID != "id-sub-docs-signed" {
		t.Errorf("results[0] = %+v", report.Results[0])
	}
	if f.reg.writes != 1 {
		t.Errorf("writes = %d, want 1", f.reg.writes)
	}

	// The run is in the ledger.
	rec = do(t, f.srv, "GET", "/v1/runs", nil, withKey)
	var runs runsResponse
	decode(t, rec, &runs)
	if len(runs.Runs) != 1 || runs.Runs[0].ID != report.RunID || runs.Runs[0].Summary.Written != 1 {
		t.Fatalf("runs = %+v", runs)
	}

	rec = do(t, f.srv, "GET", "/v1/runs/"+report.RunID, nil, withKey)
	var run runResponse
	decode(t, rec, &run)
	if len(run.Results) != 3 || run.Results[0].DisplayName != "Bental Group" {
		t.Errorf("run = %+v", run)
	}

	if rec := do(t, f.srv, "GET", "/v1/runs/nope", nil, withKey); rec.Code != http.StatusNotFound {
		t.Errorf("unknown run: status = %d, want 404", rec.Code)
	}
	if rec := do(t, f.srv, "GET", "/v1/runs?limit=1000", nil, withKey); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=1000: status = %d, want 400", rec.Code)
	}
}

func TestReconcileMultipartDryRunRedacted(t *testing.T) {
	f := newFixture(t, newFakeRegistry())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "roster.csv")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(roster))
	mw.Close()

	rec := do(t, f.srv, "POST", "/v1/reconcile?dry_run=1&redact=true", &body, map[string]string{
		"X-API-Key":    testKey,
		"Content-Type": mw.FormDataContentType(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var report reconcile.Report
	decode(t, rec, &report)
	if report.Source != "roster.csv" || !report.DryRun || !report.IsRedacted {
		t.Errorf("report = %+v", report)
	}
	for _, r := range report.Results {
		if r.DisplayName != "" || r.EntityID != "" || r.Score != 0 {
			t.Errorf("row %d not redacted: %+v", r.Row, r)
		}
	}
	if !report.Results[0].Matched || report.Results[0].Decision != string(stage.Authorized) {
		t.Errorf("results[0] = %+v", report.Results[0])
	}
	if f.reg.writes != 0 {
		t.Errorf("dry run wrote %d times", f.reg.writes)
	}
}

func TestReconcileErrors(t *testing.T) {
	f := newFixture(t, newFakeRegistry())
	rec := do(t, f.srv, "POST", "/v1/reconcile", strings.NewReader("Foo,Bar\n1,2\n"), withKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no name column: status = %d, want 400", rec.Code)
	}
	rec = do(t, f.srv, "POST", "/v1/reconcile?format=pdf", strings.NewReader(roster), withKey)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown format: status = %d, want 400", rec.Code)
	}

	noStatus := newFakeRegistry()
	noStatus.fields = noStatus.fields[1:]
	f = newFixture(t, noStatus)
	if rec := do(t, f.srv, "POST", "/v1/reconcile", strings.NewReader(roster), withKey); rec.Code != http.StatusInternalServerError {
		t.Errorf("missing status field: status = %d, want 500", rec.Code)
	}

	down := newFakeRegistry()
	down.fieldErr = &registry.APIError{Method: "GET", Path: "/fields", Status: 503, Body: "maintenance"}
	f = newFixture(t, down)
	rec = do(t, f.srv, "POST", "/v1/reconcile", strings.NewReader(roster), withKey)
	if rec.Code != http.StatusBadGateway || !strings.Contains(rec.Body.String(), "maintenance") {
		t.Errorf("registry down: status = %d body %s", rec.Code, rec.Body)
	}

	f = newFixture(t, nil)
	if rec := do(t, f.srv, "POST", "/v1/reconcile", strings.NewReader(roster), withKey); rec.Code != http.StatusInternalServerError {
		t.Errorf("no credential: status = %d, want 500", rec.Code)
	}
}

func TestDeriveDecideNormalize(t *testing.T) {
	f := newFixture(t, newFakeRegistry())

	rec := do(t, f.srv, "POST", "/v1/derive", strings.NewReader(`{"subscription_status":"Countersigned","data_room_granted":"yes"}`), nil)
	var d stage.Derivation
	decode(t, rec, &d)
	if d.Label != "Sub Docs Signed" || d.Signal != stage.SignalSubscription {
		t.Errorf("derive = %+v", d)
	}

	rec = do(t, f.srv, "POST", "/v1/decide", strings.NewReader(`{"current":"Passed","derived":"Sub Docs Signed"}`), nil)
	var dec stage.Decision
	decode(t, rec, &dec)
	if dec.Kind != stage.HardLocked {
		t.Errorf("decide = %+v", dec)
	}

	rec = do(t, f.srv, "POST", "/v1/decide", strings.NewReader(
		`{"current":"Deck Sent","derived":"Accessed Data Room","options":[{"id":"x1","label":"Accessed Data Room"}]}`), nil)
	dec = stage.Decision{}
	decode(t, rec, &dec)
	if dec.Kind != stage.Authorized || dec.OptionID != "x1" {
		t.Errorf("decide with options = %+v", dec)
	}

	rec = do(t, f.srv, "POST", "/v1/normalize", strings.NewReader(`{"text":"Acme Capital, LLC"}`), nil)
	var n normalizeResponse
	decode(t, rec, &n)
	if n.OrgKey != "acme" || n.Role != "organization" || len(n.Keys) != 1 || n.Keys[0] != "acme" {
		t.Errorf("normalize = %+v", n)
	}

	rec = do(t, f.srv, "POST", "/v1/normalize", strings.NewReader(`{"text":"Dr. Matt Lee","role":"person"}`), nil)
	n = normalizeResponse{}
	decode(t, rec, &n)
	if n.Role != "person" || n.Source != "request" || len(n.Keys) < 2 || n.Keys[0] != "matt lee" {
		t.Errorf("normalize person = %+v", n)
	}

	if rec := do(t, f.srv, "POST", "/v1/normalize", strings.NewReader(`{"text":"  "}`), nil); rec.Code != http.StatusBadRequest {
		t.Errorf("empty text: status = %d, want 400", rec.Code)
	}
	if rec := do(t, f.srv, "POST", "/v1/derive", strings.NewReader(`not json`), nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want 400", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t, newFakeRegistry())
	do(t, f.srv, "POST", "/v1/reconcile?dry_run=1", strings.NewReader(roster), withKey)

	rec := do(t, f.srv, "GET", "/metrics", nil, nil)
	if !strings.Contains(rec.Body.String(), `rostersync_runs_total{result="ok"} 1`) {
		t.Errorf("metrics missing run counter:\n%s", rec.Body)
	}
}

func TestMCPRequiresKey(t *testing.T) {
	f := newFixture(t, newFakeRegistry())
	rec := do(t, f.srv, "POST", "/mcp", strings.NewReader(`{}`), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMCPTools(t *testing.T) {
	f := newFixture(t, newFakeRegistry())
	mcpSrv := server.NewMCPServer("rostersync", "test", server.WithToolCapabilities(false))
	f.srv.RegisterMCPTools(mcpSrv)

	call := func(name, args string) string {
		t.Helper()
		msg := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"` + name + `","arguments":` + args + `}}`
		resp := mcpSrv.HandleMessage(context.Background(), json.RawMessage(msg))
		data, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("marshal response: %v", err)
		}
		return string(data)
	}

	if out := call("normalize_name", `{"text":"Acme Capital, LLC"}`); !strings.Contains(out, `\"org_key\":\"acme\"`) {
		t.Errorf("normalize_name = %s", out)
	}
	if out := call("derive_stage", `{"subscription_status":"Countersigned"}`); !strings.Contains(out, "Sub Docs Signed") {
		t.Errorf("derive_stage = %s", out)
	}
	if out := call("decide_write", `{"current":"Sub Docs Sent","derived":"Invited to Data Room"}`); !strings.Contains(out, "would_downgrade") {
		t.Errorf("decide_write = %s", out)
	}
	if out := call("list_runs", `{"limit":5}`); !strings.Contains(out, `\"runs\":[]`) {
		t.Errorf("list_runs = %s", out)
	}
	if out := call("decide_write", `{"current":"Deck Sent"}`); !strings.Contains(out, "invalid arguments") {
		t.Errorf("decide_write without derived = %s", out)
	}
}
