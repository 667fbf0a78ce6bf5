// Package reconcile runs an import batch against the registry: match each row,
// derive its stage, gate the write and apply it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/rostersync/pkg/importer"
	"github.com/hazyhaar/rostersync/pkg/match"
	"github.com/hazyhaar/rostersync/pkg/metrics"
	"github.com/hazyhaar/rostersync/pkg/names"
	"github.com/hazyhaar/rostersync/pkg/registry"
	"github.com/hazyhaar/rostersync/pkg/stage"
)

// ErrMissingCredential means no registry client is configured.
var ErrMissingCredential = errors.New("reconcile: registry credential not configured")

// Registry is the registry surface the engine reads and writes.
type Registry interface {
	Fields(ctx context.Context) ([]registry.Field, error)
	Items(ctx context.Context) ([]registry.Item, error)
	SetOption(ctx context.Context, itemID, fieldID, optionID string) error
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, r *Report) error
}

// Config holds the engine's tunables.
type Config struct {
	Schema        registry.SchemaConfig
	Thresholds    match.Thresholds
	OptionAliases map[string]string
	Workers       int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// Components are the collaborators an Engine is built from. Registry, Ledger
// and Metrics may be nil.
type Components struct {
	Registry   Registry
	Normalizer *names.Normalizer
	Classifier *names.Classifier
	Deriver    *stage.Deriver
	Gate       *stage.Gate
	Ledger     Recorder
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Engine reconciles batches. It holds no per-run state: every Run reads the
// registry afresh and builds its own index.
type Engine struct {
	cfg Config
	Components
}

// RunOptions control a single run.
type RunOptions struct {
	DryRun bool
}

// NewEngine builds an Engine.
func NewEngine(cfg Config, c Components) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Engine{cfg: cfg, Components: c}
}

// snapshot is the registry state one run works against.
type snapshot struct {
	schema   *registry.Schema
	index    *match.Index
	resolver *stage.OptionResolver
}

// Run reconciles records. Only configuration and registry-read failures are
// returned; per-row problems are recorded in the report.
func (e *Engine) Run(ctx context.Context, source string, records []importer.Record, opts RunOptions) (*Report, error) {
	started := time.Now().UTC()
	report, err := e.run(ctx, source, records, opts, started)
	e.Metrics.Run(time.Since(started), err)
	if err != nil {
		e.Logger.Error("reconcile failed", "source", source, "rows", len(records), "error", err)
		return nil, err
	}

	if e.Ledger != nil {
		if err := e.Ledger.Record(ctx, report); err != nil {
			e.Logger.Warn("ledger record failed", "run", report.RunID, "error", err)
		}
	}
	e.Logger.Info("reconcile complete",
		"run", report.RunID,
		"source", source,
		"dry_run", opts.DryRun,
		"rows", report.Summary.Rows,
		"matched", report.Summary.Matched,
		"written", report.Summary.Written,
		"failed", report.Summary.Failed,
	)
	return report, nil
}

func (e *Engine) run(ctx context.Context, source string, records []importer.Record, opts RunOptions, started time.Time) (*Report, error) {
	if e.Registry == nil {
		return nil, ErrMissingCredential
	}
	snap, err := e.load(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]RowResult, len(records))
	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i := range records {
		g.Go(func() error {
			results[i] = e.evaluateSafe(ctx, records[i], snap, opts.DryRun)
			return nil
		})
	}
	_ = g.Wait()

	return &Report{
		RunID:      uuid.NewString(),
		Source:     source,
		DryRun:     opts.DryRun,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Summary:    summarize(results),
		Results:    results,
	}, nil
}

// load discovers the schema, reads every item and indexes them.
func (e *Engine) load(ctx context.Context) (*snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ReadTimeout)
	defer cancel()

	fields, err := e.Registry.Fields(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover registry fields: %w", err)
	}
	schema, missing, err := registry.DiscoverSchema(fields, e.cfg.Schema)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		e.Logger.Warn("optional registry fields not found", "fields", missing)
	}

	items, err := e.Registry.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("read registry items: %w", err)
	}
	idx := match.Build(schema.Entities(items), e.Normalizer, e.Classifier, e.cfg.Thresholds)
	orgKeys, personKeys := idx.KeyCounts()
	e.Logger.Info("registry indexed",
		"entities", idx.Len(),
		"org_keys", orgKeys,
		"person_keys", personKeys,
		"collisions", idx.Collisions(),
	)

	return &snapshot{
		schema:   schema,
		index:    idx,
		resolver: stage.NewOptionResolver(schema.Options(), e.cfg.OptionAliases),
	}, nil
}

// evaluateSafe keeps a panicking row from taking the batch down.
func (e *Engine) evaluateSafe(ctx context.Context, rec importer.Record, snap *snapshot, dryRun bool) (res RowResult) {
	defer func() {
		if p := recover(); p != nil {
			e.Logger.Error("row evaluation panicked", "row", rec.Row, "panic", p, "stack", string(debug.Stack()))
			res = RowResult{
				Row:         rec.Row,
				DisplayName: rec.DisplayName(),
				Decision:    DecisionError,
				Error:       fmt.Sprintf("internal error: %v", p),
			}
		}
	}()
	return e.evaluate(ctx, rec, snap, dryRun)
}

func (e *Engine) evaluate(ctx context.Context, rec importer.Record, snap *snapshot, dryRun bool) RowResult {
	res := RowResult{Row: rec.Row, DisplayName: rec.DisplayName()}

	d := e.Deriver.Derive(rec)
	res.DerivedLabel = d.Label
	res.Signal = d.Signal

	m := snap.index.MatchCandidates(rec.Candidates(e.Classifier))
	res.MatchType = m.Type
	if !m.Matched() {
		res.Decision = DecisionUnmatched
		res.Reason = "no registry entity matched"
		e.Metrics.Row(res.Decision, string(m.Type))
		return res
	}
	res.Matched = true
	res.Strategy = m.Strategy
	res.Score = m.Score
	res.EntityID = m.Entity.ID
	res.CurrentLabel = m.Entity.Stage

	dec := e.Gate.Decide(m.Entity.Stage, d.Label, snap.resolver)
	res.Decision = string(dec.Kind)
	res.Reason = dec.Reason
	res.KnownOptions = dec.KnownOptions
	e.Metrics.Row(res.Decision, string(m.Type))
	if !dec.Authorized() {
		return res
	}
	res.OptionID = dec.OptionID
	if dryRun {
		e.Metrics.Write("dry_run")
		return res
	}

	wctx, cancel := context.WithTimeout(ctx, e.cfg.WriteTimeout)
	defer cancel()
	if err := e.Registry.SetOption(wctx, m.Entity.ID, snap.schema.Status.ID, dec.OptionID); err != nil {
		res.Error = err.Error()
		e.Metrics.Write("error")
		e.Logger.Warn("registry write failed", "row", rec.Row, "entity", m.Entity.ID, "error", err)
		return res
	}
	res.Written = true
	e.Metrics.Write("ok")
	return res
}
