package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hazyhaar/rostersync/pkg/config"
	"github.com/hazyhaar/rostersync/pkg/metrics"
	"github.com/hazyhaar/rostersync/pkg/reconcile"
	"github.com/hazyhaar/rostersync/pkg/registry"
)

func newLogger(cfg *config.Config) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newClient returns a nil client when no registry token is configured; runs
// then fail with reconcile.ErrMissingCredential while pure routes keep working.
// Any other client setting error is returned.
func newClient(cfg *config.Config, logger *slog.Logger) (*registry.Client, error) {
	client, err := registry.NewClient(cfg.ClientConfig())
	switch {
	case errors.Is(err, registry.ErrMissingToken):
		logger.Warn("no registry token configured, reconciliation is disabled")
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("registry client: %w", err)
	}
	return client, nil
}

func buildEngine(cfg *config.Config, logger *slog.Logger, client *registry.Client, rec reconcile.Recorder, m *metrics.Metrics) (*reconcile.Engine, error) {
	p, err := cfg.Pipeline(logger)
	if err != nil {
		return nil, err
	}
	c := reconcile.Components{
		Normalizer: p.Normalizer,
		Classifier: p.Classifier,
		Deriver:    p.Deriver,
		Gate:       p.Gate,
		Ledger:     rec,
		Metrics:    m,
		Logger:     logger,
	}
	// A nil *Client must not become a non-nil interface.
	if client != nil {
		c.Registry = client
	}
	return reconcile.NewEngine(reconcile.Config{
		Schema:        cfg.Schema,
		Thresholds:    cfg.Matching,
		OptionAliases: cfg.Stages.OptionAliases,
		Workers:       cfg.Workers,
		ReadTimeout:   cfg.Registry.ReadTimeout,
		WriteTimeout:  cfg.Registry.WriteTimeout,
	}, c), nil
}
