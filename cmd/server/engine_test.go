package main

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hazyhaar/rostersync/pkg/config"
	"github.com/hazyhaar/rostersync/pkg/reconcile"
)

func TestNewClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	client, err := newClient(cfg, logger)
	if err != nil || client != nil {
		t.Fatalf("newClient without token = %v, %v; want nil, nil", client, err)
	}

	cfg.Registry.Token = "secret"
	cfg.Registry.BaseURL = "registry.example.com"
	if _, err := newClient(cfg, logger); err == nil {
		t.Fatal("newClient with a relative base URL: want error")
	} else if errors.Is(err, reconcile.ErrMissingCredential) {
		t.Errorf("err = %v, must not read as a missing credential", err)
	}

	cfg.Registry.BaseURL = "https://registry.example.com/api"
	client, err = newClient(cfg, logger)
	if err != nil || client == nil {
		t.Fatalf("newClient = %v, %v; want a client", client, err)
	}
}

func TestBuildEngineWithoutClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := buildEngine(config.Default(), logger, nil, nil, nil)
	if err != nil {
		t.Fatalf("buildEngine: %v", err)
	}
	if e.Registry != nil {
		t.Fatalf("Registry = %#v, want nil interface", e.Registry)
	}
	if _, err := e.Run(t.Context(), "roster.csv", nil, reconcile.RunOptions{}); !errors.Is(err, reconcile.ErrMissingCredential) {
		t.Errorf("Run err = %v, want ErrMissingCredential", err)
	}
}
