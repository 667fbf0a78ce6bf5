package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/rostersync/pkg/api"
	"github.com/hazyhaar/rostersync/pkg/config"
	"github.com/hazyhaar/rostersync/pkg/ledger"
	"github.com/hazyhaar/rostersync/pkg/metrics"
	"github.com/hazyhaar/rostersync/pkg/registry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "reconcile":
		cmdReconcile(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: rostersync <command>\n\nCommands:\n  serve       Start the HTTP server\n  reconcile   Reconcile one import file and print the report\n")
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*cfgPath, config.DefaultEnvFiles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	if cfg.File == "" {
		logger.Info("no config file, using defaults and environment", "path", *cfgPath)
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		logger.Error("invalid registry configuration", "error", err)
		os.Exit(1)
	}

	runs, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		logger.Error("failed to open ledger", "path", cfg.LedgerPath, "error", err)
		os.Exit(1)
	}
	defer runs.Close()

	m := metrics.New()
	engine, err := buildEngine(cfg, logger, client, runs, m)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	opts := api.Options{
		APIKey:         cfg.APIKey,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Read:           cfg.ReadOptions(),
		Runs:           runs,
		Metrics:        m,
		Logger:         logger,
		Version:        version,
	}
	if cfg.APIKey == "" {
		logger.Warn("no API key configured, reconcile and run routes will refuse every request")
	}

	// SIGHUP: reload configuration and rebuild the engine.
	// SIGINT/SIGTERM: graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if client != nil {
		checker := registry.NewChecker(client, logger, cfg.HealthInterval, cfg.Registry.Timeout)
		opts.Health = checker
		go checker.Start(ctx)
	}

	server := api.NewServer(engine, opts)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			logger.Info("SIGHUP received, reloading configuration")
			next, err := config.Load(*cfgPath, config.DefaultEnvFiles)
			if err != nil {
				logger.Error("reload failed", "error", err)
				continue
			}
			// Listener, ledger and API key stay as started.
			nextClient, err := newClient(next, logger)
			if err != nil {
				logger.Error("reload failed", "error", err)
				continue
			}
			e, err := buildEngine(next, logger, nextClient, runs, m)
			if err != nil {
				logger.Error("reload failed", "error", err)
				continue
			}
			server.Swap(e, next.ReadOptions())
			logger.Info("configuration reloaded", "stages", len(e.Gate.Vocabulary().Labels()))
		}
	}()

	go func() {
		logger.Info("rostersync listening", "addr", cfg.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}
