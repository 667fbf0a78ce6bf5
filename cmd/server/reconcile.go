// CLAUDE:SUMMARY CLI subcommand that reconciles one CSV/XLSX roster file against the registry and prints the JSON report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hazyhaar/rostersync/pkg/config"
	"github.com/hazyhaar/rostersync/pkg/importer"
	"github.com/hazyhaar/rostersync/pkg/ledger"
	"github.com/hazyhaar/rostersync/pkg/reconcile"
)

func cmdReconcile(args []string) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	file := fs.String("file", "", "CSV or XLSX file to reconcile")
	format := fs.String("format", "", "force the file format (csv, xlsx)")
	dryRun := fs.Bool("dry-run", false, "decide every row without writing to the registry")
	redact := fs.Bool("redact", false, "omit names, entity ids and scores from the report")
	noLedger := fs.Bool("no-ledger", false, "do not record the run in the ledger")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: rostersync reconcile -file <roster.csv|roster.xlsx> [-dry-run] [-redact] [-format csv|xlsx]")
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath, config.DefaultEnvFiles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)

	reader, err := fileReader(*format, *file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *file, err)
		os.Exit(1)
	}
	records, err := reader.Read(f, cfg.ReadOptions())
	f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *file, err)
		os.Exit(1)
	}

	var rec reconcile.Recorder
	if !*noLedger {
		runs, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open ledger: %v\n", err)
			os.Exit(1)
		}
		defer runs.Close()
		rec = runs
	}

	client, err := newClient(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	engine, err := buildEngine(cfg, logger, client, rec, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := engine.Run(ctx, filepath.Base(*file), records, reconcile.RunOptions{DryRun: *dryRun})
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(1)
	}
	if *redact {
		report = report.Redacted()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "write report: %v\n", err)
		os.Exit(1)
	}
	if report.Summary.Failed > 0 {
		os.Exit(3)
	}
}

func fileReader(format, name string) (importer.Reader, error) {
	if format != "" {
		return importer.Get(format)
	}
	return importer.ForFilename(name)
}
