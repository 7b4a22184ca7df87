// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/libexplorer/services/explorer"
	"github.com/AleutianAI/libexplorer/services/explorer/config"
	"github.com/AleutianAI/libexplorer/services/explorer/graph"
	"github.com/AleutianAI/libexplorer/services/explorer/telemetry"
)

// app holds the state shared by all subcommands: persistent flag values,
// the loaded configuration and the telemetry shutdown hook.
type app struct {
	configPath    string
	logLevel      string
	logFormat     string
	traceExporter string
	searchPaths   []string

	cfg      *config.Config
	logger   *slog.Logger
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "explorer",
		Short: "Static structure explorer for installed Python libraries",
		Long: `explorer locates an installed Python library, parses its sources without
importing them, and reports modules, classes, functions, imports and an
approximate call graph.`,
		Version:            version,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config overlay file (default ./"+config.DefaultConfigFile+" if present)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text or json")
	pf.StringVar(&a.traceExporter, "trace", "", "trace exporter: none, stdout, otlp")
	pf.StringSliceVar(&a.searchPaths, "search-path", nil, "directory searched for libraries before the configured ones (repeatable)")

	root.AddCommand(newAnalyzeCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newSnapshotCmd(a))
	return root
}

// setup loads configuration, applies persistent flags, and starts logging
// and telemetry.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Context(), a.configPath)
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		cfg.Log.Level = strings.ToLower(a.logLevel)
	}
	if a.logFormat != "" {
		cfg.Log.Format = strings.ToLower(a.logFormat)
	}
	if a.traceExporter != "" {
		cfg.Telemetry.TraceExporter = a.traceExporter
	}
	if len(a.searchPaths) > 0 {
		cfg.Discovery.SearchPaths = append(append([]string{}, a.searchPaths...), cfg.Discovery.SearchPaths...)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.shutdown = shutdown
	return nil
}

// teardown flushes telemetry.
func (a *app) teardown(_ *cobra.Command, _ []string) error {
	if a.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", slog.Any("error", err))
	}
	return nil
}

func (a *app) analyzer(opts ...explorer.AnalyzerOption) *explorer.Analyzer {
	return explorer.NewAnalyzerFromConfig(a.cfg, append([]explorer.AnalyzerOption{explorer.WithLogger(a.logger)}, opts...)...)
}

func (a *app) newRequest(library string) explorer.Request {
	return explorer.RequestFromConfig(library, a.cfg)
}

// openSnapshots opens the configured badger store. The returned close
// function must be called when done.
func (a *app) openSnapshots() (*graph.SnapshotManager, func(), error) {
	opts := badger.DefaultOptions(a.cfg.Snapshots.Dir).WithLogger(nil)
	if a.cfg.Snapshots.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("opening snapshot store %s: %w", a.cfg.Snapshots.Dir, err)
	}
	mgr, err := graph.NewSnapshotManager(db, a.logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			a.logger.Warn("closing snapshot store", slog.Any("error", err))
		}
	}
	return mgr, closeFn, nil
}
