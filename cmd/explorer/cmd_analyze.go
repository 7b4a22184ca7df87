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
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/libexplorer/services/explorer"
	"github.com/AleutianAI/libexplorer/services/explorer/graph"
)

// requestFlags are the run parameters shared by analyze, watch and
// snapshot save.
type requestFlags struct {
	maxFiles    int
	maxExternal int
	maxEdges    int
	workers     int
	hints       []string
	exclude     []string
	noExclude   bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVar(&f.maxFiles, "max-files", 0, "cap on discovered files, 0 for unbounded (default from config)")
	fs.IntVar(&f.maxExternal, "max-external", 0, "cap on external imports per module, 0 for unbounded (default from config)")
	fs.IntVar(&f.maxEdges, "max-edges", 0, "cap on non-contains edges, 0 for unbounded (default from config)")
	fs.IntVar(&f.workers, "workers", 0, "parse concurrency, 0 for GOMAXPROCS (default from config)")
	fs.StringSliceVar(&f.hints, "hint", nil, "extra top-level import name to try (repeatable)")
	fs.StringSliceVar(&f.exclude, "exclude", nil, "exclusion glob, replaces the configured list (repeatable)")
	fs.BoolVar(&f.noExclude, "no-exclude", false, "analyse test files too")
}

// apply overrides req with the flags the user set explicitly.
func (f *requestFlags) apply(cmd *cobra.Command, req *explorer.Request) {
	fs := cmd.Flags()
	if fs.Changed("max-files") {
		req.MaxFiles = f.maxFiles
	}
	if fs.Changed("max-external") {
		req.MaxExternalPerModule = f.maxExternal
	}
	if fs.Changed("max-edges") {
		req.MaxEdges = f.maxEdges
	}
	if fs.Changed("workers") {
		req.Workers = f.workers
	}
	if len(f.hints) > 0 {
		req.TopLevelHints = f.hints
	}
	if fs.Changed("exclude") {
		req.TestPathPatterns = f.exclude
	}
	if f.noExclude {
		req.TestPathPatterns = []string{}
	}
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var (
		flags   requestFlags
		asJSON  bool
		outPath string
		noCalls bool
	)

	cmd := &cobra.Command{
		Use:   "analyze LIBRARY",
		Short: "Analyse an installed library or a source path",
		Long: `Resolve LIBRARY (a distribution name, import name, or path to a package
directory or module file), parse its sources and report the structure graph.

Per-file failures do not stop the run; they are listed in the summary and
in the "errors" field of the JSON output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := a.newRequest(args[0])
			flags.apply(cmd, &req)

			opts := []explorer.AnalyzerOption{explorer.WithProgress(progressLogger(a.logger))}
			if noCalls {
				opts = append(opts, explorer.WithCalls(false))
			}
			result, err := a.analyzer(opts...).Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return fmt.Errorf("creating output file: %w", err)
				}
				defer f.Close()
				if err := writeJSON(f, result); err != nil {
					return fmt.Errorf("writing %s: %w", outPath, err)
				}
				a.logger.Info("result written", slog.String("path", outPath))
				if !asJSON {
					newPrinter(out).summary(result)
				}
				return nil
			}
			return printResult(out, result, asJSON)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the full JSON result to a file")
	cmd.Flags().BoolVar(&noCalls, "no-calls", false, "skip call-graph inference")
	return cmd
}

func printResult(w io.Writer, result *graph.Result, asJSON bool) error {
	if asJSON {
		return writeJSON(w, result)
	}
	newPrinter(w).summary(result)
	return nil
}

// progressLogger logs build phase changes at debug level.
func progressLogger(logger *slog.Logger) graph.ProgressFunc {
	last := graph.ProgressPhase(-1)
	return func(p graph.BuildProgress) {
		if p.Phase == last {
			return
		}
		last = p.Phase
		logger.Debug("build phase",
			slog.String("phase", p.Phase.String()),
			slog.Int("modules", p.ModulesTotal),
			slog.Int("nodes", p.NodesCreated),
			slog.Int("edges", p.EdgesCreated),
		)
	}
}
