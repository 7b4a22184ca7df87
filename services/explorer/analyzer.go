// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/libexplorer/services/explorer/ast"
	"github.com/AleutianAI/libexplorer/services/explorer/config"
	"github.com/AleutianAI/libexplorer/services/explorer/discovery"
	"github.com/AleutianAI/libexplorer/services/explorer/graph"
)

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithResolver sets the root resolver.
func WithResolver(r *discovery.Resolver) AnalyzerOption {
	return func(a *Analyzer) {
		a.resolver = r
	}
}

// WithMaxFileSize sets the largest file read and parsed.
func WithMaxFileSize(bytes int64) AnalyzerOption {
	return func(a *Analyzer) {
		if bytes > 0 {
			a.maxFileSize = bytes
		}
	}
}

// WithCalls enables or disables call-graph inference.
func WithCalls(enabled bool) AnalyzerOption {
	return func(a *Analyzer) {
		a.inferCalls = enabled
	}
}

// WithProgress sets a callback for build progress.
func WithProgress(fn graph.ProgressFunc) AnalyzerOption {
	return func(a *Analyzer) {
		a.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Analyzer runs analyses.
//
// Thread Safety: Safe for concurrent use; each Analyze call has its own
// AnalysisContext.
type Analyzer struct {
	resolver    *discovery.Resolver
	maxFileSize int64
	inferCalls  bool
	progress    graph.ProgressFunc
	logger      *slog.Logger
}

// NewAnalyzer creates an Analyzer with a default resolver.
func NewAnalyzer(opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		maxFileSize: ast.DefaultMaxFileSize,
		inferCalls:  true,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.resolver == nil {
		a.resolver = discovery.NewResolver()
	}
	return a
}

// NewAnalyzerFromConfig creates an Analyzer from the analysis and
// discovery sections of cfg.
func NewAnalyzerFromConfig(cfg *config.Config, opts ...AnalyzerOption) *Analyzer {
	resolver := discovery.NewResolver(
		discovery.WithSearchPaths(cfg.Discovery.SearchPaths...),
		discovery.WithAliases(cfg.Discovery.Aliases),
		discovery.WithPythonPath(cfg.Discovery.UsePythonPath),
		discovery.WithVirtualEnv(cfg.Discovery.UseVirtualEnv),
	)
	base := []AnalyzerOption{
		WithResolver(resolver),
		WithMaxFileSize(cfg.Analysis.MaxFileSize),
		WithCalls(cfg.Analysis.InferCalls),
	}
	return NewAnalyzer(append(base, opts...)...)
}

// parsedFile is one worker's output slot.
type parsedFile struct {
	record *ast.ModuleRecord
	stage  graph.Stage
	err    error
}

// Analyze runs one analysis.
//
// Description:
//
//	Resolves the library to roots, enumerates its files, then reads and
//	parses them on a bounded errgroup. Each worker writes only its own
//	slot; failures are merged into the AnalysisContext in discovery order
//	so error lists and node ids are deterministic. The records go to
//	graph.Builder. A library that does not resolve yields an empty result
//	with one root_resolution error.
//
// Inputs:
//
//	ctx - Cancellation. A cancelled run returns what it has, with a
//	      cancelled error recorded.
//	req - The run parameters.
//
// Outputs:
//
//	*graph.Result - Never nil when error is nil.
//	error - Only ErrInvalidRequest. Everything else is recorded in the
//	        result.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*graph.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, span := startAnalyzeSpan(ctx, req)
	defer span.End()

	runID := uuid.NewString()
	actx := graph.NewAnalysisContext(req.Library, runID, req.Limits())
	logger := a.logger.With(slog.String("run_id", runID), slog.String("library", req.Library))

	finish := func(r *graph.Result) *graph.Result {
		endAnalyzeSpan(span, r)
		recordRunMetrics(r, time.Since(start))
		logger.Info("analysis complete",
			slog.Int("files", r.Summary.FilesParsed),
			slog.Int("nodes", r.Summary.Nodes),
			slog.Int("edges", r.Summary.Edges),
			slog.Int("errors", r.Summary.Errors),
			slog.Bool("truncated", r.Summary.Truncated),
			slog.Duration("duration", time.Since(start)),
		)
		return r
	}

	roots, err := a.resolver.Resolve(ctx, req.Library, req.TopLevelHints)
	if err != nil {
		if isCancellation(err) {
			err = fmt.Errorf("%w: %w", graph.ErrAnalysisCancelled, err)
		}
		actx.RecordFailure(graph.StageDiscovery, "", req.Library, err)
		logger.Warn("library did not resolve", slog.Any("error", err))
		return finish(graph.EmptyResult(runID, req.Library, actx.Errors())), nil
	}

	listing, err := discovery.Enumerate(ctx, roots, discovery.EnumerateOptions{
		MaxFiles: req.MaxFiles,
		Exclude:  req.TestPathPatterns,
	})
	if err != nil && ctx.Err() == nil {
		actx.RecordFailure(graph.StageRead, "", req.Library, err)
	}
	if listing.Truncated {
		actx.MarkTruncated()
	}

	actx.RootModules = rootNames(roots)
	actx.FilesDiscovered = len(listing.Files)
	logger.Debug("files discovered",
		slog.Int("files", len(listing.Files)),
		slog.Int("excluded", listing.Excluded),
		slog.Any("roots", actx.RootModules),
	)

	slots := a.parseAll(ctx, listing.Files, req.Workers)

	inputs := make([]graph.ModuleInput, 0, len(listing.Files))
	for i, f := range listing.Files {
		slot := slots[i]
		if slot.err != nil && !isCancellation(slot.err) {
			actx.RecordFailure(slot.stage, f.Path, f.Module, slot.err)
			logger.Debug("file skipped",
				slog.String("file", f.Path),
				slog.String("stage", string(slot.stage)),
				slog.Any("error", slot.err),
			)
		}
		inputs = append(inputs, graph.ModuleInput{
			Module:    f.Module,
			File:      f.Path,
			IsPackage: f.IsPackage(),
			Record:    slot.record,
		})
	}

	builder := graph.NewBuilder(
		graph.WithCallInference(a.inferCalls),
		graph.WithProgressCallback(a.progress),
	)
	return finish(builder.Build(ctx, actx, inputs)), nil
}

// parseAll reads and parses files with at most workers in flight.
func (a *Analyzer) parseAll(ctx context.Context, files []discovery.SourceFile, workers int) []parsedFile {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	parser := ast.NewPythonParser(ast.WithPythonMaxFileSize(a.maxFileSize))
	slots := make([]parsedFile, len(files))

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range files {
		g.Go(func() error {
			f := files[i]
			if err := ctx.Err(); err != nil {
				slots[i] = parsedFile{stage: graph.StageRead, err: err}
				return nil
			}
			content, err := discovery.ReadSource(f.Path, a.maxFileSize)
			if err != nil {
				slots[i] = parsedFile{stage: graph.StageRead, err: err}
				return nil
			}
			record, err := parser.Parse(ctx, content, f.Path, f.Module)
			if err != nil {
				slots[i] = parsedFile{stage: graph.StageParse, err: err}
				return nil
			}
			slots[i] = parsedFile{record: record}
			return nil
		})
	}
	_ = g.Wait()
	return slots
}

// isCancellation reports errors the builder will record as one cancelled
// entry.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ast.ErrContextCanceled)
}

// rootNames returns the distinct root module names in resolution order.
func rootNames(roots []discovery.Root) []string {
	seen := make(map[string]bool, len(roots))
	names := make([]string, 0, len(roots))
	for _, r := range roots {
		if seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		names = append(names, r.Name)
	}
	return names
}
