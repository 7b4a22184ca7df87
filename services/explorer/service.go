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
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/libexplorer/services/explorer/discovery"
	"github.com/AleutianAI/libexplorer/services/explorer/graph"
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// RunCacheSize is the number of completed runs kept for lookup by id.
	// Default: 32
	RunCacheSize int

	// WatchDebounce is the quiet period before a watch session re-runs.
	// Default: 500ms
	WatchDebounce time.Duration

	// NewRequest builds the request for endpoints that only name a library.
	// Default: NewRequest
	NewRequest func(library string) Request
}

// DefaultServiceConfig returns the defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		RunCacheSize:  32,
		WatchDebounce: 500 * time.Millisecond,
		NewRequest:    NewRequest,
	}
}

// Service wraps an Analyzer with a bounded run cache, optional snapshot
// persistence and watch sessions.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	analyzer  *Analyzer
	snapshots *graph.SnapshotManager
	logger    *slog.Logger
	cfg       ServiceConfig

	mu    sync.Mutex
	runs  map[string]*list.Element
	order *list.List // front is most recent; values are *graph.Result
}

// NewService creates a Service. snapshots may be nil, which disables the
// snapshot operations.
func NewService(analyzer *Analyzer, snapshots *graph.SnapshotManager, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultServiceConfig()
	if cfg.RunCacheSize <= 0 {
		cfg.RunCacheSize = defaults.RunCacheSize
	}
	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = defaults.WatchDebounce
	}
	if cfg.NewRequest == nil {
		cfg.NewRequest = defaults.NewRequest
	}
	return &Service{
		analyzer:  analyzer,
		snapshots: snapshots,
		logger:    logger,
		cfg:       cfg,
		runs:      make(map[string]*list.Element),
		order:     list.New(),
	}
}

// NewRequest returns the configured request for library.
func (s *Service) NewRequest(library string) Request {
	return s.cfg.NewRequest(library)
}

// SnapshotsEnabled reports whether a snapshot store is configured.
func (s *Service) SnapshotsEnabled() bool {
	return s.snapshots != nil
}

// Analyze runs an analysis and caches the result by run id.
func (s *Service) Analyze(ctx context.Context, req Request) (*graph.Result, error) {
	result, err := s.analyzer.Analyze(ctx, req)
	if err != nil {
		return nil, err
	}
	s.remember(result)
	return result, nil
}

func (s *Service) remember(r *graph.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.runs[r.RunID]; ok {
		el.Value = r
		s.order.MoveToFront(el)
		return
	}
	s.runs[r.RunID] = s.order.PushFront(r)
	for s.order.Len() > s.cfg.RunCacheSize {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.runs, oldest.Value.(*graph.Result).RunID)
	}
}

// Run returns a cached run.
func (s *Service) Run(runID string) (*graph.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	s.order.MoveToFront(el)
	return el.Value.(*graph.Result), nil
}

// CachedRuns returns the number of cached runs.
func (s *Service) CachedRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// SaveSnapshot persists a cached run, or a fresh analysis of library when
// runID is empty.
func (s *Service) SaveSnapshot(ctx context.Context, runID, library, label string) (*graph.SnapshotMetadata, error) {
	if s.snapshots == nil {
		return nil, ErrSnapshotsDisabled
	}
	var (
		result *graph.Result
		err    error
	)
	switch {
	case runID != "":
		result, err = s.Run(runID)
	case library != "":
		result, err = s.Analyze(ctx, s.cfg.NewRequest(library))
	default:
		err = fmt.Errorf("%w: run_id or library is required", ErrInvalidRequest)
	}
	if err != nil {
		return nil, err
	}
	return s.snapshots.Save(ctx, result, label)
}

// ListSnapshots lists snapshot metadata, newest first.
func (s *Service) ListSnapshots(ctx context.Context, library string, limit int) ([]*graph.SnapshotMetadata, error) {
	if s.snapshots == nil {
		return nil, ErrSnapshotsDisabled
	}
	return s.snapshots.List(ctx, library, limit)
}

// LoadSnapshot loads a stored result.
func (s *Service) LoadSnapshot(ctx context.Context, snapshotID string) (*graph.Result, *graph.SnapshotMetadata, error) {
	if s.snapshots == nil {
		return nil, nil, ErrSnapshotsDisabled
	}
	return s.snapshots.Load(ctx, snapshotID)
}

// DeleteSnapshot removes a stored result.
func (s *Service) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	if s.snapshots == nil {
		return ErrSnapshotsDisabled
	}
	return s.snapshots.Delete(ctx, snapshotID)
}

// DiffSnapshots compares two stored results. When unified is set the
// second return value holds the unified text diff.
func (s *Service) DiffSnapshots(ctx context.Context, baseID, targetID string, unified bool) (*graph.SnapshotDiff, string, error) {
	if s.snapshots == nil {
		return nil, "", ErrSnapshotsDisabled
	}
	base, _, err := s.snapshots.Load(ctx, baseID)
	if err != nil {
		return nil, "", fmt.Errorf("loading base: %w", err)
	}
	target, _, err := s.snapshots.Load(ctx, targetID)
	if err != nil {
		return nil, "", fmt.Errorf("loading target: %w", err)
	}
	d, err := graph.DiffResults(base, target, baseID, targetID)
	if err != nil {
		return nil, "", err
	}
	if !unified {
		return d, "", nil
	}
	text, err := graph.UnifiedDiff(base, target, baseID, targetID)
	if err != nil {
		return nil, "", err
	}
	return d, text, nil
}

// WatchFunc receives each result of a watch session with the changes that
// triggered it. changes is nil for the initial run.
type WatchFunc func(result *graph.Result, changes []graph.FileChange)

// Watch analyses req, then re-analyses whenever a source file under the
// library's roots changes, until ctx ends.
//
// Description:
//
//	Changes arriving while a run is in progress are merged and trigger one
//	more run when it finishes. Results go through the run cache like any
//	other analysis.
//
// Outputs:
//
//	error - Invalid request, root resolution or watcher setup failure.
//	        nil when ctx ends.
func (s *Service) Watch(ctx context.Context, req Request, fn WatchFunc) error {
	if err := req.Validate(); err != nil {
		return err
	}
	roots, err := s.analyzer.resolver.Resolve(ctx, req.Library, req.TopLevelHints)
	if err != nil {
		return err
	}

	var (
		pendingMu sync.Mutex
		pending   []graph.FileChange
		notify    = make(chan struct{}, 1)
	)
	fw, err := graph.NewFileWatcher(watchPaths(roots), func(changes []graph.FileChange) {
		pendingMu.Lock()
		pending = append(pending, changes...)
		pendingMu.Unlock()
		select {
		case notify <- struct{}{}:
		default:
		}
	}, &graph.FileWatcherOptions{DebounceWindow: s.cfg.WatchDebounce})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Stop()
	if err := fw.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	watchSessions.Inc()
	defer watchSessions.Dec()

	logger := s.logger.With(slog.String("library", req.Library))
	logger.Info("watch session started", slog.Int("roots", len(roots)))

	first, err := s.Analyze(ctx, req)
	if err != nil {
		return err
	}
	fn(first, nil)

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch session ended")
			return nil
		case <-notify:
			pendingMu.Lock()
			changes := pending
			pending = nil
			pendingMu.Unlock()
			if len(changes) == 0 {
				continue
			}
			logger.Debug("re-analysing after changes", slog.Int("changes", len(changes)))
			result, err := s.Analyze(ctx, req)
			if err != nil {
				return err
			}
			fn(result, changes)
		}
	}
}

// watchPaths returns the directory or file of every root.
func watchPaths(roots []discovery.Root) []string {
	paths := make([]string, 0, len(roots))
	for _, r := range roots {
		paths = append(paths, r.Path())
	}
	return paths
}
