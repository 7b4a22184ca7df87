// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileOp represents the type of file operation.
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
	FileOpRename
)

// String returns the string representation of the operation.
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "create"
	case FileOpWrite:
		return "write"
	case FileOpRemove:
		return "remove"
	case FileOpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// FileChange is one change to a Python source file.
type FileChange struct {
	Path string
	Op   FileOp
	Time time.Time
}

// FileChangeHandler is called with each debounced batch of changes.
type FileChangeHandler func(changes []FileChange)

// FileWatcherOptions configures the FileWatcher.
type FileWatcherOptions struct {
	// DebounceWindow is how long to wait for more changes before flushing.
	// Default: 500ms
	DebounceWindow time.Duration

	// BufferSize is the size of the change buffer channel.
	// Default: 1000
	BufferSize int
}

// DefaultFileWatcherOptions returns sensible defaults.
func DefaultFileWatcherOptions() FileWatcherOptions {
	return FileWatcherOptions{
		DebounceWindow: 500 * time.Millisecond,
		BufferSize:     1000,
	}
}

// FileWatcher reports debounced changes to .py files below a set of paths.
//
// # Description
//
// Each watched path is a package directory, watched recursively, or a
// single module file, watched through its parent directory. Hidden
// directories and __pycache__ are skipped. Changes are collected until the
// debounce window passes without new events, de-duplicated by path and
// handed to the handler in path order.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is called from a single goroutine.
type FileWatcher struct {
	dirs     []string
	files    map[string]bool
	watcher  *fsnotify.Watcher
	handler  FileChangeHandler
	debounce time.Duration

	changes  chan FileChange
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
	closed   bool
}

// NewFileWatcher creates a watcher over paths (directories or .py files).
//
// Inputs:
//
//	paths - Package directories or module files to watch.
//	handler - Called with each batch. Must not be nil.
//	opts - Optional configuration (nil uses defaults).
func NewFileWatcher(paths []string, handler FileChangeHandler, opts *FileWatcherOptions) (*FileWatcher, error) {
	if opts == nil {
		defaults := DefaultFileWatcherOptions()
		opts = &defaults
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultFileWatcherOptions().BufferSize
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FileWatcher{
		files:    make(map[string]bool),
		watcher:  w,
		handler:  handler,
		debounce: opts.DebounceWindow,
		changes:  make(chan FileChange, opts.BufferSize),
		done:     make(chan struct{}),
	}
	for _, p := range paths {
		if strings.HasSuffix(p, ".py") {
			fw.files[filepath.Clean(p)] = true
			continue
		}
		fw.dirs = append(fw.dirs, p)
	}
	return fw, nil
}

// Start begins watching. It returns after the watch list is registered;
// events are processed in background goroutines until Stop or ctx ends.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	for _, dir := range w.dirs {
		if err := w.addRecursive(dir); err != nil {
			return err
		}
	}
	for file := range w.files {
		if err := w.watcher.Add(filepath.Dir(file)); err != nil {
			return err
		}
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *FileWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.closed = true
		w.mu.Unlock()
	})
}

// IsWatching returns true if the watcher is currently active.
func (w *FileWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// addRecursive adds a directory and its importable subdirectories.
func (w *FileWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__pycache__"
}

// relevant reports whether an event path is a watched Python source.
func (w *FileWatcher) relevant(path string) bool {
	if !strings.HasSuffix(path, ".py") {
		return false
	}
	if len(w.files) > 0 && w.files[filepath.Clean(path)] {
		return true
	}
	for _, dir := range w.dirs {
		rel, err := filepath.Rel(dir, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		for _, part := range strings.Split(filepath.Dir(rel), string(filepath.Separator)) {
			if part != "." && skipDir(part) {
				return false
			}
		}
		return true
	}
	return false
}

// processEvents converts fsnotify events and feeds the debouncer.
func (w *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skipDir(info.Name()) {
					if err := w.addRecursive(event.Name); err != nil {
						slog.Debug("watch new directory failed",
							slog.String("path", event.Name), slog.Any("error", err))
					}
				}
			}

			if !w.relevant(event.Name) {
				continue
			}
			change := FileChange{Path: event.Name, Op: convertOp(event.Op), Time: time.Now()}
			select {
			case w.changes <- change:
			default:
				slog.Warn("file watcher buffer full, dropping change", slog.String("path", event.Name))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("file watcher error", slog.Any("error", err))
		}
	}
}

// convertOp converts fsnotify.Op to FileOp.
func convertOp(op fsnotify.Op) FileOp {
	switch {
	case op.Has(fsnotify.Create):
		return FileOpCreate
	case op.Has(fsnotify.Remove):
		return FileOpRemove
	case op.Has(fsnotify.Rename):
		return FileOpRename
	default:
		return FileOpWrite
	}
}

// debounceLoop batches changes and calls the handler after the window.
func (w *FileWatcher) debounceLoop(ctx context.Context) {
	var batch []FileChange
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			w.mu.RLock()
			handler := w.handler
			w.mu.RUnlock()
			if deduped := dedupeChanges(batch); len(deduped) > 0 && handler != nil {
				handler(deduped)
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case change := <-w.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupeChanges keeps the latest change per path, sorted by path.
func dedupeChanges(changes []FileChange) []FileChange {
	latest := make(map[string]FileChange, len(changes))
	for _, c := range changes {
		latest[c.Path] = c
	}
	out := make([]FileChange, 0, len(latest))
	for _, c := range latest {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// SetHandler changes the change handler.
func (w *FileWatcher) SetHandler(handler FileChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
}
