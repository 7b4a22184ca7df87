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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileOp_String(t *testing.T) {
	tests := []struct {
		op   FileOp
		want string
	}{
		{FileOpCreate, "create"},
		{FileOpWrite, "write"},
		{FileOpRemove, "remove"},
		{FileOpRename, "rename"},
		{FileOp(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("FileOp(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestDedupeChanges(t *testing.T) {
	now := time.Now()
	changes := []FileChange{
		{Path: "/p/b.py", Op: FileOpCreate, Time: now},
		{Path: "/p/a.py", Op: FileOpWrite, Time: now},
		{Path: "/p/b.py", Op: FileOpWrite, Time: now.Add(time.Millisecond)},
		{Path: "/p/a.py", Op: FileOpRemove, Time: now.Add(2 * time.Millisecond)},
	}

	got := dedupeChanges(changes)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Path != "/p/a.py" || got[0].Op != FileOpRemove {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Path != "/p/b.py" || got[1].Op != FileOpWrite {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestFileWatcher_Relevant(t *testing.T) {
	fw, err := NewFileWatcher([]string{"/lib/pkg", "/lib/single.py"}, func([]FileChange) {}, nil)
	if err != nil {
		t.Fatalf("NewFileWatcher: %v", err)
	}
	defer fw.Stop()

	tests := []struct {
		path string
		want bool
	}{
		{"/lib/pkg/mod.py", true},
		{"/lib/pkg/sub/deep.py", true},
		{"/lib/pkg/notes.txt", false},
		{"/lib/pkg/__pycache__/mod.py", false},
		{"/lib/pkg/.hidden/mod.py", false},
		{"/lib/single.py", true},
		{"/lib/other.py", false},
		{"/elsewhere/mod.py", false},
	}
	for _, tt := range tests {
		if got := fw.relevant(tt.path); got != tt.want {
			t.Errorf("relevant(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFileWatcher_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	batches := make(chan []FileChange, 10)
	fw, err := NewFileWatcher([]string{dir}, func(c []FileChange) { batches <- c }, &FileWatcherOptions{
		DebounceWindow: 50 * time.Millisecond,
		BufferSize:     16,
	})
	if err != nil {
		t.Fatalf("NewFileWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := fw.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !fw.IsWatching() {
		t.Error("expected IsWatching after Start")
	}
	if err := fw.Start(ctx); err != nil {
		t.Errorf("second Start: %v", err)
	}

	target := filepath.Join(dir, "sub", "mod.py")
	if err := os.WriteFile(target, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case batch := <-batches:
		if len(batch) != 1 || batch[0].Path != target {
			t.Errorf("batch = %+v, want one change to %s", batch, target)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change batch")
	}

	fw.Stop()
	fw.Stop()
	if fw.IsWatching() {
		t.Error("expected not watching after Stop")
	}
	if err := fw.Start(ctx); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("Start after Stop err = %v, want ErrWatcherClosed", err)
	}
}
