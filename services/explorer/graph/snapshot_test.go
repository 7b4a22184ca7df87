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
	"log/slog"
	"os"
	"testing"

	"github.com/dgraph-io/badger/v4"
)

// newTestDB creates an in-memory BadgerDB for testing.
func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("failed to open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestSnapshotManager creates a SnapshotManager with in-memory DB.
func newTestSnapshotManager(t *testing.T) *SnapshotManager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	mgr, err := NewSnapshotManager(newTestDB(t), logger)
	if err != nil {
		t.Fatalf("NewSnapshotManager: %v", err)
	}
	return mgr
}

func buildSnapshotTestResult(t *testing.T) *Result {
	t.Helper()
	result, _ := buildFixture(t, []string{"pkg"}, richFixture, DefaultLimits())
	return result
}

func TestNewSnapshotManager_NilArgs(t *testing.T) {
	if _, err := NewSnapshotManager(nil, slog.Default()); err == nil {
		t.Error("expected error for nil DB")
	}
	if _, err := NewSnapshotManager(newTestDB(t), nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestSnapshotManager_SaveAndLoad(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()
	result := buildSnapshotTestResult(t)

	meta, err := mgr.Save(ctx, result, "baseline")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(meta.SnapshotID) != 16 {
		t.Errorf("SnapshotID length = %d, want 16", len(meta.SnapshotID))
	}
	if meta.Library != "pkg" || meta.Label != "baseline" {
		t.Errorf("unexpected metadata: %+v", meta)
	}
	if meta.NodeCount != len(result.Nodes) || meta.EdgeCount != len(result.Edges) {
		t.Errorf("counts = %d/%d, want %d/%d", meta.NodeCount, meta.EdgeCount, len(result.Nodes), len(result.Edges))
	}
	if meta.SchemaVersion != ResultSchemaVersion {
		t.Errorf("SchemaVersion = %q", meta.SchemaVersion)
	}

	loaded, loadedMeta, err := mgr.Load(ctx, meta.SnapshotID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loadedMeta.ContentHash != meta.ContentHash {
		t.Errorf("ContentHash mismatch")
	}
	if got, want := ResultHash(loaded), ResultHash(result); got != want {
		t.Errorf("ResultHash = %s, want %s", got, want)
	}
	if loaded.RunID != result.RunID {
		t.Errorf("RunID = %q, want %q", loaded.RunID, result.RunID)
	}
	if loaded.Summary.UnresolvedCalls != result.Summary.UnresolvedCalls {
		t.Errorf("summary not preserved")
	}

	latest, _, err := mgr.LoadLatest(ctx, "pkg")
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if len(latest.Nodes) != len(result.Nodes) {
		t.Errorf("LoadLatest nodes = %d", len(latest.Nodes))
	}
}

func TestSnapshotManager_NotFound(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()

	if _, _, err := mgr.Load(ctx, "deadbeefdeadbeef"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Load err = %v, want ErrSnapshotNotFound", err)
	}
	if _, _, err := mgr.LoadLatest(ctx, "nothing"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("LoadLatest err = %v, want ErrSnapshotNotFound", err)
	}
	if err := mgr.Delete(ctx, "deadbeefdeadbeef"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("Delete err = %v, want ErrSnapshotNotFound", err)
	}
	if _, err := mgr.Save(ctx, nil, ""); !errors.Is(err, ErrNilResult) {
		t.Errorf("Save(nil) err = %v", err)
	}
}

func TestSnapshotManager_ListAndDelete(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()
	result := buildSnapshotTestResult(t)

	first, err := mgr.Save(ctx, result, "one")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	other := EmptyResult("run-other", "otherlib", nil)
	if _, err := mgr.Save(ctx, other, ""); err != nil {
		t.Fatalf("Save other: %v", err)
	}
	result.RunID = "run-second"
	second, err := mgr.Save(ctx, result, "two")
	if err != nil {
		t.Fatalf("Save second: %v", err)
	}

	all, err := mgr.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List all = %d, want 3", len(all))
	}

	pkgOnly, err := mgr.List(ctx, "pkg", 0)
	if err != nil {
		t.Fatalf("List pkg: %v", err)
	}
	if len(pkgOnly) != 2 {
		t.Fatalf("List pkg = %d, want 2", len(pkgOnly))
	}

	limited, err := mgr.List(ctx, "", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("List limit 1 = %d, %v", len(limited), err)
	}

	// Deleting a non-latest snapshot keeps the latest pointer.
	if err := mgr.Delete(ctx, first.SnapshotID); err != nil {
		t.Fatalf("Delete first: %v", err)
	}
	_, latestMeta, err := mgr.LoadLatest(ctx, "pkg")
	if err != nil {
		t.Fatalf("LoadLatest after delete: %v", err)
	}
	if latestMeta.SnapshotID != second.SnapshotID {
		t.Errorf("latest = %s, want %s", latestMeta.SnapshotID, second.SnapshotID)
	}

	// Deleting the latest removes the pointer.
	if err := mgr.Delete(ctx, second.SnapshotID); err != nil {
		t.Fatalf("Delete second: %v", err)
	}
	if _, _, err := mgr.LoadLatest(ctx, "pkg"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("LoadLatest err = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSnapshotManager_Corrupt(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()

	meta, err := mgr.Save(ctx, buildSnapshotTestResult(t), "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	err = mgr.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(dataKey(meta.LibraryHash, meta.SnapshotID)), []byte("garbage"))
	})
	if err != nil {
		t.Fatalf("corrupting: %v", err)
	}

	if _, _, err := mgr.Load(ctx, meta.SnapshotID); !errors.Is(err, ErrSnapshotCorrupt) {
		t.Errorf("Load err = %v, want ErrSnapshotCorrupt", err)
	}
}
