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
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/libexplorer/services/explorer/graph"
)

func TestService_RunCacheEviction(t *testing.T) {
	site := writeTree(t, fixtureLibrary)
	cfg := DefaultServiceConfig()
	cfg.RunCacheSize = 2
	svc := NewService(newTestAnalyzer(site), nil, slog.Default(), cfg)

	var ids []string
	for range 3 {
		r, err := svc.Analyze(t.Context(), svc.NewRequest("mylib"))
		require.NoError(t, err)
		ids = append(ids, r.RunID)
	}

	assert.Equal(t, 2, svc.CachedRuns())
	_, err := svc.Run(ids[0])
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = svc.Run(ids[2])
	assert.NoError(t, err)
}

func TestService_SnapshotsDisabled(t *testing.T) {
	svc := NewService(newTestAnalyzer(t.TempDir()), nil, nil, ServiceConfig{})

	assert.False(t, svc.SnapshotsEnabled())
	_, err := svc.SaveSnapshot(t.Context(), "", "mylib", "")
	assert.ErrorIs(t, err, ErrSnapshotsDisabled)
	_, err = svc.ListSnapshots(t.Context(), "", 10)
	assert.ErrorIs(t, err, ErrSnapshotsDisabled)
	_, _, err = svc.LoadSnapshot(t.Context(), "x")
	assert.ErrorIs(t, err, ErrSnapshotsDisabled)
	assert.ErrorIs(t, svc.DeleteSnapshot(t.Context(), "x"), ErrSnapshotsDisabled)
	_, _, err = svc.DiffSnapshots(t.Context(), "a", "b", false)
	assert.ErrorIs(t, err, ErrSnapshotsDisabled)
}

func TestService_Watch(t *testing.T) {
	site := writeTree(t, fixtureLibrary)
	cfg := DefaultServiceConfig()
	cfg.WatchDebounce = 50 * time.Millisecond
	svc := NewService(newTestAnalyzer(site), nil, slog.Default(), cfg)

	type event struct {
		result  *graph.Result
		changes []graph.FileChange
	}
	events := make(chan event, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Watch(ctx, svc.NewRequest("mylib"), func(r *graph.Result, changes []graph.FileChange) {
			events <- event{r, changes}
		})
	}()

	var first event
	select {
	case first = <-events:
	case <-time.After(10 * time.Second):
		t.Fatal("no initial run")
	}
	assert.Nil(t, first.changes)
	_, ok := first.result.NodeByPath("mylib.util.added", graph.NodeFunction)
	assert.False(t, ok)

	util := filepath.Join(site, "mylib", "util.py")
	require.NoError(t, os.WriteFile(util, []byte("def fmt(x):\n    return str(x)\n\ndef added():\n    pass\n"), 0o644))

	var second event
	select {
	case second = <-events:
	case <-time.After(10 * time.Second):
		t.Fatal("no re-run after change")
	}
	require.NotEmpty(t, second.changes)
	assert.Equal(t, util, second.changes[0].Path)
	_, ok = second.result.NodeByPath("mylib.util.added", graph.NodeFunction)
	assert.True(t, ok)
	assert.NotEqual(t, first.result.RunID, second.result.RunID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestService_WatchUnresolved(t *testing.T) {
	svc := NewService(newTestAnalyzer(t.TempDir()), nil, slog.Default(), DefaultServiceConfig())

	err := svc.Watch(t.Context(), svc.NewRequest("missing_lib"), func(*graph.Result, []graph.FileChange) {
		t.Error("callback must not run")
	})
	assert.Error(t, err)

	err = svc.Watch(t.Context(), svc.NewRequest(""), func(*graph.Result, []graph.FileChange) {})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
