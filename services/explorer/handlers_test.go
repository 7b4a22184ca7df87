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
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/libexplorer/services/explorer/graph"
)

type testServer struct {
	router *gin.Engine
	svc    *Service
	site   string
}

func newTestServer(t *testing.T, withSnapshots bool, limiter *rate.Limiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	site := writeTree(t, fixtureLibrary)
	var snapshots *graph.SnapshotManager
	if withSnapshots {
		db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		snapshots, err = graph.NewSnapshotManager(db, slog.Default())
		require.NoError(t, err)
	}

	svc := NewService(newTestAnalyzer(site), snapshots, slog.Default(), DefaultServiceConfig())
	return &testServer{
		router: NewRouter("explorer-test", NewHandlers(svc), limiter),
		svc:    svc,
		site:   site,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHandleAnalyze(t *testing.T) {
	s := newTestServer(t, false, nil)

	t.Run("result is cached by run id", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/v1/explorer/analyze", map[string]any{"library": "mylib"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		result := decode[graph.Result](t, w)
		assert.NotEmpty(t, result.RunID)
		assert.Equal(t, 3, result.Summary.FilesParsed)
		assert.NotEmpty(t, result.Nodes)

		w = s.do(t, http.MethodGet, "/v1/explorer/runs/"+result.RunID+"/summary", nil)
		require.Equal(t, http.StatusOK, w.Code)
		summary := decode[RunSummaryResponse](t, w)
		assert.Equal(t, result.RunID, summary.RunID)
		assert.Equal(t, result.Summary.Nodes, summary.Summary.Nodes)
		assert.Len(t, summary.Errors, 1)

		w = s.do(t, http.MethodGet, "/v1/explorer/runs/"+result.RunID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		again := decode[graph.Result](t, w)
		assert.Equal(t, len(result.Edges), len(again.Edges))
	})

	t.Run("unknown run", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/v1/explorer/runs/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "RUN_NOT_FOUND", decode[ErrorResponse](t, w).Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/v1/explorer/analyze", "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_BODY", decode[ErrorResponse](t, w).Code)
	})

	t.Run("empty library", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/v1/explorer/analyze", map[string]any{"library": ""})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_REQUEST", decode[ErrorResponse](t, w).Code)
	})

	t.Run("unresolved library is still 200", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/v1/explorer/analyze", map[string]any{"library": "not_installed"})
		require.Equal(t, http.StatusOK, w.Code)
		result := decode[graph.Result](t, w)
		assert.Empty(t, result.Nodes)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, graph.KindRootResolution, result.Errors[0].Kind)
	})

	t.Run("caps from body override defaults", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/v1/explorer/analyze", map[string]any{"library": "mylib", "max_files": 1})
		require.Equal(t, http.StatusOK, w.Code)
		result := decode[graph.Result](t, w)
		assert.True(t, result.Summary.Truncated)
	})
}

func TestSnapshotEndpoints(t *testing.T) {
	s := newTestServer(t, true, nil)

	w := s.do(t, http.MethodPost, "/v1/explorer/analyze", map[string]any{"library": "mylib"})
	require.Equal(t, http.StatusOK, w.Code)
	runID := decode[graph.Result](t, w).RunID

	w = s.do(t, http.MethodPost, "/v1/explorer/snapshots", SaveSnapshotRequest{RunID: runID, Label: "before"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	base := decode[graph.SnapshotMetadata](t, w)
	assert.Equal(t, runID, base.RunID)
	assert.Equal(t, "before", base.Label)

	w = s.do(t, http.MethodGet, "/v1/explorer/snapshots?library=mylib", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[ListSnapshotsResponse](t, w)
	require.Len(t, listed.Snapshots, 1)
	assert.Equal(t, base.SnapshotID, listed.Snapshots[0].SnapshotID)

	w = s.do(t, http.MethodGet, "/v1/explorer/snapshots/"+base.SnapshotID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	loaded := decode[LoadSnapshotResponse](t, w)
	assert.Equal(t, runID, loaded.Result.RunID)
	assert.Equal(t, base.NodeCount, len(loaded.Result.Nodes))

	util := filepath.Join(s.site, "mylib", "util.py")
	require.NoError(t, os.WriteFile(util, []byte("def fmt(x):\n    return str(x)\n\ndef extra():\n    pass\n"), 0o644))

	w = s.do(t, http.MethodPost, "/v1/explorer/snapshots", SaveSnapshotRequest{Library: "mylib"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	target := decode[graph.SnapshotMetadata](t, w)
	assert.NotEqual(t, base.SnapshotID, target.SnapshotID)

	w = s.do(t, http.MethodGet, "/v1/explorer/snapshots/diff?base="+base.SnapshotID+"&target="+target.SnapshotID+"&format=unified", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	d := decode[DiffResponse](t, w)
	assert.Equal(t, []string{"mylib.util.extra"}, d.Diff.NodesAdded)
	assert.Empty(t, d.Diff.NodesRemoved)
	assert.True(t, strings.Contains(d.Unified, "+node function mylib.util.extra"), d.Unified)

	w = s.do(t, http.MethodGet, "/v1/explorer/snapshots/diff?base="+base.SnapshotID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_PARAMETER", decode[ErrorResponse](t, w).Code)

	w = s.do(t, http.MethodDelete, "/v1/explorer/snapshots/"+base.SnapshotID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/v1/explorer/snapshots/"+base.SnapshotID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SNAPSHOT_NOT_FOUND", decode[ErrorResponse](t, w).Code)

	t.Run("save needs run or library", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/v1/explorer/snapshots", SaveSnapshotRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("save unknown run", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/v1/explorer/snapshots", SaveSnapshotRequest{RunID: "missing"})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "RUN_NOT_FOUND", decode[ErrorResponse](t, w).Code)
	})
}

func TestSnapshotEndpoints_Disabled(t *testing.T) {
	s := newTestServer(t, false, nil)

	for _, tc := range []struct {
		method, path string
		body         any
	}{
		{http.MethodGet, "/v1/explorer/snapshots", nil},
		{http.MethodGet, "/v1/explorer/snapshots/abc", nil},
		{http.MethodDelete, "/v1/explorer/snapshots/abc", nil},
		{http.MethodGet, "/v1/explorer/snapshots/diff?base=a&target=b", nil},
		{http.MethodPost, "/v1/explorer/snapshots", SaveSnapshotRequest{Library: "mylib"}},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := s.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			assert.Equal(t, "SNAPSHOTS_NOT_AVAILABLE", decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	s := newTestServer(t, false, rate.NewLimiter(rate.Every(time.Hour), 1))

	w := s.do(t, http.MethodPost, "/v1/explorer/analyze", map[string]any{"library": "mylib"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/v1/explorer/analyze", map[string]any{"library": "mylib"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decode[ErrorResponse](t, w).Code)

	// Other endpoints are not limited.
	w = s.do(t, http.MethodGet, "/v1/explorer/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, true, nil)

	w := s.do(t, http.MethodGet, "/v1/explorer/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[HealthResponse](t, w)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.SnapshotsEnabled)
	assert.Equal(t, 0, health.CachedRuns)
}

func TestRequestIDMiddleware(t *testing.T) {
	s := newTestServer(t, false, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/explorer/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = s.do(t, http.MethodGet, "/v1/explorer/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
