// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable applyEnv reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"EXPLORER_MAX_FILES", "EXPLORER_MAX_EXTERNAL_PER_MODULE", "EXPLORER_MAX_EDGES",
		"EXPLORER_WORKERS", "EXPLORER_SEARCH_PATHS", "EXPLORER_SERVER_ADDR",
		"EXPLORER_SNAPSHOT_DIR", "EXPLORER_LOG_LEVEL", "EXPLORER_LOG_FORMAT", "EXPLORER_ENV",
		"OTEL_TRACES_EXPORTER", "OTEL_METRICS_EXPORTER", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func writeOverlay(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "explorer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5000, cfg.Analysis.MaxFiles)
	assert.Equal(t, 40, cfg.Analysis.MaxExternalPerModule)
	assert.Equal(t, 0, cfg.Analysis.MaxEdges)
	assert.True(t, cfg.Analysis.InferCalls)
	assert.Equal(t, int64(10*1024*1024), cfg.Analysis.MaxFileSize)
	assert.Contains(t, cfg.Discovery.Exclude, "**/conftest.py")
	assert.True(t, cfg.Discovery.UsePythonPath)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "none", cfg.Telemetry.TraceExporter)
	assert.NotEmpty(t, cfg.Snapshots.Dir)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Analysis.MaxFiles)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoad_Overlay(t *testing.T) {
	clearEnv(t)
	path := writeOverlay(t, `
analysis:
  max_files: 10
  infer_calls: false
discovery:
  search_paths: [/opt/py]
  aliases:
    my-dist: mypkg
  exclude: []
watch:
  debounce: 2s
`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Analysis.MaxFiles)
	assert.False(t, cfg.Analysis.InferCalls)
	// Keys absent from the overlay keep their defaults.
	assert.Equal(t, 40, cfg.Analysis.MaxExternalPerModule)
	assert.Equal(t, []string{"/opt/py"}, cfg.Discovery.SearchPaths)
	assert.Equal(t, "mypkg", cfg.Discovery.Aliases["my-dist"])
	assert.NotNil(t, cfg.Discovery.Exclude)
	assert.Empty(t, cfg.Discovery.Exclude)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
}

func TestLoad_DefaultFileInWorkingDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("analysis:\n  max_edges: 77\n"), 0o644))
	t.Chdir(dir)

	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 77, cfg.Analysis.MaxEdges)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("EXPLORER_MAX_FILES", "12")
	t.Setenv("EXPLORER_SEARCH_PATHS", "/a"+string(os.PathListSeparator)+"/b")
	t.Setenv("EXPLORER_LOG_LEVEL", "DEBUG")
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")

	cfg, err := Load(context.Background(), writeOverlay(t, "analysis:\n  max_files: 99\n"))
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Analysis.MaxFiles)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Discovery.SearchPaths)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "stdout", cfg.Telemetry.TraceExporter)

	t.Setenv("EXPLORER_WORKERS", "many")
	_, err = Load(context.Background(), "")
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"negative max files", "analysis:\n  max_files: -1\n"},
		{"bad exporter", "telemetry:\n  trace_exporter: zipkin\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"bad addr", "server:\n  addr: nowhere\n"},
		{"empty search path", "discovery:\n  search_paths: ['']\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), writeOverlay(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(context.Background(), writeOverlay(t, "analysis: [\n"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestGetAndReset(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	Reset()
	t.Cleanup(Reset)

	first, err := Get(context.Background())
	require.NoError(t, err)
	second, err := Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)

	Reset()
	third, err := Get(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, third)

	//nolint:staticcheck // nil context is the case under test
	_, err = Get(nil)
	assert.Error(t, err)
}
