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

import "github.com/AleutianAI/libexplorer/services/explorer/graph"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// RunSummaryResponse is returned by GET /runs/:id/summary.
type RunSummaryResponse struct {
	RunID   string              `json:"run_id"`
	Summary graph.Summary       `json:"summary"`
	Errors  []graph.ErrorRecord `json:"errors"`
}

// SaveSnapshotRequest is the body of POST /snapshots. One of RunID or
// Library is required; RunID wins when both are set.
type SaveSnapshotRequest struct {
	RunID   string `json:"run_id,omitempty"`
	Library string `json:"library,omitempty"`
	Label   string `json:"label,omitempty" binding:"max=256"`
}

// ListSnapshotsResponse is returned by GET /snapshots.
type ListSnapshotsResponse struct {
	Snapshots []*graph.SnapshotMetadata `json:"snapshots"`
}

// LoadSnapshotResponse is returned by GET /snapshots/:id.
type LoadSnapshotResponse struct {
	Metadata *graph.SnapshotMetadata `json:"metadata"`
	Result   *graph.Result           `json:"result"`
}

// DiffResponse is returned by GET /snapshots/diff.
type DiffResponse struct {
	Diff *graph.SnapshotDiff `json:"diff"`

	// Unified holds the unified text diff when format=unified.
	Unified string `json:"unified,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	CachedRuns       int    `json:"cached_runs"`
	SnapshotsEnabled bool   `json:"snapshots_enabled"`
}

// WatchEvent is one message on the watch stream.
type WatchEvent struct {
	// Type is "session", "run" or "error".
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Summary   *graph.Summary `json:"summary,omitempty"`
	Changed   []string       `json:"changed,omitempty"`
	Error     string         `json:"error,omitempty"`
}
