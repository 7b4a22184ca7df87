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
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/libexplorer/services/explorer/graph"
)

// Handlers serves the /v1/explorer API.
type Handlers struct {
	svc *Service
}

// NewHandlers creates Handlers for svc.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleAnalyze handles POST /v1/explorer/analyze.
//
// Description:
//
//	Runs an analysis and returns the full result. Fields absent from the
//	body keep the server's configured defaults. The result is cached by
//	run id for the /runs endpoints.
//
// Request Body:
//
//	Request (library required)
//
// Response:
//
//	200 OK: graph.Result, also when the library did not resolve (the
//	        failure is in result.errors)
//	400 Bad Request: Malformed body or invalid request
//	429 Too Many Requests: Rate limit exceeded
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	logger := requestLogger(c, "HandleAnalyze")

	req := h.svc.NewRequest("")
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid request body",
			Code:    "INVALID_BODY",
			Details: err.Error(),
		})
		return
	}

	result, err := h.svc.Analyze(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger.Info("analysis served",
		slog.String("run_id", result.RunID),
		slog.String("library", req.Library),
		slog.Int("nodes", result.Summary.Nodes),
	)
	c.JSON(http.StatusOK, result)
}

// HandleGetRun handles GET /v1/explorer/runs/:id.
//
// Response:
//
//	200 OK: graph.Result
//	404 Not Found: Run not cached
func (h *Handlers) HandleGetRun(c *gin.Context) {
	result, ok := h.cachedRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleGetRunSummary handles GET /v1/explorer/runs/:id/summary.
func (h *Handlers) HandleGetRunSummary(c *gin.Context) {
	result, ok := h.cachedRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, RunSummaryResponse{
		RunID:   result.RunID,
		Summary: result.Summary,
		Errors:  result.Errors,
	})
}

// cachedRun writes a 404 and returns false when the run is not cached.
func (h *Handlers) cachedRun(c *gin.Context) (*graph.Result, bool) {
	result, err := h.svc.Run(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "run not found",
			Code:  "RUN_NOT_FOUND",
		})
		return nil, false
	}
	return result, true
}

// HandleSaveSnapshot handles POST /v1/explorer/snapshots.
//
// Description:
//
//	Persists a cached run (run_id) or a fresh analysis (library).
//
// Response:
//
//	200 OK: graph.SnapshotMetadata
//	400 Bad Request: Neither run_id nor library given
//	404 Not Found: run_id not cached
//	503 Service Unavailable: Snapshot store not configured
func (h *Handlers) HandleSaveSnapshot(c *gin.Context) {
	logger := requestLogger(c, "HandleSaveSnapshot")

	var req SaveSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid request body",
			Code:    "INVALID_BODY",
			Details: err.Error(),
		})
		return
	}

	meta, err := h.svc.SaveSnapshot(c.Request.Context(), req.RunID, req.Library, req.Label)
	if err != nil {
		h.writeSnapshotError(c, logger, "snapshot save failed", err)
		return
	}

	logger.Info("snapshot saved",
		slog.String("snapshot_id", meta.SnapshotID),
		slog.Int("node_count", meta.NodeCount),
	)
	c.JSON(http.StatusOK, meta)
}

// HandleListSnapshots handles GET /v1/explorer/snapshots.
//
// Query Parameters:
//
//	library: Only snapshots of this library (optional)
//	limit: Maximum results, default 100 (optional)
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	logger := requestLogger(c, "HandleListSnapshots")

	limit := graph.DefaultSnapshotListLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	snapshots, err := h.svc.ListSnapshots(c.Request.Context(), c.Query("library"), limit)
	if err != nil {
		h.writeSnapshotError(c, logger, "snapshot list failed", err)
		return
	}
	if snapshots == nil {
		snapshots = []*graph.SnapshotMetadata{}
	}
	c.JSON(http.StatusOK, ListSnapshotsResponse{Snapshots: snapshots})
}

// HandleLoadSnapshot handles GET /v1/explorer/snapshots/:id.
func (h *Handlers) HandleLoadSnapshot(c *gin.Context) {
	logger := requestLogger(c, "HandleLoadSnapshot")

	result, meta, err := h.svc.LoadSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeSnapshotError(c, logger, "snapshot load failed", err)
		return
	}
	c.JSON(http.StatusOK, LoadSnapshotResponse{Metadata: meta, Result: result})
}

// HandleDeleteSnapshot handles DELETE /v1/explorer/snapshots/:id.
//
// Response:
//
//	200 OK: {"deleted": true}
//	404 Not Found: Snapshot not found
func (h *Handlers) HandleDeleteSnapshot(c *gin.Context) {
	logger := requestLogger(c, "HandleDeleteSnapshot")

	snapshotID := c.Param("id")
	if err := h.svc.DeleteSnapshot(c.Request.Context(), snapshotID); err != nil {
		h.writeSnapshotError(c, logger, "snapshot delete failed", err)
		return
	}
	logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// HandleDiffSnapshots handles GET /v1/explorer/snapshots/diff.
//
// Query Parameters:
//
//	base: Base snapshot id (required)
//	target: Target snapshot id (required)
//	format: "unified" adds a unified text diff (optional)
func (h *Handlers) HandleDiffSnapshots(c *gin.Context) {
	logger := requestLogger(c, "HandleDiffSnapshots")

	baseID, targetID := c.Query("base"), c.Query("target")
	if baseID == "" || targetID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "base and target parameters are required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	d, unified, err := h.svc.DiffSnapshots(c.Request.Context(), baseID, targetID, c.Query("format") == "unified")
	if err != nil {
		h.writeSnapshotError(c, logger, "snapshot diff failed", err)
		return
	}
	c.JSON(http.StatusOK, DiffResponse{Diff: d, Unified: unified})
}

// HandleHealth handles GET /v1/explorer/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:           "ok",
		CachedRuns:       h.svc.CachedRuns(),
		SnapshotsEnabled: h.svc.SnapshotsEnabled(),
	})
}

// writeSnapshotError maps service errors to status codes.
func (h *Handlers) writeSnapshotError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status, code := http.StatusInternalServerError, "SNAPSHOT_FAILED"
	switch {
	case errors.Is(err, ErrSnapshotsDisabled):
		status, code = http.StatusServiceUnavailable, "SNAPSHOTS_NOT_AVAILABLE"
	case errors.Is(err, graph.ErrSnapshotNotFound):
		status, code = http.StatusNotFound, "SNAPSHOT_NOT_FOUND"
	case errors.Is(err, ErrRunNotFound):
		status, code = http.StatusNotFound, "RUN_NOT_FOUND"
	case errors.Is(err, ErrInvalidRequest):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	}
	if status >= http.StatusInternalServerError {
		logger.Error(msg, slog.Any("error", err))
	} else {
		logger.Warn(msg, slog.Any("error", err))
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}
