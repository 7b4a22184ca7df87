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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/libexplorer/services/explorer/graph"
)

const (
	watchWriteTimeout = 10 * time.Second
	watchPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWatch handles GET /v1/explorer/watch?library=NAME.
//
// Description:
//
//	Upgrades to a websocket and streams a WatchEvent for the initial run
//	and for every re-run after source changes. The first message is a
//	"session" event with the session id. The session ends when the client
//	closes the connection.
//
// Query Parameters:
//
//	library: Library to watch (required)
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleWatch(c *gin.Context) {
	logger := requestLogger(c, "HandleWatch")

	library := c.Query("library")
	if library == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "library parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer ws.Close()

	sessionID := uuid.NewString()
	logger = logger.With(slog.String("session_id", sessionID), slog.String("library", library))

	// The request context is not cancelled when a hijacked connection
	// closes, so the read loop ends the session.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev WatchEvent) bool {
		_ = ws.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
		if err := ws.WriteJSON(ev); err != nil {
			logger.Debug("watch stream write failed", slog.Any("error", err))
			cancel()
			return false
		}
		return true
	}
	if !send(WatchEvent{Type: "session", SessionID: sessionID}) {
		return
	}

	go func() {
		ticker := time.NewTicker(watchPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteTimeout)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	logger.Info("watch stream opened")
	err = h.svc.Watch(ctx, h.svc.NewRequest(library), func(result *graph.Result, changes []graph.FileChange) {
		summary := result.Summary
		send(WatchEvent{
			Type:      "run",
			SessionID: sessionID,
			RunID:     result.RunID,
			Summary:   &summary,
			Changed:   changedPaths(changes),
		})
	})
	if err != nil {
		logger.Warn("watch session failed", slog.Any("error", err))
		send(WatchEvent{Type: "error", SessionID: sessionID, Error: err.Error()})
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "watch failed"),
			time.Now().Add(watchWriteTimeout))
		return
	}
	logger.Info("watch stream closed")
}

func changedPaths(changes []graph.FileChange) []string {
	if len(changes) == 0 {
		return nil
	}
	paths := make([]string, 0, len(changes))
	for _, ch := range changes {
		paths = append(paths, ch.Path)
	}
	return paths
}
