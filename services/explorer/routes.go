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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/libexplorer/services/explorer/telemetry"
)

// RegisterRoutes registers all explorer routes with the router.
//
// Description:
//
//	Registers all /v1/explorer/* endpoints with the given Gin router group.
//	limiter applies to the analyze endpoint only; nil disables it.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//	limiter - Rate limiter for POST /analyze (may be nil)
//
// Endpoints:
//
//	POST   /v1/explorer/analyze - Run an analysis
//	GET    /v1/explorer/runs/:id - Cached result
//	GET    /v1/explorer/runs/:id/summary - Cached summary and errors
//	POST   /v1/explorer/snapshots - Save a snapshot
//	GET    /v1/explorer/snapshots - List snapshots
//	GET    /v1/explorer/snapshots/diff - Compare two snapshots
//	GET    /v1/explorer/snapshots/:id - Load a snapshot
//	DELETE /v1/explorer/snapshots/:id - Delete a snapshot
//	GET    /v1/explorer/watch - Websocket stream of re-runs
//	GET    /v1/explorer/health - Health check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers, limiter *rate.Limiter) {
	explorer := rg.Group("/explorer")
	{
		explorer.POST("/analyze", RateLimitMiddleware(limiter), handlers.HandleAnalyze)

		explorer.GET("/runs/:id", handlers.HandleGetRun)
		explorer.GET("/runs/:id/summary", handlers.HandleGetRunSummary)

		// diff must be registered before the :id wildcard
		explorer.GET("/snapshots/diff", handlers.HandleDiffSnapshots)
		explorer.POST("/snapshots", handlers.HandleSaveSnapshot)
		explorer.GET("/snapshots", handlers.HandleListSnapshots)
		explorer.GET("/snapshots/:id", handlers.HandleLoadSnapshot)
		explorer.DELETE("/snapshots/:id", handlers.HandleDeleteSnapshot)

		explorer.GET("/watch", handlers.HandleWatch)
		explorer.GET("/health", handlers.HandleHealth)
	}
}

// NewRouter builds the engine used by `explorer serve`: recovery, otelgin
// tracing, request ids, the /v1 routes and /metrics.
func NewRouter(serviceName string, handlers *Handlers, limiter *rate.Limiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(RequestIDMiddleware())

	RegisterRoutes(router.Group("/v1"), handlers, limiter)

	metrics := telemetry.MetricsHandler()
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metrics))
	return router
}
