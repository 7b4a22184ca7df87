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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/libexplorer/services/explorer/graph"
)

var tracer = otel.Tracer("aleutian.explorer")

// Prometheus run metrics, registered with the default registry and served
// on /metrics next to the OTel exporter's instruments.
var (
	analysisRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "analysis",
		Name:      "runs_total",
		Help:      "Analysis runs by outcome (ok, partial, failed).",
	}, []string{"outcome"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "explorer",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Wall time of analysis runs.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	analysisFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "analysis",
		Name:      "files_total",
		Help:      "Files seen by analysis runs, by state (discovered, parsed).",
	}, []string{"state"})

	analysisTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "explorer",
		Subsystem: "analysis",
		Name:      "truncated_total",
		Help:      "Analysis runs cut short by max_files or max_edges.",
	})

	watchSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "explorer",
		Subsystem: "watch",
		Name:      "sessions_active",
		Help:      "Open watch streams.",
	})
)

// runOutcome classifies a finished result.
func runOutcome(r *graph.Result) string {
	switch {
	case r.Summary.FilesParsed == 0 && len(r.Errors) > 0:
		return "failed"
	case len(r.Errors) > 0 || r.Summary.Truncated:
		return "partial"
	default:
		return "ok"
	}
}

func recordRunMetrics(r *graph.Result, dur time.Duration) {
	analysisRuns.WithLabelValues(runOutcome(r)).Inc()
	analysisDuration.Observe(dur.Seconds())
	analysisFiles.WithLabelValues("discovered").Add(float64(r.Summary.FilesDiscovered))
	analysisFiles.WithLabelValues("parsed").Add(float64(r.Summary.FilesParsed))
	if r.Summary.Truncated {
		analysisTruncated.Inc()
	}
}

func startAnalyzeSpan(ctx context.Context, req Request) (context.Context, trace.Span) {
	return tracer.Start(ctx, "explorer.Analyze",
		trace.WithAttributes(
			attribute.String("library", req.Library),
			attribute.Int("max_files", req.MaxFiles),
			attribute.Int("max_edges", req.MaxEdges),
		),
	)
}

func endAnalyzeSpan(span trace.Span, r *graph.Result) {
	span.SetAttributes(
		attribute.String("run_id", r.RunID),
		attribute.Int("files.discovered", r.Summary.FilesDiscovered),
		attribute.Int("files.parsed", r.Summary.FilesParsed),
		attribute.Int("nodes", r.Summary.Nodes),
		attribute.Int("edges", r.Summary.Edges),
		attribute.Int("errors", r.Summary.Errors),
		attribute.Bool("truncated", r.Summary.Truncated),
	)
	if runOutcome(r) == "failed" {
		span.SetStatus(codes.Error, "no file analysed")
	}
}
