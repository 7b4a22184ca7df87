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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("aleutian.explorer.graph")
	meter  = otel.Meter("aleutian.explorer.graph")
)

var (
	buildLatency    metric.Float64Histogram
	buildTotal      metric.Int64Counter
	buildNodes      metric.Int64Histogram
	buildEdges      metric.Int64Histogram
	callsResolved   metric.Int64Counter
	callsUnresolved metric.Int64Counter
	snapshotOps     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		if buildLatency, err = meter.Float64Histogram(
			"explorer_build_duration_seconds",
			metric.WithDescription("Duration of graph assembly"),
			metric.WithUnit("s"),
		); err != nil {
			metricsErr = err
			return
		}
		if buildTotal, err = meter.Int64Counter(
			"explorer_build_total",
			metric.WithDescription("Total number of graph builds"),
		); err != nil {
			metricsErr = err
			return
		}
		if buildNodes, err = meter.Int64Histogram(
			"explorer_build_nodes",
			metric.WithDescription("Nodes per built result"),
		); err != nil {
			metricsErr = err
			return
		}
		if buildEdges, err = meter.Int64Histogram(
			"explorer_build_edges",
			metric.WithDescription("Edges per built result"),
		); err != nil {
			metricsErr = err
			return
		}
		if callsResolved, err = meter.Int64Counter(
			"explorer_calls_resolved_total",
			metric.WithDescription("Call sites resolved to a calls edge"),
		); err != nil {
			metricsErr = err
			return
		}
		if callsUnresolved, err = meter.Int64Counter(
			"explorer_calls_unresolved_total",
			metric.WithDescription("Call sites with a caller but no resolvable callee"),
		); err != nil {
			metricsErr = err
			return
		}
		if snapshotOps, err = meter.Int64Counter(
			"explorer_snapshot_operations_total",
			metric.WithDescription("Snapshot store operations"),
		); err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a build.
func recordBuildMetrics(ctx context.Context, duration time.Duration, nodes, edges int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)
	buildNodes.Record(ctx, int64(nodes))
	buildEdges.Record(ctx, int64(edges))
}

// recordCallMetrics records call inference outcomes.
func recordCallMetrics(ctx context.Context, resolved, unresolved int) {
	if err := initMetrics(); err != nil {
		return
	}
	callsResolved.Add(ctx, int64(resolved))
	callsUnresolved.Add(ctx, int64(unresolved))
}

// recordSnapshotOp counts one snapshot operation.
func recordSnapshotOp(ctx context.Context, op string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	snapshotOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("success", success),
	))
}

// startBuildSpan creates the root span of a build.
func startBuildSpan(ctx context.Context, library string, moduleCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Builder.Build",
		trace.WithAttributes(
			attribute.String("graph.library", library),
			attribute.Int("graph.module_count", moduleCount),
		),
	)
}

// setBuildSpanResult sets the result attributes on a build span.
func setBuildSpanResult(span trace.Span, nodes, edges int, partial bool) {
	span.SetAttributes(
		attribute.Int("graph.node_count", nodes),
		attribute.Int("graph.edge_count", edges),
		attribute.Bool("graph.partial", partial),
	)
}

// startPhaseSpan creates a child span for one build phase.
func startPhaseSpan(ctx context.Context, phase ProgressPhase) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Builder."+phase.String())
}
