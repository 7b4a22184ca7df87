// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for Python parsing.
var (
	tracer = otel.Tracer("aleutian.explorer.ast")
	meter  = otel.Meter("aleutian.explorer.ast")
)

var (
	parseLatency         metric.Float64Histogram
	parseTotal           metric.Int64Counter
	definitionsExtracted metric.Int64Histogram
	callSitesExtracted   metric.Int64Histogram
	parseErrors          metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"explorer_parse_duration_seconds",
			metric.WithDescription("Duration of Python file parsing"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"explorer_parse_total",
			metric.WithDescription("Total number of parse operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		definitionsExtracted, err = meter.Int64Histogram(
			"explorer_definitions_extracted",
			metric.WithDescription("Number of class and callable definitions per file"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		callSitesExtracted, err = meter.Int64Histogram(
			"explorer_call_sites_extracted",
			metric.WithDescription("Number of call sites recorded per file"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseErrors, err = meter.Int64Counter(
			"explorer_parse_errors_total",
			metric.WithDescription("Total number of failed parses"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordParseMetrics records metrics for a parse operation.
//
// Parameters:
//   - ctx: Context for metric recording
//   - duration: How long the parse took
//   - definitionCount: Number of definitions extracted
//   - callCount: Number of call sites recorded
//   - success: Whether the parse succeeded
func recordParseMetrics(ctx context.Context, duration time.Duration, definitionCount, callCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("language", "python"),
		attribute.Bool("success", success),
	)

	parseLatency.Record(ctx, duration.Seconds(), attrs)
	parseTotal.Add(ctx, 1, attrs)

	if success {
		definitionsExtracted.Record(ctx, int64(definitionCount))
		callSitesExtracted.Record(ctx, int64(callCount))
	} else {
		parseErrors.Add(ctx, 1)
	}
}

// startParseSpan creates a span for a parse operation.
//
// Returns:
//   - ctx: Context with span
//   - span: The created span (caller must call span.End())
func startParseSpan(ctx context.Context, filePath, module string, contentSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "PythonParser.Parse",
		trace.WithAttributes(
			attribute.String("ast.file", filePath),
			attribute.String("ast.module", module),
			attribute.Int("ast.content_size", contentSize),
		),
	)
}

// setParseSpanResult sets the result attributes on a parse span.
func setParseSpanResult(span trace.Span, definitionCount, importCount, callCount int) {
	span.SetAttributes(
		attribute.Int("ast.definition_count", definitionCount),
		attribute.Int("ast.import_count", importCount),
		attribute.Int("ast.call_count", callCount),
	)
}
