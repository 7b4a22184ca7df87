// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	cfg := DefaultConfig()

	if cfg.ServiceName != "libexplorer" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.TraceExporter != ExporterNone || cfg.MetricExporter != ExporterNone {
		t.Errorf("exporters = %q/%q, want none/none", cfg.TraceExporter, cfg.MetricExporter)
	}
	if cfg.OTLPEndpoint != "localhost:4317" {
		t.Errorf("OTLPEndpoint = %q", cfg.OTLPEndpoint)
	}

	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	if got := DefaultConfig().TraceExporter; got != "stdout" {
		t.Errorf("env override TraceExporter = %q", got)
	}
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	if _, err := Init(nil, DefaultConfig()); err != ErrNilContext {
		t.Errorf("Init(nil) error = %v, want %v", err, ErrNilContext)
	}
}

func TestInit_NoopExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = ExporterNone

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInit_StdoutExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterStdout
	cfg.MetricExporter = ExporterStdout

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInit_Prometheus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = ExporterPrometheus

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	if MetricsHandler() == nil {
		t.Error("MetricsHandler() = nil after prometheus init")
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "zipkin"

	if _, err := Init(context.Background(), cfg); !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("error = %v, want ErrUnknownExporter", err)
	}

	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = "graphite"
	if _, err := Init(context.Background(), cfg); !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("error = %v, want ErrUnknownExporter", err)
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json at warn", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(&buf, "warn", "json")
		if err != nil {
			t.Fatalf("NewLogger: %v", err)
		}
		logger.Info("hidden")
		logger.Warn("shown", slog.String("k", "v"))
		out := buf.String()
		if strings.Contains(out, "hidden") {
			t.Errorf("info line written at warn level: %s", out)
		}
		if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
			t.Errorf("unexpected output: %s", out)
		}
	})

	t.Run("bad level", func(t *testing.T) {
		if _, err := NewLogger(&bytes.Buffer{}, "loud", "text"); err == nil {
			t.Error("expected error for bad level")
		}
	})

	t.Run("bad format", func(t *testing.T) {
		if _, err := NewLogger(&bytes.Buffer{}, "info", "xml"); !errors.Is(err, ErrUnknownLogFormat) {
			t.Errorf("error = %v, want ErrUnknownLogFormat", err)
		}
	})
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	LoggerWithTrace(context.Background(), logger).Info("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("trace_id without span: %s", buf.String())
	}

	buf.Reset()
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	LoggerWithTrace(ctx, logger).Info("with span")
	if !strings.Contains(buf.String(), sc.TraceID().String()) {
		t.Errorf("missing trace_id: %s", buf.String())
	}

	if LoggerWithTrace(context.Background(), nil) == nil {
		t.Error("nil logger should fall back to default")
	}
}
