// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry sets up OpenTelemetry tracing and metrics for the
// library explorer, plus the slog handlers the CLI and server log through.
//
// The explorer packages use otel.Tracer and otel.Meter directly. Until Init
// installs real providers those calls go to the global no-op providers, so
// analysis works the same with telemetry disabled.
//
// # Exporters
//
// Traces: "otlp" (gRPC), "stdout" or "none".
// Metrics: "prometheus" (served by MetricsHandler), "stdout" or "none".
//
// # Environment Variables
//
//   - OTEL_TRACES_EXPORTER, OTEL_METRICS_EXPORTER: exporter selection
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - EXPLORER_ENV: deployment environment (default: development)
//
// # Thread Safety
//
// Init is called once at startup. Everything else is safe for concurrent use.
package telemetry
