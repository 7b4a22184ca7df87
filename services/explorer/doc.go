// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package explorer runs static analyses of Python libraries and serves them
// over HTTP.
//
// Analyzer.Analyze is the entry point: it resolves the library to source
// roots, reads and parses every file in parallel, and hands the records to
// graph.Builder. Service adds a run cache, badger snapshots and live watch
// sessions on top, and Handlers exposes all of it under /v1/explorer.
//
// # Thread Safety
//
// Analyzer, Service and Handlers are safe for concurrent use.
package explorer
