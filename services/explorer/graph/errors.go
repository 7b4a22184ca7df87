// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph assembles parsed Python modules into a containment tree,
// resolves imports and inheritance, and infers a best-effort call graph.
//
// # Lifecycle
//
// One analysis run proceeds through these steps:
//  1. Create an AnalysisContext for the run
//  2. Collect every ModuleRecord in discovery order (nodes, contains edges,
//     symbol table entries)
//  3. Freeze the symbol table
//  4. Resolve imports, then inheritance, then calls against the frozen table
//  5. Assemble a Result
//
// # Thread Safety
//
// An AnalysisContext has a single writer. The SymbolTable may be read from
// several goroutines once frozen. Results are immutable after assembly.
//
// # Limitations
//
// Call inference only resolves same-module bare calls and same-class
// self/cls calls. Cross-module calls, method resolution order and
// decorator-wrapped signatures stay unresolved.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrSymbolTableFrozen is returned when adding to a frozen symbol table.
	// Freeze() is the barrier between collection and resolution.
	ErrSymbolTableFrozen = errors.New("symbol table is frozen and cannot be modified")

	// ErrAnalysisCancelled is recorded when the context ends mid-run.
	ErrAnalysisCancelled = errors.New("analysis cancelled")

	// ErrSnapshotNotFound is returned when a snapshot ID has no stored data.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotCorrupt is returned when stored snapshot data fails its
	// integrity check or cannot be decoded.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")

	// ErrNilResult is returned when a nil result is passed where one is required.
	ErrNilResult = errors.New("result must not be nil")

	// ErrWatcherClosed is returned when using a stopped FileWatcher.
	ErrWatcherClosed = errors.New("file watcher is closed")
)
