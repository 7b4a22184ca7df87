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
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/libexplorer/services/explorer/ast"
)

// Default analysis limits.
const (
	// DefaultMaxExternalPerModule caps external nodes per importing module.
	DefaultMaxExternalPerModule = 40

	// DefaultMaxEdges of 0 leaves non-contains edges unbounded.
	DefaultMaxEdges = 0
)

// Limits bounds the size of one run.
type Limits struct {
	// MaxExternalPerModule caps distinct external modules per importer.
	// Excess is counted in Summary.ExternalDropped. 0 means unbounded.
	MaxExternalPerModule int

	// MaxEdges caps non-contains edges. Reaching it sets Summary.Truncated.
	// 0 means unbounded.
	MaxEdges int
}

// DefaultLimits returns the default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxExternalPerModule: DefaultMaxExternalPerModule,
		MaxEdges:             DefaultMaxEdges,
	}
}

// AnalysisContext carries all mutable state of one analysis run.
//
// Description:
//
//	The context is created by the caller, threaded through every phase and
//	discarded once the Result is assembled. It owns the symbol table, the
//	node arena, the edge list and the error list. Nothing in the package
//	keeps state between runs.
//
// Thread Safety:
//
//	Not safe for concurrent use. Parse workers must produce ModuleRecords
//	independently and hand them to Build; only the merge goroutine writes.
type AnalysisContext struct {
	Library string
	RunID   string
	Limits  Limits

	// Symbols is populated during collection and frozen before resolution.
	Symbols *SymbolTable

	// RootModules are the top-level module names analysed, in root order.
	RootModules []string

	// FilesDiscovered and FilesParsed feed the summary.
	FilesDiscovered int
	FilesParsed     int

	nodes     []*Node
	nodeIndex map[string]*Node
	edges     []Edge
	edgeKeys  map[string]struct{}

	// budgetedEdges counts non-contains edges against Limits.MaxEdges.
	budgetedEdges int

	errors    []ErrorRecord
	truncated bool

	externalDropped   int
	unresolvedImports int
	unresolvedCalls   int

	startTime time.Time
}

// NewAnalysisContext creates the context for one run.
func NewAnalysisContext(library, runID string, limits Limits) *AnalysisContext {
	return &AnalysisContext{
		Library:   library,
		RunID:     runID,
		Limits:    limits,
		Symbols:   NewSymbolTable(),
		nodeIndex: make(map[string]*Node),
		edgeKeys:  make(map[string]struct{}),
		errors:    make([]ErrorRecord, 0),
		startTime: time.Now(),
	}
}

// RecordError appends a structured error. Never fatal.
func (a *AnalysisContext) RecordError(rec ErrorRecord) {
	a.errors = append(a.errors, rec)
}

// RecordFailure classifies err and records it against a file.
//
// *ast.ParseError keeps its line; ast.ErrFileTooLarge and
// ast.ErrInvalidContent are reported as parse errors.
func (a *AnalysisContext) RecordFailure(stage Stage, file, module string, err error) {
	rec := ErrorRecord{
		Stage:   stage,
		File:    file,
		Module:  module,
		Message: err.Error(),
	}
	var perr *ast.ParseError
	switch {
	case errors.As(err, &perr):
		rec.Stage = StageParse
		rec.Kind = KindParse
		rec.Line = perr.Line
		if perr.Message != "" {
			rec.Message = perr.Message
		}
	case errors.Is(err, ErrAnalysisCancelled):
		rec.Kind = KindCancelled
	case errors.Is(err, ast.ErrFileTooLarge), errors.Is(err, ast.ErrInvalidContent), errors.Is(err, ast.ErrParseFailed):
		rec.Stage = StageParse
		rec.Kind = KindParse
	case stage == StageDiscovery:
		rec.Kind = KindRootResolution
	default:
		rec.Kind = KindFileRead
	}
	a.RecordError(rec)
}

// MarkTruncated records that a cap cut the run short.
func (a *AnalysisContext) MarkTruncated() {
	a.truncated = true
}

// Truncated reports whether any cap was hit.
func (a *AnalysisContext) Truncated() bool {
	return a.truncated
}

// Errors returns the errors recorded so far.
func (a *AnalysisContext) Errors() []ErrorRecord {
	return a.errors
}

// NodeCount returns the number of nodes created so far.
func (a *AnalysisContext) NodeCount() int {
	return len(a.nodes)
}

// EdgeCount returns the number of edges created so far.
func (a *AnalysisContext) EdgeCount() int {
	return len(a.edges)
}

// node returns the node with the given id.
func (a *AnalysisContext) node(id string) (*Node, bool) {
	n, ok := a.nodeIndex[id]
	return n, ok
}

// uniqueID returns base, or base#2, base#3... if base is taken.
func (a *AnalysisContext) uniqueID(base string) string {
	if _, taken := a.nodeIndex[base]; !taken {
		return base
	}
	for i := 2; ; i++ {
		id := fmt.Sprintf("%s#%d", base, i)
		if _, taken := a.nodeIndex[id]; !taken {
			return id
		}
	}
}

// addNode stores n and, when it has a parent, its contains edge.
// The node id must already be unique.
func (a *AnalysisContext) addNode(n *Node) {
	a.nodes = append(a.nodes, n)
	a.nodeIndex[n.ID] = n
	if n.ParentID != "" {
		a.edges = append(a.edges, Edge{SourceID: n.ParentID, TargetID: n.ID, Relation: RelContains})
	}
}

// edgeBudgetLeft reports whether one more non-contains edge fits.
func (a *AnalysisContext) edgeBudgetLeft() bool {
	return a.Limits.MaxEdges <= 0 || a.budgetedEdges < a.Limits.MaxEdges
}

// addEdge adds a non-contains edge once.
//
// Outputs:
//   - bool: true if the edge was added. Duplicates return false without
//     touching the budget; a full budget returns false and marks the run
//     truncated.
func (a *AnalysisContext) addEdge(e Edge) bool {
	key := e.Key()
	if _, dup := a.edgeKeys[key]; dup {
		return false
	}
	if !a.edgeBudgetLeft() {
		a.truncated = true
		return false
	}
	a.edgeKeys[key] = struct{}{}
	a.edges = append(a.edges, e)
	a.budgetedEdges++
	return true
}
