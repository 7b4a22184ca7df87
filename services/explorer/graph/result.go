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

import "fmt"

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageDiscovery Stage = "discovery"
	StageRead      Stage = "read"
	StageParse     Stage = "parse"
	StageResolve   Stage = "resolve"
)

// ErrorKind classifies an ErrorRecord.
type ErrorKind string

const (
	KindRootResolution ErrorKind = "root_resolution"
	KindFileRead       ErrorKind = "file_read"
	KindParse          ErrorKind = "parse"
	KindCancelled      ErrorKind = "cancelled"
)

// ErrorRecord is a structured, non-fatal error collected during a run.
type ErrorRecord struct {
	Stage   Stage     `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	File    string    `json:"file,omitempty"`
	Module  string    `json:"module,omitempty"`
	Line    int       `json:"line,omitempty"`
	Message string    `json:"message"`
}

// String formats the record as "stage/kind file:line: message".
func (e ErrorRecord) String() string {
	loc := e.File
	if loc == "" {
		loc = e.Module
	}
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	if loc == "" {
		return fmt.Sprintf("%s/%s: %s", e.Stage, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s/%s %s: %s", e.Stage, e.Kind, loc, e.Message)
}

// Summary aggregates counts for a run.
type Summary struct {
	Library           string   `json:"library"`
	RootModules       []string `json:"root_modules"`
	FilesDiscovered   int      `json:"files_discovered"`
	FilesParsed       int      `json:"files_parsed"`
	Modules           int      `json:"modules"`
	Classes           int      `json:"classes"`
	Functions         int      `json:"functions"`
	Methods           int      `json:"methods"`
	Properties        int      `json:"properties"`
	External          int      `json:"external"`
	Nodes             int      `json:"nodes"`
	Edges             int      `json:"edges"`
	Errors            int      `json:"errors"`
	Truncated         bool     `json:"truncated"`
	ExternalDropped   int      `json:"external_dropped"`
	UnresolvedImports int      `json:"unresolved_imports"`
	UnresolvedCalls   int      `json:"unresolved_calls"`
	DurationMilli     int64    `json:"duration_ms"`
}

// Result is the outcome of one analysis run.
//
// Nodes, Edges and Errors are always non-nil. Inspecting Errors and
// Summary.Truncated is the only way to detect a partial result.
type Result struct {
	RunID   string        `json:"run_id"`
	Nodes   []*Node       `json:"nodes"`
	Edges   []Edge        `json:"edges"`
	Errors  []ErrorRecord `json:"errors"`
	Summary Summary       `json:"summary"`
}

// NodeByID returns the node with the given id.
func (r *Result) NodeByID(id string) (*Node, bool) {
	for _, n := range r.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// NodeByPath returns the first node with the given qualified path and kind.
func (r *Result) NodeByPath(path string, kind NodeKind) (*Node, bool) {
	for _, n := range r.Nodes {
		if n.QualifiedPath == path && n.Kind == kind {
			return n, true
		}
	}
	return nil, false
}

// EdgesOf returns the edges with the given relation.
func (r *Result) EdgesOf(rel Relation) []Edge {
	var out []Edge
	for _, e := range r.Edges {
		if e.Relation == rel {
			out = append(out, e)
		}
	}
	return out
}

// EmptyResult returns a result with no nodes or edges carrying the given
// errors. Used when the run ends before any module is collected.
func EmptyResult(runID, library string, errs []ErrorRecord) *Result {
	if errs == nil {
		errs = []ErrorRecord{}
	}
	return &Result{
		RunID:  runID,
		Nodes:  []*Node{},
		Edges:  []Edge{},
		Errors: errs,
		Summary: Summary{
			Library:     library,
			RootModules: []string{},
			Errors:      len(errs),
		},
	}
}
