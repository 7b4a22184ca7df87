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
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/libexplorer/services/explorer/ast"
)

// inferCallsPhase creates calls edges from recorded call sites.
//
// Description:
//
//	For each module, call sites were recorded at parse time with their
//	enclosing scope stack. The caller is the innermost function scope that
//	exists as a callable node. Bare calls resolve to top-level functions of
//	the same module; self/cls calls resolve to methods of the innermost
//	enclosing class. Everything else is counted as unresolved.
//
// Limitations:
//
//	No cross-module resolution, no inheritance lookup for self calls, no
//	tracking of local aliases. The call graph is an under-approximation.
func (b *Builder) inferCallsPhase(ctx context.Context, state *buildState) error {
	ctx, span := startPhaseSpan(ctx, ProgressPhaseCalls)
	defer span.End()

	resolved, unresolved, limited := 0, 0, 0
	for i, m := range state.modules {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		if m.Record == nil {
			continue
		}
		if m.Record.CallsLimited {
			limited++
			state.actx.MarkTruncated()
		}
		r, u := state.inferModuleCalls(m)
		resolved += r
		unresolved += u
		b.reportProgress(state, ProgressPhaseCalls, i+1)
	}

	state.actx.unresolvedCalls += unresolved
	span.SetAttributes(
		attribute.Int("calls.resolved", resolved),
		attribute.Int("calls.unresolved", unresolved),
		attribute.Int("calls.limited_files", limited),
	)
	recordCallMetrics(ctx, resolved, unresolved)
	return nil
}

// inferModuleCalls resolves the call sites of one module.
func (s *buildState) inferModuleCalls(m ModuleInput) (resolved, unresolved int) {
	symbols := s.actx.Symbols
	for _, call := range m.Record.Calls {
		callerID, callerDepth, ok := s.callerOf(m.Module, call.Scope)
		if !ok {
			continue
		}

		var calleeID string
		switch call.Shape {
		case ast.CallBare:
			if sym, found := symbols.Lookup(m.Module+"."+call.Name, NodeFunction); found {
				calleeID = sym.ID
			}
		case ast.CallSelf, ast.CallCls:
			if classPath, found := enclosingClass(call.Scope[:callerDepth]); found {
				path := m.Module + "." + classPath + "." + call.Name
				if sym, found := symbols.Lookup(path, NodeMethod); found {
					calleeID = sym.ID
				}
			}
		}
		if calleeID == "" {
			unresolved++
			continue
		}

		edge := Edge{
			SourceID: callerID,
			TargetID: calleeID,
			Relation: RelCalls,
			Location: &Location{File: m.File, Line: call.Line},
		}
		if s.actx.addEdge(edge) {
			resolved++
		}
	}
	return resolved, unresolved
}

// callerOf returns the node id of the innermost enclosing function scope
// that exists as a callable, and the index of that scope.
func (s *buildState) callerOf(module string, scope []ast.Scope) (string, int, bool) {
	for i := len(scope) - 1; i >= 0; i-- {
		if scope[i].Kind != ast.ScopeFunction {
			continue
		}
		path := module + "." + scopePath(scope[:i+1])
		if sym, ok := s.actx.Symbols.Lookup(path, NodeFunction, NodeMethod, NodeProperty); ok {
			return sym.ID, i, true
		}
	}
	return "", 0, false
}

// enclosingClass returns the dotted path of the innermost class scope.
func enclosingClass(scope []ast.Scope) (string, bool) {
	for i := len(scope) - 1; i >= 0; i-- {
		if scope[i].Kind == ast.ScopeClass {
			return scopePath(scope[:i+1]), true
		}
	}
	return "", false
}

// scopePath joins scope names with dots.
func scopePath(scope []ast.Scope) string {
	names := make([]string, len(scope))
	for i, sc := range scope {
		names[i] = sc.Name
	}
	return strings.Join(names, ".")
}
