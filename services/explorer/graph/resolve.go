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

// resolveImportsPhase creates imports and external_import edges.
//
// Description:
//
//	Runs after the freeze. Internal targets resolve by exact module match,
//	then by the longest dotted prefix naming a module. External modules
//	get one node per importing module, capped by
//	Limits.MaxExternalPerModule. The per-module binding map used by
//	resolveInheritsPhase is filled here.
//
// Limitations:
//
//	Names re-exported from a package __init__ resolve to the package, not
//	to the module that defines them.
func (b *Builder) resolveImportsPhase(ctx context.Context, state *buildState) error {
	ctx, span := startPhaseSpan(ctx, ProgressPhaseImports)
	defer span.End()

	actx := state.actx
	before := actx.budgetedEdges
	for i, m := range state.modules {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		if m.Record == nil {
			continue
		}
		sourceID, ok := state.moduleIDs[m.Module]
		if !ok {
			continue
		}
		for _, imp := range m.Record.Imports {
			state.resolveImport(m, sourceID, imp)
		}
		b.reportProgress(state, ProgressPhaseImports, i+1)
	}

	span.SetAttributes(
		attribute.Int("edges.created", actx.budgetedEdges-before),
		attribute.Int("imports.unresolved", actx.unresolvedImports),
		attribute.Int("external.dropped", actx.externalDropped),
	)
	return nil
}

// resolveImport handles one import statement of module m.
func (s *buildState) resolveImport(m ModuleInput, sourceID string, imp ast.ImportStmt) {
	actx := s.actx

	full := imp.Module
	if imp.IsRelative() {
		base, ok := relativeBase(m.Module, m.IsPackage, imp.Level)
		if !ok {
			actx.unresolvedImports++
			return
		}
		full = base
		if imp.Module != "" {
			full = base + "." + imp.Module
		}
	}
	if full == "" {
		return
	}

	s.bind(m.Module, full, imp)

	if !imp.IsRelative() && !s.isInternal(full) {
		s.addExternal(m.Module, sourceID, full)
		return
	}

	targets := []string{full}
	if imp.IsFrom && !imp.IsWildcard && len(imp.Names) > 0 {
		targets = targets[:0]
		for _, n := range imp.Names {
			targets = append(targets, full+"."+n.Name)
		}
	}
	for _, target := range targets {
		targetID, ok := actx.Symbols.LongestModulePrefix(target)
		if !ok {
			actx.unresolvedImports++
			continue
		}
		if targetID == sourceID {
			continue
		}
		actx.addEdge(Edge{SourceID: sourceID, TargetID: targetID, Relation: RelImports})
	}
}

// relativeBase returns the package a relative import of the given level
// is anchored at.
//
// The first dot names the current package: the module itself for an
// __init__ module, otherwise its parent. Each further dot strips one more
// component. ok is false when the level climbs past the top.
func relativeBase(module string, isPackage bool, level int) (string, bool) {
	parts := strings.Split(module, ".")
	if !isPackage {
		parts = parts[:len(parts)-1]
	}
	keep := len(parts) - (level - 1)
	if keep < 1 {
		return "", false
	}
	return strings.Join(parts[:keep], "."), true
}

// bind records the local names an import introduces into module.
//
// `import a.b` binds a; `import a.b as c` binds c to a.b;
// `from m import x as y` binds y to m.x. Wildcards bind nothing.
func (s *buildState) bind(module, full string, imp ast.ImportStmt) {
	names := s.bindings[module]
	if names == nil {
		names = make(map[string]string)
		s.bindings[module] = names
	}
	switch {
	case imp.IsWildcard:
	case imp.IsFrom:
		for _, n := range imp.Names {
			local := n.Name
			if n.Alias != "" {
				local = n.Alias
			}
			names[local] = full + "." + n.Name
		}
	case imp.Alias != "":
		names[imp.Alias] = full
	default:
		head := full
		if idx := strings.IndexByte(full, '.'); idx >= 0 {
			head = full[:idx]
		}
		names[head] = head
	}
}

// addExternal creates the external node for module importing external.
func (s *buildState) addExternal(module, sourceID, external string) {
	actx := s.actx
	seen := s.externalSeen[sourceID]
	if seen == nil {
		seen = make(map[string]bool)
		s.externalSeen[sourceID] = seen
	}
	if _, done := seen[external]; done {
		return
	}

	limit := actx.Limits.MaxExternalPerModule
	if limit > 0 && s.externalCount[sourceID] >= limit {
		seen[external] = false
		actx.externalDropped++
		return
	}
	if !actx.edgeBudgetLeft() {
		actx.MarkTruncated()
		return
	}

	n := &Node{
		ID:            actx.uniqueID("ext:" + module + ":" + external),
		ParentID:      sourceID,
		Kind:          NodeExternal,
		Name:          external,
		QualifiedPath: external,
		Module:        module,
	}
	actx.addNode(n)
	actx.addEdge(Edge{SourceID: sourceID, TargetID: n.ID, Relation: RelExternalImport})
	seen[external] = true
	s.externalCount[sourceID]++
}

// resolveInheritsPhase creates inherits edges for class bases.
//
// A base resolves through, in order: a class in the same module, the
// module's import bindings, then the base text as a qualified path.
// Unresolved bases are dropped.
func (b *Builder) resolveInheritsPhase(ctx context.Context, state *buildState) error {
	ctx, span := startPhaseSpan(ctx, ProgressPhaseInherits)
	defer span.End()

	created := 0
	for i, p := range state.bases {
		if i%100 == 0 {
			if err := checkCancelled(ctx); err != nil {
				return err
			}
		}
		for _, base := range p.bases {
			baseID, ok := state.lookupClass(p.module, base)
			if !ok || baseID == p.classID {
				continue
			}
			if state.actx.addEdge(Edge{SourceID: p.classID, TargetID: baseID, Relation: RelInherits}) {
				created++
			}
		}
	}
	span.SetAttributes(attribute.Int("edges.created", created))
	b.reportProgress(state, ProgressPhaseInherits, len(state.modules))
	return nil
}

// lookupClass resolves a base expression written in module to a class id.
func (s *buildState) lookupClass(module, base string) (string, bool) {
	symbols := s.actx.Symbols
	if sym, ok := symbols.Lookup(module+"."+base, NodeClass); ok {
		return sym.ID, true
	}

	head, rest := base, ""
	if idx := strings.IndexByte(base, '.'); idx >= 0 {
		head, rest = base[:idx], base[idx+1:]
	}
	if qualified, ok := s.bindings[module][head]; ok {
		path := qualified
		if rest != "" {
			path += "." + rest
		}
		if sym, ok := symbols.Lookup(path, NodeClass); ok {
			return sym.ID, true
		}
	}

	if sym, ok := symbols.Lookup(base, NodeClass); ok {
		return sym.ID, true
	}
	return "", false
}
