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
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/libexplorer/services/explorer/ast"
)

// ProgressPhase indicates which phase of building is in progress.
type ProgressPhase int

const (
	// ProgressPhaseCollecting indicates module records are being merged.
	ProgressPhaseCollecting ProgressPhase = iota

	// ProgressPhaseImports indicates imports are being resolved.
	ProgressPhaseImports

	// ProgressPhaseInherits indicates base classes are being resolved.
	ProgressPhaseInherits

	// ProgressPhaseCalls indicates call edges are being inferred.
	ProgressPhaseCalls

	// ProgressPhaseFinalizing indicates the result is being assembled.
	ProgressPhaseFinalizing
)

// String returns the string representation of the ProgressPhase.
func (p ProgressPhase) String() string {
	switch p {
	case ProgressPhaseCollecting:
		return "collecting"
	case ProgressPhaseImports:
		return "resolving_imports"
	case ProgressPhaseInherits:
		return "resolving_inherits"
	case ProgressPhaseCalls:
		return "inferring_calls"
	case ProgressPhaseFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// BuildProgress contains progress information during a build.
type BuildProgress struct {
	Phase        ProgressPhase
	ModulesTotal int
	ModulesDone  int
	NodesCreated int
	EdgesCreated int
}

// ProgressFunc is a callback function for build progress updates.
type ProgressFunc func(progress BuildProgress)

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// ProgressCallback is called after each module of each phase. May be nil.
	ProgressCallback ProgressFunc

	// InferCalls enables the call graph pass.
	// Default: true
	InferCalls bool
}

// DefaultBuilderOptions returns sensible defaults.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		InferCalls: true,
	}
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithProgressCallback sets the progress callback function.
func WithProgressCallback(fn ProgressFunc) BuilderOption {
	return func(o *BuilderOptions) {
		o.ProgressCallback = fn
	}
}

// WithCallInference enables or disables the call graph pass.
func WithCallInference(enabled bool) BuilderOption {
	return func(o *BuilderOptions) {
		o.InferCalls = enabled
	}
}

// ModuleInput is one discovered module handed to Build.
//
// Record is nil when the file could not be read or parsed; the failure is
// expected to be recorded on the AnalysisContext already.
type ModuleInput struct {
	Module    string
	File      string
	IsPackage bool
	Record    *ast.ModuleRecord
}

// Builder turns module records into a Result.
//
// Thread Safety:
//
//	Builder is safe for concurrent use. Each Build() call operates on its
//	own AnalysisContext.
type Builder struct {
	options BuilderOptions
}

// NewBuilder creates a new Builder with the given options.
//
// Example:
//
//	builder := NewBuilder(WithCallInference(false))
//	result := builder.Build(ctx, actx, modules)
func NewBuilder(opts ...BuilderOption) *Builder {
	options := DefaultBuilderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Builder{options: options}
}

// pendingBases is a class whose bases are resolved after the freeze.
type pendingBases struct {
	classID string
	module  string
	bases   []string
}

// buildState holds mutable state during a single build operation.
type buildState struct {
	actx    *AnalysisContext
	modules []ModuleInput

	// moduleIDs maps dotted module name to module node id.
	moduleIDs map[string]string

	// synthesized marks module nodes created for a missing ancestor or a
	// failed __init__; a later record for the same module fills them in.
	synthesized map[string]bool

	bases []pendingBases

	// bindings maps module -> local name -> qualified path.
	bindings map[string]map[string]string

	externalCount map[string]int
	externalSeen  map[string]map[string]bool
}

// Build merges modules into the context and assembles a Result.
//
// Description:
//
//	Modules are merged in the order given, which must be discovery order
//	so that node ids are deterministic. The symbol table is frozen after
//	collection and only read by the resolution phases. A run never fails:
//	cancellation records ErrAnalysisCancelled and returns what exists.
//
// Inputs:
//
//	ctx - Context for cancellation, checked between modules.
//	actx - The run's context. RootModules must be set.
//	modules - One entry per discovered file.
//
// Outputs:
//
//	*Result - Always non-nil.
//
// Build Phases:
//
//  1. COLLECT: module and definition nodes, contains edges, symbols
//  2. FREEZE: symbol table becomes read-only
//  3. IMPORTS: imports and external_import edges, binding maps
//  4. INHERITS: inherits edges
//  5. CALLS: calls edges
//  6. FINALIZE: sort and summarise
func (b *Builder) Build(ctx context.Context, actx *AnalysisContext, modules []ModuleInput) *Result {
	ctx, span := startBuildSpan(ctx, actx.Library, len(modules))
	defer span.End()

	state := &buildState{
		actx:          actx,
		modules:       modules,
		moduleIDs:     make(map[string]string),
		synthesized:   make(map[string]bool),
		bindings:      make(map[string]map[string]string),
		externalCount: make(map[string]int),
		externalSeen:  make(map[string]map[string]bool),
	}

	phases := []struct {
		phase ProgressPhase
		run   func(context.Context, *buildState) error
	}{
		{ProgressPhaseCollecting, b.collectPhase},
		{ProgressPhaseImports, b.resolveImportsPhase},
		{ProgressPhaseInherits, b.resolveInheritsPhase},
		{ProgressPhaseCalls, b.inferCallsPhase},
	}

	cancelled := false
	for _, p := range phases {
		if p.phase == ProgressPhaseCalls && !b.options.InferCalls {
			continue
		}
		if err := p.run(ctx, state); err != nil {
			actx.RecordError(ErrorRecord{
				Stage:   StageResolve,
				Kind:    KindCancelled,
				Message: fmt.Sprintf("%s: %s", p.phase, err.Error()),
			})
			slog.Warn("analysis cancelled, returning partial result",
				slog.String("library", actx.Library),
				slog.String("phase", p.phase.String()),
				slog.Any("error", err),
			)
			cancelled = true
			break
		}
		if p.phase == ProgressPhaseCollecting {
			actx.Symbols.Freeze()
		}
	}

	b.reportProgress(state, ProgressPhaseFinalizing, len(modules))
	result := assemble(actx)

	setBuildSpanResult(span, len(result.Nodes), len(result.Edges), cancelled || result.Summary.Truncated)
	recordBuildMetrics(ctx, time.Since(actx.startTime), len(result.Nodes), len(result.Edges), !cancelled)

	return result
}

// checkCancelled wraps a context error in ErrAnalysisCancelled.
func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAnalysisCancelled, err)
	}
	return nil
}

// collectPhase merges records into nodes, contains edges and symbols.
func (b *Builder) collectPhase(ctx context.Context, state *buildState) error {
	actx := state.actx
	for i, m := range state.modules {
		if err := checkCancelled(ctx); err != nil {
			return err
		}

		if m.Record == nil {
			// A failed __init__ still anchors its submodules.
			if m.IsPackage {
				id := state.ensureModule(m.Module)
				if n, ok := actx.node(id); ok && n.FilePath == "" {
					n.FilePath = m.File
				}
			}
			continue
		}

		moduleID := state.ensureModule(m.Module)
		if n, ok := actx.node(moduleID); ok && state.synthesized[moduleID] {
			n.FilePath = m.File
			n.Docstring = m.Record.Docstring
			delete(state.synthesized, moduleID)
		}

		state.collectDefinitions(m, m.Record.Definitions, moduleID)
		actx.FilesParsed++
		b.reportProgress(state, ProgressPhaseCollecting, i+1)
	}
	return nil
}

// ensureModule returns the node id of a module, creating it and any missing
// ancestor packages below its root.
func (s *buildState) ensureModule(module string) string {
	if id, ok := s.moduleIDs[module]; ok {
		return id
	}

	parentID := ""
	if root := s.rootOf(module); root != module && root != "" {
		parentID = s.ensureModule(module[:strings.LastIndex(module, ".")])
	}

	name := module
	if idx := strings.LastIndex(module, "."); idx >= 0 {
		name = module[idx+1:]
	}
	n := &Node{
		ID:            s.actx.uniqueID(module),
		ParentID:      parentID,
		Kind:          NodeModule,
		Name:          name,
		QualifiedPath: module,
		Module:        module,
	}
	s.actx.addNode(n)
	s.moduleIDs[module] = n.ID
	s.synthesized[n.ID] = true
	// Add cannot fail before the freeze.
	_ = s.actx.Symbols.Add(module, Symbol{ID: n.ID, Kind: NodeModule})
	return n.ID
}

// rootOf returns the longest root module containing module, or "".
func (s *buildState) rootOf(module string) string {
	best := ""
	for _, r := range s.actx.RootModules {
		if (module == r || strings.HasPrefix(module, r+".")) && len(r) > len(best) {
			best = r
		}
	}
	return best
}

// isInternal reports whether a dotted module belongs to an analysed root.
func (s *buildState) isInternal(module string) bool {
	return s.rootOf(module) != ""
}

// collectDefinitions adds definition nodes under parentID, recursively.
func (s *buildState) collectDefinitions(m ModuleInput, defs []*ast.Definition, parentID string) {
	for _, d := range defs {
		path := m.Module + "." + d.LocalPath()
		kind := nodeKindFor(d.Kind)
		n := &Node{
			ID:            s.actx.uniqueID(path),
			ParentID:      parentID,
			Kind:          kind,
			Name:          d.Name,
			QualifiedPath: path,
			Module:        m.Module,
			Docstring:     d.Docstring,
			FilePath:      m.File,
			Line:          d.StartLine,
		}
		if kind.IsCallable() {
			n.Signature = &CallableSignature{
				Params:     d.Params,
				ReturnType: d.ReturnType,
				IsAsync:    d.IsAsync,
				Decorators: d.Decorators,
			}
		}
		s.actx.addNode(n)
		_ = s.actx.Symbols.Add(path, Symbol{ID: n.ID, Kind: kind})

		if kind == NodeClass {
			if len(d.Bases) > 0 {
				s.bases = append(s.bases, pendingBases{classID: n.ID, module: m.Module, bases: d.Bases})
			}
			s.collectDefinitions(m, d.Children, n.ID)
		}
	}
}

// reportProgress calls the progress callback if set.
func (b *Builder) reportProgress(state *buildState, phase ProgressPhase, done int) {
	if b.options.ProgressCallback == nil {
		return
	}
	b.options.ProgressCallback(BuildProgress{
		Phase:        phase,
		ModulesTotal: len(state.modules),
		ModulesDone:  done,
		NodesCreated: state.actx.NodeCount(),
		EdgesCreated: state.actx.EdgeCount(),
	})
}

// assemble sorts nodes and edges and computes the summary.
func assemble(actx *AnalysisContext) *Result {
	nodes := make([]*Node, len(actx.nodes))
	copy(nodes, actx.nodes)
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].QualifiedPath != nodes[j].QualifiedPath {
			return nodes[i].QualifiedPath < nodes[j].QualifiedPath
		}
		return nodes[i].ID < nodes[j].ID
	})

	edges := make([]Edge, len(actx.edges))
	copy(edges, actx.edges)
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Relation != b.Relation {
			return a.Relation < b.Relation
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		if a.TargetID != b.TargetID {
			return a.TargetID < b.TargetID
		}
		return a.line() < b.line()
	})

	errs := make([]ErrorRecord, len(actx.errors))
	copy(errs, actx.errors)

	roots := make([]string, len(actx.RootModules))
	copy(roots, actx.RootModules)

	summary := Summary{
		Library:           actx.Library,
		RootModules:       roots,
		FilesDiscovered:   actx.FilesDiscovered,
		FilesParsed:       actx.FilesParsed,
		Nodes:             len(nodes),
		Edges:             len(edges),
		Errors:            len(errs),
		Truncated:         actx.truncated,
		ExternalDropped:   actx.externalDropped,
		UnresolvedImports: actx.unresolvedImports,
		UnresolvedCalls:   actx.unresolvedCalls,
		DurationMilli:     time.Since(actx.startTime).Milliseconds(),
	}
	for _, n := range nodes {
		switch n.Kind {
		case NodeModule:
			summary.Modules++
		case NodeClass:
			summary.Classes++
		case NodeFunction:
			summary.Functions++
		case NodeMethod:
			summary.Methods++
		case NodeProperty:
			summary.Properties++
		case NodeExternal:
			summary.External++
		}
	}

	return &Result{
		RunID:   actx.RunID,
		Nodes:   nodes,
		Edges:   edges,
		Errors:  errs,
		Summary: summary,
	}
}
