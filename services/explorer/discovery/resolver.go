// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package discovery maps a library identifier to Python source roots and
// enumerates the source files beneath them.
//
// Everything here is a read-only filesystem walk. Nothing is imported or
// executed.
package discovery

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("aleutian.explorer.discovery")

// Root is one resolved source root.
//
// Exactly one of Dir and File is set: Dir for a package directory, File for
// a single-module root.
type Root struct {
	// Name is the dotted module name of the root, e.g. "requests" or
	// "google.protobuf".
	Name string `json:"name"`

	// Dir is the package directory.
	Dir string `json:"dir,omitempty"`

	// File is the module file for single-file roots.
	File string `json:"file,omitempty"`

	// SearchPath is the directory the root was found under.
	SearchPath string `json:"search_path"`
}

// Path returns Dir or File, whichever is set.
func (r Root) Path() string {
	if r.Dir != "" {
		return r.Dir
	}
	return r.File
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSearchPaths adds directories searched before PYTHONPATH and the
// active virtualenv.
func WithSearchPaths(paths ...string) ResolverOption {
	return func(r *Resolver) {
		r.searchPaths = append(r.searchPaths, paths...)
	}
}

// WithAliases adds distribution to import-name aliases. Keys are
// normalized with NormalizeDistName.
func WithAliases(aliases map[string]string) ResolverOption {
	return func(r *Resolver) {
		for k, v := range aliases {
			r.aliases[NormalizeDistName(k)] = v
		}
	}
}

// WithPythonPath toggles use of $PYTHONPATH.
func WithPythonPath(enabled bool) ResolverOption {
	return func(r *Resolver) {
		r.usePythonPath = enabled
	}
}

// WithVirtualEnv toggles use of $VIRTUAL_ENV site-packages.
func WithVirtualEnv(enabled bool) ResolverOption {
	return func(r *Resolver) {
		r.useVirtualEnv = enabled
	}
}

// Resolver maps library identifiers to source roots.
//
// Description:
//
//	Resolver tries, in order: the identifier as a filesystem path, the
//	identifier itself as an import name, caller hints, the alias table,
//	the top-level names recorded in installed distribution metadata, and
//	spelling variants (hyphen to underscore, lowercase). Every candidate is
//	looked up in every search path; the first search path holding a
//	candidate wins for that candidate.
//
// Thread Safety:
//
//	Resolver is immutable after construction and safe for concurrent use.
type Resolver struct {
	searchPaths   []string
	aliases       map[string]string
	usePythonPath bool
	useVirtualEnv bool
}

// NewResolver creates a Resolver with DefaultAliases and both environment
// lookups enabled.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		aliases:       make(map[string]string, len(DefaultAliases)),
		usePythonPath: true,
		useVirtualEnv: true,
	}
	for k, v := range DefaultAliases {
		r.aliases[k] = v
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SearchPaths returns the effective, de-duplicated list of existing
// directories searched for candidates.
func (r *Resolver) SearchPaths() []string {
	var paths []string
	paths = append(paths, r.searchPaths...)

	if r.usePythonPath {
		for _, p := range filepath.SplitList(os.Getenv("PYTHONPATH")) {
			if p != "" {
				paths = append(paths, p)
			}
		}
	}

	if r.useVirtualEnv {
		if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
			matches, _ := filepath.Glob(filepath.Join(venv, "lib", "python*", "site-packages"))
			sort.Strings(matches)
			paths = append(paths, matches...)
			paths = append(paths, filepath.Join(venv, "Lib", "site-packages"))
		}
	}

	seen := make(map[string]bool, len(paths))
	result := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil || seen[abs] {
			continue
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			continue
		}
		seen[abs] = true
		result = append(result, abs)
	}
	return result
}

// Resolve maps a library identifier to its source roots.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - identifier: A filesystem path, an import name or a distribution name.
//   - hints: Optional top-level import names supplied by the caller.
//
// Outputs:
//   - []Root: Resolved roots in candidate order. A root that is the same
//     file as, or lies inside, another resolved root is dropped so each
//     source file belongs to exactly one root.
//   - error: *RootResolutionError when nothing resolves, ErrEmptyIdentifier
//     for a blank identifier, or the context error.
//
// Example:
//
//	roots, err := discovery.NewResolver(discovery.WithSearchPaths(site)).
//	    Resolve(ctx, "scikit-learn", nil)
func (r *Resolver) Resolve(ctx context.Context, identifier string, hints []string) ([]Root, error) {
	ctx, span := tracer.Start(ctx, "Resolver.Resolve",
		trace.WithAttributes(attribute.String("discovery.identifier", identifier)),
	)
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		span.SetStatus(codes.Error, ErrEmptyIdentifier.Error())
		return nil, ErrEmptyIdentifier
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if root, ok := pathRoot(identifier); ok {
		span.SetAttributes(attribute.Int("discovery.roots", 1))
		slog.Debug("library resolved from path",
			slog.String("identifier", identifier),
			slog.String("root", root.Name))
		return []Root{root}, nil
	}

	searchPaths := r.SearchPaths()
	candidates := r.Candidates(identifier, hints, searchPaths)

	var found []Root
	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, sp := range searchPaths {
			root, ok := lookupRoot(sp, name)
			if !ok {
				continue
			}
			found = append(found, root)
			break
		}
	}
	roots := dropNestedRoots(found)

	span.SetAttributes(
		attribute.Int("discovery.candidates", len(candidates)),
		attribute.Int("discovery.search_paths", len(searchPaths)),
		attribute.Int("discovery.roots", len(roots)),
	)

	if len(roots) == 0 {
		err := &RootResolutionError{
			Identifier:  identifier,
			Tried:       candidates,
			SearchPaths: searchPaths,
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "root not found")
		return nil, err
	}

	slog.Debug("library resolved",
		slog.String("identifier", identifier),
		slog.Int("roots", len(roots)),
		slog.Int("candidates", len(candidates)))

	return roots, nil
}

// dropNestedRoots removes roots covered by another root in the list.
//
// A directory root covers every path beneath it; any root covers itself.
// Paths are compared with os.SameFile, so two spellings of one directory on
// a case-insensitive filesystem count as the same root. When two roots cover
// each other the earlier one is kept.
func dropNestedRoots(roots []Root) []Root {
	var kept []Root
	for i, r := range roots {
		covered := false
		for j, other := range roots {
			if i == j || !covers(other, r) {
				continue
			}
			if covers(r, other) && i < j {
				continue
			}
			covered = true
			break
		}
		if covered {
			slog.Debug("dropping nested root",
				slog.String("root", r.Name),
				slog.String("path", r.Path()))
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// covers reports whether inner's path is outer's path or lies under outer's
// directory.
func covers(outer, inner Root) bool {
	if sameFile(outer.Path(), inner.Path()) {
		return true
	}
	if outer.Dir == "" {
		return false
	}
	for p := filepath.Dir(inner.Path()); ; {
		if sameFile(outer.Dir, p) {
			return true
		}
		parent := filepath.Dir(p)
		if parent == p {
			return false
		}
		p = parent
	}
}

func sameFile(a, b string) bool {
	if a == b {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// Candidates returns the ordered, de-duplicated import names tried for an
// identifier.
func (r *Resolver) Candidates(identifier string, hints []string, searchPaths []string) []string {
	set := newCandidateSet()
	set.add(identifier)
	set.add(hints...)

	normalized := NormalizeDistName(identifier)
	if alias, ok := r.aliases[normalized]; ok {
		set.add(alias)
	}

	for _, sp := range searchPaths {
		set.add(distTopLevel(sp, normalized)...)
	}

	set.add(derivedNames(identifier)...)
	return set.names
}

// pathRoot treats identifier as a filesystem path to a package directory or
// a .py file.
func pathRoot(identifier string) (Root, bool) {
	if !strings.ContainsAny(identifier, `/\`) && !strings.HasSuffix(identifier, ".py") {
		return Root{}, false
	}

	abs, err := filepath.Abs(identifier)
	if err != nil {
		return Root{}, false
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Root{}, false
	}

	parent := filepath.Dir(abs)
	if info.IsDir() {
		name := filepath.Base(abs)
		if !isIdentifier(name) {
			return Root{}, false
		}
		return Root{Name: name, Dir: abs, SearchPath: parent}, true
	}

	stem := strings.TrimSuffix(filepath.Base(abs), ".py")
	if filepath.Ext(abs) != ".py" || !isIdentifier(stem) {
		return Root{}, false
	}
	return Root{Name: stem, File: abs, SearchPath: parent}, true
}

// lookupRoot checks whether module name exists under searchPath as a
// package directory holding Python sources or as a single module file.
func lookupRoot(searchPath, name string) (Root, bool) {
	rel := filepath.Join(strings.Split(name, ".")...)

	dir := filepath.Join(searchPath, rel)
	if info, err := os.Stat(dir); err == nil && info.IsDir() && holdsPythonSource(dir) {
		return Root{Name: name, Dir: dir, SearchPath: searchPath}, true
	}

	file := dir + ".py"
	if info, err := os.Stat(file); err == nil && info.Mode().IsRegular() {
		return Root{Name: name, File: file, SearchPath: searchPath}, true
	}

	return Root{}, false
}

// holdsPythonSource reports whether dir has an __init__.py, a .py file, or
// a subpackage with an __init__.py. Namespace packages qualify.
func holdsPythonSource(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".py") {
			return true
		}
	}
	for _, e := range entries {
		if e.IsDir() && isIdentifier(e.Name()) {
			if _, err := os.Stat(filepath.Join(dir, e.Name(), "__init__.py")); err == nil {
				return true
			}
		}
	}
	return false
}

// distTopLevel returns the top-level import names recorded by an installed
// distribution whose normalized name matches.
//
// top_level.txt is preferred. Wheels that omit it fall back to the first
// path component of .py entries in RECORD.
func distTopLevel(searchPath, normalized string) []string {
	entries, err := os.ReadDir(searchPath)
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		base := e.Name()
		var stem string
		switch {
		case strings.HasSuffix(base, ".dist-info"):
			stem = strings.TrimSuffix(base, ".dist-info")
		case strings.HasSuffix(base, ".egg-info"):
			stem = strings.TrimSuffix(base, ".egg-info")
		default:
			continue
		}
		distName, _, _ := strings.Cut(stem, "-")
		if NormalizeDistName(distName) != normalized {
			continue
		}

		metaDir := filepath.Join(searchPath, base)
		topLevel, err := readLines(filepath.Join(metaDir, "top_level.txt"))
		if err == nil && len(topLevel) > 0 {
			names = append(names, topLevel...)
			continue
		}
		names = append(names, recordTopLevel(filepath.Join(metaDir, "RECORD"))...)
	}
	return names
}

// recordTopLevel extracts top-level package and module names from a wheel
// RECORD file.
func recordTopLevel(path string) []string {
	lines, err := readLines(path)
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var names []string
	for _, line := range lines {
		entry, _, _ := strings.Cut(line, ",")
		if !strings.HasSuffix(entry, ".py") {
			continue
		}
		first, rest, nested := strings.Cut(entry, "/")
		name := first
		if !nested {
			name = strings.TrimSuffix(first, ".py")
		} else if rest == "" {
			continue
		}
		if !isIdentifier(name) || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// readLines returns the trimmed non-empty lines of a small text file.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return lines, nil
}
