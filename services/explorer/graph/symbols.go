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
	"sort"
	"strings"
)

// Symbol is one symbol table entry.
type Symbol struct {
	ID   string
	Kind NodeKind
}

// SymbolTable maps qualified paths to node ids.
//
// Description:
//
//	The table is append-only while modules are collected and read-only
//	once Freeze is called. A path may map to several symbols, e.g. a
//	submodule pkg.a and a class a defined in pkg/__init__.py; lookups
//	filter by kind and return the first registered match.
//
// Thread Safety:
//
//	Not safe for concurrent writes. After Freeze, safe for concurrent reads.
type SymbolTable struct {
	entries map[string][]Symbol
	frozen  bool
}

// NewSymbolTable creates an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{entries: make(map[string][]Symbol)}
}

// Add registers a symbol under a qualified path.
//
// Outputs:
//   - error: ErrSymbolTableFrozen after Freeze.
func (t *SymbolTable) Add(path string, sym Symbol) error {
	if t.frozen {
		return ErrSymbolTableFrozen
	}
	t.entries[path] = append(t.entries[path], sym)
	return nil
}

// Lookup returns the first symbol at path whose kind is one of kinds. With
// no kinds, any symbol matches.
func (t *SymbolTable) Lookup(path string, kinds ...NodeKind) (Symbol, bool) {
	for _, sym := range t.entries[path] {
		if len(kinds) == 0 {
			return sym, true
		}
		for _, k := range kinds {
			if sym.Kind == k {
				return sym, true
			}
		}
	}
	return Symbol{}, false
}

// LookupModule returns the module node id for a dotted module name.
func (t *SymbolTable) LookupModule(module string) (string, bool) {
	sym, ok := t.Lookup(module, NodeModule)
	return sym.ID, ok
}

// LongestModulePrefix resolves a dotted target to the module it names, or
// to the longest dotted prefix that names a module.
//
// pkg.sub.Thing resolves to pkg.sub when pkg.sub is a module and
// pkg.sub.Thing is not.
func (t *SymbolTable) LongestModulePrefix(target string) (string, bool) {
	parts := strings.Split(target, ".")
	for i := len(parts); i > 0; i-- {
		if id, ok := t.LookupModule(strings.Join(parts[:i], ".")); ok {
			return id, true
		}
	}
	return "", false
}

// Freeze makes the table read-only. Idempotent.
func (t *SymbolTable) Freeze() {
	t.frozen = true
}

// Frozen reports whether Freeze was called.
func (t *SymbolTable) Frozen() bool {
	return t.frozen
}

// Len returns the number of distinct qualified paths.
func (t *SymbolTable) Len() int {
	return len(t.entries)
}

// Paths returns all qualified paths in sorted order.
func (t *SymbolTable) Paths() []string {
	paths := make([]string, 0, len(t.entries))
	for p := range t.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
