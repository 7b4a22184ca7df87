// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"fmt"
	"strings"
)

// Parse limits.
const (
	// DefaultMaxFileSize is the largest source file Parse accepts (10 MiB).
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// WarnFileSize triggers a warning log for large inputs (1 MiB).
	WarnFileSize = 1024 * 1024

	// MaxCallExpressionDepth bounds the tree depth visited by the call-site walk.
	MaxCallExpressionDepth = 256

	// MaxCallSitesPerFile bounds the number of call sites recorded per file.
	MaxCallSitesPerFile = 20000

	// maxCallTextLen truncates the recorded text of unsupported call shapes.
	maxCallTextLen = 100
)

// DefinitionKind classifies a collected definition.
type DefinitionKind int

const (
	// DefinitionClass is a class statement.
	DefinitionClass DefinitionKind = iota

	// DefinitionFunction is a module-scope def.
	DefinitionFunction

	// DefinitionMethod is a def inside a class body.
	DefinitionMethod

	// DefinitionProperty is a method carrying a property-like decorator.
	DefinitionProperty
)

var definitionKindNames = map[DefinitionKind]string{
	DefinitionClass:    "class",
	DefinitionFunction: "function",
	DefinitionMethod:   "method",
	DefinitionProperty: "property",
}

// String returns the lowercase kind name.
func (k DefinitionKind) String() string {
	if name, ok := definitionKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("DefinitionKind(%d)", int(k))
}

// IsCallable reports whether definitions of this kind carry a signature.
func (k DefinitionKind) IsCallable() bool {
	return k == DefinitionFunction || k == DefinitionMethod || k == DefinitionProperty
}

// ParamKind is the binding kind of a Python parameter.
type ParamKind int

const (
	ParamPositionalOnly ParamKind = iota
	ParamPositionalOrKeyword
	ParamVarPositional
	ParamKeywordOnly
	ParamVarKeyword
)

var paramKindNames = []string{
	"positional_only",
	"positional_or_keyword",
	"var_positional",
	"keyword_only",
	"var_keyword",
}

// String returns the snake_case kind name used in JSON output.
func (k ParamKind) String() string {
	if k < 0 || int(k) >= len(paramKindNames) {
		return fmt.Sprintf("ParamKind(%d)", int(k))
	}
	return paramKindNames[k]
}

// MarshalText implements encoding.TextMarshaler.
func (k ParamKind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(paramKindNames) {
		return nil, fmt.Errorf("invalid param kind %d", int(k))
	}
	return []byte(paramKindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ParamKind) UnmarshalText(text []byte) error {
	for i, name := range paramKindNames {
		if name == string(text) {
			*k = ParamKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown param kind %q", string(text))
}

// Param is one parameter of a callable, as written in source.
//
// Defaults are recorded textually and never evaluated.
type Param struct {
	Name       string    `json:"name"`
	Kind       ParamKind `json:"param_kind"`
	Annotation string    `json:"annotation_text,omitempty"`
	HasDefault bool      `json:"has_default"`
	Default    string    `json:"default_text,omitempty"`
}

// Definition is a class or callable found while walking a module.
//
// Path holds the scope path inside the module, e.g. ["Outer", "Inner", "m"]
// for method m of a nested class. Children holds the definitions found in a
// class body, in source order.
type Definition struct {
	Kind       DefinitionKind
	Name       string
	Path       []string
	Docstring  string
	Params     []Param
	ReturnType string
	IsAsync    bool
	Decorators []string
	Bases      []string
	StartLine  int
	EndLine    int
	Children   []*Definition
}

// LocalPath returns the dotted path of the definition within its module.
func (d *Definition) LocalPath() string {
	return strings.Join(d.Path, ".")
}

// ImportedName is one name of a from-import, with its optional alias.
type ImportedName struct {
	Name  string
	Alias string
}

// ImportStmt is one imported module reference.
//
// `import a.b as c` yields {Module: "a.b", Alias: "c"}. `from ..x import y`
// yields {Module: "x", Level: 2, IsFrom: true, Names: [{Name: "y"}]}.
type ImportStmt struct {
	Module     string
	Level      int
	Alias      string
	IsFrom     bool
	IsWildcard bool
	Names      []ImportedName
	Line       int
}

// IsRelative reports whether the import uses leading dots.
func (i ImportStmt) IsRelative() bool {
	return i.Level > 0
}

// CallShape classifies the callee expression of a call.
type CallShape int

const (
	// CallBare is f(...).
	CallBare CallShape = iota

	// CallSelf is self.m(...).
	CallSelf

	// CallCls is cls.m(...).
	CallCls

	// CallOther is any other callee expression.
	CallOther
)

// String returns the shape name.
func (s CallShape) String() string {
	switch s {
	case CallBare:
		return "bare"
	case CallSelf:
		return "self"
	case CallCls:
		return "cls"
	default:
		return "other"
	}
}

// ScopeKind distinguishes class and function scopes.
type ScopeKind int

const (
	ScopeClass ScopeKind = iota
	ScopeFunction
)

// Scope is one entry of the scope stack at a call site.
type Scope struct {
	Kind ScopeKind
	Name string
}

// CallSite is a call expression with the scope stack that encloses it.
type CallSite struct {
	Shape    CallShape
	Name     string
	Receiver string
	Scope    []Scope
	Line     int
	Column   int
}

// ModuleRecord is everything the collector and the resolution passes need
// from one parsed file.
type ModuleRecord struct {
	// Module is the dotted module name.
	Module string

	// FilePath is the path that was parsed.
	FilePath string

	// IsPackage is true for __init__ files.
	IsPackage bool

	// Docstring is the module docstring, if any.
	Docstring string

	// Definitions are the top-level classes and functions in source order.
	Definitions []*Definition

	// Imports are all import statements, including nested ones.
	Imports []ImportStmt

	// Calls are all call sites in the file.
	Calls []CallSite

	// CallsLimited is set when the call-site walk hit MaxCallExpressionDepth
	// or the per-file call-site cap, so Calls is incomplete.
	CallsLimited bool

	// Hash is the hex SHA-256 of the parsed content.
	Hash string

	// ParsedAtMilli is when parsing completed.
	ParsedAtMilli int64
}

// DefinitionCount returns the number of definitions, nested ones included.
func (r *ModuleRecord) DefinitionCount() int {
	count := 0
	var walk func(defs []*Definition)
	walk = func(defs []*Definition) {
		for _, d := range defs {
			count++
			walk(d.Children)
		}
	}
	walk(r.Definitions)
	return count
}
