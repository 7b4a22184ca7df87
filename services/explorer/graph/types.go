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
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/AleutianAI/libexplorer/services/explorer/ast"
)

// NodeKind is the kind of a node in the result graph.
type NodeKind string

const (
	NodeModule   NodeKind = "module"
	NodeClass    NodeKind = "class"
	NodeFunction NodeKind = "function"
	NodeMethod   NodeKind = "method"
	NodeProperty NodeKind = "property"
	NodeExternal NodeKind = "external"
)

// IsCallable reports whether nodes of this kind carry a CallableSignature.
func (k NodeKind) IsCallable() bool {
	return k == NodeFunction || k == NodeMethod || k == NodeProperty
}

// nodeKindFor maps a definition kind to its node kind.
func nodeKindFor(k ast.DefinitionKind) NodeKind {
	switch k {
	case ast.DefinitionClass:
		return NodeClass
	case ast.DefinitionMethod:
		return NodeMethod
	case ast.DefinitionProperty:
		return NodeProperty
	default:
		return NodeFunction
	}
}

// Relation is the kind of an edge.
type Relation string

const (
	// RelContains is the structural parent to child relation. Containment
	// forms a forest with one tree per analysed root.
	RelContains Relation = "contains"

	// RelImports links a module to an internal module it imports.
	RelImports Relation = "imports"

	// RelInherits links a class to a resolved base class.
	RelInherits Relation = "inherits"

	// RelExternalImport links a module to an external node.
	RelExternalImport Relation = "external_import"

	// RelCalls links a caller to a resolved callee.
	RelCalls Relation = "calls"
)

// CallableSignature is the payload carried by function, method and
// property nodes.
type CallableSignature struct {
	Params     []ast.Param
	ReturnType string
	IsAsync    bool
	Decorators []string
}

// Node is one entry of the result graph.
//
// The envelope fields are shared by all kinds. Signature is set only for
// callable kinds. Nodes are never mutated once a Result is assembled.
type Node struct {
	ID            string
	ParentID      string
	Kind          NodeKind
	Name          string
	QualifiedPath string
	Module        string
	Docstring     string
	FilePath      string
	Line          int
	Signature     *CallableSignature
}

// Params returns the callable parameters, or nil for non-callable nodes.
func (n *Node) Params() []ast.Param {
	if n.Signature == nil {
		return nil
	}
	return n.Signature.Params
}

// ReturnType returns the textual return annotation, or "".
func (n *Node) ReturnType() string {
	if n.Signature == nil {
		return ""
	}
	return n.Signature.ReturnType
}

// nodeJSON is the flat wire form of a Node.
type nodeJSON struct {
	ID            string      `json:"id"`
	ParentID      string      `json:"parent_id"`
	Kind          NodeKind    `json:"kind"`
	Name          string      `json:"name"`
	QualifiedPath string      `json:"qualified_path"`
	Module        string      `json:"module"`
	Docstring     string      `json:"docstring"`
	ReturnType    string      `json:"return_type"`
	Params        []ast.Param `json:"params"`
	IsAsync       bool        `json:"is_async,omitempty"`
	Decorators    []string    `json:"decorators,omitempty"`
	File          string      `json:"file,omitempty"`
	Line          int         `json:"line,omitempty"`
}

// MarshalJSON writes the node as a flat object. params is always an array.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{
		ID:            n.ID,
		ParentID:      n.ParentID,
		Kind:          n.Kind,
		Name:          n.Name,
		QualifiedPath: n.QualifiedPath,
		Module:        n.Module,
		Docstring:     n.Docstring,
		File:          n.FilePath,
		Line:          n.Line,
		Params:        []ast.Param{},
	}
	if n.Signature != nil {
		out.ReturnType = n.Signature.ReturnType
		out.IsAsync = n.Signature.IsAsync
		out.Decorators = n.Signature.Decorators
		if n.Signature.Params != nil {
			out.Params = n.Signature.Params
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a node from its flat form.
func (n *Node) UnmarshalJSON(data []byte) error {
	var in nodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decoding node: %w", err)
	}
	*n = Node{
		ID:            in.ID,
		ParentID:      in.ParentID,
		Kind:          in.Kind,
		Name:          in.Name,
		QualifiedPath: in.QualifiedPath,
		Module:        in.Module,
		Docstring:     in.Docstring,
		FilePath:      in.File,
		Line:          in.Line,
	}
	if in.Kind.IsCallable() {
		n.Signature = &CallableSignature{
			Params:     in.Params,
			ReturnType: in.ReturnType,
			IsAsync:    in.IsAsync,
			Decorators: in.Decorators,
		}
	}
	return nil
}

// Location is where a relationship is expressed in source.
type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// Edge is a directed relation between two nodes of the same Result.
type Edge struct {
	SourceID string    `json:"source_id"`
	TargetID string    `json:"target_id"`
	Relation Relation  `json:"relation"`
	Location *Location `json:"location,omitempty"`
}

// Key identifies an edge for de-duplication and diffing.
//
// calls edges include their location, so the same caller/callee pair on
// two lines is two edges.
func (e Edge) Key() string {
	key := string(e.Relation) + "|" + e.SourceID + "|" + e.TargetID
	if e.Location != nil {
		key += "|" + e.Location.File + "|" + strconv.Itoa(e.Location.Line)
	}
	return key
}

// line returns the edge line or 0.
func (e Edge) line() int {
	if e.Location == nil {
		return 0
	}
	return e.Location.Line
}
