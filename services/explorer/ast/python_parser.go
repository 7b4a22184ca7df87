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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"go.opentelemetry.io/otel/attribute"
)

// maxImportWalkDepth bounds the recursive import search.
const maxImportWalkDepth = 128

// PythonParserOption configures a PythonParser instance.
type PythonParserOption func(*PythonParser)

// WithPythonMaxFileSize sets the maximum file size the parser will accept.
//
// Parameters:
//   - bytes: Maximum file size in bytes. Non-positive values are ignored.
//
// Example:
//
//	parser := NewPythonParser(WithPythonMaxFileSize(5 * 1024 * 1024)) // 5MB limit
func WithPythonMaxFileSize(bytes int64) PythonParserOption {
	return func(p *PythonParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithPythonMaxCallSites caps the number of call sites recorded per file.
func WithPythonMaxCallSites(n int) PythonParserOption {
	return func(p *PythonParser) {
		if n > 0 {
			p.maxCallSites = n
		}
	}
}

// PythonParser implements the Parser interface for Python source code.
//
// Description:
//
//	PythonParser uses tree-sitter to parse Python source files. It collects
//	top-level classes and functions (with class members), every import
//	statement, and every call expression together with the class/function
//	scope stack that encloses it.
//
// Thread Safety:
//
//	PythonParser instances are safe for concurrent use. Each Parse call
//	creates its own tree-sitter parser internally.
//
// Example:
//
//	parser := NewPythonParser()
//	record, err := parser.Parse(ctx, []byte("def hello(): pass"), "pkg/a.py", "pkg.a")
//	if err != nil {
//	    return err
//	}
//	for _, def := range record.Definitions {
//	    fmt.Printf("%s: %s\n", def.Kind, def.Name)
//	}
type PythonParser struct {
	maxFileSize  int64
	maxCallSites int
}

// NewPythonParser creates a new PythonParser with the given options.
//
// Inputs:
//   - opts: Optional configuration functions (WithPythonMaxFileSize, WithPythonMaxCallSites)
//
// Outputs:
//   - *PythonParser: Configured parser instance, never nil
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{
		maxFileSize:  DefaultMaxFileSize,
		maxCallSites: MaxCallSitesPerFile,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Parse extracts a ModuleRecord from Python source code.
//
// Description:
//
//	Parse validates the content, runs tree-sitter over it and walks the
//	resulting tree three times: once over top-level statements for
//	definitions, once over the whole tree for imports, and once with a
//	scope stack for call sites. A tree containing any ERROR or MISSING
//	node is rejected as a whole so partially parsed files never contribute
//	half a module.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after tree-sitter,
//     and periodically during the call-site walk.
//   - content: Raw Python source bytes. Must be valid UTF-8.
//   - filePath: Path to the file, used for error reporting.
//   - module: Dotted module name of the file.
//
// Outputs:
//   - *ModuleRecord: Extracted record. Never nil on success.
//   - error: Non-nil on failure:
//   - ErrFileTooLarge: Content exceeds maxFileSize
//   - ErrInvalidContent: Content is not valid UTF-8
//   - *ParseError wrapping ErrParseFailed: syntax errors
//   - ErrContextCanceled wrapping the context error
//
// Limitations:
//   - Tree-sitter parsing is synchronous and cannot be interrupted mid-parse
//   - Definitions nested in module-level if/try blocks are not collected
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath, module string) (*ModuleRecord, error) {
	ctx, span := startParseSpan(ctx, filePath, module, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, time.Since(start), 0, 0, false)
		return nil, fmt.Errorf("%w before start: %w", ErrContextCanceled, err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, time.Since(start), 0, 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(ctx, time.Since(start), 0, 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:])

	// New instance per call for thread safety.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, time.Since(start), 0, 0, false)
		return nil, NewParseErrorWithCause(filePath, 0, 0, "tree-sitter parse failed", fmt.Errorf("%w: %w", ErrParseFailed, err))
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, time.Since(start), 0, 0, false)
		return nil, fmt.Errorf("%w after tree-sitter: %w", ErrContextCanceled, err)
	}

	rootNode := tree.RootNode()
	if rootNode == nil {
		recordParseMetrics(ctx, time.Since(start), 0, 0, false)
		return nil, NewParseErrorWithCause(filePath, 0, 0, "tree-sitter returned nil root node", ErrParseFailed)
	}

	if rootNode.HasError() {
		recordParseMetrics(ctx, time.Since(start), 0, 0, false)
		line, col, msg := firstSyntaxError(rootNode, content)
		return nil, NewParseErrorWithCause(filePath, line, col, msg, ErrParseFailed)
	}

	record := &ModuleRecord{
		Module:      module,
		FilePath:    filePath,
		IsPackage:   isPackageFile(filePath),
		Docstring:   p.extractDocstring(rootNode, content),
		Definitions: make([]*Definition, 0),
		Imports:     make([]ImportStmt, 0),
		Calls:       make([]CallSite, 0),
		Hash:        hashStr,
	}

	p.extractDefinitions(rootNode, content, record)
	p.extractImports(rootNode, content, record, 0)
	record.Calls, record.CallsLimited = p.extractCallSites(ctx, rootNode, content, filePath)

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, time.Since(start), 0, 0, false)
		return nil, fmt.Errorf("%w after extraction: %w", ErrContextCanceled, err)
	}

	record.ParsedAtMilli = time.Now().UnixMilli()

	defCount := record.DefinitionCount()
	setParseSpanResult(span, defCount, len(record.Imports), len(record.Calls))
	recordParseMetrics(ctx, time.Since(start), defCount, len(record.Calls), true)

	return record, nil
}

// Language returns "python".
func (p *PythonParser) Language() string {
	return "python"
}

// Extensions returns the file extensions this parser handles.
func (p *PythonParser) Extensions() []string {
	return []string{".py"}
}

// isPackageFile reports whether the path names a package __init__ file.
func isPackageFile(filePath string) bool {
	base := filepath.Base(filePath)
	return base == "__init__.py" || base == "__init__.pyi"
}

// firstSyntaxError locates the first ERROR or MISSING node in document order.
//
// Returns 1-indexed line and column and a short message. Falls back to the
// root position if HasError was set but no such node is reachable.
func firstSyntaxError(root *sitter.Node, content []byte) (int, int, string) {
	stack := []*sitter.Node{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == nil {
			continue
		}

		if node.IsError() || node.IsMissing() {
			point := node.StartPoint()
			msg := "syntax error"
			if node.IsMissing() {
				msg = fmt.Sprintf("syntax error: missing %s", node.Type())
			} else if text := truncateText(node.Content(content), 40); text != "" {
				msg = fmt.Sprintf("syntax error near %q", text)
			}
			return int(point.Row) + 1, int(point.Column) + 1, msg
		}

		if !node.HasError() {
			continue
		}
		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, node.Child(i))
		}
	}

	point := root.StartPoint()
	return int(point.Row) + 1, int(point.Column) + 1, "syntax error"
}

// =============================================================================
// Definitions
// =============================================================================

// extractDefinitions walks the top-level statements of a module.
func (p *PythonParser) extractDefinitions(root *sitter.Node, content []byte, record *ModuleRecord) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if def := p.processStatement(child, content, nil, false); def != nil {
			record.Definitions = append(record.Definitions, def)
		}
	}
}

// processStatement turns a class, function or decorated definition into a
// Definition. Any other statement yields nil.
//
// scope is the enclosing class path, nil at module level. inClass selects
// method/property kinds for function definitions.
func (p *PythonParser) processStatement(node *sitter.Node, content []byte, scope []string, inClass bool) *Definition {
	if node == nil {
		return nil
	}

	switch node.Type() {
	case pyNodeClassDefinition:
		return p.processClass(node, content, scope, nil)
	case pyNodeFunctionDefinition:
		return p.processFunction(node, content, scope, inClass, nil)
	case pyNodeDecoratedDefinition:
		decorators := p.extractDecorators(node, content)
		def := node.ChildByFieldName(pyFieldDefinition)
		if def == nil {
			return nil
		}
		switch def.Type() {
		case pyNodeClassDefinition:
			return p.processClass(def, content, scope, decorators)
		case pyNodeFunctionDefinition:
			return p.processFunction(def, content, scope, inClass, decorators)
		}
	}
	return nil
}

// processClass builds a class Definition and recurses into its body.
func (p *PythonParser) processClass(node *sitter.Node, content []byte, scope []string, decorators []string) *Definition {
	nameNode := node.ChildByFieldName(pyFieldName)
	if nameNode == nil {
		return nil
	}
	name := nameNode.Content(content)

	def := &Definition{
		Kind:       DefinitionClass,
		Name:       name,
		Path:       appendPath(scope, name),
		Decorators: decorators,
		Bases:      p.extractBases(node.ChildByFieldName(pyFieldSuperclasses), content),
		StartLine:  int(node.StartPoint().Row) + 1,
		EndLine:    int(node.EndPoint().Row) + 1,
	}

	body := node.ChildByFieldName(pyFieldBody)
	if body == nil {
		return def
	}
	def.Docstring = p.extractDocstring(body, content)

	for i := 0; i < int(body.NamedChildCount()); i++ {
		if member := p.processStatement(body.NamedChild(i), content, def.Path, true); member != nil {
			def.Children = append(def.Children, member)
		}
	}

	return def
}

// processFunction builds a function, method or property Definition.
func (p *PythonParser) processFunction(node *sitter.Node, content []byte, scope []string, inClass bool, decorators []string) *Definition {
	nameNode := node.ChildByFieldName(pyFieldName)
	if nameNode == nil {
		return nil
	}
	name := nameNode.Content(content)

	kind := DefinitionFunction
	if inClass {
		kind = DefinitionMethod
		for _, d := range decorators {
			if IsPropertyDecorator(d) {
				kind = DefinitionProperty
				break
			}
		}
	}

	def := &Definition{
		Kind:       kind,
		Name:       name,
		Path:       appendPath(scope, name),
		Decorators: decorators,
		Params:     p.extractParams(node.ChildByFieldName(pyFieldParameters), content),
		StartLine:  int(node.StartPoint().Row) + 1,
		EndLine:    int(node.EndPoint().Row) + 1,
	}

	if ret := node.ChildByFieldName(pyFieldReturnType); ret != nil {
		def.ReturnType = normalizeSpace(ret.Content(content))
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "async" {
			def.IsAsync = true
			break
		}
	}

	if body := node.ChildByFieldName(pyFieldBody); body != nil {
		def.Docstring = p.extractDocstring(body, content)
	}

	return def
}

// appendPath returns a new slice so sibling definitions never share backing arrays.
func appendPath(scope []string, name string) []string {
	path := make([]string, 0, len(scope)+1)
	path = append(path, scope...)
	return append(path, name)
}

// IsPropertyDecorator reports whether a decorator turns a method into a property.
//
// Matches property, cached_property, functools.cached_property,
// abc.abstractproperty, abstractproperty and any name ending in .setter,
// .deleter or .getter.
func IsPropertyDecorator(name string) bool {
	switch name {
	case "property", "cached_property", "functools.cached_property",
		"abstractproperty", "abc.abstractproperty":
		return true
	}
	return strings.HasSuffix(name, ".setter") ||
		strings.HasSuffix(name, ".deleter") ||
		strings.HasSuffix(name, ".getter")
}

// extractDecorators returns decorator names of a decorated_definition.
//
// For call decorators like @lru_cache(maxsize=2) only the callee is kept.
func (p *PythonParser) extractDecorators(node *sitter.Node, content []byte) []string {
	var decorators []string
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != pyNodeDecorator || child.NamedChildCount() == 0 {
			continue
		}
		expr := child.NamedChild(0)
		if expr.Type() == pyNodeCall {
			if fn := expr.ChildByFieldName(pyFieldFunction); fn != nil {
				expr = fn
			}
		}
		if name := normalizeSpace(expr.Content(content)); name != "" {
			decorators = append(decorators, name)
		}
	}
	return decorators
}

// extractBases returns the textual base class expressions of a class.
//
// Keyword arguments (metaclass=...) and splats are skipped. Subscripted
// bases such as Generic[T] are reduced to their base name.
func (p *PythonParser) extractBases(args *sitter.Node, content []byte) []string {
	if args == nil || args.Type() != pyNodeArgumentList {
		return nil
	}

	var bases []string
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		switch child.Type() {
		case pyNodeIdentifier, pyNodeAttribute:
			bases = append(bases, normalizeSpace(child.Content(content)))
		case pyNodeSubscript:
			if value := child.ChildByFieldName(pyFieldValue); value != nil {
				bases = append(bases, normalizeSpace(value.Content(content)))
			}
		}
	}
	return bases
}

// =============================================================================
// Parameters
// =============================================================================

// extractParams converts a parameters node into Params in source order.
//
// A "/" marks every earlier parameter positional-only. A bare "*" or a
// *args parameter makes every later named parameter keyword-only.
func (p *PythonParser) extractParams(node *sitter.Node, content []byte) []Param {
	if node == nil {
		return nil
	}

	params := make([]Param, 0, node.NamedChildCount())
	keywordOnly := false

	kindFor := func() ParamKind {
		if keywordOnly {
			return ParamKeywordOnly
		}
		return ParamPositionalOrKeyword
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case pyNodeIdentifier:
			params = append(params, Param{Name: child.Content(content), Kind: kindFor()})

		case pyNodeTypedParameter:
			param := Param{Kind: kindFor()}
			if typ := child.ChildByFieldName(pyFieldType); typ != nil {
				param.Annotation = normalizeSpace(typ.Content(content))
			}
			inner := child.NamedChild(0)
			if inner == nil {
				continue
			}
			switch inner.Type() {
			case pyNodeListSplatPattern:
				param.Name = splatName(inner, content)
				param.Kind = ParamVarPositional
				keywordOnly = true
			case pyNodeDictSplatPattern:
				param.Name = splatName(inner, content)
				param.Kind = ParamVarKeyword
			default:
				param.Name = inner.Content(content)
			}
			params = append(params, param)

		case pyNodeDefaultParameter, pyNodeTypedDefaultParameter:
			param := Param{Kind: kindFor(), HasDefault: true}
			if name := child.ChildByFieldName(pyFieldName); name != nil {
				param.Name = name.Content(content)
			}
			if typ := child.ChildByFieldName(pyFieldType); typ != nil {
				param.Annotation = normalizeSpace(typ.Content(content))
			}
			if value := child.ChildByFieldName(pyFieldValue); value != nil {
				param.Default = value.Content(content)
			}
			params = append(params, param)

		case pyNodeListSplatPattern:
			if name := splatName(child, content); name != "" {
				params = append(params, Param{Name: name, Kind: ParamVarPositional})
			}
			keywordOnly = true

		case pyNodeDictSplatPattern:
			params = append(params, Param{Name: splatName(child, content), Kind: ParamVarKeyword})

		case pyNodeKeywordSeparator, "*":
			keywordOnly = true

		case pyNodePositionalSeparator, "/":
			for j := range params {
				if params[j].Kind == ParamPositionalOrKeyword {
					params[j].Kind = ParamPositionalOnly
				}
			}
		}
	}

	return params
}

// splatName returns the identifier inside *args or **kwargs, or "" for a bare *.
func splatName(node *sitter.Node, content []byte) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == pyNodeIdentifier {
			return child.Content(content)
		}
	}
	return ""
}

// =============================================================================
// Docstrings
// =============================================================================

// extractDocstring returns the cleaned docstring of a module or block.
//
// The docstring is the first statement when it is a plain string
// expression. Comments before it are skipped.
func (p *PythonParser) extractDocstring(block *sitter.Node, content []byte) string {
	for i := 0; i < int(block.NamedChildCount()); i++ {
		stmt := block.NamedChild(i)
		if stmt.Type() == pyNodeComment {
			continue
		}
		if stmt.Type() != pyNodeExpressionStatement || stmt.NamedChildCount() == 0 {
			return ""
		}
		str := stmt.NamedChild(0)
		if str.Type() != pyNodeString {
			return ""
		}
		return CleanDocstring(str.Content(content))
	}
	return ""
}

// CleanDocstring strips string prefix letters and quotes from a raw string
// literal, removes the common indentation of continuation lines and trims
// surrounding whitespace.
func CleanDocstring(raw string) string {
	s := strings.TrimLeft(raw, "rRbBuUfF")

	switch {
	case len(s) >= 6 && (strings.HasPrefix(s, `"""`) && strings.HasSuffix(s, `"""`) ||
		strings.HasPrefix(s, `'''`) && strings.HasSuffix(s, `'''`)):
		s = s[3 : len(s)-3]
	case len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0]:
		s = s[1 : len(s)-1]
	}

	return dedent(strings.TrimSpace(s))
}

// dedent removes the smallest indentation shared by lines after the first.
func dedent(s string) string {
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}

	indent := -1
	for _, line := range lines[1:] {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		if n := len(line) - len(trimmed); indent < 0 || n < indent {
			indent = n
		}
	}
	if indent <= 0 {
		return s
	}

	for i := 1; i < len(lines); i++ {
		if len(lines[i]) >= indent {
			lines[i] = lines[i][indent:]
		} else {
			lines[i] = strings.TrimLeft(lines[i], " \t")
		}
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// Imports
// =============================================================================

// extractImports recursively collects import statements anywhere in the tree,
// including inside functions and conditional blocks.
func (p *PythonParser) extractImports(node *sitter.Node, content []byte, record *ModuleRecord, depth int) {
	if node == nil || depth > maxImportWalkDepth {
		return
	}

	switch node.Type() {
	case pyNodeImportStatement:
		p.processImportStatement(node, content, record)
		return
	case pyNodeImportFromStatement:
		p.processImportFromStatement(node, content, record)
		return
	case pyNodeFutureImportStatement:
		// Compiler directive, not a module dependency.
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		p.extractImports(node.NamedChild(i), content, record, depth+1)
	}
}

// processImportStatement handles `import a.b` and `import a.b as c, d`.
func (p *PythonParser) processImportStatement(node *sitter.Node, content []byte, record *ModuleRecord) {
	line := int(node.StartPoint().Row) + 1
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case pyNodeDottedName:
			record.Imports = append(record.Imports, ImportStmt{
				Module: child.Content(content),
				Line:   line,
			})
		case pyNodeAliasedImport:
			name := child.ChildByFieldName(pyFieldName)
			if name == nil {
				continue
			}
			stmt := ImportStmt{Module: name.Content(content), Line: line}
			if alias := child.ChildByFieldName(pyFieldAlias); alias != nil {
				stmt.Alias = alias.Content(content)
			}
			record.Imports = append(record.Imports, stmt)
		}
	}
}

// processImportFromStatement handles `from [.]*m import a [as b], ...` and
// `from m import *`.
func (p *PythonParser) processImportFromStatement(node *sitter.Node, content []byte, record *ModuleRecord) {
	stmt := ImportStmt{
		IsFrom: true,
		Line:   int(node.StartPoint().Row) + 1,
	}

	moduleNode := node.ChildByFieldName(pyFieldModuleName)
	if moduleNode == nil {
		return
	}
	switch moduleNode.Type() {
	case pyNodeRelativeImport:
		for i := 0; i < int(moduleNode.NamedChildCount()); i++ {
			child := moduleNode.NamedChild(i)
			switch child.Type() {
			case pyNodeImportPrefix:
				stmt.Level = strings.Count(child.Content(content), ".")
			case pyNodeDottedName:
				stmt.Module = child.Content(content)
			}
		}
	default:
		stmt.Module = moduleNode.Content(content)
	}

	// Imported names follow the "import" keyword.
	afterImport := false
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if !afterImport {
			afterImport = child.Type() == "import"
			continue
		}
		switch child.Type() {
		case pyNodeDottedName:
			stmt.Names = append(stmt.Names, ImportedName{Name: child.Content(content)})
		case pyNodeAliasedImport:
			imported := ImportedName{}
			if name := child.ChildByFieldName(pyFieldName); name != nil {
				imported.Name = name.Content(content)
			}
			if alias := child.ChildByFieldName(pyFieldAlias); alias != nil {
				imported.Alias = alias.Content(content)
			}
			if imported.Name != "" {
				stmt.Names = append(stmt.Names, imported)
			}
		case pyNodeWildcardImport:
			stmt.IsWildcard = true
		}
	}

	record.Imports = append(record.Imports, stmt)
}

// =============================================================================
// Call sites
// =============================================================================

// extractCallSites walks the whole tree with a scope stack and records every
// call expression.
//
// Description:
//
//	The walk is iterative to bound stack use on deeply nested code. When a
//	class or function body is entered, the body's frame carries the scope
//	stack extended with that definition. Decorators, default values and
//	base-class expressions stay in the enclosing scope. The walk stops at
//	MaxCallExpressionDepth levels and after maxCallSites calls, and checks
//	for cancellation every 100 nodes.
//
// Outputs:
//   - []CallSite: Calls in document order. Partial on cancellation.
//   - bool: True when the depth or call-site limit dropped calls.
func (p *PythonParser) extractCallSites(ctx context.Context, root *sitter.Node, content []byte, filePath string) ([]CallSite, bool) {
	ctx, span := tracer.Start(ctx, "PythonParser.extractCallSites")
	defer span.End()

	calls := make([]CallSite, 0, 16)

	type frame struct {
		node  *sitter.Node
		depth int
		scope []Scope
	}

	stack := make([]frame, 0, 64)
	stack = append(stack, frame{node: root})

	nodeCount := 0
	limited := false
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := entry.node
		if node == nil {
			continue
		}

		if entry.depth > MaxCallExpressionDepth {
			slog.Debug("max call expression depth reached",
				slog.String("file", filePath),
				slog.Int("depth", entry.depth),
			)
			limited = true
			continue
		}

		nodeCount++
		if nodeCount%100 == 0 && ctx.Err() != nil {
			slog.Debug("context cancelled during call extraction",
				slog.String("file", filePath),
				slog.Int("calls_found", len(calls)),
			)
			break
		}

		if node.Type() == pyNodeCall {
			if len(calls) >= p.maxCallSites {
				slog.Warn("max call sites per file reached",
					slog.String("file", filePath),
					slog.Int("limit", p.maxCallSites),
				)
				limited = true
				break
			}
			if call, ok := p.extractSingleCallSite(node, content, entry.scope); ok {
				calls = append(calls, call)
			}
		}

		// The body of a def or class is walked inside the new scope.
		var bodyScope []Scope
		switch node.Type() {
		case pyNodeFunctionDefinition, pyNodeClassDefinition:
			if name := node.ChildByFieldName(pyFieldName); name != nil {
				kind := ScopeFunction
				if node.Type() == pyNodeClassDefinition {
					kind = ScopeClass
				}
				bodyScope = make([]Scope, 0, len(entry.scope)+1)
				bodyScope = append(bodyScope, entry.scope...)
				bodyScope = append(bodyScope, Scope{Kind: kind, Name: name.Content(content)})
			}
		}
		body := node.ChildByFieldName(pyFieldBody)

		// Reverse order for left-to-right processing.
		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			child := node.Child(i)
			if child == nil {
				continue
			}
			scope := entry.scope
			if bodyScope != nil && body != nil && child.Type() == pyNodeBlock && sameNode(child, body) {
				scope = bodyScope
			}
			stack = append(stack, frame{node: child, depth: entry.depth + 1, scope: scope})
		}
	}

	span.SetAttributes(
		attribute.String("file", filePath),
		attribute.Int("calls_found", len(calls)),
		attribute.Int("nodes_traversed", nodeCount),
		attribute.Bool("limited", limited),
	)

	return calls, limited
}

// extractSingleCallSite classifies one call node.
//
// Shapes:
//   - identifier callee: CallBare with Name set
//   - self.m / cls.m: CallSelf / CallCls with Name "m"
//   - anything else: CallOther with the (truncated) callee text
func (p *PythonParser) extractSingleCallSite(node *sitter.Node, content []byte, scope []Scope) (CallSite, bool) {
	funcNode := node.ChildByFieldName(pyFieldFunction)
	if funcNode == nil {
		return CallSite{}, false
	}

	call := CallSite{
		Shape:  CallOther,
		Scope:  scope,
		Line:   int(node.StartPoint().Row) + 1,
		Column: int(node.StartPoint().Column) + 1,
	}

	switch funcNode.Type() {
	case pyNodeIdentifier:
		call.Shape = CallBare
		call.Name = funcNode.Content(content)

	case pyNodeAttribute:
		objectNode := funcNode.ChildByFieldName(pyFieldObject)
		attrNode := funcNode.ChildByFieldName(pyFieldAttributeName)
		if attrNode != nil {
			call.Name = attrNode.Content(content)
		}
		if objectNode != nil {
			call.Receiver = truncateText(objectNode.Content(content), maxCallTextLen)
			if objectNode.Type() == pyNodeIdentifier {
				switch call.Receiver {
				case "self":
					call.Shape = CallSelf
				case "cls":
					call.Shape = CallCls
				}
			}
		}

	default:
		call.Name = truncateText(funcNode.Content(content), maxCallTextLen)
	}

	if call.Name == "" {
		return CallSite{}, false
	}
	return call, true
}

// sameNode reports whether two handles refer to the same syntax node.
func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// truncateText collapses whitespace and cuts s to at most n bytes on a rune boundary.
func truncateText(s string, n int) string {
	s = normalizeSpace(s)
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// normalizeSpace collapses runs of whitespace, including newlines inside
// multi-line annotations, to single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Compile-time interface compliance check.
var _ Parser = (*PythonParser)(nil)
