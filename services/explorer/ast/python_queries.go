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

// Python Tree-sitter Node Types
//
// PythonParser walks nodes directly rather than through tree-sitter's query
// language. These are the node and field names it relies on.
//
// Reference: https://github.com/tree-sitter/tree-sitter-python/blob/master/src/grammar.json
const (
	pyNodeModule = "module"

	// Imports
	pyNodeImportStatement       = "import_statement"
	pyNodeImportFromStatement   = "import_from_statement"
	pyNodeFutureImportStatement = "future_import_statement"
	pyNodeDottedName            = "dotted_name"
	pyNodeAliasedImport         = "aliased_import"
	pyNodeRelativeImport        = "relative_import"
	pyNodeImportPrefix          = "import_prefix"
	pyNodeWildcardImport        = "wildcard_import"

	// Functions and parameters
	pyNodeFunctionDefinition    = "function_definition"
	pyNodeParameters            = "parameters"
	pyNodeLambdaParameters      = "lambda_parameters"
	pyNodeTypedParameter        = "typed_parameter"
	pyNodeDefaultParameter      = "default_parameter"
	pyNodeTypedDefaultParameter = "typed_default_parameter"
	pyNodeListSplatPattern      = "list_splat_pattern"
	pyNodeDictSplatPattern      = "dictionary_splat_pattern"
	pyNodeKeywordSeparator      = "keyword_separator"
	pyNodePositionalSeparator   = "positional_separator"
	pyNodeType                  = "type"

	// Classes
	pyNodeClassDefinition = "class_definition"
	pyNodeArgumentList    = "argument_list"
	pyNodeKeywordArgument = "keyword_argument"
	pyNodeBlock           = "block"

	// Decorators
	pyNodeDecoratedDefinition = "decorated_definition"
	pyNodeDecorator           = "decorator"

	// Expressions
	pyNodeExpressionStatement = "expression_statement"
	pyNodeString              = "string"
	pyNodeConcatenatedString  = "concatenated_string"
	pyNodeIdentifier          = "identifier"
	pyNodeAttribute           = "attribute"
	pyNodeSubscript           = "subscript"
	pyNodeCall                = "call"
	pyNodeComment             = "comment"
	pyNodeError               = "ERROR"
)

// Field names used with ChildByFieldName.
const (
	pyFieldName          = "name"
	pyFieldParameters    = "parameters"
	pyFieldReturnType    = "return_type"
	pyFieldBody          = "body"
	pyFieldSuperclasses  = "superclasses"
	pyFieldDefinition    = "definition"
	pyFieldType          = "type"
	pyFieldValue         = "value"
	pyFieldAlias         = "alias"
	pyFieldModuleName    = "module_name"
	pyFieldFunction      = "function"
	pyFieldObject        = "object"
	pyFieldAttributeName = "attribute"
)
