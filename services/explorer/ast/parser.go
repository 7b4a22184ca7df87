// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast turns Python source files into module records: the
// definitions, imports and call sites the graph builder needs.
//
// Parsing is purely static. No analysed code is ever imported or executed.
package ast

import "context"

// Parser extracts a ModuleRecord from one source file.
//
// Description:
//
//	A Parser reads raw file content and produces the definitions, imports
//	and call sites of a single module. Implementations must not retain the
//	content slice after Parse returns.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use. The analyzer calls
//	Parse from several goroutines on the same Parser.
type Parser interface {
	// Parse extracts a ModuleRecord from content.
	//
	// Inputs:
	//   - ctx: Context for cancellation.
	//   - content: Raw source bytes.
	//   - filePath: Path used in error messages and the record.
	//   - module: Dotted module name the file represents.
	//
	// Outputs:
	//   - *ModuleRecord: Never nil when error is nil.
	//   - error: *ParseError for syntax errors, or a wrapped ErrFileTooLarge,
	//     ErrInvalidContent or context error.
	Parse(ctx context.Context, content []byte, filePath, module string) (*ModuleRecord, error)

	// Language returns the canonical language name.
	Language() string

	// Extensions returns the file extensions handled, including the dot.
	Extensions() []string
}
