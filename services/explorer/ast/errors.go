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
	"errors"
	"fmt"
)

// Sentinel errors for parse failure conditions.
//
// These can be checked with errors.Is() to determine the category of a
// failure without inspecting messages.
var (
	// ErrParseFailed indicates the source has syntax errors or the
	// tree-sitter parse itself failed. The file is skipped.
	ErrParseFailed = errors.New("parse failed")

	// ErrInvalidContent indicates the content is not valid UTF-8.
	ErrInvalidContent = errors.New("invalid content")

	// ErrFileTooLarge indicates the content exceeds the parser's size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrContextCanceled indicates parsing stopped because the context ended.
	ErrContextCanceled = errors.New("parse canceled")
)

// ParseError provides detailed information about a parse failure.
//
// ParseError wraps an underlying error with the location in the source file
// where the failure was detected.
//
// Example:
//
//	record, err := parser.Parse(ctx, content, "pkg/a.py", "pkg.a")
//	if err != nil {
//	    var parseErr *ParseError
//	    if errors.As(err, &parseErr) {
//	        fmt.Printf("%s:%d:%d: %s\n",
//	            parseErr.FilePath, parseErr.Line, parseErr.Column, parseErr.Message)
//	    }
//	}
type ParseError struct {
	// FilePath is the path to the file where the error occurred.
	FilePath string

	// Line is the 1-indexed line number, 0 if unknown.
	Line int

	// Column is the 1-indexed column, 0 if unknown.
	Column int

	// Message describes the error.
	Message string

	// Cause is the underlying error. May be nil.
	Cause error
}

// Error returns a formatted message including the file location.
//
// Format depends on available location information:
//   - With line and column: "a.py:10:5: syntax error"
//   - With line only:       "a.py:10: syntax error"
//   - Without location:     "a.py: syntax error"
func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseErrorWithCause creates a ParseError wrapping an underlying error.
func NewParseErrorWithCause(filePath string, line, column int, message string, cause error) *ParseError {
	return &ParseError{
		FilePath: filePath,
		Line:     line,
		Column:   column,
		Message:  message,
		Cause:    cause,
	}
}

// WrapParseError wraps an error with file context.
//
// If the error already is a ParseError it is returned unchanged.
// Returns nil if err is nil.
func WrapParseError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return err
	}

	return &ParseError{
		FilePath: filePath,
		Message:  err.Error(),
		Cause:    err,
	}
}

// IsParseError checks if an error is or wraps a ParseError.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}
