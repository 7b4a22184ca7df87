// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package discovery

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRootNotFound indicates no candidate name resolved to a source tree.
	ErrRootNotFound = errors.New("library source root not found")

	// ErrEmptyIdentifier indicates Resolve was called without an identifier.
	ErrEmptyIdentifier = errors.New("empty library identifier")

	// ErrFileTooLarge indicates a source file exceeds the read limit.
	ErrFileTooLarge = errors.New("source file too large")
)

// RootResolutionError reports that a library identifier could not be mapped
// to any source directory or module file.
//
// This is the only error that ends an analysis run early.
type RootResolutionError struct {
	// Identifier is the library identifier as given.
	Identifier string

	// Tried lists the candidate import names that were attempted.
	Tried []string

	// SearchPaths lists the directories searched.
	SearchPaths []string
}

// Error implements error.
func (e *RootResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: no source tree for candidates [%s] in %d search paths",
		e.Identifier, strings.Join(e.Tried, ", "), len(e.SearchPaths))
}

// Unwrap returns ErrRootNotFound.
func (e *RootResolutionError) Unwrap() error {
	return ErrRootNotFound
}

// FileReadError reports a source file that could not be read.
type FileReadError struct {
	Path string
	Err  error
}

// Error implements error.
func (e *FileReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FileReadError) Unwrap() error {
	return e.Err
}
