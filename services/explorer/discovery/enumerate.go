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
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// SourceFile is one Python file scheduled for parsing.
type SourceFile struct {
	// Root is the Name of the Root the file belongs to.
	Root string `json:"root"`

	// Path is the absolute file path.
	Path string `json:"path"`

	// RelPath is the slash-separated path relative to the root's search path.
	RelPath string `json:"rel_path"`

	// Module is the dotted module name. __init__.py names its package.
	Module string `json:"module"`
}

// IsPackage reports whether the file is a package __init__.
func (f SourceFile) IsPackage() bool {
	return filepath.Base(f.Path) == "__init__.py"
}

// Listing is the result of Enumerate.
type Listing struct {
	Files []SourceFile

	// Truncated is set when MaxFiles stopped the walk early.
	Truncated bool

	// Excluded counts files skipped by exclusion patterns.
	Excluded int
}

// EnumerateOptions bounds and filters enumeration.
type EnumerateOptions struct {
	// MaxFiles stops the walk after this many files. 0 means unbounded.
	MaxFiles int

	// Exclude holds doublestar globs matched against RelPath. Nil selects
	// DefaultTestPathPatterns; an empty non-nil slice disables exclusion.
	Exclude []string
}

// Enumerate lists the Python source files under each root.
//
// Description:
//
//	Directories are walked in lexical order so the listing, and every id
//	derived from it, is deterministic. Hidden directories, __pycache__,
//	and directories or files whose names are not importable are skipped.
//
// Inputs:
//   - ctx: Checked before every directory entry.
//   - roots: Roots from Resolve.
//   - opts: Caps and exclusions.
//
// Outputs:
//   - Listing: Files in walk order.
//   - error: The context error, or a walk error on the root itself.
//     Unreadable subdirectories are logged and skipped.
func Enumerate(ctx context.Context, roots []Root, opts EnumerateOptions) (Listing, error) {
	ctx, span := tracer.Start(ctx, "discovery.Enumerate")
	defer span.End()

	patterns := opts.Exclude
	if patterns == nil {
		patterns = DefaultTestPathPatterns
	}
	matcher := NewMatcher(patterns)

	var listing Listing
	seen := make(map[string]bool)
	full := func() bool {
		return opts.MaxFiles > 0 && len(listing.Files) >= opts.MaxFiles
	}

	for _, root := range roots {
		if err := ctx.Err(); err != nil {
			return listing, err
		}

		if root.File != "" {
			rel := relSlash(root.SearchPath, root.File)
			if matcher.Match(rel) {
				listing.Excluded++
				continue
			}
			if seen[root.File] {
				continue
			}
			if full() {
				listing.Truncated = true
				break
			}
			seen[root.File] = true
			listing.Files = append(listing.Files, SourceFile{
				Root:    root.Name,
				Path:    root.File,
				RelPath: rel,
				Module:  root.Name,
			})
			continue
		}

		err := filepath.WalkDir(root.Dir, func(path string, d fs.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if walkErr != nil {
				if path == root.Dir {
					return walkErr
				}
				slog.Warn("skipping unreadable path",
					slog.String("path", path),
					slog.Any("error", walkErr))
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			name := d.Name()
			if d.IsDir() {
				if path == root.Dir {
					return nil
				}
				if strings.HasPrefix(name, ".") || name == "__pycache__" || !isIdentifier(name) {
					return filepath.SkipDir
				}
				return nil
			}

			if !d.Type().IsRegular() || filepath.Ext(name) != ".py" {
				return nil
			}
			if stem := strings.TrimSuffix(name, ".py"); !isIdentifier(stem) {
				return nil
			}
			if seen[path] {
				return nil
			}

			rel := relSlash(root.SearchPath, path)
			if matcher.Match(rel) {
				listing.Excluded++
				return nil
			}

			if full() {
				listing.Truncated = true
				return filepath.SkipAll
			}

			module, err := ModuleName(root, path)
			if err != nil {
				return nil
			}
			seen[path] = true
			listing.Files = append(listing.Files, SourceFile{
				Root:    root.Name,
				Path:    path,
				RelPath: rel,
				Module:  module,
			})
			return nil
		})
		if err != nil {
			return listing, fmt.Errorf("walk %s: %w", root.Dir, err)
		}
		if listing.Truncated {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("discovery.roots", len(roots)),
		attribute.Int("discovery.files", len(listing.Files)),
		attribute.Int("discovery.excluded", listing.Excluded),
		attribute.Bool("discovery.truncated", listing.Truncated),
	)

	return listing, nil
}

// ModuleName computes the dotted module name of a file under a root.
//
// pkg/sub/__init__.py names "pkg.sub"; pkg/sub/x.py names "pkg.sub.x".
func ModuleName(root Root, path string) (string, error) {
	if root.File != "" {
		return root.Name, nil
	}

	rel, err := filepath.Rel(root.Dir, path)
	if err != nil {
		return "", err
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), ".py")
	parts := strings.Split(rel, "/")
	if len(parts) > 0 && parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return root.Name, nil
	}
	return root.Name + "." + strings.Join(parts, "."), nil
}

// ReadSource reads a source file, refusing files larger than maxSize bytes.
//
// Errors are returned as *FileReadError.
func ReadSource(path string, maxSize int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, &FileReadError{
			Path: path,
			Err:  fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, info.Size(), maxSize),
		}
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}
	return content, nil
}

// IsFileReadError reports whether err is or wraps a *FileReadError.
func IsFileReadError(err error) bool {
	var readErr *FileReadError
	return errors.As(err, &readErr)
}

func relSlash(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
