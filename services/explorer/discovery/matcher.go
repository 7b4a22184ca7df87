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
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultTestPathPatterns are the exclusion globs applied when the caller
// does not provide any.
var DefaultTestPathPatterns = []string{
	"**/tests/**",
	"**/test/**",
	"**/testing/**",
	"**/test_*.py",
	"**/*_test.py",
	"**/conftest.py",
}

// Matcher holds exclusion globs in doublestar syntax.
//
// Patterns without a "/" match a base name at any depth. A leading "!"
// re-includes paths excluded by an earlier pattern; the last matching
// pattern wins.
type Matcher struct {
	patterns []excludePattern
}

type excludePattern struct {
	glob    string
	negated bool
}

// NewMatcher compiles the given patterns. Blank lines and "#" comments are
// ignored.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.add(p)
	}
	return m
}

func (m *Matcher) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	p := excludePattern{}
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}

	dirOnly := strings.HasSuffix(line, "/")
	line = strings.Trim(line, "/")
	if !strings.Contains(line, "/") {
		line = "**/" + line
	}
	// Directory patterns cover everything beneath them.
	if dirOnly {
		line += "/**"
	}

	if !doublestar.ValidatePattern(line) {
		return
	}
	p.glob = line
	m.patterns = append(m.patterns, p)
}

// Len returns the number of compiled patterns.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

// Match reports whether a slash-separated relative path is excluded.
func (m *Matcher) Match(path string) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")

	excluded := false
	for _, p := range m.patterns {
		if matchGlob(p.glob, path) {
			excluded = !p.negated
		}
	}
	return excluded
}

// matchGlob tries the pattern as given and, for patterns not already ending
// in "/**", as a directory prefix.
func matchGlob(pattern, path string) bool {
	if ok, _ := doublestar.Match(pattern, path); ok {
		return true
	}
	if !strings.HasSuffix(pattern, "/**") {
		ok, _ := doublestar.Match(pattern+"/**", path)
		return ok
	}
	return false
}
