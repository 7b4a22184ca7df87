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
	"regexp"
	"strings"
)

var (
	pep503Separators = regexp.MustCompile(`[-_.]+`)
	dottedIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// DefaultAliases maps PEP 503 normalized distribution names to the import
// name they install when the two differ.
var DefaultAliases = map[string]string{
	"scikit-learn":    "sklearn",
	"pillow":          "PIL",
	"beautifulsoup4":  "bs4",
	"pyyaml":          "yaml",
	"opencv-python":   "cv2",
	"python-dateutil": "dateutil",
	"protobuf":        "google.protobuf",
}

// NormalizeDistName converts a distribution name to its PEP 503 canonical
// form: lowercase with runs of "-", "_" and "." collapsed to a single "-".
func NormalizeDistName(name string) string {
	return pep503Separators.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// IsModuleName reports whether s is a valid dotted Python module name.
func IsModuleName(s string) bool {
	return dottedIdentifier.MatchString(s)
}

// isIdentifier reports whether s is a single Python identifier.
func isIdentifier(s string) bool {
	return s != "" && !strings.Contains(s, ".") && dottedIdentifier.MatchString(s)
}

// derivedNames returns the spelling variants of an identifier that may be
// its import name.
func derivedNames(identifier string) []string {
	underscored := strings.ReplaceAll(identifier, "-", "_")
	lower := strings.ToLower(identifier)
	return []string{
		underscored,
		lower,
		strings.ReplaceAll(lower, "-", "_"),
	}
}

// candidateSet is an insertion-ordered set of candidate module names.
type candidateSet struct {
	seen  map[string]bool
	names []string
}

func newCandidateSet() *candidateSet {
	return &candidateSet{seen: make(map[string]bool)}
}

// add records name if it is a valid module name and not yet present.
func (c *candidateSet) add(names ...string) {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if !IsModuleName(name) || c.seen[name] {
			continue
		}
		c.seen[name] = true
		c.names = append(c.names, name)
	}
}
