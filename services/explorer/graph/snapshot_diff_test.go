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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diffFixtures(t *testing.T) (*Result, *Result) {
	t.Helper()
	base, _ := buildFixture(t, []string{"pkg"}, []srcFile{
		{module: "pkg", pkg: true, source: ""},
		{module: "pkg.a", source: "def f(x):\n    pass\n\ndef gone():\n    pass\n\nclass C:\n    def m(self):\n        pass\n"},
	}, DefaultLimits())
	target, _ := buildFixture(t, []string{"pkg"}, []srcFile{
		{module: "pkg", pkg: true, source: ""},
		{module: "pkg.a", source: "def f(x, y=2):\n    pass\n\nclass C:\n    def m(self):\n        self.n()\n\n    def n(self):\n        pass\n"},
	}, DefaultLimits())
	return base, target
}

func TestDiffResults(t *testing.T) {
	base, target := diffFixtures(t)

	d, err := DiffResults(base, target, "base", "target")
	require.NoError(t, err)

	assert.Equal(t, []string{"pkg.a.C.n"}, d.NodesAdded)
	assert.Equal(t, []string{"pkg.a.gone"}, d.NodesRemoved)
	assert.Equal(t, []NodeDiff{
		{NodeID: "pkg.a.C.m", QualifiedPath: "pkg.a.C.m", Kind: NodeMethod, ChangeType: ChangeEdges},
		{NodeID: "pkg.a.f", QualifiedPath: "pkg.a.f", Kind: NodeFunction, ChangeType: ChangeSignature},
	}, d.NodesModified)

	assert.Contains(t, d.EdgesAdded, "calls|pkg.a.C.m|pkg.a.C.n|/lib/pkg/a.py|6")
	assert.Contains(t, d.EdgesAdded, "contains|pkg.a.C|pkg.a.C.n")
	assert.Equal(t, []string{"contains|pkg.a|pkg.a.gone"}, d.EdgesRemoved)
	assert.Equal(t, 1, d.Summary.FilesAffected)
	assert.False(t, d.Empty())

	same, err := DiffResults(base, base, "base", "base")
	require.NoError(t, err)
	assert.True(t, same.Empty())

	_, err = DiffResults(nil, base, "", "")
	assert.ErrorIs(t, err, ErrNilResult)
}

func TestUnifiedDiff(t *testing.T) {
	base, target := diffFixtures(t)

	out, err := UnifiedDiff(base, target, "base", "target")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "--- a/base\n+++ b/target\n"), out)
	assert.Contains(t, out, "@@ -")
	assert.Contains(t, out, "\n-node function pkg.a.gone in pkg.a at /lib/pkg/a.py:4")
	assert.Contains(t, out, "\n+node method pkg.a.C.n in pkg.a.C at /lib/pkg/a.py:8")
	assert.Contains(t, out, "\n+edge calls|pkg.a.C.m|pkg.a.C.n|/lib/pkg/a.py|6")

	empty, err := UnifiedDiff(base, base, "base", "base")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBuildHunks(t *testing.T) {
	ops := []lineOp{
		{' ', "1"}, {' ', "2"}, {' ', "3"}, {' ', "4"}, {' ', "5"},
		{'-', "6"}, {'+', "six"},
		{' ', "7"}, {' ', "8"}, {' ', "9"}, {' ', "10"}, {' ', "11"}, {' ', "12"}, {' ', "13"}, {' ', "14"},
		{'+', "new"},
		{' ', "15"},
	}

	hunks := buildHunks(ops, 3)
	require.Len(t, hunks, 2)

	assert.Equal(t, int32(3), hunks[0].OrigStartLine)
	assert.Equal(t, int32(7), hunks[0].OrigLines)
	assert.Equal(t, int32(3), hunks[0].NewStartLine)
	assert.Equal(t, int32(7), hunks[0].NewLines)
	assert.Equal(t, " 3\n 4\n 5\n-6\n+six\n 7\n 8\n 9\n", string(hunks[0].Body))

	assert.Equal(t, int32(12), hunks[1].OrigStartLine)
	assert.Equal(t, int32(4), hunks[1].OrigLines)
	assert.Equal(t, int32(12), hunks[1].NewStartLine)
	assert.Equal(t, int32(5), hunks[1].NewLines)

	t.Run("close changes merge", func(t *testing.T) {
		merged := buildHunks([]lineOp{{'-', "a"}, {' ', "b"}, {' ', "c"}, {'+', "d"}}, 3)
		require.Len(t, merged, 1)
		assert.Equal(t, "-a\n b\n c\n+d\n", string(merged[0].Body))
	})
}
