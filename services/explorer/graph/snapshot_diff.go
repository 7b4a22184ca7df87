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
	"fmt"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/sourcegraph/go-diff/diff"
)

// unifiedContext is the number of context lines around each hunk.
const unifiedContext = 3

// Change types reported in NodeDiff.ChangeType.
const (
	ChangeSignature = "signature_changed"
	ChangeMoved     = "moved"
	ChangeEdges     = "edges_changed"
	ChangeDocstring = "docstring_changed"
)

// SnapshotDiff contains the differences between two results.
type SnapshotDiff struct {
	BaseSnapshotID   string `json:"base_snapshot_id"`
	TargetSnapshotID string `json:"target_snapshot_id"`

	// NodesAdded are node IDs present in target but not in base.
	NodesAdded []string `json:"nodes_added"`

	// NodesRemoved are node IDs present in base but not in target.
	NodesRemoved []string `json:"nodes_removed"`

	NodesModified []NodeDiff `json:"nodes_modified"`

	// EdgesAdded and EdgesRemoved hold Edge.Key values.
	EdgesAdded   []string `json:"edges_added"`
	EdgesRemoved []string `json:"edges_removed"`

	Summary DiffSummary `json:"summary"`
}

// NodeDiff describes how a single node changed.
type NodeDiff struct {
	NodeID        string   `json:"node_id"`
	QualifiedPath string   `json:"qualified_path"`
	Kind          NodeKind `json:"kind"`
	ChangeType    string   `json:"change_type"`
}

// DiffSummary contains aggregate statistics about a diff.
type DiffSummary struct {
	// TotalChanges counts node additions, removals, modifications and edge
	// changes.
	TotalChanges int `json:"total_changes"`

	// FilesAffected is the number of distinct files with changed nodes.
	FilesAffected int `json:"files_affected"`

	// ChangeRatio is the fraction of nodes that changed (0.0 to 1.0).
	ChangeRatio float64 `json:"change_ratio"`
}

// Empty reports whether the two results were structurally identical.
func (d *SnapshotDiff) Empty() bool {
	return d.Summary.TotalChanges == 0
}

// DiffResults compares two results by node id and edge key.
//
// Description:
//
//	Nodes with the same id in both results are compared field by field.
//	A definition that moves to another file keeps its qualified path and
//	so its id; it is reported as "moved". Output slices are sorted.
//
// Complexity:
//
//	O(V + E) where V and E are the larger node and edge counts.
func DiffResults(base, target *Result, baseSnapshotID, targetSnapshotID string) (*SnapshotDiff, error) {
	if base == nil || target == nil {
		return nil, ErrNilResult
	}

	d := &SnapshotDiff{
		BaseSnapshotID:   baseSnapshotID,
		TargetSnapshotID: targetSnapshotID,
		NodesAdded:       []string{},
		NodesRemoved:     []string{},
		NodesModified:    []NodeDiff{},
		EdgesAdded:       []string{},
		EdgesRemoved:     []string{},
	}

	baseNodes := indexNodes(base)
	targetNodes := indexNodes(target)
	baseDegree := edgeDegrees(base)
	targetDegree := edgeDegrees(target)
	affectedFiles := make(map[string]bool)

	for id, tn := range targetNodes {
		bn, ok := baseNodes[id]
		if !ok {
			d.NodesAdded = append(d.NodesAdded, id)
			affectedFiles[tn.FilePath] = true
			continue
		}
		change := classifyChange(bn, tn, baseDegree[id], targetDegree[id])
		if change == "" {
			continue
		}
		affectedFiles[bn.FilePath] = true
		affectedFiles[tn.FilePath] = true
		d.NodesModified = append(d.NodesModified, NodeDiff{
			NodeID:        id,
			QualifiedPath: tn.QualifiedPath,
			Kind:          tn.Kind,
			ChangeType:    change,
		})
	}
	for id, bn := range baseNodes {
		if _, ok := targetNodes[id]; !ok {
			d.NodesRemoved = append(d.NodesRemoved, id)
			affectedFiles[bn.FilePath] = true
		}
	}
	delete(affectedFiles, "")

	baseEdges := edgeSet(base)
	targetEdges := edgeSet(target)
	for key := range targetEdges {
		if !baseEdges[key] {
			d.EdgesAdded = append(d.EdgesAdded, key)
		}
	}
	for key := range baseEdges {
		if !targetEdges[key] {
			d.EdgesRemoved = append(d.EdgesRemoved, key)
		}
	}

	sort.Strings(d.NodesAdded)
	sort.Strings(d.NodesRemoved)
	sort.Strings(d.EdgesAdded)
	sort.Strings(d.EdgesRemoved)
	sort.Slice(d.NodesModified, func(i, j int) bool {
		return d.NodesModified[i].NodeID < d.NodesModified[j].NodeID
	})

	totalNodes := max(len(baseNodes), len(targetNodes))
	changedNodes := len(d.NodesAdded) + len(d.NodesRemoved) + len(d.NodesModified)
	ratio := 0.0
	if totalNodes > 0 {
		ratio = float64(changedNodes) / float64(totalNodes)
	}
	d.Summary = DiffSummary{
		TotalChanges:  changedNodes + len(d.EdgesAdded) + len(d.EdgesRemoved),
		FilesAffected: len(affectedFiles),
		ChangeRatio:   ratio,
	}
	return d, nil
}

// classifyChange returns the change type of a node present in both
// results, or "" if it is unchanged.
func classifyChange(base, target *Node, baseDegree, targetDegree int) string {
	switch {
	case base.FilePath != target.FilePath:
		return ChangeMoved
	case signatureText(base) != signatureText(target), base.Kind != target.Kind:
		return ChangeSignature
	case baseDegree != targetDegree:
		return ChangeEdges
	case base.Docstring != target.Docstring:
		return ChangeDocstring
	}
	return ""
}

// signatureText renders a callable signature as one comparable line.
func signatureText(n *Node) string {
	if n.Signature == nil {
		return ""
	}
	var sb strings.Builder
	if n.Signature.IsAsync {
		sb.WriteString("async ")
	}
	sb.WriteString("(")
	for i, p := range n.Signature.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Kind.String())
		sb.WriteString(":")
		sb.WriteString(p.Name)
		if p.Annotation != "" {
			sb.WriteString(": " + p.Annotation)
		}
		if p.HasDefault {
			sb.WriteString(" = " + p.Default)
		}
	}
	sb.WriteString(")")
	if n.Signature.ReturnType != "" {
		sb.WriteString(" -> " + n.Signature.ReturnType)
	}
	if len(n.Signature.Decorators) > 0 {
		sb.WriteString(" @" + strings.Join(n.Signature.Decorators, " @"))
	}
	return sb.String()
}

func indexNodes(r *Result) map[string]*Node {
	m := make(map[string]*Node, len(r.Nodes))
	for _, n := range r.Nodes {
		m[n.ID] = n
	}
	return m
}

// edgeDegrees counts non-contains edges touching each node.
func edgeDegrees(r *Result) map[string]int {
	m := make(map[string]int)
	for _, e := range r.Edges {
		if e.Relation == RelContains {
			continue
		}
		m[e.SourceID]++
		m[e.TargetID]++
	}
	return m
}

func edgeSet(r *Result) map[string]bool {
	set := make(map[string]bool, len(r.Edges))
	for _, e := range r.Edges {
		set[e.Key()] = true
	}
	return set
}

// RenderText renders a result as sorted lines, one per node and edge, for
// line-oriented diffing.
func RenderText(r *Result) string {
	var sb strings.Builder
	for _, n := range r.Nodes {
		fmt.Fprintf(&sb, "node %s %s", n.Kind, n.ID)
		if n.ParentID != "" {
			fmt.Fprintf(&sb, " in %s", n.ParentID)
		}
		if n.FilePath != "" {
			fmt.Fprintf(&sb, " at %s:%d", n.FilePath, n.Line)
		}
		if sig := signatureText(n); sig != "" {
			sb.WriteString(" " + sig)
		}
		sb.WriteString("\n")
	}
	for _, e := range r.Edges {
		fmt.Fprintf(&sb, "edge %s\n", e.Key())
	}
	return sb.String()
}

// UnifiedDiff renders the difference between two results as a unified
// diff of their RenderText forms.
//
// Outputs:
//   - string: the diff, or "" when the renderings are identical.
func UnifiedDiff(base, target *Result, baseSnapshotID, targetSnapshotID string) (string, error) {
	if base == nil || target == nil {
		return "", ErrNilResult
	}

	ops := lineOps(RenderText(base), RenderText(target))
	hunks := buildHunks(ops, unifiedContext)
	if len(hunks) == 0 {
		return "", nil
	}

	fd := &diff.FileDiff{
		OrigName: "a/" + baseSnapshotID,
		NewName:  "b/" + targetSnapshotID,
		Hunks:    hunks,
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("printing diff: %w", err)
	}
	return string(out), nil
}

// lineOp is one line of a line-level diff, prefixed ' ', '-' or '+'.
type lineOp struct {
	kind byte
	text string
}

// lineOps computes a line-level diff.
func lineOps(before, after string) []lineOp {
	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(chars1, chars2, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var ops []lineOp
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		kind := byte(' ')
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			kind = '-'
		case diffmatchpatch.DiffInsert:
			kind = '+'
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			ops = append(ops, lineOp{kind: kind, text: line})
		}
	}
	return ops
}

// buildHunks groups changed lines with up to context unchanged lines on
// each side. Changes separated by at most 2*context lines share a hunk.
func buildHunks(ops []lineOp, context int) []*diff.Hunk {
	// origBefore[i] and newBefore[i] count lines preceding ops[i].
	origBefore := make([]int, len(ops)+1)
	newBefore := make([]int, len(ops)+1)
	for i, op := range ops {
		origBefore[i+1] = origBefore[i]
		newBefore[i+1] = newBefore[i]
		if op.kind != '+' {
			origBefore[i+1]++
		}
		if op.kind != '-' {
			newBefore[i+1]++
		}
	}

	var hunks []*diff.Hunk
	lastEnd := 0
	i := 0
	for i < len(ops) {
		for i < len(ops) && ops[i].kind == ' ' {
			i++
		}
		if i == len(ops) {
			break
		}
		start := max(i-context, lastEnd)

		end := i
		for {
			for end < len(ops) && ops[end].kind != ' ' {
				end++
			}
			run := 0
			for end+run < len(ops) && ops[end+run].kind == ' ' {
				run++
			}
			if end+run < len(ops) && run <= 2*context {
				end += run
				continue
			}
			end = min(end+context, len(ops))
			break
		}

		var body strings.Builder
		for _, op := range ops[start:end] {
			body.WriteByte(op.kind)
			body.WriteString(op.text)
			body.WriteByte('\n')
		}
		h := &diff.Hunk{
			OrigStartLine: int32(origBefore[start] + 1),
			OrigLines:     int32(origBefore[end] - origBefore[start]),
			NewStartLine:  int32(newBefore[start] + 1),
			NewLines:      int32(newBefore[end] - newBefore[start]),
			Body:          []byte(body.String()),
		}
		// Empty sides point at the preceding line.
		if h.OrigLines == 0 {
			h.OrigStartLine--
		}
		if h.NewLines == 0 {
			h.NewStartLine--
		}
		hunks = append(hunks, h)
		lastEnd = end
		i = end
	}
	return hunks
}
