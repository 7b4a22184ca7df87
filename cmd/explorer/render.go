// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/libexplorer/services/explorer/graph"
)

// Explorer palette, shared with the rest of the Aleutian CLIs.
var (
	colorTealBright  = lipgloss.Color("#2CD7C7")
	colorTealPrimary = lipgloss.Color("#20B9B4")
	colorTealDeep    = lipgloss.Color("#16858E")
	colorSlate       = lipgloss.Color("#2C4A54")
	colorWarning     = lipgloss.Color("#F4D03F")
	colorError       = lipgloss.Color("#E74C3C")
)

var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorTealBright)
	styleLabel   = lipgloss.NewStyle().Foreground(colorTealPrimary)
	styleValue   = lipgloss.NewStyle().Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorSlate)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning)
	styleError   = lipgloss.NewStyle().Foreground(colorError)
	styleAdded   = lipgloss.NewStyle().Foreground(colorTealBright)
	styleRemoved = lipgloss.NewStyle().Foreground(colorError)
	styleBox     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorTealDeep).Padding(0, 1)
)

// maxErrorsShown bounds the error lines of a summary.
const maxErrorsShown = 20

// printer writes human-readable output, styled only when w is a terminal.
type printer struct {
	w      io.Writer
	styled bool
}

func newPrinter(w io.Writer) *printer {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &printer{w: w, styled: styled}
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) line(label, value string) {
	fmt.Fprintf(p.w, "%s %s\n", p.render(styleLabel, fmt.Sprintf("%-12s", label)), value)
}

// summary prints the run summary and up to maxErrorsShown errors.
func (p *printer) summary(r *graph.Result) {
	s := r.Summary
	title := fmt.Sprintf("%s (run %s)", s.Library, r.RunID)
	if p.styled {
		fmt.Fprintln(p.w, styleBox.Render(styleTitle.Render(title)))
	} else {
		fmt.Fprintln(p.w, title)
	}

	roots := strings.Join(s.RootModules, ", ")
	if roots == "" {
		roots = "-"
	}
	p.line("Roots", roots)
	p.line("Files", fmt.Sprintf("%s discovered, %s parsed",
		p.render(styleValue, fmt.Sprint(s.FilesDiscovered)), p.render(styleValue, fmt.Sprint(s.FilesParsed))))
	p.line("Nodes", fmt.Sprintf("%s (modules %d, classes %d, functions %d, methods %d, properties %d, external %d)",
		p.render(styleValue, fmt.Sprint(s.Nodes)), s.Modules, s.Classes, s.Functions, s.Methods, s.Properties, s.External))
	p.line("Edges", p.render(styleValue, fmt.Sprint(s.Edges)))
	p.line("Unresolved", fmt.Sprintf("imports %d, calls %d", s.UnresolvedImports, s.UnresolvedCalls))
	if s.ExternalDropped > 0 {
		p.line("Ext dropped", p.render(styleWarning, fmt.Sprint(s.ExternalDropped)))
	}
	if s.Truncated {
		p.line("Truncated", p.render(styleWarning, "yes, a cap was reached"))
	}
	p.line("Duration", (time.Duration(s.DurationMilli) * time.Millisecond).String())

	if len(r.Errors) == 0 {
		p.line("Errors", "0")
		return
	}
	p.line("Errors", p.render(styleError, fmt.Sprint(len(r.Errors))))
	for i, e := range r.Errors {
		if i == maxErrorsShown {
			fmt.Fprintln(p.w, p.render(styleMuted, fmt.Sprintf("  ... %d more", len(r.Errors)-maxErrorsShown)))
			break
		}
		fmt.Fprintf(p.w, "  %s\n", p.render(styleMuted, e.String()))
	}
}

// snapshotList prints one line per snapshot.
func (p *printer) snapshotList(metas []*graph.SnapshotMetadata) {
	if len(metas) == 0 {
		fmt.Fprintln(p.w, p.render(styleMuted, "no snapshots"))
		return
	}
	for _, m := range metas {
		label := m.Label
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(p.w, "%s  %s  %s  nodes=%d edges=%d errors=%d  %s\n",
			p.render(styleValue, m.SnapshotID),
			time.UnixMilli(m.CreatedAtMilli).UTC().Format(time.RFC3339),
			m.Library, m.NodeCount, m.EdgeCount, m.ErrorCount,
			p.render(styleMuted, label))
	}
}

// snapshotMeta prints the metadata of one snapshot.
func (p *printer) snapshotMeta(m *graph.SnapshotMetadata) {
	p.line("Snapshot", p.render(styleValue, m.SnapshotID))
	p.line("Library", m.Library)
	p.line("Run", m.RunID)
	if m.Label != "" {
		p.line("Label", m.Label)
	}
	p.line("Created", time.UnixMilli(m.CreatedAtMilli).UTC().Format(time.RFC3339))
	p.line("Size", fmt.Sprintf("%d nodes, %d edges, %d errors, %d bytes", m.NodeCount, m.EdgeCount, m.ErrorCount, m.CompressedSize))
}

// diff prints a structural diff.
func (p *printer) diff(d *graph.SnapshotDiff) {
	title := fmt.Sprintf("%s -> %s", d.BaseSnapshotID, d.TargetSnapshotID)
	fmt.Fprintln(p.w, p.render(styleTitle, title))
	if d.Empty() {
		fmt.Fprintln(p.w, p.render(styleMuted, "no changes"))
		return
	}
	for _, id := range d.NodesAdded {
		fmt.Fprintln(p.w, p.render(styleAdded, "+ "+id))
	}
	for _, id := range d.NodesRemoved {
		fmt.Fprintln(p.w, p.render(styleRemoved, "- "+id))
	}
	for _, m := range d.NodesModified {
		fmt.Fprintf(p.w, "~ %s (%s)\n", m.QualifiedPath, m.ChangeType)
	}
	for _, k := range d.EdgesAdded {
		fmt.Fprintln(p.w, p.render(styleAdded, "+ edge "+k))
	}
	for _, k := range d.EdgesRemoved {
		fmt.Fprintln(p.w, p.render(styleRemoved, "- edge "+k))
	}
	fmt.Fprintln(p.w, p.render(styleMuted, fmt.Sprintf("%d changes across %d files (ratio %.2f)",
		d.Summary.TotalChanges, d.Summary.FilesAffected, d.Summary.ChangeRatio)))
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
