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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/libexplorer/services/explorer"
	"github.com/AleutianAI/libexplorer/services/explorer/graph"
)

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, list, inspect, compare and delete stored results",
	}
	cmd.AddCommand(newSnapshotSaveCmd(a))
	cmd.AddCommand(newSnapshotListCmd(a))
	cmd.AddCommand(newSnapshotShowCmd(a))
	cmd.AddCommand(newSnapshotDiffCmd(a))
	cmd.AddCommand(newSnapshotDeleteCmd(a))
	return cmd
}

// withService runs fn with a Service backed by the snapshot store.
func (a *app) withService(fn func(svc *explorer.Service) error) error {
	mgr, closeFn, err := a.openSnapshots()
	if err != nil {
		return err
	}
	defer closeFn()
	svc := explorer.NewService(a.analyzer(), mgr, a.logger, explorer.ServiceConfig{NewRequest: a.newRequest})
	return fn(svc)
}

func newSnapshotSaveCmd(a *app) *cobra.Command {
	var (
		flags requestFlags
		label string
	)
	cmd := &cobra.Command{
		Use:   "save LIBRARY",
		Short: "Analyse a library and store the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := a.newRequest(args[0])
			flags.apply(cmd, &req)
			return a.withService(func(svc *explorer.Service) error {
				result, err := svc.Analyze(cmd.Context(), req)
				if err != nil {
					return err
				}
				meta, err := svc.SaveSnapshot(cmd.Context(), result.RunID, "", label)
				if err != nil {
					return err
				}
				p := newPrinter(cmd.OutOrStdout())
				p.summary(result)
				p.snapshotMeta(meta)
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&label, "label", "", "free-form label stored with the snapshot")
	return cmd
}

func newSnapshotListCmd(a *app) *cobra.Command {
	var (
		library string
		limit   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(func(svc *explorer.Service) error {
				metas, err := svc.ListSnapshots(cmd.Context(), library, limit)
				if err != nil {
					return err
				}
				if asJSON {
					if metas == nil {
						metas = []*graph.SnapshotMetadata{}
					}
					return writeJSON(cmd.OutOrStdout(), metas)
				}
				newPrinter(cmd.OutOrStdout()).snapshotList(metas)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&library, "library", "", "only snapshots of this library")
	cmd.Flags().IntVar(&limit, "limit", graph.DefaultSnapshotListLimit, "maximum number of snapshots")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print metadata as JSON")
	return cmd
}

func newSnapshotShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show SNAPSHOT_ID",
		Short: "Print a stored result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *explorer.Service) error {
				result, meta, err := svc.LoadSnapshot(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), explorer.LoadSnapshotResponse{Metadata: meta, Result: result})
				}
				p := newPrinter(cmd.OutOrStdout())
				p.snapshotMeta(meta)
				p.summary(result)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print metadata and result as JSON")
	return cmd
}

func newSnapshotDiffCmd(a *app) *cobra.Command {
	var (
		unified bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "diff BASE_ID TARGET_ID",
		Short: "Compare two snapshots",
		Long: `Compare two stored results by node id and edge key. With --unified the
rendered graphs are compared line by line as a unified diff.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *explorer.Service) error {
				d, text, err := svc.DiffSnapshots(cmd.Context(), args[0], args[1], unified)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case asJSON:
					return writeJSON(out, explorer.DiffResponse{Diff: d, Unified: text})
				case unified:
					_, err := fmt.Fprint(out, text)
					return err
				default:
					newPrinter(out).diff(d)
					return nil
				}
			})
		},
	}
	cmd.Flags().BoolVar(&unified, "unified", false, "print a unified text diff")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the diff as JSON")
	return cmd
}

func newSnapshotDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete SNAPSHOT_ID",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(func(svc *explorer.Service) error {
				if err := svc.DeleteSnapshot(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}
