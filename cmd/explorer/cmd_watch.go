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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/libexplorer/services/explorer"
	"github.com/AleutianAI/libexplorer/services/explorer/graph"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		flags    requestFlags
		asJSON   bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch LIBRARY",
		Short: "Re-analyse a library whenever its sources change",
		Long: `Analyse LIBRARY once, then again after every burst of .py file changes
under its roots. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := a.newRequest(args[0])
			flags.apply(cmd, &req)

			cfg := explorer.DefaultServiceConfig()
			cfg.WatchDebounce = a.cfg.Watch.Debounce
			if cmd.Flags().Changed("debounce") {
				cfg.WatchDebounce = debounce
			}
			svc := explorer.NewService(a.analyzer(), nil, a.logger, cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			return svc.Watch(ctx, req, func(result *graph.Result, changes []graph.FileChange) {
				if len(changes) > 0 && !asJSON {
					fmt.Fprintf(out, "\n%d file(s) changed:\n", len(changes))
					for _, ch := range changes {
						fmt.Fprintf(out, "  %s %s\n", ch.Op, ch.Path)
					}
				}
				if err := printResult(out, result, asJSON); err != nil {
					a.logger.Warn("printing watch result failed")
				}
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print each result as JSON")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before re-analysing (default from config)")
	return cmd
}
