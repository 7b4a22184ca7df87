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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/libexplorer/services/explorer"
	"github.com/AleutianAI/libexplorer/services/explorer/graph"
	"github.com/AleutianAI/libexplorer/services/explorer/telemetry"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		addr  string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the explorer HTTP API",
		Long: `Start the HTTP API on the configured address (server.addr).

Endpoints live under /v1/explorer; Prometheus metrics are on /metrics.
Snapshots are stored in snapshots.dir; if the store cannot be opened the
server runs with snapshot endpoints disabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if debug {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			// The server logs JSON unless the format was chosen explicitly.
			logger := a.logger
			if !cmd.Flags().Changed("log-format") {
				l, err := telemetry.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, "json")
				if err != nil {
					return err
				}
				logger = l
				slog.SetDefault(logger)
			}

			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			))

			var snapshots *graph.SnapshotManager
			if mgr, closeFn, err := a.openSnapshots(); err != nil {
				logger.Warn("snapshot store unavailable, snapshot endpoints disabled",
					slog.String("path", cfg.Snapshots.Dir),
					slog.Any("error", err),
				)
			} else {
				defer closeFn()
				snapshots = mgr
			}

			svc := explorer.NewService(a.analyzer(explorer.WithLogger(logger)), snapshots, logger, explorer.ServiceConfig{
				RunCacheSize:  cfg.Server.RunCacheSize,
				WatchDebounce: cfg.Watch.Debounce,
				NewRequest:    a.newRequest,
			})
			limiter := rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)
			router := explorer.NewRouter(cfg.Telemetry.ServiceName, explorer.NewHandlers(svc), limiter)

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       cfg.Server.ReadTimeout,
				WriteTimeout:      cfg.Server.WriteTimeout,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting explorer server",
					slog.String("address", cfg.Server.Addr),
					slog.Bool("snapshots", snapshots != nil),
				)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down explorer server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config server.addr)")
	cmd.Flags().BoolVar(&debug, "debug", false, "gin debug mode")
	return cmd
}
