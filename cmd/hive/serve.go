/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rulego/hive/api/types"
	"github.com/rulego/hive/config"
	"github.com/rulego/hive/metrics"
	"github.com/spf13/cobra"
)

func newServeCommand(configFile *string) *cobra.Command {
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadFile(*configFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, f, types.DefaultLogger(), shutdownTimeout)
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	return cmd
}

// serve runs the application until ctx is done.
func serve(ctx context.Context, f config.File, logger types.Logger, shutdownTimeout time.Duration) error {
	a, err := newApplication(f, logger)
	if err != nil {
		return err
	}
	if err := a.server.Start(ctx); err != nil {
		return err
	}
	if err := metrics.Register(a.registry, metrics.NewCollector(a.server.Metrics()), a.recorder); err != nil {
		logger.Printf("register metrics: %v", err)
	}

	var metricsServer *http.Server
	if f.Metrics != "" {
		metricsServer = &http.Server{Addr: f.Metrics, Handler: metrics.Handler(a.registry), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("metrics server: %v", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var result *multierror.Error
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
