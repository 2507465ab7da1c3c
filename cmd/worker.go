// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/indexrunner/config"
	"github.com/cardinalhq/indexrunner/internal/dbopen"
	"github.com/cardinalhq/indexrunner/internal/healthcheck"
	"github.com/cardinalhq/indexrunner/internal/logctx"
	"github.com/cardinalhq/indexrunner/internal/worker"
)

func init() {
	var (
		concurrency int
		workerCodes string
		indexerName string
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Claim ready status events and index them",
		RunE: func(c *cobra.Command, _ []string) error {
			servicename := config.ServiceTypeWorker
			ctx, doneFx, err := setupTelemetry(servicename, nil)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}

			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if c.Flags().Changed("concurrency") {
				cfg.Worker.Concurrency = concurrency
			}
			if c.Flags().Changed("worker-codes") {
				cfg.Worker.WorkerCodes = strings.Split(workerCodes, ",")
			}
			if c.Flags().Changed("indexer") {
				cfg.Worker.Indexer = indexerName
			}

			indexer, ok := worker.IndexerByName(cfg.Worker.Indexer)
			if !ok {
				return fmt.Errorf("unknown indexer %q", cfg.Worker.Indexer)
			}

			healthServer := healthcheck.NewServer(healthcheck.GetConfigFromEnv())
			go func() {
				if err := healthServer.Start(ctx); err != nil {
					slog.Error("Health check server stopped", slog.Any("error", err))
				}
			}()

			storage, closeStorage, err := openStorage(ctx, dbopen.WaitForMigrations())
			if err != nil {
				return err
			}
			defer closeStorage()

			r, err := cfg.Retry.NewRetrier()
			if err != nil {
				return fmt.Errorf("invalid retry config: %w", err)
			}

			ll := logctx.FromContext(ctx).With(slog.String("instanceID", myInstanceID))
			ctx = logctx.WithLogger(ctx, ll)

			pool, err := worker.New(cfg.Worker, storage, r, indexer, myInstanceID)
			if err != nil {
				return fmt.Errorf("invalid worker config: %w", err)
			}

			healthServer.SetStatus(healthcheck.StatusHealthy)
			healthServer.SetReady(true)
			if err := pool.Run(ctx); err != nil {
				healthServer.SetStatus(healthcheck.StatusUnhealthy)
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Number of events to process at once (overrides INDEXRUNNER_WORKER_CONCURRENCY)")
	cmd.Flags().StringVar(&workerCodes, "worker-codes", "", "Comma separated worker codes to claim events for")
	cmd.Flags().StringVar(&indexerName, "indexer", "", "Indexer to run: log or noop")

	rootCmd.AddCommand(cmd)
}
