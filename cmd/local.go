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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/indexrunner/config"
	"github.com/cardinalhq/indexrunner/internal/bootstrap"
	"github.com/cardinalhq/indexrunner/internal/coordinator"
	"github.com/cardinalhq/indexrunner/internal/dbopen"
	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/statusstore"
	"github.com/cardinalhq/indexrunner/internal/worker"
)

func init() {
	var (
		inMemory     bool
		seedFile     string
		exitWhenIdle bool
	)

	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run a coordinator and workers in one process",
		Long: `Run the coordinator and a worker pool together, against eventdb or an
in-memory store. With --seed the events in the YAML file are stored first.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, doneFx, err := setupTelemetry(config.ServiceTypeCLI, nil)
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
			indexer, ok := worker.IndexerByName(cfg.Worker.Indexer)
			if !ok {
				return fmt.Errorf("unknown indexer %q", cfg.Worker.Indexer)
			}

			var storage statusstore.StatusEventStorage
			if inMemory {
				storage = statusstore.NewMemoryStorage()
			} else {
				pg, closeStorage, err := openStorage(ctx, dbopen.WaitForMigrations())
				if err != nil {
					return err
				}
				defer closeStorage()
				storage = pg
			}

			if seedFile != "" {
				if _, err := bootstrap.ImportFromYAML(ctx, seedFile, storage); err != nil {
					return err
				}
			}

			return runLocal(ctx, cfg, storage, indexer, myInstanceID, exitWhenIdle)
		},
	}

	cmd.Flags().BoolVar(&inMemory, "memory", false, "Keep events in memory instead of eventdb")
	cmd.Flags().StringVar(&seedFile, "seed", "", "YAML file of events to store before starting")
	cmd.Flags().BoolVar(&exitWhenIdle, "exit-when-idle", false, "Exit once no event is waiting or in flight")

	rootCmd.AddCommand(cmd)
}

func runLocal(ctx context.Context, cfg *config.Config, storage statusstore.StatusEventStorage, indexer worker.Indexer, updater string, exitWhenIdle bool) error {
	r, err := cfg.Retry.NewRetrier()
	if err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}
	c, err := coordinator.New(cfg.Coordinator, storage, r, updater)
	if err != nil {
		return fmt.Errorf("invalid coordinator config: %w", err)
	}
	pool, err := worker.New(cfg.Worker, storage, r, indexer, updater)
	if err != nil {
		return fmt.Errorf("invalid worker config: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error { return c.Run(runCtx) })
	g.Go(func() error { return pool.Run(runCtx) })
	if exitWhenIdle {
		g.Go(func() error {
			defer stop()
			return waitIdle(runCtx, storage, cfg.Coordinator.PollInterval)
		})
	}
	return g.Wait()
}

// waitIdle returns once no event is UNPROC, READY or PROC.
func waitIdle(ctx context.Context, storage statusstore.StatusEventStorage, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		counts, err := storage.CountByState(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		pending := counts[events.StateUnprocessed] + counts[events.StateReady] + counts[events.StateProcessing]
		if pending == 0 {
			slog.Info("No events left to process", slog.Any("counts", counts))
			return nil
		}
	}
}
