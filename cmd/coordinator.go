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

	"github.com/spf13/cobra"

	"github.com/cardinalhq/indexrunner/config"
	"github.com/cardinalhq/indexrunner/internal/coordinator"
	"github.com/cardinalhq/indexrunner/internal/dbopen"
	"github.com/cardinalhq/indexrunner/internal/healthcheck"
	"github.com/cardinalhq/indexrunner/internal/logctx"
)

func init() {
	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Decide which status events workers may process",
		Long: `Run the coordinator loop. It reads unprocessed events, marks the ones that
may run as READY and tracks them until a worker records the outcome.
Exactly one coordinator may run against an event store.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			servicename := config.ServiceTypeCoordinator
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

			c, err := coordinator.New(cfg.Coordinator, storage, r, myInstanceID,
				coordinator.WithReadyHook(func() { healthServer.SetReady(true) }))
			if err != nil {
				return fmt.Errorf("invalid coordinator config: %w", err)
			}

			healthServer.SetStatus(healthcheck.StatusHealthy)
			if err := c.Run(ctx); err != nil {
				healthServer.SetStatus(healthcheck.StatusUnhealthy)
				return err
			}
			return nil
		},
	}

	rootCmd.AddCommand(cmd)
}
