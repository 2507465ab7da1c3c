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
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/indexrunner/eventdb"
	"github.com/cardinalhq/indexrunner/eventdb/migrations"
	"github.com/cardinalhq/indexrunner/internal/dbopen"
)

var migrateDown bool

func init() {
	MigrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Roll every eventdb migration back instead of applying them")
	rootCmd.AddCommand(MigrateCmd)
}

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  "Bring the eventdb schema up to date, or remove it with --down",
	RunE:  migrate,
}

func migrate(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(5*time.Minute))
	defer cancel()

	store, err := eventdb.EventDBStore(ctx, dbopen.SkipMigrationCheck())
	if err != nil {
		return err
	}
	defer store.Close()
	pool := store.Pool()

	if migrateDown {
		slog.Info("Rolling back eventdb migrations")
		if err := migrations.RunMigrationsDown(ctx, pool); err != nil {
			return err
		}
		slog.Info("eventdb migrations rolled back")
		return nil
	}

	slog.Info("Running eventdb migrations")
	if err := migrations.RunMigrationsUp(ctx, pool); err != nil {
		return err
	}
	slog.Info("eventdb migrations completed successfully")
	return nil
}
