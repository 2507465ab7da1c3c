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

package eventdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgx-contrib/pgxotel"

	"github.com/cardinalhq/indexrunner/eventdb/migrations"
	"github.com/cardinalhq/indexrunner/internal/dbopen"
)

// NewConnectionPool opens a pool whose queries are traced as "eventdb".
func NewConnectionPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	cfg.ConnConfig.Tracer = &pgxotel.QueryTracer{
		Name: "eventdb",
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}

// ConnectToEventDB connects using the EVENTDB_* environment variables and
// checks the schema version unless the options say otherwise.
func ConnectToEventDB(ctx context.Context, opts ...dbopen.Options) (*pgxpool.Pool, error) {
	connectionString, err := dbopen.GetDatabaseURLFromEnv("EVENTDB")
	if err != nil {
		return nil, errors.Join(dbopen.ErrDatabaseNotConfigured, fmt.Errorf("failed to get EVENTDB connection string: %w", err))
	}

	pool, err := NewConnectionPool(ctx, connectionString)
	if err != nil {
		return nil, err
	}

	var checkOptions []migrations.CheckOption
	for _, o := range opts {
		checkOptions = append(checkOptions, o.MigrationCheckOptions...)
	}

	if err := migrations.CheckVersion(ctx, pool, checkOptions...); err != nil {
		pool.Close()
		return nil, fmt.Errorf("EVENTDB migration version check failed: %w", err)
	}

	return pool, nil
}

func EventDBStore(ctx context.Context, opts ...dbopen.Options) (*Store, error) {
	pool, err := ConnectToEventDB(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return NewStore(pool), nil
}
