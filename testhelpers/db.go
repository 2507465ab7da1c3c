//go:build integration

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

package testhelpers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orlangure/gnomock"
	"github.com/orlangure/gnomock/preset/postgres"

	"github.com/cardinalhq/indexrunner/eventdb"
	"github.com/cardinalhq/indexrunner/eventdb/migrations"
)

const (
	gnomockUser     = "gnomock"
	gnomockPassword = "gnomick"
	gnomockDB       = "testing_eventdb"
)

type pgServer struct {
	host     string
	port     string
	user     string
	password string
	baseDB   string
}

func (s pgServer) connString(dbName string) string {
	u := &url.URL{
		Scheme: "postgresql",
		Host:   s.host + ":" + s.port,
		Path:   dbName,
	}
	if s.password != "" {
		u.User = url.UserPassword(s.user, s.password)
		u.RawQuery = "sslmode=disable"
	} else if s.user != "" {
		u.User = url.User(s.user)
	}
	return u.String()
}

// serverForTest returns the server named by EVENTDB_HOST and friends, or
// starts a throwaway Postgres container when EVENTDB_HOST is unset.
func serverForTest(t *testing.T) pgServer {
	t.Helper()

	if host := os.Getenv("EVENTDB_HOST"); host != "" {
		return pgServer{
			host:     host,
			port:     getEnvOrDefault("EVENTDB_PORT", "5432"),
			user:     getEnvOrDefault("EVENTDB_USER", os.Getenv("USER")),
			password: os.Getenv("EVENTDB_PASSWORD"),
			baseDB:   getEnvOrDefault("EVENTDB_DBNAME", gnomockDB),
		}
	}

	p := postgres.Preset(
		postgres.WithUser(gnomockUser, gnomockPassword),
		postgres.WithDatabase(gnomockDB),
		postgres.WithVersion("16"),
	)
	container, err := gnomock.Start(p, gnomock.WithTimeout(2*time.Minute))
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := gnomock.Stop(container); err != nil {
			slog.Error("Failed to stop postgres container", slog.Any("error", err))
		}
	})

	return pgServer{
		host:     container.Host,
		port:     fmt.Sprintf("%d", container.DefaultPort()),
		user:     gnomockUser,
		password: gnomockPassword,
		baseDB:   gnomockDB,
	}
}

// SetupTestEventDB creates a clean test database with migrations applied.
// Returns a connection pool and registers cleanup with t.Cleanup.
func SetupTestEventDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	server := serverForTest(t)
	dbName := fmt.Sprintf("test_eventdb_%d_%d", time.Now().Unix(), rand.Intn(10000))

	basePool, err := pgxpool.New(ctx, server.connString(server.baseDB))
	if err != nil {
		t.Fatalf("Failed to connect to base database: %v", err)
	}

	if _, err := basePool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		basePool.Close()
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}

	testPool, err := eventdb.NewConnectionPool(ctx, server.connString(dbName))
	if err != nil {
		basePool.Close()
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := migrations.RunMigrationsUp(ctx, testPool); err != nil {
		testPool.Close()
		basePool.Close()
		t.Fatalf("Failed to run eventdb migrations: %v", err)
	}

	t.Cleanup(func() {
		testPool.Close()

		_, err := basePool.Exec(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName))
		if err != nil {
			slog.Error("Failed to drop test database", slog.String("dbName", dbName), slog.Any("error", err))
		}
		basePool.Close()
	})

	return testPool
}

// NewTestEventDBStore creates a store connected to a fresh test database.
func NewTestEventDBStore(t *testing.T) *eventdb.Store {
	return eventdb.NewStore(SetupTestEventDB(t))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
