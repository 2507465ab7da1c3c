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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/indexrunner/config"
	"github.com/cardinalhq/indexrunner/internal/coordinator"
	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/statusstore"
	"github.com/cardinalhq/indexrunner/internal/worker"
)

func TestRunLocal_ProcessesEverythingThenExits(t *testing.T) {
	s := statusstore.NewMemoryStorage()
	seedEvents(t, s)

	cfg := &config.Config{
		Coordinator: coordinator.DefaultConfig(),
		Worker:      worker.DefaultConfig(),
		Retry:       config.DefaultRetryConfig(),
	}
	cfg.Coordinator.PollInterval = 5 * time.Millisecond
	cfg.Worker.PollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, runLocal(ctx, cfg, s, worker.LogIndexer{}, "local-test", true))
	require.NoError(t, ctx.Err(), "should exit on its own before the timeout")

	counts, err := s.CountByState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[events.ProcessingState]int64{events.StateIndexed: 3}, counts)
}
