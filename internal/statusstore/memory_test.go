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

package statusstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/indexrunner/internal/events"
)

func TestMemoryStorage(t *testing.T) {
	runStorageSuite(t, func(t *testing.T) StatusEventStorage {
		return NewMemoryStorage()
	})
}

func TestMemoryStorage_GetByStateCapped(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	evs := make([]events.StatusEvent, MaxReturn+5)
	for i := range evs {
		evs[i] = newObjectEvent(t, "o", time.Duration(len(evs)-i)*time.Millisecond)
	}
	_, err := s.StoreBatch(ctx, evs, events.StateProcessing, nil)
	require.NoError(t, err)

	for _, limit := range []int{-1, 0, MaxReturn + 1} {
		got, err := s.GetByState(ctx, events.StateProcessing, limit)
		require.NoError(t, err)
		require.Len(t, got, MaxReturn)
		assert.Equal(t, t0.Add(time.Millisecond), got[0].Timestamp())
		for i := 1; i < len(got); i++ {
			require.False(t, got[i].Timestamp().Before(got[i-1].Timestamp()))
		}
	}
}

func TestMemoryStorage_TiesBreakInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	first, err := s.Store(ctx, newObjectEvent(t, "1", 0), events.StateReady, nil)
	require.NoError(t, err)
	_, err = s.Store(ctx, newObjectEvent(t, "2", 0), events.StateReady, nil)
	require.NoError(t, err)

	got, err := s.SetAndGetProcessingState(ctx, events.StateReady, nil, events.StateProcessing, "w")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.ID, got.ID)
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	stored, err := s.Store(ctx, newObjectEvent(t, "1", 0), events.StateReady, []string{"a"})
	require.NoError(t, err)
	stored.WorkerCodes[0] = "mutated"

	got, err := s.Get(ctx, stored.ID)
	require.NoError(t, err)
	got.WorkerCodes[0] = "mutated"
	got.State = events.StateFailed

	again, err := s.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.WorkerCodes)
	assert.Equal(t, events.StateReady, again.State)
}

func TestMemoryStorage_UpdateTimeFromClock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	fixed := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	stored, err := s.Store(ctx, newObjectEvent(t, "1", 0), events.StateUnprocessed, nil)
	require.NoError(t, err)
	ok, err := s.SetProcessingState(ctx, stored.ID, nil, events.StateReady, "c")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.Get(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, got.UpdateTime)
	assert.Equal(t, fixed, *got.UpdateTime)
}
