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
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/indexerr"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func newObjectEvent(t *testing.T, objectID string, offset time.Duration) events.StatusEvent {
	t.Helper()
	ev, err := events.NewStatusEvent("WS", t0.Add(offset), events.EventNewVersion,
		events.WithAccessGroupID(10),
		events.WithObjectID(objectID),
		events.WithVersion(2),
	)
	require.NoError(t, err)
	return ev
}

func statePtr(s events.ProcessingState) *events.ProcessingState { return &s }

// runStorageSuite checks the behavior every StatusEventStorage must share.
func runStorageSuite(t *testing.T, newStorage func(t *testing.T) StatusEventStorage) {
	ctx := context.Background()

	t.Run("store and get", func(t *testing.T) {
		s := newStorage(t)

		full, err := events.NewStatusEvent("WS", t0.Add(123456*time.Nanosecond), events.EventRenameAllVersions,
			events.WithAccessGroupID(10),
			events.WithObjectID("3"),
			events.WithVersionedObjectType("KBaseGenomes.Genome", 8),
			events.WithPublic(true),
			events.WithNewName("renamed"),
		)
		require.NoError(t, err)
		stored, err := s.Store(ctx, full, events.StateUnprocessed, []string{" b", "a", "b"})
		require.NoError(t, err)
		assert.NotEmpty(t, stored.ID)
		assert.Equal(t, []string{"a", "b"}, stored.WorkerCodes)

		got, err := s.Get(ctx, stored.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, full.Equal(got.Event), "got %s, want %s", got.Event, full)
		assert.Equal(t, events.StateUnprocessed, got.State)
		assert.Equal(t, []string{"a", "b"}, got.WorkerCodes)
		assert.Nil(t, got.UpdateTime)
		assert.Nil(t, got.UpdatedBy)

		sparse, err := events.NewStatusEvent("KE", t0, events.EventDeleteAccessGroup)
		require.NoError(t, err)
		stored, err = s.Store(ctx, sparse, events.StateReady, nil)
		require.NoError(t, err)
		got, err = s.Get(ctx, stored.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, sparse.Equal(got.Event))
		assert.Equal(t, events.StateReady, got.State)
		assert.Equal(t, []string{events.DefaultWorkerCode}, got.WorkerCodes)
	})

	t.Run("get absent", func(t *testing.T) {
		s := newStorage(t)
		got, err := s.Get(ctx, events.StatusEventID(uuid.NewString()))
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = s.Get(ctx, "not-an-id")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("store rejects bad input", func(t *testing.T) {
		s := newStorage(t)
		_, err := s.Store(ctx, newObjectEvent(t, "1", 0), events.ProcessingState("BOGUS"), nil)
		assert.ErrorIs(t, err, indexerr.ErrInvalidArgument)
		_, err = s.Store(ctx, events.StatusEvent{}, events.StateUnprocessed, nil)
		assert.ErrorIs(t, err, indexerr.ErrInvalidArgument)
	})

	t.Run("store batch", func(t *testing.T) {
		s := newStorage(t)
		stored, err := s.StoreBatch(ctx, []events.StatusEvent{
			newObjectEvent(t, "1", time.Second),
			newObjectEvent(t, "2", 0),
		}, events.StateUnprocessed, []string{"x"})
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, "1", *stored[0].Event.ObjectID)
		assert.NotEqual(t, stored[0].ID, stored[1].ID)

		_, err = s.StoreBatch(ctx, []events.StatusEvent{newObjectEvent(t, "3", 0), {}}, events.StateUnprocessed, nil)
		assert.ErrorIs(t, err, indexerr.ErrInvalidArgument)

		counts, err := s.CountByState(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[events.ProcessingState]int64{events.StateUnprocessed: 2}, counts)
	})

	t.Run("get by state is ordered and limited", func(t *testing.T) {
		s := newStorage(t)
		for i, offset := range []int{5, 1, 4, 2, 3} {
			_, err := s.Store(ctx, newObjectEvent(t, string(rune('a'+i)), time.Duration(offset)*time.Second), events.StateProcessing, nil)
			require.NoError(t, err)
		}
		_, err := s.Store(ctx, newObjectEvent(t, "z", 0), events.StateReady, nil)
		require.NoError(t, err)

		got, err := s.GetByState(ctx, events.StateProcessing, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, want := range []int{1, 2, 3} {
			assert.Equal(t, t0.Add(time.Duration(want)*time.Second), got[i].Timestamp())
		}

		got, err = s.GetByState(ctx, events.StateProcessing, -1)
		require.NoError(t, err)
		assert.Len(t, got, 5)
		for i := 1; i < len(got); i++ {
			assert.False(t, got[i].Timestamp().Before(got[i-1].Timestamp()))
		}

		got, err = s.GetByState(ctx, events.StateIndexed, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("set processing state", func(t *testing.T) {
		s := newStorage(t)
		stored, err := s.Store(ctx, newObjectEvent(t, "1", 0), events.StateUnprocessed, nil)
		require.NoError(t, err)

		ok, err := s.SetProcessingState(ctx, stored.ID, statePtr(events.StateReady), events.StateProcessing, "w")
		require.NoError(t, err)
		assert.False(t, ok, "expected state does not match")

		ok, err = s.SetProcessingState(ctx, stored.ID, statePtr(events.StateUnprocessed), events.StateReady, "coordinator-1")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.Get(ctx, stored.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, events.StateReady, got.State)
		require.NotNil(t, got.UpdateTime)
		require.NotNil(t, got.UpdatedBy)
		assert.Equal(t, "coordinator-1", *got.UpdatedBy)

		ok, err = s.SetProcessingState(ctx, stored.ID, nil, events.StateFailed, "")
		require.NoError(t, err)
		assert.True(t, ok, "nil expected state matches anything")
		got, err = s.Get(ctx, stored.ID)
		require.NoError(t, err)
		assert.Equal(t, events.StateFailed, got.State)
		assert.Equal(t, "coordinator-1", *got.UpdatedBy)

		ok, err = s.SetProcessingState(ctx, events.StatusEventID(uuid.NewString()), nil, events.StateFailed, "")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.SetProcessingState(ctx, "not-an-id", nil, events.StateFailed, "")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.SetProcessingState(ctx, stored.ID, nil, events.ProcessingState("nope"), "")
		assert.ErrorIs(t, err, indexerr.ErrInvalidArgument)
	})

	t.Run("claim oldest matching", func(t *testing.T) {
		s := newStorage(t)
		late, err := s.Store(ctx, newObjectEvent(t, "late", 5*time.Second), events.StateReady, nil)
		require.NoError(t, err)
		special, err := s.Store(ctx, newObjectEvent(t, "special", 0), events.StateReady, []string{"special"})
		require.NoError(t, err)
		early, err := s.Store(ctx, newObjectEvent(t, "early", time.Second), events.StateReady, []string{"default", "special"})
		require.NoError(t, err)
		_, err = s.Store(ctx, newObjectEvent(t, "unproc", 0), events.StateUnprocessed, nil)
		require.NoError(t, err)

		got, err := s.SetAndGetProcessingState(ctx, events.StateReady, nil, events.StateProcessing, "worker-a")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, early.ID, got.ID)
		assert.Equal(t, events.StateProcessing, got.State)
		require.NotNil(t, got.UpdatedBy)
		assert.Equal(t, "worker-a", *got.UpdatedBy)
		require.NotNil(t, got.UpdateTime)

		got, err = s.SetAndGetProcessingState(ctx, events.StateReady, []string{"default"}, events.StateProcessing, "worker-a")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, late.ID, got.ID)

		got, err = s.SetAndGetProcessingState(ctx, events.StateReady, []string{events.DefaultWorkerCode}, events.StateProcessing, "worker-a")
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = s.SetAndGetProcessingState(ctx, events.StateReady, []string{"other", "special"}, events.StateProcessing, "worker-b")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, special.ID, got.ID)

		stored, err := s.Get(ctx, special.ID)
		require.NoError(t, err)
		assert.Equal(t, events.StateProcessing, stored.State)

		counts, err := s.CountByState(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), counts[events.StateProcessing])
		assert.Equal(t, int64(1), counts[events.StateUnprocessed])
		assert.Zero(t, counts[events.StateReady])
	})

	t.Run("concurrent claims never overlap", func(t *testing.T) {
		s := newStorage(t)
		const total = 60
		evs := make([]events.StatusEvent, total)
		for i := range evs {
			evs[i] = newObjectEvent(t, uuid.NewString(), time.Duration(i)*time.Millisecond)
		}
		_, err := s.StoreBatch(ctx, evs, events.StateReady, nil)
		require.NoError(t, err)

		var (
			mu      sync.Mutex
			claimed = map[events.StatusEventID]int{}
			wg      sync.WaitGroup
		)
		for w := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				updater := "worker-" + string(rune('a'+w))
				for {
					got, err := s.SetAndGetProcessingState(ctx, events.StateReady, nil, events.StateProcessing, updater)
					if !assert.NoError(t, err) || got == nil {
						return
					}
					mu.Lock()
					claimed[got.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, claimed, total)
		for id, n := range claimed {
			assert.Equal(t, 1, n, "event %s claimed %d times", id, n)
		}
	})
}
