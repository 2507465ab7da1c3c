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

package eventqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/indexerr"
)

func TestAccessGroupEventQueue_LoadValidation(t *testing.T) {
	q := NewAccessGroupEventQueue(7)
	assert.Equal(t, int64(7), q.AccessGroupID())

	assert.ErrorIs(t, q.Load(objectEvent(t, "a", 8, "O1", 1)), indexerr.ErrInvalidArgument)
	assert.ErrorIs(t, q.Load(groupEvent(t, "g", 8, 1)), indexerr.ErrInvalidArgument)
	assert.ErrorIs(t, q.Load(inState(groupEvent(t, "g", 7, 1), events.StateFailed)), indexerr.ErrInvalidArgument)

	noObject := objectEvent(t, "b", 7, "O1", 1)
	noObject.Event.ObjectID = nil
	assert.ErrorIs(t, q.Load(noObject), indexerr.ErrInvalidArgument)

	assert.True(t, q.IsEmpty())
}

func TestAccessGroupEventQueue_ObjectEventsBeforeLaterGroupEvent(t *testing.T) {
	q := NewAccessGroupEventQueue(1)
	g := groupEvent(t, "g5", 1, 5)
	o := objectEvent(t, "o3", 1, "O", 3)
	require.NoError(t, q.Load(g))
	require.NoError(t, q.Load(o))
	assert.Equal(t, 2, q.Size())

	ready := q.MoveToReady()
	assert.Equal(t, []string{"o3"}, ids(ready))
	drain, ok := q.DrainEvent()
	require.True(t, ok)
	assert.Equal(t, g.ID, drain.ID)

	assert.Empty(t, q.MoveToReady())
	assert.Equal(t, []string{"o3"}, ids(q.MoveReadyToProcessing()))
	assert.Empty(t, q.MoveToReady(), "group event waits for the object event to complete")

	require.NoError(t, q.SetProcessingComplete(o))
	ready = q.MoveToReady()
	assert.Equal(t, []string{"g5"}, ids(ready))
	assert.Equal(t, events.StateReady, ready[0].State)
	_, ok = q.DrainEvent()
	assert.False(t, ok)
}

func TestAccessGroupEventQueue_GroupEventExclusive(t *testing.T) {
	q := NewAccessGroupEventQueue(1)
	g := groupEvent(t, "g1", 1, 1)
	o1 := objectEvent(t, "o1", 1, "O1", 2)
	o2 := objectEvent(t, "o2", 1, "O2", 2)
	for _, e := range []events.StoredStatusEvent{o1, g, o2} {
		require.NoError(t, q.Load(e))
	}

	assert.Equal(t, []string{"g1"}, ids(q.MoveToReady()))
	assert.Equal(t, []string{"g1"}, ids(q.GetReadyForProcessing()))
	assert.Equal(t, []string{"g1"}, ids(q.MoveReadyToProcessing()))
	assert.Equal(t, []string{"g1"}, ids(q.GetProcessing()))
	assert.Empty(t, q.MoveToReady())
	assert.Empty(t, q.MoveReadyToProcessing())
	assert.Empty(t, q.GetReadyForProcessing())

	// object events loaded while the group event runs also wait
	o3 := objectEvent(t, "o3", 1, "O3", 0)
	require.NoError(t, q.Load(o3))
	assert.Empty(t, q.MoveToReady())

	require.NoError(t, q.SetProcessingComplete(g))
	assert.Equal(t, []string{"o3", "o1", "o2"}, ids(q.GetReadyForProcessing()))
	assert.Equal(t, 3, q.Size())
}

func TestAccessGroupEventQueue_UnrelatedObjectsProceedUntilDrained(t *testing.T) {
	q := NewAccessGroupEventQueue(1)
	g5 := groupEvent(t, "g5", 1, 5)
	o1a := objectEvent(t, "o1a", 1, "O1", 3)
	o1b := objectEvent(t, "o1b", 1, "O1", 7)
	o2 := objectEvent(t, "o2", 1, "O2", 4)
	for _, e := range []events.StoredStatusEvent{g5, o1a, o1b, o2} {
		require.NoError(t, q.Load(e))
	}

	assert.Equal(t, []string{"o1a", "o2"}, ids(q.MoveToReady()))
	assert.Equal(t, []string{"o1a", "o2"}, ids(q.MoveReadyToProcessing()))

	require.NoError(t, q.SetProcessingComplete(o1a))
	assert.Empty(t, q.GetReadyForProcessing(), "o1b is after the pending group event")
	assert.Empty(t, q.MoveToReady(), "o2 is still processing")

	require.NoError(t, q.SetProcessingComplete(o2))
	assert.Equal(t, []string{"g5"}, ids(q.MoveToReady()))
	q.MoveReadyToProcessing()
	require.NoError(t, q.SetProcessingComplete(g5))

	assert.Equal(t, []string{"o1b"}, ids(q.GetReadyForProcessing()))
}

func TestAccessGroupEventQueue_GroupEventLoadedDuringObjectProcessing(t *testing.T) {
	q := NewAccessGroupEventQueue(1)
	o3 := objectEvent(t, "o3", 1, "O1", 3)
	require.NoError(t, q.Load(o3))
	q.MoveToReady()
	q.MoveReadyToProcessing()

	require.NoError(t, q.Load(groupEvent(t, "g5", 1, 5)))
	require.NoError(t, q.Load(objectEvent(t, "o7", 1, "O1", 7)))

	require.NoError(t, q.SetProcessingComplete(o3))
	assert.Empty(t, q.GetReadyForProcessing(), "o7 must not overtake the group event")
	assert.Equal(t, []string{"g5"}, ids(q.MoveToReady()))
}

func TestAccessGroupEventQueue_EarlierGroupEventReplacesDrain(t *testing.T) {
	q := NewAccessGroupEventQueue(1)
	o := objectEvent(t, "o1", 1, "O1", 1)
	require.NoError(t, q.Load(o))
	require.NoError(t, q.Load(groupEvent(t, "g5", 1, 5)))
	q.MoveToReady()
	q.MoveReadyToProcessing()

	require.NoError(t, q.Load(groupEvent(t, "g2", 1, 2)))
	require.NoError(t, q.Load(objectEvent(t, "o3", 1, "O1", 3)))
	require.NoError(t, q.SetProcessingComplete(o))

	assert.Equal(t, []string{"g2"}, ids(q.MoveToReady()))
	g2 := q.MoveReadyToProcessing()
	require.Len(t, g2, 1)
	require.NoError(t, q.SetProcessingComplete(g2[0]))

	// o3 sits between the two group events
	assert.Equal(t, []string{"o3"}, ids(q.GetReadyForProcessing()))
	drain, ok := q.DrainEvent()
	require.True(t, ok)
	assert.Equal(t, events.StatusEventID("g5"), drain.ID)
}

func TestAccessGroupEventQueue_EqualTimestampsObjectFirst(t *testing.T) {
	q := NewAccessGroupEventQueue(1)
	require.NoError(t, q.Load(groupEvent(t, "g", 1, 4)))
	require.NoError(t, q.Load(objectEvent(t, "o", 1, "O1", 4)))
	assert.Equal(t, []string{"o"}, ids(q.MoveToReady()))
}

func TestAccessGroupEventQueue_Dedup(t *testing.T) {
	q := NewAccessGroupEventQueue(1)
	g := groupEvent(t, "g", 1, 1)
	o := objectEvent(t, "o", 1, "O1", 2)
	for range 3 {
		require.NoError(t, q.Load(g))
		require.NoError(t, q.Load(o))
	}
	assert.Equal(t, 2, q.Size())

	q.MoveToReady()
	require.NoError(t, q.Load(g), "reloading the ready group event is ignored")
	assert.Equal(t, 2, q.Size())
}

func TestAccessGroupEventQueue_CompleteUnknown(t *testing.T) {
	q := NewAccessGroupEventQueue(1)
	g := groupEvent(t, "g", 1, 1)
	o := objectEvent(t, "o", 1, "O1", 2)

	assert.ErrorIs(t, q.SetProcessingComplete(g), indexerr.ErrNoSuchEvent)
	assert.ErrorIs(t, q.SetProcessingComplete(o), indexerr.ErrNoSuchEvent)

	require.NoError(t, q.Load(o))
	q.MoveToReady()
	assert.ErrorIs(t, q.SetProcessingComplete(o), indexerr.ErrNoSuchEvent, "ready is not processing")
	q.MoveReadyToProcessing()
	require.NoError(t, q.SetProcessingComplete(o))
	assert.True(t, q.IsEmpty())
}

func TestAccessGroupEventQueue_Restore(t *testing.T) {
	t.Run("object events", func(t *testing.T) {
		q := NewAccessGroupEventQueue(1)
		require.NoError(t, q.Restore(inState(objectEvent(t, "o1", 1, "O1", 1), events.StateProcessing)))
		require.NoError(t, q.Restore(inState(objectEvent(t, "o2", 1, "O2", 1), events.StateReady)))
		assert.ErrorIs(t, q.Restore(inState(objectEvent(t, "o3", 1, "O2", 2), events.StateReady)), indexerr.ErrInvalidArgument)
		assert.ErrorIs(t, q.Restore(inState(groupEvent(t, "g", 1, 0), events.StateReady)), indexerr.ErrInvalidArgument)
		assert.Equal(t, 2, q.Size())
		assert.Equal(t, []string{"o1"}, ids(q.GetProcessing()))
		assert.Equal(t, []string{"o2"}, ids(q.GetReadyForProcessing()))
	})

	t.Run("group event", func(t *testing.T) {
		q := NewAccessGroupEventQueue(1)
		g := inState(groupEvent(t, "g", 1, 1), events.StateProcessing)
		require.NoError(t, q.Restore(g))
		assert.ErrorIs(t, q.Restore(inState(objectEvent(t, "o", 1, "O1", 2), events.StateReady)), indexerr.ErrInvalidArgument)
		assert.Equal(t, 1, q.Size(), "a failed restore leaves no empty object queue behind")

		require.NoError(t, q.Load(objectEvent(t, "o", 1, "O1", 2)))
		assert.Empty(t, q.MoveToReady())
		require.NoError(t, q.SetProcessingComplete(g))
		assert.Equal(t, []string{"o"}, ids(q.GetReadyForProcessing()))
	})

	t.Run("wrong state", func(t *testing.T) {
		q := NewAccessGroupEventQueue(1)
		assert.ErrorIs(t, q.Restore(objectEvent(t, "o", 1, "O1", 1)), indexerr.ErrInvalidArgument)
		assert.ErrorIs(t, q.Restore(inState(groupEvent(t, "g", 2, 1), events.StateReady)), indexerr.ErrInvalidArgument)
	})
}
