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
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/indexerr"
)

func TestEventQueue_RequiresAccessGroup(t *testing.T) {
	q, err := NewEventQueue()
	require.NoError(t, err)

	e := objectEvent(t, "a", 1, "O1", 1)
	e.Event.AccessGroupID = nil
	assert.ErrorIs(t, q.Load(e), indexerr.ErrInvalidArgument)
	assert.ErrorIs(t, q.SetProcessingComplete(e), indexerr.ErrInvalidArgument)
	assert.True(t, q.IsEmpty())
}

func TestEventQueue_ObjectEventsInOrder(t *testing.T) {
	q, err := NewEventQueue()
	require.NoError(t, err)
	e1 := objectEvent(t, "e1", 1, "O1", 1)
	e2 := objectEvent(t, "e2", 1, "O1", 2)
	require.NoError(t, q.Load(e2))
	require.NoError(t, q.Load(e1))

	assert.Equal(t, []string{"e1"}, ids(q.MoveToReady()))
	assert.Equal(t, []string{"e1"}, ids(q.MoveReadyToProcessing()))
	require.NoError(t, q.SetProcessingComplete(e1))
	assert.Equal(t, []string{"e2"}, ids(q.GetReadyForProcessing()))
	assert.Empty(t, q.MoveToReady(), "e2 is already ready")
}

func TestEventQueue_SizeTracksLoadsAndCompletions(t *testing.T) {
	q, err := NewEventQueue()
	require.NoError(t, err)

	a := objectEvent(t, "a", 1, "O1", 1)
	b := objectEvent(t, "b", 2, "O1", 1)
	g := groupEvent(t, "g", 2, 5)
	for _, e := range []events.StoredStatusEvent{a, b, g, a, b, g} {
		require.NoError(t, q.Load(e))
	}
	assert.Equal(t, 3, q.Size())

	assert.Equal(t, []string{"a", "b"}, ids(q.MoveToReady()))
	assert.Equal(t, 3, q.Size())
	q.MoveReadyToProcessing()

	require.NoError(t, q.SetProcessingComplete(a))
	assert.Equal(t, 2, q.Size())
	assert.ErrorIs(t, q.SetProcessingComplete(a), indexerr.ErrNoSuchEvent)
	assert.Equal(t, 2, q.Size())

	require.NoError(t, q.SetProcessingComplete(b))
	assert.Equal(t, []string{"g"}, ids(q.MoveToReady()))
	q.MoveReadyToProcessing()
	require.NoError(t, q.SetProcessingComplete(g))
	assert.Equal(t, 0, q.Size())
	assert.True(t, q.IsEmpty())
	assert.Empty(t, q.queues, "empty access group queues are dropped")
}

func TestEventQueue_AccessGroupsAreIndependent(t *testing.T) {
	q, err := NewEventQueue()
	require.NoError(t, err)
	require.NoError(t, q.Load(groupEvent(t, "g1", 1, 1)))
	require.NoError(t, q.Load(objectEvent(t, "o1", 1, "O1", 2)))
	require.NoError(t, q.Load(objectEvent(t, "o2", 2, "O1", 2)))

	assert.Equal(t, []string{"g1", "o2"}, ids(q.MoveToReady()))
	assert.Equal(t, []string{"g1", "o2"}, ids(q.MoveReadyToProcessing()))
	assert.Equal(t, []string{"g1", "o2"}, ids(q.GetProcessing()))
	assert.Empty(t, q.GetReadyForProcessing())
}

func TestEventQueue_CompleteUnknownGroup(t *testing.T) {
	q, err := NewEventQueue()
	require.NoError(t, err)
	assert.ErrorIs(t, q.SetProcessingComplete(objectEvent(t, "x", 9, "O1", 1)), indexerr.ErrNoSuchEvent)
	assert.Empty(t, q.queues)
}

func TestNewEventQueue_Restore(t *testing.T) {
	proc := inState(objectEvent(t, "p", 1, "O1", 1), events.StateProcessing)
	ready := inState(groupEvent(t, "r", 2, 1), events.StateReady)
	q, err := NewEventQueue(proc, ready)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, []string{"p"}, ids(q.GetProcessing()))
	assert.Equal(t, []string{"r"}, ids(q.GetReadyForProcessing()))

	require.NoError(t, q.Load(objectEvent(t, "n", 1, "O1", 2)))
	assert.Empty(t, q.MoveToReady())
	require.NoError(t, q.SetProcessingComplete(proc))
	assert.Equal(t, []string{"r", "n"}, ids(q.GetReadyForProcessing()))

	_, err = NewEventQueue(inState(objectEvent(t, "u", 1, "O1", 1), events.StateUnprocessed))
	assert.ErrorIs(t, err, indexerr.ErrInvalidArgument)
}

type simRecord struct {
	event    events.StoredStatusEvent
	start    int
	complete int
}

// before reports whether a must finish before b starts.
func before(a, b events.StoredStatusEvent) bool {
	aGroup := a.Event.Type.IsAccessGroupLevel()
	bGroup := b.Event.Type.IsAccessGroupLevel()
	switch {
	case !aGroup && bGroup:
		return !a.Timestamp().After(b.Timestamp())
	case aGroup && !bGroup:
		return a.Timestamp().Before(b.Timestamp())
	default:
		return compareEvents(a, b) < 0
	}
}

func conflicts(a, b events.StoredStatusEvent) bool {
	if *a.Event.AccessGroupID != *b.Event.AccessGroupID {
		return false
	}
	if a.Event.Type.IsAccessGroupLevel() || b.Event.Type.IsAccessGroupLevel() {
		return true
	}
	return *a.Event.ObjectID == *b.Event.ObjectID
}

func TestEventQueue_RandomizedOrdering(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			q, err := NewEventQueue()
			require.NoError(t, err)

			records := map[events.StatusEventID]*simRecord{}
			for i := range 300 {
				ag := int64(rng.Intn(3) + 1)
				sec := rng.Intn(40)
				var e events.StoredStatusEvent
				if rng.Intn(100) < 15 {
					e = groupEvent(t, eventID("g", i), ag, sec)
				} else {
					e = objectEvent(t, eventID("o", i), ag, fmt.Sprintf("O%d", rng.Intn(4)), sec)
				}
				require.NoError(t, q.Load(e))
				records[e.ID] = &simRecord{event: e, start: -1, complete: -1}
			}
			require.Equal(t, len(records), q.Size())

			step := 0
			remaining := len(records)
			for !q.IsEmpty() {
				step++
				q.MoveToReady()
				if rng.Intn(4) != 0 {
					for _, e := range q.MoveReadyToProcessing() {
						r := records[e.ID]
						require.Equal(t, -1, r.start, "event %s started twice", e.ID)
						r.start = step
					}
				}

				inFlight := append(q.GetReadyForProcessing(), q.GetProcessing()...)
				for i := range inFlight {
					for j := i + 1; j < len(inFlight); j++ {
						assert.False(t, conflicts(inFlight[i], inFlight[j]),
							"%s and %s are in flight together", inFlight[i].ID, inFlight[j].ID)
					}
				}

				step++
				for _, e := range q.GetProcessing() {
					if rng.Intn(2) == 0 {
						continue
					}
					require.NoError(t, q.SetProcessingComplete(e))
					records[e.ID].complete = step
					remaining--
				}
				require.Equal(t, remaining, q.Size())
				require.Less(t, step, 100000, "queue made no progress")
			}

			all := make([]*simRecord, 0, len(records))
			for _, r := range records {
				require.NotEqual(t, -1, r.complete, "event %s never completed", r.event.ID)
				all = append(all, r)
			}
			for _, a := range all {
				for _, b := range all {
					if a == b || !conflicts(a.event, b.event) || !before(a.event, b.event) {
						continue
					}
					assert.Less(t, a.complete, b.start, "%s must complete before %s starts", a.event, b.event)
				}
			}
		})
	}
}
