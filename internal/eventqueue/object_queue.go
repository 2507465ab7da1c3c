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
	"container/heap"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/indexerr"
)

// ObjectEventQueue orders the events for one object. At most one event is
// ready or processing at a time, and events leave the queue in timestamp
// order. A block time stops the queue from running past a pending access
// group event.
//
// Not safe for concurrent use.
type ObjectEventQueue struct {
	queue      eventHeap
	ready      *events.StoredStatusEvent
	processing *events.StoredStatusEvent
	blockTime  *time.Time
	seen       mapset.Set[events.StatusEventID]
}

func NewObjectEventQueue() *ObjectEventQueue {
	return &ObjectEventQueue{
		seen: mapset.NewThreadUnsafeSet[events.StatusEventID](),
	}
}

// Load adds an unprocessed object level event. Events with an id the queue
// already holds are ignored.
func (q *ObjectEventQueue) Load(e events.StoredStatusEvent) error {
	if e.State != events.StateUnprocessed {
		return indexerr.InvalidArgument("event %s has state %s, expected %s", e.ID, e.State, events.StateUnprocessed)
	}
	if !e.Event.Type.IsObjectLevel() {
		return indexerr.InvalidArgument("event %s has type %s, which is not an object level event", e.ID, e.Event.Type)
	}
	if q.seen.Contains(e.ID) {
		return nil
	}
	q.seen.Add(e.ID)
	heap.Push(&q.queue, e)
	return nil
}

// Restore places an event that is already READY or PROC into the matching
// slot, for rebuilding the queue after a restart.
func (q *ObjectEventQueue) Restore(e events.StoredStatusEvent) error {
	if !e.Event.Type.IsObjectLevel() {
		return indexerr.InvalidArgument("event %s has type %s, which is not an object level event", e.ID, e.Event.Type)
	}
	if q.seen.Contains(e.ID) {
		return nil
	}
	if q.IsProcessingOrReady() {
		return indexerr.InvalidArgument("cannot restore event %s: object queue already has an event in flight", e.ID)
	}
	switch e.State {
	case events.StateReady:
		q.ready = withState(e, events.StateReady)
	case events.StateProcessing:
		q.processing = withState(e, events.StateProcessing)
	default:
		return indexerr.InvalidArgument("cannot restore event %s in state %s", e.ID, e.State)
	}
	q.seen.Add(e.ID)
	return nil
}

// MoveToReady promotes the oldest queued event to ready if nothing is ready
// or processing and the event is not after the block time.
func (q *ObjectEventQueue) MoveToReady() (events.StoredStatusEvent, bool) {
	if q.IsProcessingOrReady() || len(q.queue) == 0 {
		return events.StoredStatusEvent{}, false
	}
	if q.blockTime != nil && q.queue[0].Timestamp().After(*q.blockTime) {
		return events.StoredStatusEvent{}, false
	}
	e := heap.Pop(&q.queue).(events.StoredStatusEvent)
	q.ready = withState(e, events.StateReady)
	return *q.ready, true
}

// MoveReadyToProcessing moves the ready event, if any, to processing.
func (q *ObjectEventQueue) MoveReadyToProcessing() (events.StoredStatusEvent, bool) {
	if q.ready == nil {
		return events.StoredStatusEvent{}, false
	}
	q.processing = withState(*q.ready, events.StateProcessing)
	q.ready = nil
	return *q.processing, true
}

// SetProcessingComplete removes the processing event and moves the next
// event to ready if allowed.
func (q *ObjectEventQueue) SetProcessingComplete(e events.StoredStatusEvent) error {
	if q.processing == nil || q.processing.ID != e.ID {
		return indexerr.NoSuchEvent("event %s is not processing in this object queue", e.ID)
	}
	q.processing = nil
	q.seen.Remove(e.ID)
	q.MoveToReady()
	return nil
}

// DrainAndBlockAt lets the queue run up to and including t, then stops.
func (q *ObjectEventQueue) DrainAndBlockAt(t time.Time) {
	q.blockTime = &t
}

func (q *ObjectEventQueue) RemoveBlock() {
	q.blockTime = nil
}

func (q *ObjectEventQueue) BlockTime() (time.Time, bool) {
	if q.blockTime == nil {
		return time.Time{}, false
	}
	return *q.blockTime, true
}

func (q *ObjectEventQueue) GetReadyForProcessing() (events.StoredStatusEvent, bool) {
	if q.ready == nil {
		return events.StoredStatusEvent{}, false
	}
	return *q.ready, true
}

func (q *ObjectEventQueue) GetProcessing() (events.StoredStatusEvent, bool) {
	if q.processing == nil {
		return events.StoredStatusEvent{}, false
	}
	return *q.processing, true
}

func (q *ObjectEventQueue) HasReady() bool { return q.ready != nil }

func (q *ObjectEventQueue) IsProcessing() bool { return q.processing != nil }

func (q *ObjectEventQueue) IsProcessingOrReady() bool {
	return q.ready != nil || q.processing != nil
}

// QueueSize is the number of events waiting behind the ready and
// processing slots.
func (q *ObjectEventQueue) QueueSize() int { return len(q.queue) }

// Size is the total number of events held, in any slot.
func (q *ObjectEventQueue) Size() int {
	n := len(q.queue)
	if q.ready != nil {
		n++
	}
	if q.processing != nil {
		n++
	}
	return n
}

func (q *ObjectEventQueue) IsEmpty() bool { return q.Size() == 0 }
