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

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/indexerr"
)

// AccessGroupEventQueue orders the events for one access group. Object
// level events run through per object queues and may proceed in parallel
// across objects. Access group level events wait in a heap and run alone:
//
//   - the oldest one becomes the drain event, and every object queue is
//     blocked at its timestamp;
//   - once no object queue has a ready or processing event, the drain event
//     becomes ready and the whole group is gated until it completes.
//
// At any time at most one of drain, ready, processing is set.
//
// Not safe for concurrent use.
type AccessGroupEventQueue struct {
	accessGroupID int64
	objectQueues  map[string]*ObjectEventQueue

	queue      eventHeap
	seen       mapset.Set[events.StatusEventID]
	drain      *events.StoredStatusEvent
	ready      *events.StoredStatusEvent
	processing *events.StoredStatusEvent
}

func NewAccessGroupEventQueue(accessGroupID int64) *AccessGroupEventQueue {
	return &AccessGroupEventQueue{
		accessGroupID: accessGroupID,
		objectQueues:  make(map[string]*ObjectEventQueue),
		seen:          mapset.NewThreadUnsafeSet[events.StatusEventID](),
	}
}

func (q *AccessGroupEventQueue) AccessGroupID() int64 { return q.accessGroupID }

func (q *AccessGroupEventQueue) checkAccessGroup(e events.StoredStatusEvent) error {
	ag := e.Event.AccessGroupID
	if ag == nil || *ag != q.accessGroupID {
		return indexerr.InvalidArgument("event %s does not belong to access group %d", e.ID, q.accessGroupID)
	}
	return nil
}

// Load adds an unprocessed event. Object level events go to the queue for
// their object; access group level events go to the group heap.
func (q *AccessGroupEventQueue) Load(e events.StoredStatusEvent) error {
	if err := q.checkAccessGroup(e); err != nil {
		return err
	}
	if e.State != events.StateUnprocessed {
		return indexerr.InvalidArgument("event %s has state %s, expected %s", e.ID, e.State, events.StateUnprocessed)
	}
	switch e.Event.Type.Level() {
	case events.LevelAccessGroup:
		if q.seen.Contains(e.ID) {
			return nil
		}
		q.seen.Add(e.ID)
		heap.Push(&q.queue, e)
		return nil
	case events.LevelObject:
		if e.Event.ObjectID == nil {
			return indexerr.InvalidArgument("object level event %s has no object id", e.ID)
		}
		return q.objectQueue(e).Load(e)
	default:
		return indexerr.InvalidArgument("event %s has unknown type %s", e.ID, e.Event.Type)
	}
}

// Restore places an event that is already READY or PROC back into the
// queue, for rebuilding after a restart.
func (q *AccessGroupEventQueue) Restore(e events.StoredStatusEvent) error {
	if err := q.checkAccessGroup(e); err != nil {
		return err
	}
	if e.State != events.StateReady && e.State != events.StateProcessing {
		return indexerr.InvalidArgument("cannot restore event %s in state %s", e.ID, e.State)
	}
	if q.groupInFlight() {
		return indexerr.InvalidArgument("cannot restore event %s: access group %d has a group level event in flight", e.ID, q.accessGroupID)
	}
	switch e.Event.Type.Level() {
	case events.LevelAccessGroup:
		if q.seen.Contains(e.ID) {
			return nil
		}
		if q.drain != nil || q.anyObjectInFlight() {
			return indexerr.InvalidArgument("cannot restore group level event %s: access group %d has other events in flight", e.ID, q.accessGroupID)
		}
		if e.State == events.StateReady {
			q.ready = withState(e, events.StateReady)
		} else {
			q.processing = withState(e, events.StateProcessing)
		}
		q.seen.Add(e.ID)
		return nil
	case events.LevelObject:
		if e.Event.ObjectID == nil {
			return indexerr.InvalidArgument("object level event %s has no object id", e.ID)
		}
		oq := q.objectQueue(e)
		if err := oq.Restore(e); err != nil {
			if oq.IsEmpty() {
				delete(q.objectQueues, *e.Event.ObjectID)
			}
			return err
		}
		return nil
	default:
		return indexerr.InvalidArgument("event %s has unknown type %s", e.ID, e.Event.Type)
	}
}

func (q *AccessGroupEventQueue) objectQueue(e events.StoredStatusEvent) *ObjectEventQueue {
	id := *e.Event.ObjectID
	oq, ok := q.objectQueues[id]
	if !ok {
		oq = NewObjectEventQueue()
		q.objectQueues[id] = oq
	}
	return oq
}

func (q *AccessGroupEventQueue) groupInFlight() bool {
	return q.ready != nil || q.processing != nil
}

func (q *AccessGroupEventQueue) anyObjectInFlight() bool {
	for _, oq := range q.objectQueues {
		if oq.IsProcessingOrReady() {
			return true
		}
	}
	return false
}

// refreshDrain makes sure the oldest waiting group event is the drain event
// and that every object queue is blocked at its timestamp.
func (q *AccessGroupEventQueue) refreshDrain() {
	if q.groupInFlight() {
		return
	}
	if len(q.queue) > 0 {
		if q.drain == nil {
			d := heap.Pop(&q.queue).(events.StoredStatusEvent)
			q.drain = &d
		} else if compareEvents(q.queue[0], *q.drain) < 0 {
			earlier := heap.Pop(&q.queue).(events.StoredStatusEvent)
			heap.Push(&q.queue, *q.drain)
			q.drain = &earlier
		}
	}
	if q.drain == nil {
		return
	}
	blockAt := q.drain.Timestamp()
	for _, oq := range q.objectQueues {
		oq.DrainAndBlockAt(blockAt)
	}
}

// MoveToReady promotes whatever may run now and returns the newly ready
// events. A pending group event is promoted only after every object queue
// has drained up to its timestamp.
func (q *AccessGroupEventQueue) MoveToReady() []events.StoredStatusEvent {
	if q.groupInFlight() {
		return nil
	}
	q.refreshDrain()

	var out []events.StoredStatusEvent
	for _, oq := range q.objectQueues {
		if e, ok := oq.MoveToReady(); ok {
			out = append(out, e)
		}
	}
	if q.drain != nil && !q.anyObjectInFlight() {
		q.ready = withState(*q.drain, events.StateReady)
		q.drain = nil
		out = append(out, *q.ready)
	}
	return sortEvents(out)
}

// MoveReadyToProcessing moves every ready event to processing and returns
// them.
func (q *AccessGroupEventQueue) MoveReadyToProcessing() []events.StoredStatusEvent {
	if q.ready != nil {
		q.processing = withState(*q.ready, events.StateProcessing)
		q.ready = nil
		return []events.StoredStatusEvent{*q.processing}
	}
	if q.processing != nil {
		return nil
	}
	var out []events.StoredStatusEvent
	for _, oq := range q.objectQueues {
		if e, ok := oq.MoveReadyToProcessing(); ok {
			out = append(out, e)
		}
	}
	return sortEvents(out)
}

func (q *AccessGroupEventQueue) GetReadyForProcessing() []events.StoredStatusEvent {
	if q.ready != nil {
		return []events.StoredStatusEvent{*q.ready}
	}
	var out []events.StoredStatusEvent
	for _, oq := range q.objectQueues {
		if e, ok := oq.GetReadyForProcessing(); ok {
			out = append(out, e)
		}
	}
	return sortEvents(out)
}

func (q *AccessGroupEventQueue) GetProcessing() []events.StoredStatusEvent {
	if q.processing != nil {
		return []events.StoredStatusEvent{*q.processing}
	}
	var out []events.StoredStatusEvent
	for _, oq := range q.objectQueues {
		if e, ok := oq.GetProcessing(); ok {
			out = append(out, e)
		}
	}
	return sortEvents(out)
}

// SetProcessingComplete removes a processing event. Completing the group
// level event unblocks every object queue; completing an object event may
// promote the next event for that object. Object queues left empty are
// dropped.
func (q *AccessGroupEventQueue) SetProcessingComplete(e events.StoredStatusEvent) error {
	if q.processing != nil && q.processing.ID == e.ID {
		q.processing = nil
		q.seen.Remove(e.ID)
		for _, oq := range q.objectQueues {
			oq.RemoveBlock()
		}
		q.MoveToReady()
		return nil
	}
	if e.Event.ObjectID == nil {
		return indexerr.NoSuchEvent("event %s is not processing in access group %d", e.ID, q.accessGroupID)
	}
	oq, ok := q.objectQueues[*e.Event.ObjectID]
	if !ok {
		return indexerr.NoSuchEvent("event %s is not processing in access group %d", e.ID, q.accessGroupID)
	}
	// a group event loaded since the last MoveToReady must block the object
	// queue before it cascades to its next event
	q.refreshDrain()
	if err := oq.SetProcessingComplete(e); err != nil {
		return err
	}
	if oq.IsEmpty() {
		delete(q.objectQueues, *e.Event.ObjectID)
	}
	return nil
}

// Size is the total number of events held by the group.
func (q *AccessGroupEventQueue) Size() int {
	n := len(q.queue)
	for _, p := range []*events.StoredStatusEvent{q.drain, q.ready, q.processing} {
		if p != nil {
			n++
		}
	}
	for _, oq := range q.objectQueues {
		n += oq.Size()
	}
	return n
}

func (q *AccessGroupEventQueue) IsEmpty() bool { return q.Size() == 0 }

// DrainEvent returns the group event waiting for object queues to drain.
func (q *AccessGroupEventQueue) DrainEvent() (events.StoredStatusEvent, bool) {
	if q.drain == nil {
		return events.StoredStatusEvent{}, false
	}
	return *q.drain, true
}
