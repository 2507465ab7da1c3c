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

// Package eventqueue schedules status events so that events for the same
// object, or for an access group as a whole, never run concurrently or out
// of timestamp order. The queues are in-memory and owned by a single
// coordinator; nothing here is safe for concurrent use.
package eventqueue

import (
	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/indexerr"
)

// EventQueue shards events by access group.
type EventQueue struct {
	queues map[int64]*AccessGroupEventQueue
	size   int
}

// NewEventQueue returns a queue holding the given READY or PROC events, as
// read back from the event store after a restart.
func NewEventQueue(initial ...events.StoredStatusEvent) (*EventQueue, error) {
	q := &EventQueue{
		queues: make(map[int64]*AccessGroupEventQueue),
	}
	for _, e := range initial {
		if err := q.Restore(e); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func accessGroupOf(e events.StoredStatusEvent) (int64, error) {
	if e.Event.AccessGroupID == nil {
		return 0, indexerr.InvalidArgument("event %s has no access group id", e.ID)
	}
	return *e.Event.AccessGroupID, nil
}

func (q *EventQueue) queueFor(e events.StoredStatusEvent) (*AccessGroupEventQueue, error) {
	ag, err := accessGroupOf(e)
	if err != nil {
		return nil, err
	}
	agq, ok := q.queues[ag]
	if !ok {
		agq = NewAccessGroupEventQueue(ag)
		q.queues[ag] = agq
	}
	return agq, nil
}

// apply runs fn against the group queue for e, keeping the size counter
// in step and dropping a group queue that fn left empty.
func (q *EventQueue) apply(e events.StoredStatusEvent, fn func(*AccessGroupEventQueue) error) error {
	agq, err := q.queueFor(e)
	if err != nil {
		return err
	}
	before := agq.Size()
	err = fn(agq)
	after := agq.Size()
	q.size += after - before
	if after == 0 {
		delete(q.queues, agq.AccessGroupID())
	}
	return err
}

// Load adds an unprocessed event. Loading an id the queue already holds is
// a no-op.
func (q *EventQueue) Load(e events.StoredStatusEvent) error {
	return q.apply(e, func(agq *AccessGroupEventQueue) error {
		return agq.Load(e)
	})
}

// Restore adds an event that is already READY or PROC.
func (q *EventQueue) Restore(e events.StoredStatusEvent) error {
	return q.apply(e, func(agq *AccessGroupEventQueue) error {
		return agq.Restore(e)
	})
}

// MoveToReady promotes every event that may now run and returns the newly
// ready events.
func (q *EventQueue) MoveToReady() []events.StoredStatusEvent {
	var out []events.StoredStatusEvent
	for _, agq := range q.queues {
		out = append(out, agq.MoveToReady()...)
	}
	return sortEvents(out)
}

// MoveReadyToProcessing moves every ready event to processing and returns
// them.
func (q *EventQueue) MoveReadyToProcessing() []events.StoredStatusEvent {
	var out []events.StoredStatusEvent
	for _, agq := range q.queues {
		out = append(out, agq.MoveReadyToProcessing()...)
	}
	return sortEvents(out)
}

func (q *EventQueue) GetReadyForProcessing() []events.StoredStatusEvent {
	var out []events.StoredStatusEvent
	for _, agq := range q.queues {
		out = append(out, agq.GetReadyForProcessing()...)
	}
	return sortEvents(out)
}

func (q *EventQueue) GetProcessing() []events.StoredStatusEvent {
	var out []events.StoredStatusEvent
	for _, agq := range q.queues {
		out = append(out, agq.GetProcessing()...)
	}
	return sortEvents(out)
}

// SetProcessingComplete removes a processing event from the queue.
func (q *EventQueue) SetProcessingComplete(e events.StoredStatusEvent) error {
	ag, err := accessGroupOf(e)
	if err != nil {
		return err
	}
	if _, ok := q.queues[ag]; !ok {
		return indexerr.NoSuchEvent("event %s is not processing: access group %d is not queued", e.ID, ag)
	}
	return q.apply(e, func(agq *AccessGroupEventQueue) error {
		return agq.SetProcessingComplete(e)
	})
}

// Size is the number of events held, in any state.
func (q *EventQueue) Size() int { return q.size }

func (q *EventQueue) IsEmpty() bool { return q.size == 0 }
