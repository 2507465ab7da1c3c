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
	"cmp"
	"slices"

	"github.com/cardinalhq/indexrunner/internal/events"
)

// eventHeap implements heap.Interface ordered by event timestamp. Ties are
// broken by id so the order is deterministic.
type eventHeap []events.StoredStatusEvent

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return compareEvents(h[i], h[j]) < 0 }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(events.StoredStatusEvent))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = events.StoredStatusEvent{}
	*h = old[0 : n-1]
	return item
}

func compareEvents(a, b events.StoredStatusEvent) int {
	if c := a.Timestamp().Compare(b.Timestamp()); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func sortEvents(evs []events.StoredStatusEvent) []events.StoredStatusEvent {
	slices.SortFunc(evs, compareEvents)
	return evs
}

func withState(e events.StoredStatusEvent, state events.ProcessingState) *events.StoredStatusEvent {
	e.State = state
	return &e
}
