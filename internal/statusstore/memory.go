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
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/idgen"
	"github.com/cardinalhq/indexrunner/internal/indexerr"
)

// MemoryStorage keeps events in process. It backs tests and the
// single-process "local" mode; it is safe for concurrent use.
type MemoryStorage struct {
	mu     sync.Mutex
	events map[events.StatusEventID]*events.StoredStatusEvent
	ids    idgen.IDGenerator
	now    func() time.Time
}

var _ StatusEventStorage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		events: make(map[events.StatusEventID]*events.StoredStatusEvent),
		ids:    idgen.NewULIDGenerator(),
		now:    time.Now,
	}
}

func (s *MemoryStorage) store(event events.StatusEvent, state events.ProcessingState, workerCodes []string) (events.StoredStatusEvent, error) {
	id := events.StatusEventID(s.ids.Make(s.now()))
	sse, err := events.NewStoredStatusEvent(event, id, state, workerCodes)
	if err != nil {
		return events.StoredStatusEvent{}, err
	}
	stored := clone(&sse)
	s.events[id] = &stored
	return sse, nil
}

func (s *MemoryStorage) Store(_ context.Context, event events.StatusEvent, state events.ProcessingState, workerCodes []string) (events.StoredStatusEvent, error) {
	if err := event.Validate(); err != nil {
		return events.StoredStatusEvent{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(event, state, workerCodes)
}

func (s *MemoryStorage) StoreBatch(_ context.Context, evs []events.StatusEvent, state events.ProcessingState, workerCodes []string) ([]events.StoredStatusEvent, error) {
	if !state.IsValid() {
		return nil, indexerr.InvalidArgument("unknown processing state %q", state)
	}
	for i, e := range evs {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.StoredStatusEvent, 0, len(evs))
	for _, e := range evs {
		sse, err := s.store(e, state, workerCodes)
		if err != nil {
			return nil, err
		}
		out = append(out, sse)
	}
	return out, nil
}

func (s *MemoryStorage) Get(_ context.Context, id events.StatusEventID) (*events.StoredStatusEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sse, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	cp := clone(sse)
	return &cp, nil
}

// clone copies sse so callers cannot reach the stored worker codes.
func clone(sse *events.StoredStatusEvent) events.StoredStatusEvent {
	cp := *sse
	cp.WorkerCodes = slices.Clone(sse.WorkerCodes)
	return cp
}

// oldestFirst orders by timestamp, then by id. ULIDs sort by creation, so
// ties break in insertion order.
func oldestFirst(a, b *events.StoredStatusEvent) int {
	if c := a.Timestamp().Compare(b.Timestamp()); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (s *MemoryStorage) GetByState(_ context.Context, state events.ProcessingState, limit int) ([]events.StoredStatusEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*events.StoredStatusEvent
	for _, sse := range s.events {
		if sse.State == state {
			matched = append(matched, sse)
		}
	}
	slices.SortFunc(matched, oldestFirst)

	n := min(len(matched), capLimit(limit))
	out := make([]events.StoredStatusEvent, n)
	for i := range n {
		out[i] = clone(matched[i])
	}
	return out, nil
}

func (s *MemoryStorage) SetProcessingState(_ context.Context, id events.StatusEventID, expectedOld *events.ProcessingState, newState events.ProcessingState, updater string) (bool, error) {
	if !newState.IsValid() {
		return false, indexerr.InvalidArgument("unknown processing state %q", newState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sse, ok := s.events[id]
	if !ok || (expectedOld != nil && sse.State != *expectedOld) {
		return false, nil
	}
	s.transition(sse, newState, updater)
	return true, nil
}

func (s *MemoryStorage) transition(sse *events.StoredStatusEvent, newState events.ProcessingState, updater string) {
	if updater == "" && sse.UpdatedBy != nil {
		updater = *sse.UpdatedBy
	}
	*sse = sse.WithUpdate(s.now(), updater)
	sse.State = newState
}

func (s *MemoryStorage) SetAndGetProcessingState(_ context.Context, oldState events.ProcessingState, workerCodes []string, newState events.ProcessingState, updater string) (*events.StoredStatusEvent, error) {
	if !newState.IsValid() {
		return nil, indexerr.InvalidArgument("unknown processing state %q", newState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *events.StoredStatusEvent
	for _, sse := range s.events {
		if sse.State != oldState || !sse.MatchesWorkerCodes(workerCodes) {
			continue
		}
		if oldest == nil || oldestFirst(sse, oldest) < 0 {
			oldest = sse
		}
	}
	if oldest == nil {
		return nil, nil
	}
	s.transition(oldest, newState, updater)
	cp := clone(oldest)
	return &cp, nil
}

func (s *MemoryStorage) CountByState(_ context.Context) (map[events.ProcessingState]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[events.ProcessingState]int64{}
	for _, sse := range s.events {
		out[sse.State]++
	}
	return out, nil
}
