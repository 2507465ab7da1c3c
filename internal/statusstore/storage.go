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

// Package statusstore persists status events and provides the atomic claim
// workers use to pick up ready events. Every failure of the backing store
// is reported as an indexerr.FatalRetriableError.
package statusstore

import (
	"context"

	"github.com/cardinalhq/indexrunner/internal/events"
)

// MaxReturn caps GetByState no matter what limit the caller asks for.
const MaxReturn = 10000

// StatusEventStorage is the durable home of status events. Only
// SetAndGetProcessingState needs to be safe against concurrent callers
// racing for the same events; everything else touches a single event.
type StatusEventStorage interface {
	// Store assigns a new id and persists the event. Empty workerCodes
	// means the default partition.
	Store(ctx context.Context, event events.StatusEvent, state events.ProcessingState, workerCodes []string) (events.StoredStatusEvent, error)

	// StoreBatch stores all events or none of them.
	StoreBatch(ctx context.Context, evs []events.StatusEvent, state events.ProcessingState, workerCodes []string) ([]events.StoredStatusEvent, error)

	// Get returns nil when no event has the id.
	Get(ctx context.Context, id events.StatusEventID) (*events.StoredStatusEvent, error)

	// GetByState returns events in state, oldest first. limit <= 0 or
	// above MaxReturn means MaxReturn.
	GetByState(ctx context.Context, state events.ProcessingState, limit int) ([]events.StoredStatusEvent, error)

	// SetProcessingState moves an event to newState if its current state is
	// expectedOld, or unconditionally when expectedOld is nil. It reports
	// false when the event is absent or in another state. An empty updater
	// keeps the previous one.
	SetProcessingState(ctx context.Context, id events.StatusEventID, expectedOld *events.ProcessingState, newState events.ProcessingState, updater string) (bool, error)

	// SetAndGetProcessingState atomically moves the oldest event in
	// oldState whose worker codes intersect workerCodes to newState and
	// returns it, or nil when there is none.
	SetAndGetProcessingState(ctx context.Context, oldState events.ProcessingState, workerCodes []string, newState events.ProcessingState, updater string) (*events.StoredStatusEvent, error)

	// CountByState returns the number of events per state. States with no
	// events are absent.
	CountByState(ctx context.Context) (map[events.ProcessingState]int64, error)
}

func capLimit(limit int) int {
	if limit <= 0 || limit > MaxReturn {
		return MaxReturn
	}
	return limit
}
