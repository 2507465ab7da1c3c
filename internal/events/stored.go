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

package events

import (
	"fmt"
	"slices"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/indexrunner/internal/indexerr"
)

// DefaultWorkerCode is the partition an event belongs to when it was stored
// without explicit worker codes.
const DefaultWorkerCode = "default"

// StatusEventID is the opaque identifier the event store assigns.
type StatusEventID string

func NewStatusEventID(id string) (StatusEventID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", indexerr.InvalidArgument("status event id must not be empty")
	}
	return StatusEventID(id), nil
}

func (id StatusEventID) String() string { return string(id) }

// StoredStatusEvent is a StatusEvent together with its store bookkeeping.
type StoredStatusEvent struct {
	Event       StatusEvent
	ID          StatusEventID
	State       ProcessingState
	WorkerCodes []string
	UpdateTime  *time.Time
	UpdatedBy   *string
}

// NewStoredStatusEvent builds a StoredStatusEvent with normalized worker codes.
func NewStoredStatusEvent(event StatusEvent, id StatusEventID, state ProcessingState, workerCodes []string) (StoredStatusEvent, error) {
	if id == "" {
		return StoredStatusEvent{}, indexerr.InvalidArgument("status event id must not be empty")
	}
	if !state.IsValid() {
		return StoredStatusEvent{}, indexerr.InvalidArgument("unknown processing state %q", state)
	}
	return StoredStatusEvent{
		Event:       event,
		ID:          id,
		State:       state,
		WorkerCodes: NormalizeWorkerCodes(workerCodes),
	}, nil
}

// WithUpdate returns a copy stamped with the time and identity of the last
// state transition.
func (s StoredStatusEvent) WithUpdate(at time.Time, by string) StoredStatusEvent {
	at = at.UTC()
	s.UpdateTime = &at
	if by != "" {
		s.UpdatedBy = &by
	} else {
		s.UpdatedBy = nil
	}
	return s
}

// Timestamp is shorthand for s.Event.Timestamp.
func (s StoredStatusEvent) Timestamp() time.Time { return s.Event.Timestamp }

func (s StoredStatusEvent) String() string {
	return fmt.Sprintf("StoredStatusEvent{%s %s %s}", s.ID, s.State, s.Event)
}

// NormalizeWorkerCodes trims, dedups and sorts codes. No usable codes means
// the default partition.
func NormalizeWorkerCodes(codes []string) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			set.Add(c)
		}
	}
	if set.Cardinality() == 0 {
		return []string{DefaultWorkerCode}
	}
	out := set.ToSlice()
	slices.Sort(out)
	return out
}

// MatchesWorkerCodes reports whether the event may be claimed by a worker
// serving codes.
func (s StoredStatusEvent) MatchesWorkerCodes(codes []string) bool {
	mine := mapset.NewThreadUnsafeSet(NormalizeWorkerCodes(s.WorkerCodes)...)
	theirs := mapset.NewThreadUnsafeSet(NormalizeWorkerCodes(codes)...)
	return mine.Intersect(theirs).Cardinality() > 0
}
