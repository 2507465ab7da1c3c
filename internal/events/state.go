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

import "github.com/cardinalhq/indexrunner/internal/indexerr"

// ProcessingState is the lifecycle state of a stored status event.
type ProcessingState string

const (
	// StateUnprocessed events have not been scheduled yet.
	StateUnprocessed ProcessingState = "UNPROC"
	// StateReady events may be claimed by a worker.
	StateReady ProcessingState = "READY"
	// StateProcessing events have been claimed and are in flight.
	StateProcessing ProcessingState = "PROC"
	// StateFailed events failed to index.
	StateFailed ProcessingState = "FAIL"
	// StateUnindexed events were processed and deliberately not indexed.
	StateUnindexed ProcessingState = "UNINDX"
	// StateIndexed events were indexed successfully.
	StateIndexed ProcessingState = "INDX"
)

func (s ProcessingState) String() string { return string(s) }

// IsTerminal returns true if no further transitions happen without
// external retry logic.
func (s ProcessingState) IsTerminal() bool {
	switch s {
	case StateFailed, StateUnindexed, StateIndexed:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is one of the known states.
func (s ProcessingState) IsValid() bool {
	switch s {
	case StateUnprocessed, StateReady, StateProcessing, StateFailed, StateUnindexed, StateIndexed:
		return true
	default:
		return false
	}
}

// AllStates lists the states in lifecycle order.
func AllStates() []ProcessingState {
	return []ProcessingState{
		StateUnprocessed,
		StateReady,
		StateProcessing,
		StateFailed,
		StateUnindexed,
		StateIndexed,
	}
}

func ParseProcessingState(s string) (ProcessingState, error) {
	st := ProcessingState(s)
	if !st.IsValid() {
		return "", indexerr.InvalidArgument("unknown processing state %q", s)
	}
	return st, nil
}
