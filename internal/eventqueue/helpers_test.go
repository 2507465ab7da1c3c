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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/indexrunner/internal/events"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func ts(sec int) time.Time {
	return epoch.Add(time.Duration(sec) * time.Second)
}

func objectEvent(t *testing.T, id string, ag int64, obj string, sec int) events.StoredStatusEvent {
	t.Helper()
	return objectEventOfType(t, id, ag, obj, sec, events.EventNewVersion)
}

func objectEventOfType(t *testing.T, id string, ag int64, obj string, sec int, et events.EventType) events.StoredStatusEvent {
	t.Helper()
	opts := []events.EventOption{
		events.WithAccessGroupID(ag),
		events.WithObjectID(obj),
		events.WithVersion(1),
	}
	if et == events.EventRenameAllVersions {
		opts = append(opts, events.WithNewName("renamed"))
	}
	ev, err := events.NewStatusEvent("WS", ts(sec), et, opts...)
	require.NoError(t, err)
	sse, err := events.NewStoredStatusEvent(ev, events.StatusEventID(id), events.StateUnprocessed, nil)
	require.NoError(t, err)
	return sse
}

func groupEvent(t *testing.T, id string, ag int64, sec int) events.StoredStatusEvent {
	t.Helper()
	ev, err := events.NewStatusEvent("WS", ts(sec), events.EventDeleteAccessGroup, events.WithAccessGroupID(ag))
	require.NoError(t, err)
	sse, err := events.NewStoredStatusEvent(ev, events.StatusEventID(id), events.StateUnprocessed, nil)
	require.NoError(t, err)
	return sse
}

func inState(e events.StoredStatusEvent, st events.ProcessingState) events.StoredStatusEvent {
	e.State = st
	return e
}

func ids(evs []events.StoredStatusEvent) []string {
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, string(e.ID))
	}
	return out
}

func eventID(prefix string, n int) string {
	return fmt.Sprintf("%s-%04d", prefix, n)
}
