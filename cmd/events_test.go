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

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/indexrunner/internal/bootstrap"
	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/indexerr"
	"github.com/cardinalhq/indexrunner/internal/statusstore"
)

func seedEvents(t *testing.T, s statusstore.StatusEventStorage) []events.StoredStatusEvent {
	t.Helper()
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	var out []events.StoredStatusEvent
	for i, obj := range []string{"a", "b", "c"} {
		ev, err := events.NewStatusEvent("WS", base.Add(time.Duration(i)*time.Second), events.EventNewVersion,
			events.WithAccessGroupID(9), events.WithObjectID(obj), events.WithVersion(1))
		require.NoError(t, err)
		sse, err := s.Store(context.Background(), ev, events.StateUnprocessed, nil)
		require.NoError(t, err)
		out = append(out, sse)
	}
	return out
}

func TestGetEvent(t *testing.T) {
	s := statusstore.NewMemoryStorage()
	stored := seedEvents(t, s)

	var buf bytes.Buffer
	require.NoError(t, getEvent(context.Background(), s, stored[1].ID.String(), &buf, outputYAML))

	var records []bootstrap.Record
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, stored[1].ID.String(), records[0].ID)
	assert.Equal(t, "UNPROC", records[0].State)
	assert.Equal(t, "b", *records[0].Event.ObjectID)

	err := getEvent(context.Background(), s, "missing", &buf, outputYAML)
	require.Error(t, err)
	err = getEvent(context.Background(), s, "  ", &buf, outputYAML)
	require.ErrorIs(t, err, indexerr.ErrInvalidArgument)
}

func TestListEvents(t *testing.T) {
	s := statusstore.NewMemoryStorage()
	stored := seedEvents(t, s)

	var buf bytes.Buffer
	require.NoError(t, listEvents(context.Background(), s, "UNPROC", 0, 2, &buf, outputJSON))
	var records []bootstrap.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, stored[0].ID.String(), records[0].ID)
	assert.Equal(t, stored[1].ID.String(), records[1].ID)

	buf.Reset()
	require.NoError(t, listEvents(context.Background(), s, "UNPROC", 0, 10, &buf, outputTable))
	out := buf.String()
	assert.Contains(t, out, "ACCESS_GROUP")
	for _, e := range stored {
		assert.Contains(t, out, e.ID.String())
	}

	require.Error(t, listEvents(context.Background(), s, "WAITING", 0, 10, &buf, outputTable))
	require.Error(t, listEvents(context.Background(), s, "", 9, 10, &buf, outputTable), "memory storage cannot list by access group")
}

func TestSummarize(t *testing.T) {
	s := statusstore.NewMemoryStorage()
	stored := seedEvents(t, s)
	_, err := s.SetProcessingState(context.Background(), stored[0].ID, nil, events.StateIndexed, "w")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, summarize(context.Background(), s, &buf, outputJSON))
	var counts map[string]int64
	require.NoError(t, json.Unmarshal(buf.Bytes(), &counts))
	assert.Equal(t, map[string]int64{
		"UNPROC": 2, "READY": 0, "PROC": 0, "FAIL": 0, "UNINDX": 0, "INDX": 1,
	}, counts)

	buf.Reset()
	require.NoError(t, summarize(context.Background(), s, &buf, outputTable))
	assert.Contains(t, buf.String(), "STATE")
	assert.Regexp(t, `UNPROC\s+2`, buf.String())
}

func TestSetState(t *testing.T) {
	s := statusstore.NewMemoryStorage()
	stored := seedEvents(t, s)
	id := stored[0].ID.String()
	var buf bytes.Buffer

	require.NoError(t, setState(context.Background(), s, id, "FAIL", "", "cli", &buf))
	assert.Contains(t, buf.String(), "is now FAIL")

	err := setState(context.Background(), s, id, "UNPROC", "PROC", "cli", &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in state PROC")

	require.NoError(t, setState(context.Background(), s, id, "UNPROC", "FAIL", "cli", &buf))
	got, err := s.Get(context.Background(), stored[0].ID)
	require.NoError(t, err)
	assert.Equal(t, events.StateUnprocessed, got.State)
	require.NotNil(t, got.UpdatedBy)
	assert.Equal(t, "cli", *got.UpdatedBy)

	require.ErrorIs(t, setState(context.Background(), s, id, "DONE", "", "cli", &buf), indexerr.ErrInvalidArgument)
	require.Error(t, setState(context.Background(), s, "nope", "FAIL", "", "cli", &buf))
}
