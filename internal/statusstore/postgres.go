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
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cardinalhq/indexrunner/eventdb"
	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/indexerr"
)

// EventDB is the subset of eventdb.StoreFull the Postgres storage needs.
type EventDB interface {
	eventdb.Querier
	eventdb.StatusEventBatchInserter
}

type PostgresStorage struct {
	db EventDB
}

var _ StatusEventStorage = (*PostgresStorage)(nil)

func NewPostgresStorage(db EventDB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

func fatal(format string, args ...any) error {
	return indexerr.NewFatalRetriable(fmt.Errorf(format, args...))
}

func (s *PostgresStorage) Store(ctx context.Context, event events.StatusEvent, state events.ProcessingState, workerCodes []string) (events.StoredStatusEvent, error) {
	if !state.IsValid() {
		return events.StoredStatusEvent{}, indexerr.InvalidArgument("unknown processing state %q", state)
	}
	if err := event.Validate(); err != nil {
		return events.StoredStatusEvent{}, err
	}
	params := insertParams(event, state, workerCodes)
	id, err := s.db.StatusEventInsert(ctx, params)
	if err != nil {
		return events.StoredStatusEvent{}, fatal("store status event: %w", err)
	}
	return events.NewStoredStatusEvent(event, events.StatusEventID(id.String()), state, params.WorkerCodes)
}

func (s *PostgresStorage) StoreBatch(ctx context.Context, evs []events.StatusEvent, state events.ProcessingState, workerCodes []string) ([]events.StoredStatusEvent, error) {
	if !state.IsValid() {
		return nil, indexerr.InvalidArgument("unknown processing state %q", state)
	}
	if len(evs) == 0 {
		return nil, nil
	}
	params := make([]eventdb.StatusEventInsertParams, len(evs))
	for i, e := range evs {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		params[i] = insertParams(e, state, workerCodes)
	}
	ids, err := s.db.StatusEventInsertBatch(ctx, params)
	if err != nil {
		return nil, fatal("store %d status events: %w", len(evs), err)
	}
	out := make([]events.StoredStatusEvent, len(evs))
	for i, e := range evs {
		sse, err := events.NewStoredStatusEvent(e, events.StatusEventID(ids[i].String()), state, params[i].WorkerCodes)
		if err != nil {
			return nil, err
		}
		out[i] = sse
	}
	return out, nil
}

func (s *PostgresStorage) Get(ctx context.Context, id events.StatusEventID) (*events.StoredStatusEvent, error) {
	dbID, err := uuid.Parse(id.String())
	if err != nil {
		return nil, nil
	}
	row, err := s.db.StatusEventGet(ctx, dbID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fatal("get status event %s: %w", id, err)
	}
	sse, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	return &sse, nil
}

func (s *PostgresStorage) GetByState(ctx context.Context, state events.ProcessingState, limit int) ([]events.StoredStatusEvent, error) {
	rows, err := s.db.StatusEventsByState(ctx, eventdb.StatusEventsByStateParams{
		State: state.String(),
		Limit: int32(capLimit(limit)),
	})
	if err != nil {
		return nil, fatal("get status events in state %s: %w", state, err)
	}
	return fromRows(rows)
}

// GetByAccessGroup lists the events of one access group, oldest first.
func (s *PostgresStorage) GetByAccessGroup(ctx context.Context, accessGroupID int64, limit int) ([]events.StoredStatusEvent, error) {
	rows, err := s.db.StatusEventsByAccessGroup(ctx, eventdb.StatusEventsByAccessGroupParams{
		AccessGroupID: accessGroupID,
		Limit:         int32(capLimit(limit)),
	})
	if err != nil {
		return nil, fatal("get status events for access group %d: %w", accessGroupID, err)
	}
	return fromRows(rows)
}

func (s *PostgresStorage) SetProcessingState(ctx context.Context, id events.StatusEventID, expectedOld *events.ProcessingState, newState events.ProcessingState, updater string) (bool, error) {
	if !newState.IsValid() {
		return false, indexerr.InvalidArgument("unknown processing state %q", newState)
	}
	dbID, err := uuid.Parse(id.String())
	if err != nil {
		return false, nil
	}
	params := eventdb.StatusEventSetStateParams{
		ID:       dbID,
		NewState: newState.String(),
		Updater:  optionalString(updater),
	}
	if expectedOld != nil {
		old := expectedOld.String()
		params.OldState = &old
	}
	n, err := s.db.StatusEventSetState(ctx, params)
	if err != nil {
		return false, fatal("set state of status event %s to %s: %w", id, newState, err)
	}
	return n == 1, nil
}

func (s *PostgresStorage) SetAndGetProcessingState(ctx context.Context, oldState events.ProcessingState, workerCodes []string, newState events.ProcessingState, updater string) (*events.StoredStatusEvent, error) {
	if !newState.IsValid() {
		return nil, indexerr.InvalidArgument("unknown processing state %q", newState)
	}
	row, err := s.db.StatusEventClaim(ctx, eventdb.StatusEventClaimParams{
		OldState:    oldState.String(),
		WorkerCodes: events.NormalizeWorkerCodes(workerCodes),
		NewState:    newState.String(),
		Updater:     optionalString(updater),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fatal("claim status event in state %s: %w", oldState, err)
	}
	sse, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	return &sse, nil
}

func (s *PostgresStorage) CountByState(ctx context.Context) (map[events.ProcessingState]int64, error) {
	rows, err := s.db.StatusEventCountByState(ctx)
	if err != nil {
		return nil, fatal("count status events: %w", err)
	}
	out := make(map[events.ProcessingState]int64, len(rows))
	for _, r := range rows {
		out[events.ProcessingState(r.State)] = r.Count
	}
	return out, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func insertParams(e events.StatusEvent, state events.ProcessingState, workerCodes []string) eventdb.StatusEventInsertParams {
	p := eventdb.StatusEventInsertParams{
		State:         state.String(),
		StorageCode:   e.StorageCode,
		AccessGroupID: e.AccessGroupID,
		ObjectID:      e.ObjectID,
		Version:       e.Version,
		EventType:     e.Type.String(),
		IsPublic:      e.IsPublic,
		NewName:       e.NewName,
		EventTs:       e.Timestamp,
		WorkerCodes:   events.NormalizeWorkerCodes(workerCodes),
	}
	if e.ObjectType != nil {
		p.ObjectType = &e.ObjectType.Name
		p.ObjectTypeVersion = e.ObjectType.Version
	}
	return p
}

// fromRow rebuilds a stored event from its row. A row that fails
// validation means the table was written by something other than this
// package, which retrying will not fix.
func fromRow(r eventdb.StatusEvent) (events.StoredStatusEvent, error) {
	eventType, err := events.ParseEventType(r.EventType)
	if err != nil {
		return events.StoredStatusEvent{}, fmt.Errorf("status event %s: %w", r.ID, err)
	}
	state, err := events.ParseProcessingState(r.State)
	if err != nil {
		return events.StoredStatusEvent{}, fmt.Errorf("status event %s: %w", r.ID, err)
	}

	var opts []events.EventOption
	if r.AccessGroupID != nil {
		opts = append(opts, events.WithAccessGroupID(*r.AccessGroupID))
	}
	if r.ObjectID != nil {
		opts = append(opts, events.WithObjectID(*r.ObjectID))
	}
	if r.Version != nil {
		opts = append(opts, events.WithVersion(*r.Version))
	}
	if r.ObjectType != nil {
		if r.ObjectTypeVersion != nil {
			opts = append(opts, events.WithVersionedObjectType(*r.ObjectType, *r.ObjectTypeVersion))
		} else {
			opts = append(opts, events.WithObjectType(*r.ObjectType))
		}
	}
	if r.IsPublic != nil {
		opts = append(opts, events.WithPublic(*r.IsPublic))
	}
	if r.NewName != nil {
		opts = append(opts, events.WithNewName(*r.NewName))
	}

	ev, err := events.NewStatusEvent(r.StorageCode, r.EventTs, eventType, opts...)
	if err != nil {
		return events.StoredStatusEvent{}, fmt.Errorf("status event %s: %w", r.ID, err)
	}
	sse, err := events.NewStoredStatusEvent(ev, events.StatusEventID(r.ID.String()), state, r.WorkerCodes)
	if err != nil {
		return events.StoredStatusEvent{}, err
	}
	if r.UpdateTime != nil {
		updater := ""
		if r.Updater != nil {
			updater = *r.Updater
		}
		sse = sse.WithUpdate(*r.UpdateTime, updater)
	}
	return sse, nil
}

func fromRows(rows []eventdb.StatusEvent) ([]events.StoredStatusEvent, error) {
	out := make([]events.StoredStatusEvent, 0, len(rows))
	for _, r := range rows {
		sse, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sse)
	}
	return out, nil
}
