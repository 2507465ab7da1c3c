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

package eventdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const statusEventColumns = `id, state, storage_code, access_group_id, object_id, version, event_type,
  object_type, object_type_version, is_public, new_name, event_ts, worker_codes,
  update_time, updater, created_at`

func scanStatusEvent(row pgx.Row) (StatusEvent, error) {
	var i StatusEvent
	err := row.Scan(
		&i.ID,
		&i.State,
		&i.StorageCode,
		&i.AccessGroupID,
		&i.ObjectID,
		&i.Version,
		&i.EventType,
		&i.ObjectType,
		&i.ObjectTypeVersion,
		&i.IsPublic,
		&i.NewName,
		&i.EventTs,
		&i.WorkerCodes,
		&i.UpdateTime,
		&i.Updater,
		&i.CreatedAt,
	)
	return i, err
}

func collectStatusEvents(rows pgx.Rows, err error) ([]StatusEvent, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StatusEvent{}
	for rows.Next() {
		i, err := scanStatusEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const statusEventInsert = `-- name: StatusEventInsert :one
INSERT INTO status_events (
  state, storage_code, access_group_id, object_id, version, event_type,
  object_type, object_type_version, is_public, new_name, event_ts, worker_codes
) VALUES (
  $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
)
RETURNING id
`

type StatusEventInsertParams struct {
	State             string    `json:"state"`
	StorageCode       string    `json:"storage_code"`
	AccessGroupID     *int64    `json:"access_group_id"`
	ObjectID          *string   `json:"object_id"`
	Version           *int32    `json:"version"`
	EventType         string    `json:"event_type"`
	ObjectType        *string   `json:"object_type"`
	ObjectTypeVersion *int32    `json:"object_type_version"`
	IsPublic          *bool     `json:"is_public"`
	NewName           *string   `json:"new_name"`
	EventTs           time.Time `json:"event_ts"`
	WorkerCodes       []string  `json:"worker_codes"`
}

func (p StatusEventInsertParams) args() []any {
	return []any{
		p.State,
		p.StorageCode,
		p.AccessGroupID,
		p.ObjectID,
		p.Version,
		p.EventType,
		p.ObjectType,
		p.ObjectTypeVersion,
		p.IsPublic,
		p.NewName,
		p.EventTs,
		p.WorkerCodes,
	}
}

func (q *Queries) StatusEventInsert(ctx context.Context, arg StatusEventInsertParams) (uuid.UUID, error) {
	row := q.db.QueryRow(ctx, statusEventInsert, arg.args()...)
	var id uuid.UUID
	err := row.Scan(&id)
	return id, err
}

// batchStatusEventInsert queues one insert per event on a single round
// trip. Callers must close the results.
func (q *Queries) batchStatusEventInsert(ctx context.Context, arg []StatusEventInsertParams) pgx.BatchResults {
	batch := &pgx.Batch{}
	for _, a := range arg {
		batch.Queue(statusEventInsert, a.args()...)
	}
	return q.db.SendBatch(ctx, batch)
}

const statusEventGet = `-- name: StatusEventGet :one
SELECT ` + statusEventColumns + `
FROM status_events
WHERE id = $1
`

func (q *Queries) StatusEventGet(ctx context.Context, id uuid.UUID) (StatusEvent, error) {
	return scanStatusEvent(q.db.QueryRow(ctx, statusEventGet, id))
}

const statusEventsByState = `-- name: StatusEventsByState :many
SELECT ` + statusEventColumns + `
FROM status_events
WHERE state = $1
ORDER BY event_ts, id
LIMIT $2
`

type StatusEventsByStateParams struct {
	State string `json:"state"`
	Limit int32  `json:"limit"`
}

func (q *Queries) StatusEventsByState(ctx context.Context, arg StatusEventsByStateParams) ([]StatusEvent, error) {
	return collectStatusEvents(q.db.Query(ctx, statusEventsByState, arg.State, arg.Limit))
}

const statusEventsByAccessGroup = `-- name: StatusEventsByAccessGroup :many
SELECT ` + statusEventColumns + `
FROM status_events
WHERE access_group_id = $1
ORDER BY event_ts, id
LIMIT $2
`

type StatusEventsByAccessGroupParams struct {
	AccessGroupID int64 `json:"access_group_id"`
	Limit         int32 `json:"limit"`
}

func (q *Queries) StatusEventsByAccessGroup(ctx context.Context, arg StatusEventsByAccessGroupParams) ([]StatusEvent, error) {
	return collectStatusEvents(q.db.Query(ctx, statusEventsByAccessGroup, arg.AccessGroupID, arg.Limit))
}

// A NULL old state matches any state; a NULL updater keeps the previous
// one.
const statusEventSetState = `-- name: StatusEventSetState :execrows
UPDATE status_events
SET state = $3,
    update_time = now(),
    updater = COALESCE($4, updater)
WHERE id = $1
  AND ($2::text IS NULL OR state = $2)
`

type StatusEventSetStateParams struct {
	ID       uuid.UUID `json:"id"`
	OldState *string   `json:"old_state"`
	NewState string    `json:"new_state"`
	Updater  *string   `json:"updater"`
}

func (q *Queries) StatusEventSetState(ctx context.Context, arg StatusEventSetStateParams) (int64, error) {
	result, err := q.db.Exec(ctx, statusEventSetState,
		arg.ID,
		arg.OldState,
		arg.NewState,
		arg.Updater,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// The inner select skips rows other claimers hold, so concurrent callers
// never receive the same event. The outer state check guards against a row
// that changed between the select and the update.
const statusEventClaim = `-- name: StatusEventClaim :one
UPDATE status_events
SET state = $3,
    update_time = now(),
    updater = $4
WHERE id = (
    SELECT id
    FROM status_events
    WHERE state = $1
      AND worker_codes && $2::text[]
    ORDER BY event_ts, id
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  AND state = $1
RETURNING ` + statusEventColumns + `
`

type StatusEventClaimParams struct {
	OldState    string   `json:"old_state"`
	WorkerCodes []string `json:"worker_codes"`
	NewState    string   `json:"new_state"`
	Updater     *string  `json:"updater"`
}

func (q *Queries) StatusEventClaim(ctx context.Context, arg StatusEventClaimParams) (StatusEvent, error) {
	row := q.db.QueryRow(ctx, statusEventClaim,
		arg.OldState,
		arg.WorkerCodes,
		arg.NewState,
		arg.Updater,
	)
	return scanStatusEvent(row)
}

const statusEventCountByState = `-- name: StatusEventCountByState :many
SELECT state, count(*) AS count
FROM status_events
GROUP BY state
ORDER BY state
`

func (q *Queries) StatusEventCountByState(ctx context.Context) ([]StatusEventStateCount, error) {
	rows, err := q.db.Query(ctx, statusEventCountByState)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []StatusEventStateCount{}
	for rows.Next() {
		var i StatusEventStateCount
		if err := rows.Scan(&i.State, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
