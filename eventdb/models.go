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
	"time"

	"github.com/google/uuid"
)

// StatusEvent is one row of the status_events table. Nullable columns are
// pointers.
type StatusEvent struct {
	ID                uuid.UUID  `json:"id"`
	State             string     `json:"state"`
	StorageCode       string     `json:"storage_code"`
	AccessGroupID     *int64     `json:"access_group_id"`
	ObjectID          *string    `json:"object_id"`
	Version           *int32     `json:"version"`
	EventType         string     `json:"event_type"`
	ObjectType        *string    `json:"object_type"`
	ObjectTypeVersion *int32     `json:"object_type_version"`
	IsPublic          *bool      `json:"is_public"`
	NewName           *string    `json:"new_name"`
	EventTs           time.Time  `json:"event_ts"`
	WorkerCodes       []string   `json:"worker_codes"`
	UpdateTime        *time.Time `json:"update_time"`
	Updater           *string    `json:"updater"`
	CreatedAt         time.Time  `json:"created_at"`
}

type StatusEventStateCount struct {
	State string `json:"state"`
	Count int64  `json:"count"`
}
