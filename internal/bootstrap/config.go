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

package bootstrap

import (
	"time"

	"github.com/cardinalhq/indexrunner/internal/events"
)

// SupportedVersion is the only file layout version Parse accepts.
const SupportedVersion = 1

// File represents the YAML structure for a batch of events to store.
type File struct {
	Version int `yaml:"version" json:"version"`
	// State the events are stored in, UNPROC when empty.
	State       string   `yaml:"state,omitempty" json:"state,omitempty"`
	WorkerCodes []string `yaml:"worker_codes,omitempty" json:"worker_codes,omitempty"`
	Events      []Event  `yaml:"events" json:"events"`
}

// Event mirrors events.StatusEvent with YAML field names.
type Event struct {
	Type              string    `yaml:"type" json:"type"`
	StorageCode       string    `yaml:"storage_code" json:"storage_code"`
	Timestamp         time.Time `yaml:"timestamp" json:"timestamp"`
	AccessGroupID     *int64    `yaml:"access_group_id,omitempty" json:"access_group_id,omitempty"`
	ObjectID          *string   `yaml:"object_id,omitempty" json:"object_id,omitempty"`
	Version           *int32    `yaml:"version,omitempty" json:"version,omitempty"`
	ObjectType        *string   `yaml:"object_type,omitempty" json:"object_type,omitempty"`
	ObjectTypeVersion *int32    `yaml:"object_type_version,omitempty" json:"object_type_version,omitempty"`
	IsPublic          *bool     `yaml:"is_public,omitempty" json:"is_public,omitempty"`
	NewName           *string   `yaml:"new_name,omitempty" json:"new_name,omitempty"`
}

// Record is a stored event as printed by the CLI.
type Record struct {
	ID          string     `yaml:"id" json:"id"`
	State       string     `yaml:"state" json:"state"`
	WorkerCodes []string   `yaml:"worker_codes" json:"worker_codes"`
	UpdateTime  *time.Time `yaml:"update_time,omitempty" json:"update_time,omitempty"`
	Updater     *string    `yaml:"updater,omitempty" json:"updater,omitempty"`
	Event       Event      `yaml:"event" json:"event"`
}

// FromStatusEvent converts an event to its file form.
func FromStatusEvent(e events.StatusEvent) Event {
	out := Event{
		Type:          e.Type.String(),
		StorageCode:   e.StorageCode,
		Timestamp:     e.Timestamp,
		AccessGroupID: e.AccessGroupID,
		ObjectID:      e.ObjectID,
		Version:       e.Version,
		IsPublic:      e.IsPublic,
		NewName:       e.NewName,
	}
	if e.ObjectType != nil {
		name := e.ObjectType.Name
		out.ObjectType = &name
		out.ObjectTypeVersion = e.ObjectType.Version
	}
	return out
}

func NewRecord(sse events.StoredStatusEvent) Record {
	return Record{
		ID:          sse.ID.String(),
		State:       sse.State.String(),
		WorkerCodes: sse.WorkerCodes,
		UpdateTime:  sse.UpdateTime,
		Updater:     sse.UpdatedBy,
		Event:       FromStatusEvent(sse.Event),
	}
}
