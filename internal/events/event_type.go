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

	"github.com/cardinalhq/indexrunner/internal/indexerr"
)

// EventType is the kind of change a StatusEvent describes.
type EventType string

const (
	EventNewVersion           EventType = "NEW_VERSION"
	EventNewAllVersions       EventType = "NEW_ALL_VERSIONS"
	EventDeleted              EventType = "DELETED"
	EventDeleteAllVersions    EventType = "DELETE_ALL_VERSIONS"
	EventUndeleteAllVersions  EventType = "UNDELETE_ALL_VERSIONS"
	EventRenameAllVersions    EventType = "RENAME_ALL_VERSIONS"
	EventPublishAllVersions   EventType = "PUBLISH_ALL_VERSIONS"
	EventUnpublishAllVersions EventType = "UNPUBLISH_ALL_VERSIONS"

	EventShared               EventType = "SHARED"
	EventUnshared             EventType = "UNSHARED"
	EventPublishAccessGroup   EventType = "PUBLISH_ACCESS_GROUP"
	EventUnpublishAccessGroup EventType = "UNPUBLISH_ACCESS_GROUP"
	EventDeleteAccessGroup    EventType = "DELETE_ACCESS_GROUP"
	EventCopyAccessGroup      EventType = "COPY_ACCESS_GROUP"
)

// Level says which queue an event type is scheduled on.
type Level int

const (
	LevelUnknown Level = iota
	// LevelObject events touch a single object and are serialized per object.
	LevelObject
	// LevelAccessGroup events touch a whole access group and exclude every
	// object event in that group while they run.
	LevelAccessGroup
)

func (l Level) String() string {
	switch l {
	case LevelObject:
		return "object"
	case LevelAccessGroup:
		return "access_group"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// Level returns the scheduling level of the event type, or LevelUnknown for
// a value outside the enumeration.
func (t EventType) Level() Level {
	switch t {
	case EventNewVersion,
		EventNewAllVersions,
		EventDeleted,
		EventDeleteAllVersions,
		EventUndeleteAllVersions,
		EventRenameAllVersions,
		EventPublishAllVersions,
		EventUnpublishAllVersions:
		return LevelObject
	case EventShared,
		EventUnshared,
		EventPublishAccessGroup,
		EventUnpublishAccessGroup,
		EventDeleteAccessGroup,
		EventCopyAccessGroup:
		return LevelAccessGroup
	default:
		return LevelUnknown
	}
}

func (t EventType) IsObjectLevel() bool { return t.Level() == LevelObject }

func (t EventType) IsAccessGroupLevel() bool { return t.Level() == LevelAccessGroup }

func (t EventType) String() string { return string(t) }

// AllEventTypes lists every known event type.
func AllEventTypes() []EventType {
	return []EventType{
		EventNewVersion,
		EventNewAllVersions,
		EventDeleted,
		EventDeleteAllVersions,
		EventUndeleteAllVersions,
		EventRenameAllVersions,
		EventPublishAllVersions,
		EventUnpublishAllVersions,
		EventShared,
		EventUnshared,
		EventPublishAccessGroup,
		EventUnpublishAccessGroup,
		EventDeleteAccessGroup,
		EventCopyAccessGroup,
	}
}

// ParseEventType converts a stored or user supplied name into an EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(s)
	if t.Level() == LevelUnknown {
		return "", indexerr.InvalidArgument("unknown event type %q", s)
	}
	return t, nil
}
