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
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/indexrunner/internal/indexerr"
)

// ObjectType names the type of a storage object, optionally versioned.
type ObjectType struct {
	Name    string
	Version *int32
}

// StatusEvent describes a single change in the storage service. Values are
// built with NewStatusEvent and never modified afterwards; optional fields
// are nil when absent.
type StatusEvent struct {
	Timestamp     time.Time
	Type          EventType
	StorageCode   string
	AccessGroupID *int64
	ObjectID      *string
	Version       *int32
	ObjectType    *ObjectType
	IsPublic      *bool
	NewName       *string
}

// EventOption sets an optional field while building a StatusEvent.
type EventOption func(*StatusEvent)

func WithAccessGroupID(id int64) EventOption {
	return func(e *StatusEvent) { e.AccessGroupID = &id }
}

func WithObjectID(id string) EventOption {
	return func(e *StatusEvent) { e.ObjectID = &id }
}

func WithVersion(v int32) EventOption {
	return func(e *StatusEvent) { e.Version = &v }
}

// WithObjectType sets an unversioned object type.
func WithObjectType(name string) EventOption {
	return func(e *StatusEvent) { e.ObjectType = &ObjectType{Name: name} }
}

func WithVersionedObjectType(name string, version int32) EventOption {
	return func(e *StatusEvent) { e.ObjectType = &ObjectType{Name: name, Version: &version} }
}

func WithPublic(public bool) EventOption {
	return func(e *StatusEvent) { e.IsPublic = &public }
}

func WithNewName(name string) EventOption {
	return func(e *StatusEvent) { e.NewName = &name }
}

// NewStatusEvent validates and builds an event. The timestamp is stored in
// UTC at microsecond precision, which is what the event store keeps.
func NewStatusEvent(storageCode string, timestamp time.Time, eventType EventType, opts ...EventOption) (StatusEvent, error) {
	e := StatusEvent{
		Timestamp:   timestamp.UTC().Truncate(time.Microsecond),
		Type:        eventType,
		StorageCode: strings.TrimSpace(storageCode),
	}
	for _, opt := range opts {
		opt(&e)
	}
	if err := e.Validate(); err != nil {
		return StatusEvent{}, err
	}
	return e, nil
}

// Validate reports every problem with e. Events built by NewStatusEvent are
// always valid.
func (e StatusEvent) Validate() error {
	var errs *multierror.Error
	if e.StorageCode == "" {
		errs = multierror.Append(errs, fmt.Errorf("storage code is required"))
	}
	if e.Timestamp.IsZero() {
		errs = multierror.Append(errs, fmt.Errorf("timestamp is required"))
	}
	switch e.Type.Level() {
	case LevelObject:
		if e.ObjectID == nil || strings.TrimSpace(*e.ObjectID) == "" {
			errs = multierror.Append(errs, fmt.Errorf("%s events require an object id", e.Type))
		}
	case LevelAccessGroup:
		if e.ObjectID != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s events must not carry an object id", e.Type))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown event type %q", e.Type))
	}
	if e.Type == EventNewVersion && e.Version == nil {
		errs = multierror.Append(errs, fmt.Errorf("%s events require a version", e.Type))
	}
	if e.Type == EventRenameAllVersions && (e.NewName == nil || strings.TrimSpace(*e.NewName) == "") {
		errs = multierror.Append(errs, fmt.Errorf("%s events require a new name", e.Type))
	}
	if e.AccessGroupID != nil && *e.AccessGroupID < 1 {
		errs = multierror.Append(errs, fmt.Errorf("access group id must be positive, got %d", *e.AccessGroupID))
	}
	if e.Version != nil && *e.Version < 1 {
		errs = multierror.Append(errs, fmt.Errorf("version must be positive, got %d", *e.Version))
	}
	if e.ObjectType != nil && strings.TrimSpace(e.ObjectType.Name) == "" {
		errs = multierror.Append(errs, fmt.Errorf("object type name must not be empty"))
	}
	if errs.ErrorOrNil() != nil {
		return fmt.Errorf("%w: %w", indexerr.ErrInvalidArgument, errs)
	}
	return nil
}

// Equal reports value equality, comparing optional fields by content.
func (e StatusEvent) Equal(o StatusEvent) bool {
	return e.Timestamp.Equal(o.Timestamp) &&
		e.Type == o.Type &&
		e.StorageCode == o.StorageCode &&
		ptrEqual(e.AccessGroupID, o.AccessGroupID) &&
		ptrEqual(e.ObjectID, o.ObjectID) &&
		ptrEqual(e.Version, o.Version) &&
		objectTypeEqual(e.ObjectType, o.ObjectType) &&
		ptrEqual(e.IsPublic, o.IsPublic) &&
		ptrEqual(e.NewName, o.NewName)
}

func (e StatusEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "StatusEvent{%s %s %s", e.Type, e.StorageCode, e.Timestamp.Format(time.RFC3339Nano))
	if e.AccessGroupID != nil {
		fmt.Fprintf(&b, " ag=%d", *e.AccessGroupID)
	}
	if e.ObjectID != nil {
		fmt.Fprintf(&b, " obj=%s", *e.ObjectID)
	}
	if e.Version != nil {
		fmt.Fprintf(&b, " ver=%d", *e.Version)
	}
	b.WriteString("}")
	return b.String()
}

func ptrEqual[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func objectTypeEqual(a, b *ObjectType) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Name == b.Name && ptrEqual(a.Version, b.Version)
}
