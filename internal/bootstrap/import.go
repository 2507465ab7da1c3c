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

// Package bootstrap reads batches of status events from YAML files and
// stores them, for seeding a store by hand or from tests.
package bootstrap

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/indexerr"
	"github.com/cardinalhq/indexrunner/internal/logctx"
	"github.com/cardinalhq/indexrunner/internal/statusstore"
)

// LoadFile reads a file. A filename of the form "env:NAME" reads the
// contents of the environment variable NAME instead.
func LoadFile(filename string) (*File, error) {
	if envVar, ok := strings.CutPrefix(filename, "env:"); ok {
		contents := os.Getenv(envVar)
		if contents == "" {
			return nil, fmt.Errorf("environment variable %s is not set", envVar)
		}
		return Parse([]byte(contents))
	}

	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read events from file %s: %w", filename, err)
	}
	return Parse(contents)
}

// Parse decodes a file, rejecting unknown fields and unsupported versions.
func Parse(contents []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}
	if f.Version != SupportedVersion {
		return nil, fmt.Errorf("unsupported events file version %d, expected %d", f.Version, SupportedVersion)
	}
	return &f, nil
}

// StatusEvents validates every event in the file and returns them with the
// state they should be stored in. All problems are reported together.
func (f *File) StatusEvents() ([]events.StatusEvent, events.ProcessingState, error) {
	state := events.StateUnprocessed
	if f.State != "" {
		s, err := events.ParseProcessingState(f.State)
		if err != nil {
			return nil, "", err
		}
		state = s
	}

	var errs *multierror.Error
	out := make([]events.StatusEvent, 0, len(f.Events))
	for i, e := range f.Events {
		se, err := e.ToStatusEvent()
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("event %d: %w", i, err))
			continue
		}
		out = append(out, se)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, "", err
	}
	return out, state, nil
}

// ToStatusEvent validates e and converts it.
func (e Event) ToStatusEvent() (events.StatusEvent, error) {
	et, err := events.ParseEventType(e.Type)
	if err != nil {
		return events.StatusEvent{}, err
	}

	var opts []events.EventOption
	if e.AccessGroupID != nil {
		opts = append(opts, events.WithAccessGroupID(*e.AccessGroupID))
	}
	if e.ObjectID != nil {
		opts = append(opts, events.WithObjectID(*e.ObjectID))
	}
	if e.Version != nil {
		opts = append(opts, events.WithVersion(*e.Version))
	}
	switch {
	case e.ObjectType != nil && e.ObjectTypeVersion != nil:
		opts = append(opts, events.WithVersionedObjectType(*e.ObjectType, *e.ObjectTypeVersion))
	case e.ObjectType != nil:
		opts = append(opts, events.WithObjectType(*e.ObjectType))
	case e.ObjectTypeVersion != nil:
		return events.StatusEvent{}, indexerr.InvalidArgument("object_type_version requires object_type")
	}
	if e.IsPublic != nil {
		opts = append(opts, events.WithPublic(*e.IsPublic))
	}
	if e.NewName != nil {
		opts = append(opts, events.WithNewName(*e.NewName))
	}
	return events.NewStatusEvent(e.StorageCode, e.Timestamp, et, opts...)
}

// ImportFromYAML stores every event in the file in one batch.
func ImportFromYAML(ctx context.Context, filename string, store statusstore.StatusEventStorage) ([]events.StoredStatusEvent, error) {
	ll := logctx.FromContext(ctx)

	f, err := LoadFile(filename)
	if err != nil {
		return nil, err
	}
	evs, state, err := f.StatusEvents()
	if err != nil {
		return nil, fmt.Errorf("invalid events in %s: %w", filename, err)
	}

	stored, err := store.StoreBatch(ctx, evs, state, f.WorkerCodes)
	if err != nil {
		return nil, fmt.Errorf("failed to store events: %w", err)
	}

	ll.Info("Imported events",
		slog.String("file", filename),
		slog.Int("count", len(stored)),
		slog.String("state", state.String()))
	return stored, nil
}
