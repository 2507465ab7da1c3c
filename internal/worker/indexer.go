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

package worker

import (
	"context"
	"log/slog"

	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/logctx"
)

// Indexer applies a status event to the search index. It returns false
// when it deliberately left the event out of the index. Errors wrapped in
// indexerr.RetriableError or indexerr.FatalRetriableError are retried.
type Indexer interface {
	Index(ctx context.Context, event events.StoredStatusEvent) (bool, error)
}

// IndexerFunc adapts a function to an Indexer.
type IndexerFunc func(ctx context.Context, event events.StoredStatusEvent) (bool, error)

func (f IndexerFunc) Index(ctx context.Context, event events.StoredStatusEvent) (bool, error) {
	return f(ctx, event)
}

// NoopIndexer declines every event, which records it as UNINDX.
type NoopIndexer struct{}

func (NoopIndexer) Index(context.Context, events.StoredStatusEvent) (bool, error) {
	return false, nil
}

// LogIndexer logs every event and reports it indexed. It is meant for local
// runs without a search backend.
type LogIndexer struct{}

func (LogIndexer) Index(ctx context.Context, event events.StoredStatusEvent) (bool, error) {
	logctx.FromContext(ctx).Info("Indexing event",
		slog.String("event", event.Event.String()))
	return true, nil
}

// IndexerByName returns one of the built in indexers.
func IndexerByName(name string) (Indexer, bool) {
	switch name {
	case "noop":
		return NoopIndexer{}, true
	case "log":
		return LogIndexer{}, true
	default:
		return nil, false
	}
}
