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

	"github.com/google/uuid"
)

type Querier interface {
	StatusEventInsert(ctx context.Context, arg StatusEventInsertParams) (uuid.UUID, error)
	StatusEventGet(ctx context.Context, id uuid.UUID) (StatusEvent, error)
	StatusEventsByState(ctx context.Context, arg StatusEventsByStateParams) ([]StatusEvent, error)
	StatusEventsByAccessGroup(ctx context.Context, arg StatusEventsByAccessGroupParams) ([]StatusEvent, error)
	StatusEventSetState(ctx context.Context, arg StatusEventSetStateParams) (int64, error)
	StatusEventClaim(ctx context.Context, arg StatusEventClaimParams) (StatusEvent, error)
	StatusEventCountByState(ctx context.Context) ([]StatusEventStateCount, error)
}

var _ Querier = (*Queries)(nil)

type StatusEventBatchInserter interface {
	StatusEventInsertBatch(ctx context.Context, arg []StatusEventInsertParams) ([]uuid.UUID, error)
}

type StoreFull interface {
	Querier
	StatusEventBatchInserter
	Close()
}

var _ StoreFull = (*Store)(nil)
