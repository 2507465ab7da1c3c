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
	"context"
	"fmt"

	"github.com/cardinalhq/indexrunner/eventdb"
	"github.com/cardinalhq/indexrunner/internal/dbopen"
	"github.com/cardinalhq/indexrunner/internal/statusstore"
)

// openStorage connects to eventdb. The returned function closes the pool.
func openStorage(ctx context.Context, opts ...dbopen.Options) (*statusstore.PostgresStorage, func(), error) {
	store, err := eventdb.EventDBStore(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open eventdb store: %w", err)
	}
	return statusstore.NewPostgresStorage(store), store.Close, nil
}
