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

// Package heartbeat periodically calls a function while a long running task
// is in progress, such as refreshing the update time of an event a worker
// is holding.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Func is called once per interval. Errors are logged and the next beat
// is attempted as usual.
type Func func(ctx context.Context) error

type Heartbeater struct {
	fn       Func
	ll       *slog.Logger
	interval time.Duration
}

// New returns a heartbeater. A non-positive interval disables it.
func New(fn Func, interval time.Duration, logger *slog.Logger) *Heartbeater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeater{
		fn:       fn,
		ll:       logger.With(slog.String("component", "heartbeater")),
		interval: interval,
	}
}

// Start beats every interval until the returned stop function is called
// or ctx is done. The first beat happens one interval after Start. Once
// stop returns, fn is not running and will not be called again.
func (h *Heartbeater) Start(ctx context.Context) (stop func()) {
	if h.interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.run(ctx)
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

func (h *Heartbeater) run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.fn(ctx); err != nil && ctx.Err() == nil {
				h.ll.Warn("Heartbeat failed (continuing)", slog.Any("error", err))
			}
		}
	}
}
