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

// Package coordinator runs the single loop that decides which stored
// status events may be handed to workers. It owns the EventQueue, marks
// events READY in storage when the queue allows them to run, and removes
// them again once a worker has recorded a final state.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jellydator/ttlcache/v3"

	"github.com/cardinalhq/indexrunner/internal/eventqueue"
	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/indexerr"
	"github.com/cardinalhq/indexrunner/internal/logctx"
	"github.com/cardinalhq/indexrunner/internal/retrier"
	"github.com/cardinalhq/indexrunner/internal/statusstore"
)

var stateUnprocessed = events.StateUnprocessed

type Coordinator struct {
	cfg     Config
	store   statusstore.StatusEventStorage
	retrier *retrier.Retrier
	updater string

	queue     *eventqueue.EventQueue
	completed *ttlcache.Cache[events.StatusEventID, struct{}]
	queueSize atomic.Int64

	now     func() time.Time
	onReady func()
}

type Option func(*Coordinator)

// WithReadyHook sets a function called once the queue has been restored
// from storage and the loop is about to start.
func WithReadyHook(fn func()) Option {
	return func(c *Coordinator) { c.onReady = fn }
}

// WithClock replaces time.Now for stuck event detection.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New returns a coordinator. updater identifies this process in the
// updater column of events it moves.
func New(cfg Config, store statusstore.StatusEventStorage, r *retrier.Retrier, updater string, opts ...Option) (*Coordinator, error) {
	var errs *multierror.Error
	if store == nil {
		errs = multierror.Append(errs, errors.New("storage is required"))
	}
	if r == nil {
		errs = multierror.Append(errs, errors.New("retrier is required"))
	}
	if cfg.PollInterval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval))
	}
	if cfg.PullLimit < 1 {
		errs = multierror.Append(errs, fmt.Errorf("pull limit must be at least 1, got %d", cfg.PullLimit))
	}
	if cfg.MaxQueueSize < 1 {
		errs = multierror.Append(errs, fmt.Errorf("max queue size must be at least 1, got %d", cfg.MaxQueueSize))
	}
	if cfg.StuckThreshold <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("stuck threshold must be positive, got %s", cfg.StuckThreshold))
	}
	if cfg.CompletedTTL <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("completed ttl must be positive, got %s", cfg.CompletedTTL))
	}
	if errs.ErrorOrNil() != nil {
		return nil, fmt.Errorf("%w: %w", indexerr.ErrInvalidArgument, errs)
	}

	queue, err := eventqueue.NewEventQueue()
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:     cfg,
		store:   store,
		retrier: r,
		updater: updater,
		queue:   queue,
		completed: ttlcache.New(
			ttlcache.WithTTL[events.StatusEventID, struct{}](cfg.CompletedTTL),
			ttlcache.WithDisableTouchOnHit[events.StatusEventID, struct{}](),
		),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// QueueSize is the number of events the queue held at the end of the last
// cycle. It is safe to call from any goroutine.
func (c *Coordinator) QueueSize() int64 {
	return c.queueSize.Load()
}

// Run restores the queue and then cycles every PollInterval until ctx is
// done. It returns nil on cancellation and the error when storage stays
// unavailable past the retrier's fatal backoff.
func (c *Coordinator) Run(ctx context.Context) error {
	ll := logctx.FromContext(ctx).With(slog.String("component", "coordinator"))
	ctx = logctx.WithLogger(ctx, ll)

	registerQueueSizeGauge(c)

	if err := c.restore(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("restoring event queue: %w", err)
	}
	ll.Info("Coordinator started",
		slog.Int64("restored", c.QueueSize()),
		slog.Duration("pollInterval", c.cfg.PollInterval))
	if c.onReady != nil {
		c.onReady()
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if indexerr.IsFatal(err) {
				ll.Error("Event storage unavailable, stopping coordinator", slog.Any("error", err))
				return err
			}
			ll.Error("Coordinator cycle failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			ll.Info("Coordinator stopping", slog.Int64("queueSize", c.QueueSize()))
			return nil
		case <-ticker.C:
		}
	}
}

// restore puts events left READY or PROC by a previous run back into the
// queue so their objects and access groups stay blocked.
func (c *Coordinator) restore(ctx context.Context) error {
	ll := logctx.FromContext(ctx)
	for _, state := range []events.ProcessingState{events.StateReady, events.StateProcessing} {
		inflight, err := retrier.Do(ctx, c.retrier, nil, func() ([]events.StoredStatusEvent, error) {
			return c.store.GetByState(ctx, state, statusstore.MaxReturn)
		})
		if err != nil {
			return err
		}
		for _, e := range inflight {
			if err := c.queue.Restore(e); err != nil {
				ll.Warn("Cannot restore in-flight event, leaving it untracked",
					slog.String("eventID", e.ID.String()),
					slog.String("state", e.State.String()),
					slog.Any("error", err))
			}
		}
	}
	c.queueSize.Store(int64(c.queue.Size()))
	return nil
}

func (c *Coordinator) cycle(ctx context.Context) error {
	c.completed.DeleteExpired()
	defer func() { c.queueSize.Store(int64(c.queue.Size())) }()

	if err := c.checkProcessing(ctx); err != nil {
		return err
	}
	if err := c.load(ctx); err != nil {
		return err
	}
	return c.dispatch(ctx)
}

// load reads the oldest UNPROC events and adds those the queue does not
// already hold, up to MaxQueueSize.
func (c *Coordinator) load(ctx context.Context) error {
	if c.queue.Size() >= c.cfg.MaxQueueSize {
		return nil
	}
	pending, err := retrier.Do(ctx, c.retrier, nil, func() ([]events.StoredStatusEvent, error) {
		return c.store.GetByState(ctx, events.StateUnprocessed, c.cfg.PullLimit)
	})
	if err != nil {
		return err
	}

	loaded := 0
	for _, e := range pending {
		if c.queue.Size() >= c.cfg.MaxQueueSize {
			break
		}
		if c.completed.Has(e.ID) {
			continue
		}
		before := c.queue.Size()
		if err := c.queue.Load(e); err != nil {
			if errors.Is(err, indexerr.ErrInvalidArgument) {
				if err := c.reject(ctx, e, err); err != nil {
					return err
				}
				continue
			}
			return err
		}
		if c.queue.Size() > before {
			loaded++
		}
	}
	if loaded > 0 {
		eventsLoaded.Add(ctx, int64(loaded))
		logctx.FromContext(ctx).Debug("Loaded events", slog.Int("count", loaded), slog.Int("queueSize", c.queue.Size()))
	}
	return nil
}

// reject marks an event the queue cannot hold as FAIL so it is not read
// again on every cycle.
func (c *Coordinator) reject(ctx context.Context, e events.StoredStatusEvent, cause error) error {
	logctx.FromContext(ctx).Error("Rejecting event that cannot be queued",
		slog.String("eventID", e.ID.String()),
		slog.String("eventType", e.Event.Type.String()),
		slog.Any("error", cause))
	_, err := retrier.Do(ctx, c.retrier, &e, func() (bool, error) {
		return c.store.SetProcessingState(ctx, e.ID, &stateUnprocessed, events.StateFailed, c.updater)
	})
	return err
}

// dispatch marks every event the queue allows to run as READY in storage,
// where workers can claim it, and then moves it to processing in the queue.
func (c *Coordinator) dispatch(ctx context.Context) error {
	ll := logctx.FromContext(ctx)

	c.queue.MoveToReady()
	for _, e := range c.queue.GetReadyForProcessing() {
		moved, err := retrier.Do(ctx, c.retrier, &e, func() (bool, error) {
			return c.store.SetProcessingState(ctx, e.ID, &stateUnprocessed, events.StateReady, c.updater)
		})
		if err != nil {
			return err
		}
		if !moved {
			ll.Debug("Event was no longer unprocessed when readied", slog.String("eventID", e.ID.String()))
		}
	}

	readied := c.queue.MoveReadyToProcessing()
	if len(readied) > 0 {
		eventsReadied.Add(ctx, int64(len(readied)))
		ll.Debug("Readied events", slog.Int("count", len(readied)))
	}
	return nil
}

// checkProcessing looks up every event the queue has handed out and
// removes those that have reached a final state.
func (c *Coordinator) checkProcessing(ctx context.Context) error {
	ll := logctx.FromContext(ctx)

	for _, e := range c.queue.GetProcessing() {
		current, err := retrier.Do(ctx, c.retrier, &e, func() (*events.StoredStatusEvent, error) {
			return c.store.Get(ctx, e.ID)
		})
		if err != nil {
			return err
		}

		switch {
		case current == nil || current.State.IsTerminal():
			if err := c.queue.SetProcessingComplete(e); err != nil {
				return err
			}
			c.completed.Set(e.ID, struct{}{}, ttlcache.DefaultTTL)
			eventsCompleted.Add(ctx, 1)
			if current == nil {
				ll.Warn("In-flight event disappeared from storage", slog.String("eventID", e.ID.String()))
			} else {
				ll.Debug("Event completed",
					slog.String("eventID", e.ID.String()),
					slog.String("state", current.State.String()))
			}

		case current.State == events.StateUnprocessed:
			// Reset by an operator while the queue still holds its slot.
			// Handing it out again keeps later events for the object blocked.
			if _, err := retrier.Do(ctx, c.retrier, &e, func() (bool, error) {
				return c.store.SetProcessingState(ctx, e.ID, &stateUnprocessed, events.StateReady, c.updater)
			}); err != nil {
				return err
			}
			ll.Info("In-flight event was reset to unprocessed, readying it again", slog.String("eventID", e.ID.String()))

		case current.State == events.StateProcessing && current.UpdateTime != nil:
			if age := c.now().Sub(*current.UpdateTime); age > c.cfg.StuckThreshold {
				eventsStuck.Add(ctx, 1)
				updater := ""
				if current.UpdatedBy != nil {
					updater = *current.UpdatedBy
				}
				ll.Warn("Event has been processing longer than the stuck threshold",
					slog.String("eventID", e.ID.String()),
					slog.String("updater", updater),
					slog.Duration("age", age))
			}
		}
	}
	return nil
}
