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

// Package retrier retries operations against the status event store. It
// knows two failure kinds: ordinary retriable errors, retried a fixed number
// of times with a fixed delay, and fatal retriable errors, retried on their
// own backoff schedule and turned into a fatal error once it runs out.
package retrier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/indexerr"
	"github.com/cardinalhq/indexrunner/internal/logctx"
)

// MinDelay is the smallest delay or backoff the retrier accepts.
const MinDelay = time.Millisecond

// RetryLogger is told about every retry before the retrier sleeps.
type RetryLogger interface {
	LogRetry(ctx context.Context, retryCount int, event *events.StoredStatusEvent, err error)
}

// SlogRetryLogger logs retries to the logger carried by the context.
type SlogRetryLogger struct{}

func (SlogRetryLogger) LogRetry(ctx context.Context, retryCount int, event *events.StoredStatusEvent, err error) {
	attrs := []any{
		slog.Int("retryCount", retryCount),
		slog.Any("error", err),
	}
	if event != nil {
		attrs = append(attrs,
			slog.String("eventID", event.ID.String()),
			slog.String("eventType", event.Event.Type.String()),
			slog.String("state", event.State.String()),
		)
	}
	logctx.FromContext(ctx).Warn("Retrying operation", attrs...)
}

// Retrier is safe for concurrent use once built.
type Retrier struct {
	retryCount   int
	delay        time.Duration
	fatalBackoff []time.Duration
	logger       RetryLogger
	sleep        func(ctx context.Context, d time.Duration) error
}

// New validates the retry settings. fatalBackoff is copied; an empty
// schedule makes fatal retriable errors fatal on first sight.
func New(retryCount int, delay time.Duration, fatalBackoff []time.Duration, logger RetryLogger) (*Retrier, error) {
	var errs *multierror.Error
	if retryCount < 1 {
		errs = multierror.Append(errs, fmt.Errorf("retry count must be at least 1, got %d", retryCount))
	}
	if delay < MinDelay {
		errs = multierror.Append(errs, fmt.Errorf("retry delay must be at least %s, got %s", MinDelay, delay))
	}
	for i, b := range fatalBackoff {
		if b < MinDelay {
			errs = multierror.Append(errs, fmt.Errorf("fatal backoff %d must be at least %s, got %s", i, MinDelay, b))
		}
	}
	if logger == nil {
		errs = multierror.Append(errs, errors.New("retry logger is required"))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: %w", indexerr.ErrInvalidArgument, err)
	}
	return &Retrier{
		retryCount:   retryCount,
		delay:        delay,
		fatalBackoff: slices.Clone(fatalBackoff),
		logger:       logger,
		sleep:        sleepContext,
	}, nil
}

func (r *Retrier) RetryCount() int { return r.retryCount }

func (r *Retrier) Delay() time.Duration { return r.delay }

// FatalBackoff returns a copy of the fatal backoff schedule.
func (r *Retrier) FatalBackoff() []time.Duration { return slices.Clone(r.fatalBackoff) }

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds, returns an error that is not retriable, or
// runs out of retries. event is only used to correlate log lines and may be
// nil. The retry count is shared between both retriable kinds. A canceled
// context ends the wait between attempts.
func Do[T any](ctx context.Context, r *Retrier, event *events.StoredStatusEvent, fn func() (T, error)) (T, error) {
	var zero T
	retries := 1
	fatalIdx := 0
	for {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		var wait time.Duration
		var retriable *indexerr.RetriableError
		var fatalRetriable *indexerr.FatalRetriableError
		switch {
		case errors.As(err, &retriable):
			if retries > r.retryCount {
				return zero, &indexerr.RetriesExceededError{Attempts: retries, Err: retriable.Err}
			}
			wait = r.delay
		case errors.As(err, &fatalRetriable):
			if fatalIdx >= len(r.fatalBackoff) {
				return zero, &indexerr.FatalError{Err: fatalRetriable.Err}
			}
			wait = r.fatalBackoff[fatalIdx]
			fatalIdx++
		default:
			return zero, err
		}

		r.logger.LogRetry(ctx, retries, event, err)
		retryCounter.Add(ctx, 1)
		if err := r.sleep(ctx, wait); err != nil {
			return zero, err
		}
		retries++
	}
}

// Run is Do for operations without a result.
func (r *Retrier) Run(ctx context.Context, event *events.StoredStatusEvent, fn func() error) error {
	_, err := Do(ctx, r, event, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
