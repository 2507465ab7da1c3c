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

// Package worker claims READY status events, hands them to an Indexer and
// records the outcome.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/indexrunner/internal/events"
	"github.com/cardinalhq/indexrunner/internal/heartbeat"
	"github.com/cardinalhq/indexrunner/internal/indexerr"
	"github.com/cardinalhq/indexrunner/internal/logctx"
	"github.com/cardinalhq/indexrunner/internal/retrier"
	"github.com/cardinalhq/indexrunner/internal/statusstore"
)

var stateProcessing = events.StateProcessing

// releaseTimeout bounds recording an outcome or handing an event back after
// the worker's context has already ended.
const releaseTimeout = 10 * time.Second

type Pool struct {
	cfg     Config
	store   statusstore.StatusEventStorage
	retrier *retrier.Retrier
	indexer Indexer
	updater string
}

// New returns a worker pool. updater identifies this process in the
// updater column of the events it claims.
func New(cfg Config, store statusstore.StatusEventStorage, r *retrier.Retrier, indexer Indexer, updater string) (*Pool, error) {
	var errs *multierror.Error
	if store == nil {
		errs = multierror.Append(errs, errors.New("storage is required"))
	}
	if r == nil {
		errs = multierror.Append(errs, errors.New("retrier is required"))
	}
	if indexer == nil {
		errs = multierror.Append(errs, errors.New("indexer is required"))
	}
	if updater == "" {
		errs = multierror.Append(errs, errors.New("updater is required"))
	}
	if cfg.Concurrency < 1 {
		errs = multierror.Append(errs, fmt.Errorf("concurrency must be at least 1, got %d", cfg.Concurrency))
	}
	if cfg.PollInterval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("poll interval must be positive, got %s", cfg.PollInterval))
	}
	if errs.ErrorOrNil() != nil {
		return nil, fmt.Errorf("%w: %w", indexerr.ErrInvalidArgument, errs)
	}

	cfg.WorkerCodes = events.NormalizeWorkerCodes(cfg.WorkerCodes)
	return &Pool{
		cfg:     cfg,
		store:   store,
		retrier: r,
		indexer: indexer,
		updater: updater,
	}, nil
}

// Run starts Concurrency workers and waits for them. It returns nil once ctx
// is done, or the first FatalError any worker hit, which also stops the
// others.
func (p *Pool) Run(ctx context.Context) error {
	ll := logctx.FromContext(ctx).With(slog.String("component", "worker"))
	ll.Info("Starting workers",
		slog.Int("concurrency", p.cfg.Concurrency),
		slog.Any("workerCodes", p.cfg.WorkerCodes))

	g, gctx := errgroup.WithContext(logctx.WithLogger(ctx, ll))
	for i := range p.cfg.Concurrency {
		g.Go(func() error {
			return p.loop(gctx, i)
		})
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context, n int) error {
	ctx, ll := logctx.With(ctx, slog.Int("worker", n))

	for {
		if ctx.Err() != nil {
			return nil
		}

		found, err := p.ProcessNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if indexerr.IsFatal(err) {
				ll.Error("Stopping worker", slog.Any("error", err))
				return err
			}
			ll.Error("Failed to process event", slog.Any("error", err))
		}
		if found {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// ProcessNext claims the oldest ready event matching the pool's worker
// codes and processes it. It reports false when there was nothing to claim.
func (p *Pool) ProcessNext(ctx context.Context) (bool, error) {
	start := time.Now()
	claimed, err := retrier.Do(ctx, p.retrier, nil, func() (*events.StoredStatusEvent, error) {
		return p.store.SetAndGetProcessingState(ctx, events.StateReady, p.cfg.WorkerCodes, events.StateProcessing, p.updater)
	})
	claimDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return false, fmt.Errorf("claiming ready event: %w", err)
	}
	if claimed == nil {
		return false, nil
	}
	return true, p.process(ctx, *claimed)
}

func (p *Pool) process(ctx context.Context, e events.StoredStatusEvent) error {
	attrs := []attribute.KeyValue{
		attribute.String("eventID", e.ID.String()),
		attribute.String("eventType", e.Event.Type.String()),
		attribute.String("storageCode", e.Event.StorageCode),
	}
	if e.Event.AccessGroupID != nil {
		attrs = append(attrs, attribute.Int64("accessGroupID", *e.Event.AccessGroupID))
	}
	ctx, span := tracer.Start(ctx, "indexrunner.worker.process_event", trace.WithAttributes(attrs...))
	defer span.End()

	ctx, ll := logctx.With(ctx,
		slog.String("eventID", e.ID.String()),
		slog.String("eventType", e.Event.Type.String()))

	stopHeartbeat := heartbeat.New(func(ctx context.Context) error {
		_, err := p.store.SetProcessingState(ctx, e.ID, &stateProcessing, events.StateProcessing, p.updater)
		return err
	}, p.cfg.HeartbeatInterval, ll).Start(ctx)

	start := time.Now()
	indexed, err := retrier.Do(ctx, p.retrier, &e, func() (bool, error) {
		return p.indexer.Index(ctx, e)
	})
	stopHeartbeat()
	processingDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("eventType", e.Event.Type.String()),
	))

	var final events.ProcessingState
	switch {
	case err == nil && indexed:
		final = events.StateIndexed
	case err == nil:
		final = events.StateUnindexed
	case ctx.Err() != nil:
		span.RecordError(err)
		p.release(e, ll)
		return ctx.Err()
	case indexerr.IsFatal(err):
		span.RecordError(err)
		span.SetStatus(codes.Error, "index backend unavailable")
		p.release(e, ll)
		return fmt.Errorf("indexing event %s: %w", e.ID, err)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "indexing failed")
		ll.Error("Indexing failed, marking event failed", slog.Any("error", err))
		final = events.StateFailed
	}

	// Recorded even if shutdown began after indexing finished.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	recorded, err := retrier.Do(recordCtx, p.retrier, &e, func() (bool, error) {
		return p.store.SetProcessingState(recordCtx, e.ID, &stateProcessing, final, p.updater)
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("recording state %s for event %s: %w", final, e.ID, err)
	}
	if !recorded {
		ll.Warn("Event left the processing state before its outcome was recorded",
			slog.String("outcome", final.String()))
	}

	span.SetAttributes(attribute.String("state", final.String()))
	eventsProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("eventType", e.Event.Type.String()),
		attribute.String("state", final.String()),
	))
	ll.Debug("Processed event", slog.String("state", final.String()), slog.Duration("elapsed", time.Since(start)))
	return nil
}

// release hands a claimed event back as READY so another worker can pick
// it up. It runs on a fresh context because the worker's may be done.
func (p *Pool) release(e events.StoredStatusEvent, ll *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	ok, err := p.store.SetProcessingState(ctx, e.ID, &stateProcessing, events.StateReady, p.updater)
	switch {
	case err != nil:
		ll.Error("Failed to release event, it will stay in processing", slog.Any("error", err))
	case !ok:
		ll.Warn("Event left the processing state before it could be released")
	default:
		ll.Info("Released event back to ready")
	}
}
