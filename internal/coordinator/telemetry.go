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

package coordinator

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	eventsLoaded    metric.Int64Counter
	eventsReadied   metric.Int64Counter
	eventsCompleted metric.Int64Counter
	eventsStuck     metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/indexrunner/internal/coordinator")

	var err error

	eventsLoaded, err = meter.Int64Counter(
		"indexrunner.coordinator.events_loaded",
		metric.WithDescription("Number of unprocessed events loaded into the queue"),
	)
	if err != nil {
		log.Fatalf("failed to create coordinator.events_loaded counter: %v", err)
	}

	eventsReadied, err = meter.Int64Counter(
		"indexrunner.coordinator.events_readied",
		metric.WithDescription("Number of events handed to workers"),
	)
	if err != nil {
		log.Fatalf("failed to create coordinator.events_readied counter: %v", err)
	}

	eventsCompleted, err = meter.Int64Counter(
		"indexrunner.coordinator.events_completed",
		metric.WithDescription("Number of events removed from the queue after reaching a final state"),
	)
	if err != nil {
		log.Fatalf("failed to create coordinator.events_completed counter: %v", err)
	}

	eventsStuck, err = meter.Int64Counter(
		"indexrunner.coordinator.events_stuck",
		metric.WithDescription("Number of times an in-flight event was seen past the stuck threshold"),
	)
	if err != nil {
		log.Fatalf("failed to create coordinator.events_stuck counter: %v", err)
	}
}

func registerQueueSizeGauge(c *Coordinator) {
	meter := otel.Meter("github.com/cardinalhq/indexrunner/internal/coordinator")
	_, err := meter.Int64ObservableGauge(
		"indexrunner.coordinator.queue_size",
		metric.WithDescription("Number of events held by the coordinator queue"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(c.QueueSize())
			return nil
		}),
	)
	if err != nil {
		log.Fatalf("failed to create coordinator.queue_size gauge: %v", err)
	}
}
