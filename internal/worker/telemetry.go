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
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("github.com/cardinalhq/indexrunner/internal/worker")

	eventsProcessed    metric.Int64Counter
	processingDuration metric.Float64Histogram
	claimDuration      metric.Float64Histogram
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/indexrunner/internal/worker")

	var err error

	eventsProcessed, err = meter.Int64Counter(
		"indexrunner.worker.events_processed",
		metric.WithDescription("Number of events processed, by final state"),
	)
	if err != nil {
		log.Fatalf("failed to create worker.events_processed counter: %v", err)
	}

	processingDuration, err = meter.Float64Histogram(
		"indexrunner.worker.processing.duration",
		metric.WithUnit("s"),
		metric.WithDescription("The duration in seconds to index one event, retries included"),
	)
	if err != nil {
		log.Fatalf("failed to create worker.processing.duration histogram: %v", err)
	}

	claimDuration, err = meter.Float64Histogram(
		"indexrunner.worker.claim.duration",
		metric.WithUnit("s"),
		metric.WithDescription("The duration in seconds of a request to claim a ready event"),
	)
	if err != nil {
		log.Fatalf("failed to create worker.claim.duration histogram: %v", err)
	}
}
