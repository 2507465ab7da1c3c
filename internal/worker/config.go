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
	"time"

	"github.com/cardinalhq/indexrunner/internal/events"
)

type Config struct {
	// Concurrency is the number of events processed at once.
	Concurrency int `mapstructure:"concurrency"`
	// PollInterval is how long an idle worker waits before looking for
	// ready events again.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// WorkerCodes selects which events this pool may claim.
	WorkerCodes []string `mapstructure:"worker_codes"`
	// HeartbeatInterval is how often the update time of an event being
	// indexed is refreshed. Zero disables it.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// Indexer names the built in indexer to run, see IndexerByName.
	Indexer string `mapstructure:"indexer"`
}

func DefaultConfig() Config {
	return Config{
		Concurrency:       4,
		PollInterval:      time.Second,
		WorkerCodes:       []string{events.DefaultWorkerCode},
		HeartbeatInterval: time.Minute,
		Indexer:           "log",
	}
}
