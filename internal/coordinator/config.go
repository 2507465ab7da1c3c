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

import "time"

// Config controls the coordinator loop.
type Config struct {
	// PollInterval is the pause between cycles.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// PullLimit is the most UNPROC events read from storage per cycle.
	PullLimit int `mapstructure:"pull_limit"`
	// MaxQueueSize stops pulling new events while the queue holds this many.
	MaxQueueSize int `mapstructure:"max_queue_size"`
	// StuckThreshold is how long an event may sit in PROC without an
	// update before a warning is logged.
	StuckThreshold time.Duration `mapstructure:"stuck_threshold"`
	// CompletedTTL is how long completed ids are remembered so a stale
	// read cannot load them again.
	CompletedTTL time.Duration `mapstructure:"completed_ttl"`
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   time.Second,
		PullLimit:      1000,
		MaxQueueSize:   10000,
		StuckThreshold: 30 * time.Minute,
		CompletedTTL:   10 * time.Minute,
	}
}
