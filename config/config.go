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

package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cardinalhq/indexrunner/internal/coordinator"
	"github.com/cardinalhq/indexrunner/internal/retrier"
	"github.com/cardinalhq/indexrunner/internal/worker"
)

// Config aggregates configuration for the application.
// Each field is owned by its respective package.
type Config struct {
	Coordinator coordinator.Config `mapstructure:"coordinator"`
	Worker      worker.Config      `mapstructure:"worker"`
	Retry       RetryConfig        `mapstructure:"retry"`
}

// RetryConfig configures the retrier wrapped around every storage and
// indexer call.
type RetryConfig struct {
	Count        int             `mapstructure:"count"`
	Delay        time.Duration   `mapstructure:"delay"`
	FatalBackoff []time.Duration `mapstructure:"fatal_backoff"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Count: 5,
		Delay: time.Second,
		FatalBackoff: []time.Duration{
			time.Second,
			2 * time.Second,
			5 * time.Second,
			10 * time.Second,
			30 * time.Second,
			time.Minute,
		},
	}
}

// NewRetrier builds a retrier that logs through slog.
func (r RetryConfig) NewRetrier() (*retrier.Retrier, error) {
	return retrier.New(r.Count, r.Delay, r.FatalBackoff, retrier.SlogRetryLogger{})
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "INDEXRUNNER" and the dot character
// in keys is replaced by an underscore. For example, "worker.concurrency"
// becomes "INDEXRUNNER_WORKER_CONCURRENCY". List values from the
// environment are comma separated.
func Load() (*Config, error) {
	cfg := &Config{
		Coordinator: coordinator.DefaultConfig(),
		Worker:      worker.DefaultConfig(),
		Retry:       DefaultRetryConfig(),
	}

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("INDEXRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if c := v.GetString("worker.worker_codes"); c != "" {
		cfg.Worker.WorkerCodes = strings.Split(c, ",")
	}
	if b := v.GetString("retry.fatal_backoff"); b != "" {
		backoff, err := parseDurations(b)
		if err != nil {
			return nil, fmt.Errorf("retry.fatal_backoff: %w", err)
		}
		cfg.Retry.FatalBackoff = backoff
	}
	return cfg, nil
}

func parseDurations(s string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
