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

// Package indexerr holds the error taxonomy shared by the queue, the
// status event store, the retrier and the processes that drive them.
package indexerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks caller bugs: bad arguments, wrong processing
	// state passed to a queue operation, mismatched ids. Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoSuchEvent is returned when completing an event that the queue
	// does not hold as processing.
	ErrNoSuchEvent = errors.New("no such event")
)

// InvalidArgument wraps ErrInvalidArgument with a formatted message.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// NoSuchEvent wraps ErrNoSuchEvent with a formatted message.
func NoSuchEvent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNoSuchEvent, fmt.Sprintf(format, args...))
}

// RetriableError is a transient failure. The retrier retries it a bounded
// number of times with a fixed delay.
type RetriableError struct {
	Err error
}

func NewRetriable(err error) *RetriableError {
	return &RetriableError{Err: err}
}

func (e *RetriableError) Error() string {
	return fmt.Sprintf("retriable: %v", e.Err)
}

func (e *RetriableError) Unwrap() error { return e.Err }

// FatalRetriableError is a failure that may clear up (a database or network
// outage) but must become fatal once its backoff schedule is exhausted.
type FatalRetriableError struct {
	Err error
}

func NewFatalRetriable(err error) *FatalRetriableError {
	return &FatalRetriableError{Err: err}
}

func (e *FatalRetriableError) Error() string {
	return fmt.Sprintf("fatal retriable: %v", e.Err)
}

func (e *FatalRetriableError) Unwrap() error { return e.Err }

// RetriesExceededError is returned once ordinary retries are exhausted.
type RetriesExceededError struct {
	Attempts int
	Err      error
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("retries exceeded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExceededError) Unwrap() error { return e.Err }

// FatalError stops the coordinator or worker that receives it.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
