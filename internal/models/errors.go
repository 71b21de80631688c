package models

import (
	"errors"
	"fmt"
)

// ErrorType identifies the category of a recoverable simulation event or a
// run-level failure, recorded alongside results for later inspection.
type ErrorType string

const (
	// Pre-run configuration
	ErrTypeConfig ErrorType = "config_error"

	// Per-tick, recoverable: an arrival targeted a full entry lane and the
	// vehicle was dropped.
	ErrTypeCapacityExceeded ErrorType = "capacity_exceeded"

	// Agent-local, recoverable: a learning update produced a non-finite
	// policy state and was discarded.
	ErrTypeLearningInstability ErrorType = "learning_instability"

	// Expected: the run was cancelled before its tick budget and finalized
	// with partial data.
	ErrTypeEarlyTermination ErrorType = "early_termination"

	// Catch-all for run failures outside the taxonomy above.
	ErrTypeInternal ErrorType = "internal_error"
)

// ErrCapacityExceeded is returned when a vehicle is enqueued onto a full
// lane. Callers drop the vehicle and continue; it never aborts a run.
var ErrCapacityExceeded = errors.New("lane capacity exceeded")

// ConfigError is a fatal pre-run configuration problem: malformed topology,
// unknown controller type, invalid timing constants. A ConfigError aborts
// before any simulation activity.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %s", e.Detail)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Detail)
}

// IsConfigError reports whether err (or anything it wraps) is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// RunError captures a run-level failure in result records.
type RunError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
}
