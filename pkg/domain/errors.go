package domain

import (
	"errors"
	"fmt"
)

// ErrMissingAnchor marks an assignment with no usable anchor state; the
// assignment is skipped for the run, never defaulted.
var ErrMissingAnchor = errors.New("anchor state not available")

// ErrMissingScenario marks a batch with no pinned scenario configuration.
var ErrMissingScenario = errors.New("pinned scenario not available")

// ArithmeticDomainError reports input outside the numeric domain of the
// recurrence (negative weight, population, or a rate outside [0,1]). It
// indicates corruption upstream in assimilation, not a projection bug, and is
// surfaced loudly rather than worked around.
type ArithmeticDomainError struct {
	Field string
	Value float64
}

func (e ArithmeticDomainError) Error() string {
	return fmt.Sprintf("arithmetic domain violation: %s=%v", e.Field, e.Value)
}

// StoreWriteError wraps a failed store transaction so the orchestrator can
// distinguish retryable persistence failures from computation errors.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e StoreWriteError) Error() string {
	return fmt.Sprintf("store write %s: %v", e.Op, e.Err)
}

func (e StoreWriteError) Unwrap() error { return e.Err }
