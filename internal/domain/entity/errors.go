package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy described in the error-handling design.
// Callers match with errors.Is / errors.As; no layer surfaces a lower
// layer's error kind unwrapped.
var (
	ErrNotFound = errors.New("not found")
	ErrDisabled = errors.New("schedule disabled")
)

// InvalidInputError carries a human-readable validation failure. No
// pipeline work is performed once one of these is returned.
type InvalidInputError struct {
	Message string
}

func (e *InvalidInputError) Error() string {
	return e.Message
}

// NewInvalidInputError builds an InvalidInputError with a formatted message.
func NewInvalidInputError(format string, args ...any) *InvalidInputError {
	return &InvalidInputError{Message: fmt.Sprintf(format, args...)}
}

// AlreadyExistsError is returned by the Job Registry when a ScheduleRecord
// for the same (token, network) pair already exists.
type AlreadyExistsError struct {
	ExistingID string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("schedule already exists: %s", e.ExistingID)
}

// UnavailableError wraps the reason an optional subsystem (queue, cache,
// store) could not service a request. Read paths degrade silently; this
// type exists for the narrow cases the contract says must be surfaced
// (Queue.Enqueue, Registry.RunNow).
type UnavailableError struct {
	Subsystem string
	Err       error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s unavailable: %v", e.Subsystem, e.Err)
	}
	return fmt.Sprintf("%s unavailable", e.Subsystem)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// TransientError marks an upstream failure that should be treated as "no
// data" by the resolver pipeline (step 3 of §4.5) rather than aborted.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient upstream error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}
