package batch

import (
	"errors"
	"fmt"
)

// Domain errors for the batch package.
//
// Typed errors below match these through errors.Is:
//
//	if errors.Is(err, batch.ErrDryerBusy) {
//	    // offer to open the running batch instead
//	}
var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("batch: validation failed")

	// ErrOutOfRange is returned when a number falls outside its bounds.
	ErrOutOfRange = errors.New("batch: value out of range")

	// ErrFutureTimestamp is returned for a timestamp later than now.
	ErrFutureTimestamp = errors.New("batch: timestamp in the future")

	// ErrBeforeBatchStart is returned for a reading older than its batch.
	ErrBeforeBatchStart = errors.New("batch: timestamp before batch start")

	// ErrBatchCodeTooShort is returned for a batch code below the minimum length.
	ErrBatchCodeTooShort = errors.New("batch: batch code too short")

	// ErrConfirmationRequired is returned when a value needs an explicit
	// operator confirmation that was not given.
	ErrConfirmationRequired = errors.New("batch: confirmation required")

	// ErrDryerBusy is matched by *DryerBusyError.
	ErrDryerBusy = errors.New("batch: dryer busy")

	// ErrBatchTerminal is returned when mutating a completed or cancelled batch.
	ErrBatchTerminal = errors.New("batch: batch is completed or cancelled")

	// ErrNoReading is returned when completing a batch with no readings.
	ErrNoReading = errors.New("batch: no reading recorded")

	// ErrInvalidTransition is returned for a status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("batch: invalid status transition")

	// ErrBatchNotFound is returned when a batch ID does not exist or is deleted.
	ErrBatchNotFound = errors.New("batch: not found")

	// ErrDuplicateCode is returned when a batch code is already taken.
	ErrDuplicateCode = errors.New("batch: batch code already exists")

	// ErrExternal is matched by *ExternalError.
	ErrExternal = errors.New("batch: store failure")
)

// ValidationError reports a rejected payload field.
type ValidationError struct {
	// Reason is one of the reason sentinels above.
	Reason  error
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Unwrap returns the reason sentinel.
func (e *ValidationError) Unwrap() error { return e.Reason }

func invalid(reason error, field, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Field: field, Message: fmt.Sprintf(format, args...)}
}

// DryerBusyError reports that a dryer already runs an active batch.
type DryerBusyError struct {
	DryerNumber       int
	ExistingBatchCode string
}

func (e *DryerBusyError) Error() string {
	if e.ExistingBatchCode == "" {
		return fmt.Sprintf("dryer %d already has an active batch", e.DryerNumber)
	}
	return fmt.Sprintf("dryer %d already has active batch %s", e.DryerNumber, e.ExistingBatchCode)
}

// Is makes errors.Is(err, ErrDryerBusy) true.
func (e *DryerBusyError) Is(target error) bool { return target == ErrDryerBusy }

// ExternalError wraps a failure of the persistence layer. The cause is
// passed through unchanged and never retried.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Is makes errors.Is(err, ErrExternal) true.
func (e *ExternalError) Is(target error) bool { return target == ErrExternal }

// Unwrap returns the underlying store error.
func (e *ExternalError) Unwrap() error { return e.Err }

// external wraps err as an *ExternalError unless it is already a domain
// error the store is allowed to return.
func external(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, domain := range []error{ErrBatchNotFound, ErrDryerBusy, ErrDuplicateCode} {
		if errors.Is(err, domain) {
			return err
		}
	}
	return &ExternalError{Op: op, Err: err}
}
