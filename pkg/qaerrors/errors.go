// Package qaerrors defines the error kinds shared across pipeline stages.
// Callers classify with errors.Is rather than string matching.
package qaerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrGatewayTransient marks a retryable backend failure (timeout,
	// rate limit, 5xx). It only surfaces once the retry budget is spent.
	ErrGatewayTransient = errors.New("gateway: transient failure")

	// ErrGatewayFatal marks a non-retryable backend failure (auth, bad
	// request). The gateway fails immediately without retrying.
	ErrGatewayFatal = errors.New("gateway: fatal failure")

	// ErrMalformedResponse means the backend returned content that does not
	// match the expected structured shape. Partially-parsed data is never
	// returned to callers.
	ErrMalformedResponse = errors.New("gateway: malformed response")

	// ErrValidationFailed marks a per-candidate syntax failure, recoverable
	// through the correction loop.
	ErrValidationFailed = errors.New("validation failed")

	// ErrUnrecognizedFormat means a coverage artifact matched no known format.
	ErrUnrecognizedFormat = errors.New("unrecognized coverage format")

	// ErrExecutionPartial means some but not all executor actions applied.
	ErrExecutionPartial = errors.New("execution partially failed")

	// ErrExhausted means a bounded retry loop spent its attempt budget.
	ErrExhausted = errors.New("attempt budget exhausted")

	// ErrStageRequired aborts the run when a required stage fails.
	ErrStageRequired = errors.New("required stage failed")
)

// Transient wraps err as a retryable gateway failure
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrGatewayTransient, err)
}

// Fatal wraps err as a non-retryable gateway failure
func Fatal(err error) error {
	return fmt.Errorf("%w: %w", ErrGatewayFatal, err)
}

// Malformed wraps err as a response-shape failure
func Malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
}

// RequiredStage wraps a required-stage failure with the stage name
func RequiredStage(stage string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStageRequired, stage, err)
}
