package harvest

import (
	"errors"
	"fmt"
)

// TransientError wraps a transport-level failure (timeout, connection reset,
// 5xx) that is worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// ValidationError reports a downloaded payload that failed content checks.
// Error pages served with a 200 status look like this, so validation failures
// are retried like transport failures.
type ValidationError struct {
	URL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %s", e.URL, e.Reason)
}

// PhaseError reports an unrecoverable failure inside one pipeline phase. The
// run terminates in that phase's failed state but stays resumable.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *PhaseError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
