package port

import (
	"errors"
	"fmt"
)

// TransientError wraps a collaborator failure that is worth retrying, such
// as a network error or timeout. Anything else fails the stage immediately.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err (or anything it wraps) is retryable
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
