package service

import (
	"errors"
	"fmt"
)

// Error kinds returned by the service. Every returned error wraps exactly one
// kind so callers can branch with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrDuplicateEvaluation = errors.New("duplicate evaluation")
	ErrStorage             = errors.New("storage error")
	ErrBackpressure        = errors.New("apply queue full")
	ErrUnavailable         = errors.New("service unavailable")

	// ErrRecordNotFound means a record vanished between creation and read.
	ErrRecordNotFound = errors.New("record not found")
)

// wrap formats "op: kind: cause" keeping both kind and cause matchable.
func wrap(op string, kind, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}
