package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrFull    = errors.New("apply queue full")
	ErrStopped = errors.New("apply queue stopped")
)
