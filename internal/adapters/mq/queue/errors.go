package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrClosed = errors.New("change queue closed")
	ErrFull   = errors.New("change queue full")
)
