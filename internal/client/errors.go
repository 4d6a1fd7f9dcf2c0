package client

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Client calls.
var (
	ErrRequest  = errors.New("person api request failed")
	ErrDecode   = errors.New("person api response decode failed")
	ErrNotFound = errors.New("person not found")
)

// StatusError reports a non-2xx answer. It matches ErrRequest, and
// ErrNotFound for 404.
type StatusError struct {
	Code    int
	APICode string
	Message string
	// Errors holds validation messages from a 422 answer.
	Errors []string
}

func (e *StatusError) Error() string {
	if e.APICode != "" {
		return fmt.Sprintf("person api: status %d: %s: %s", e.Code, e.APICode, e.Message)
	}
	return fmt.Sprintf("person api: status %d", e.Code)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRequest:
		return true
	case ErrNotFound:
		return e.Code == 404
	}
	return false
}
