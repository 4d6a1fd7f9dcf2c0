package repository

import "errors"

// Sentinel kinds for person store errors.
var (
	ErrNotFound  = errors.New("person not found")
	ErrInvalidID = errors.New("invalid person id")
	ErrNoStorage = errors.New("storage is not configured")
)
