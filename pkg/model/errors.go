package model

import "errors"

var (
	// ErrInvalid marks input that failed validation. Never retried.
	ErrInvalid = errors.New("invalid input")

	// ErrNotFound marks an absent id or settings key.
	ErrNotFound = errors.New("not found")
)
