package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when appending a record whose key already
	// exists. The daily close series is append-only; past trading days are
	// never rewritten.
	ErrDuplicateKey = errors.New("duplicate key: close series is append-only")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
