package storage

import "errors"

var (
	// ErrNotFound is the cause inside a StoreError when the targeted row
	// does not exist.
	ErrNotFound = errors.New("row not found")

	// ErrUnavailable is the cause when the store cannot be reached at
	// all. Callers serve their last-known rows and mark them stale.
	ErrUnavailable = errors.New("store unreachable")
)
