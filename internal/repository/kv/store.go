package kv

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("key not found")
	// ErrConflict is returned by CompareAndReplace when the stored value differs from the expected one.
	ErrConflict = errors.New("stored value does not match expected value")
)

// Key addresses one value: a table plus an identifier inside it.
type Key struct {
	// Table groups related values so they can be listed and cleared together.
	Table string
	// ID identifies the value inside its table.
	ID string
}

// String returns the storage form of the key.
func (k Key) String() string {
	return k.Table + "/" + k.ID
}

// Store defines the persistence operations the update pipeline depends on.
type Store interface {
	// Set writes value under key, replacing any previous value.
	Set(ctx context.Context, key Key, value []byte) error
	// GetAll returns every value of table keyed by ID. A missing table is empty.
	GetAll(ctx context.Context, table string) (map[string][]byte, error)
	// Clear removes every value of table.
	Clear(ctx context.Context, table string) error
	// CompareAndReplace swaps the value under key only if it currently equals expected.
	CompareAndReplace(ctx context.Context, key Key, expected, value []byte) error
}
