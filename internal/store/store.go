// Package store provides the versioned key-value backends that hold the
// durable mail queue.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Version is an opaque token identifying the stored value a reader saw.
// The empty Version means the key did not exist.
type Version string

var (
	// ErrNotFound is returned by Get for an absent key.
	ErrNotFound = errors.New("store: key not found")
	// ErrConflict is returned by CompareAndSwap when the stored version no
	// longer matches the expected one.
	ErrConflict = errors.New("store: version conflict")
)

// Store is a key-value namespace with compare-and-swap writes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, Version, error)
	// CompareAndSwap writes value only if the key is still at expected.
	// An empty expected version means "create only if absent".
	CompareAndSwap(ctx context.Context, key string, expected Version, value []byte) error
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close() error
}

func conflict(key string) error {
	return fmt.Errorf("%w on %q", ErrConflict, key)
}
