// Package dao defines the storage contract for run snapshots. Implementations
// hand out copies: mutating a loaded value never changes the stored one.
package dao

import (
	"context"
)

// Service stores entities of type T keyed by K.
type Service[K comparable, T any] interface {
	// Save inserts or replaces t.
	Save(ctx context.Context, t *T) error

	// Load returns ErrNotFound for unknown ids.
	Load(ctx context.Context, id K) (*T, error)

	// Delete returns ErrNotFound for unknown ids.
	Delete(ctx context.Context, id K) error

	// List returns entities matching every parameter, oldest first.
	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}
