package dao

import "errors"

var (
	// ErrNotFound is returned for unknown ids.
	ErrNotFound = errors.New("dao: not found")

	// ErrInvalidID is returned when an entity key is empty.
	ErrInvalidID = errors.New("dao: invalid id")

	// ErrNilEntity is returned by Save for a nil entity.
	ErrNilEntity = errors.New("dao: nil entity")
)
