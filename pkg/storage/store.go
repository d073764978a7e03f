package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no object exists for the given reference.
var ErrNotFound = errors.New("storage: object not found")

// ErrExists is returned when a Put targets a reference that was already
// written. References are single-assignment.
var ErrExists = errors.New("storage: reference already written")

// Store is durable byte storage addressed by an opaque reference string.
// References are written once and never overwritten; generated market
// documents live here until their bundle is purged.
type Store interface {
	Put(ctx context.Context, ref string, data []byte, contentType string) error
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}
