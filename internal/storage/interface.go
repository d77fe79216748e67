package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Retrieve when a key has never been stored
var ErrNotFound = errors.New("key not found")

// StorageInterface defines the contract for durable key/value storage.
// Values are whole blobs; there are no partial updates.
type StorageInterface interface {
	Store(ctx context.Context, key string, data []byte) error
	Retrieve(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// Close releases the backend's resources when it holds any (e.g. the Redis
// connection pool). Backends without resources are a no-op.
func Close(s StorageInterface) error {
	if closer, ok := s.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
