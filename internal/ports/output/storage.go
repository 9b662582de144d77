package output

import (
	"context"
	"io"
	"time"
)

// ObjectStorage is a backend holding GeoPackage files under keys relative
// to a configured root or prefix.
type ObjectStorage interface {
	// List returns the GeoPackage objects in the backend.
	List(ctx context.Context) ([]StorageObject, error)

	// Download writes the object at key to the local path dest.
	Download(ctx context.Context, key string, dest string) error

	GetReader(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// StorageObject describes a listed object. ETag is empty when the backend
// does not provide one; changes are then detected by size and time.
type StorageObject struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}
