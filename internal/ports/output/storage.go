// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"
)

// ObjectStorage is a source of layer files.
type ObjectStorage interface {
	// List returns the layer files of the source.
	List(ctx context.Context) ([]StorageObject, error)

	// Stat returns the metadata of one object. A missing object yields an
	// error matching domain.ErrObjectNotFound.
	Stat(ctx context.Context, key string) (StorageObject, error)

	// Download writes the object to dest. dest is replaced atomically.
	Download(ctx context.Context, key string, dest string) error
}

// StorageObject describes a layer file in a source. Either ETag or
// LastModified identifies a revision; both may be empty for sources
// without versioning.
type StorageObject struct {
	Key          string // Slash-separated path relative to the source root
	Size         int64  // Size in bytes, 0 when unknown
	LastModified int64  // Unix timestamp
	ETag         string
}
