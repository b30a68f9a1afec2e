package repository

import (
	"context"
	"io"
)

// ObjectStorage holds rendered artifacts shared between instances. Keys are
// content addressed, so an object never changes once written.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download returns the artifact stored under key. The caller closes it.
	// Returns ErrObjectNotFound if there is no usable object under key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	Delete(ctx context.Context, key string) error
}
