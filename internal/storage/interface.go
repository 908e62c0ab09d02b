package storage

import (
	"context"
	"errors"
	"io"
	"path"
)

// ErrUploadUnsupported is returned by backends that can only serve URLs.
var ErrUploadUnsupported = errors.New("storage backend does not support uploads")

// ObjectStorage resolves asset URLs and stores generated artifacts
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// GetURL returns the URL for accessing an object
	GetURL(key string) string
}

// RenditionKey returns the object key of an image rendition. Renditions other
// than "original" live under renditions/<size>/ next to the original key.
func RenditionKey(size, key string) string {
	if size == "" || size == "original" {
		return key
	}
	return path.Join("renditions", size, key)
}
