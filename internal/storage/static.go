package storage

import (
	"context"
	"io"
	"strings"
)

// StaticStorage serves objects from a plain HTTP base URL, typically the media
// directory of a local web server. It cannot store anything.
type StaticStorage struct {
	baseURL string
}

// NewStaticStorage creates a URL-only storage rooted at baseURL.
func NewStaticStorage(baseURL string) *StaticStorage {
	return &StaticStorage{baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Upload always fails with ErrUploadUnsupported.
func (s *StaticStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	return ErrUploadUnsupported
}

// GetURL returns baseURL/key
func (s *StaticStorage) GetURL(key string) string {
	return s.baseURL + "/" + strings.TrimPrefix(key, "/")
}
