// Package storage provides object storage for customer images.
// Swap implementations by changing the concrete type injected at startup —
// the MinIO implementation works with any S3-compatible provider (MinIO, AWS S3, DigitalOcean Spaces).
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrEmptyFile is returned when an upload contains no readable bytes.
var ErrEmptyFile = errors.New("empty or unreadable file")

// File is an uploaded file ready to be stored.
type File struct {
	// Name is the client-supplied original filename, used to derive the storage key.
	Name        string
	Size        int64
	ContentType string
	Reader      io.Reader
}

// Storage is the low-level interface for a bucket of objects.
type Storage interface {
	// Upload streams data to the store under the given key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	// Delete removes an object identified by key. Deleting an absent
	// object is success, not an error.
	Delete(ctx context.Context, key string) error
	// PublicURL constructs the browser-accessible URL for a given key.
	PublicURL(key string) string
	// KeyFromURL recovers the storage key from a URL previously returned
	// by PublicURL. It is the exact inverse of the URL scheme.
	KeyFromURL(rawURL string) (string, error)
}
