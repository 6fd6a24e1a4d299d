package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
)

// ImageStore layers image-oriented operations on top of a Storage backend:
// key generation from the original filename, URL bookkeeping, and the
// delete-then-upload replace sequence.
type ImageStore struct {
	store Storage
}

// NewImageStore wraps the given backend.
func NewImageStore(store Storage) *ImageStore {
	return &ImageStore{store: store}
}

// Upload stores the file under a freshly generated key inside directory and
// returns the public URL. Returns ErrEmptyFile when there is nothing to store.
func (s *ImageStore) Upload(ctx context.Context, file File, directory string) (string, error) {
	if file.Reader == nil || file.Size <= 0 {
		return "", ErrEmptyFile
	}

	key := strings.Trim(directory, "/") + "/" + objectKey(file.Name)
	if err := s.store.Upload(ctx, key, file.Reader, file.Size, file.ContentType); err != nil {
		return "", fmt.Errorf("upload %q: %w", key, err)
	}
	return s.store.PublicURL(key), nil
}

// Delete removes the object a previously issued URL points at.
// Absent objects are success (idempotent delete).
func (s *ImageStore) Delete(ctx context.Context, rawURL string) error {
	key, err := s.store.KeyFromURL(rawURL)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, key)
}

// Replace deletes the object at oldURL (best-effort) and uploads file in its
// place, returning the new URL. If the upload fails after the old object was
// removed the caller ends up with no image; that gap is surfaced, not hidden.
func (s *ImageStore) Replace(ctx context.Context, file File, directory, oldURL string) (string, error) {
	if err := s.Delete(ctx, oldURL); err != nil {
		log.Warn().Err(err).Str("url", oldURL).Msg("storage: could not delete old image, continuing with upload")
	}
	return s.Upload(ctx, file, directory)
}

// objectKey derives a collision-free key from the original filename:
// a slug of the base name, a unique suffix, and the original extension.
// "Ana Perez.JPG" becomes something like "ana-perez-cs3f2qkq4jsg.jpg".
func objectKey(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))

	slug := slugify(base)
	if slug == "" {
		slug = "file"
	}
	return slug + "-" + xid.New().String() + ext
}

// slugify lowercases and replaces every run of non-alphanumeric characters
// with a single dash.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}
