// Package storage keeps uploaded originals and generated documents either on
// local disk or in an S3 compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a stored object does not exist.
var ErrNotFound = errors.New("stored file not found")

// FileStore saves and retrieves file contents. Save returns the location that
// must be passed back to Open and Delete.
type FileStore interface {
	Save(ctx context.Context, key string, data []byte) (string, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	Delete(ctx context.Context, location string) error
}

// NewKey builds a collision resistant key of the form
// <prefix>/YYYY/MM/<uuid-hex><ext>.
func NewKey(prefix, ext string, now time.Time) string {
	name := strings.ReplaceAll(uuid.New().String(), "-", "") + strings.ToLower(ext)
	return path.Join(prefix, fmt.Sprintf("%d", now.Year()), fmt.Sprintf("%02d", now.Month()), name)
}

// FlatKey builds <prefix>/<uuid-hex><ext>.
func FlatKey(prefix, ext string) string {
	return path.Join(prefix, strings.ReplaceAll(uuid.New().String(), "-", "")+strings.ToLower(ext))
}

// ReadAll loads a stored file into memory.
func ReadAll(ctx context.Context, store FileStore, location string) ([]byte, error) {
	rc, err := store.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
