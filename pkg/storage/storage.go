// Package storage provides the object store used for uploaded media and derived artifacts.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrObjectNotFound is returned by Get when no object exists under the key
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidKey is returned for empty keys or keys escaping the store root
var ErrInvalidKey = errors.New("invalid object key")

// ObjectStore stores opaque blobs under slash-separated keys.
// Put overwrites any existing object with the same key.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under prefix/
	DeletePrefix(ctx context.Context, prefix string) error
}

// CleanKey normalizes a key and rejects traversal outside the root
func CleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", ErrInvalidKey
		}
	}
	cleaned := path.Clean(key)
	if cleaned == "." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
