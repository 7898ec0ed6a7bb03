// Package objectstore lists and reads objects below an artifact prefix of an
// S3-compatible bucket.
package objectstore

import (
	"context"
	"errors"
	"io"
)

// ErrNoSuchKey is returned by Open for a missing object.
var ErrNoSuchKey = errors.New("no such key")

// Store is read-only; the migration never writes to the source bucket.
type Store interface {
	// List returns the objects and common prefixes directly below prefix.
	// Common prefixes end in "/" and have Dir set.
	List(ctx context.Context, bucket, prefix string) ([]Entry, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

type Entry struct {
	Key  string
	Size int64
	Dir  bool
}
