// Package blobstore implements BlobStore, the object-store side of an
// upload: put a local file's bytes under a key, check whether a key already
// exists (idempotent-reupload short-circuiting), and delete/list keys.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Stat when the key does not exist.
var ErrNotFound = errors.New("blobstore: key not found")

// ObjectInfo is the subset of object metadata callers need to decide
// whether a candidate upload is a true duplicate.
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// BlobStore is the object-store capability set the uploader depends on.
type BlobStore interface {
	// Put uploads body under key, overwriting any existing object.
	Put(ctx context.Context, key string, body []byte) error
	// Stat returns metadata for key, or ErrNotFound if it doesn't exist.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// List returns keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes key. Deleting a key that doesn't exist is not an error.
	Delete(ctx context.Context, key string) error
}
