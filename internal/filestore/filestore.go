// Package filestore defines the contract with the external file storage
// collaborator that holds the raw uploaded image bytes. The batch engine
// only ever stores opaque handles, never the bytes themselves.
package filestore

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned when no object exists for a handle.
var ErrObjectNotFound = errors.New("stored object not found")

// FileStore stores raw uploaded bytes and addresses them by opaque handle.
type FileStore interface {
	// Put stores the payload and returns a stable handle for it. The key
	// should be prefixed with the owning task's ID so RemoveAll can find
	// every object of a task.
	Put(ctx context.Context, key string, payload []byte, contentType string) (string, error)

	// Get retrieves the payload for a handle.
	// Returns ErrObjectNotFound if the handle does not resolve.
	Get(ctx context.Context, handle string) ([]byte, error)

	// Remove deletes the object for a handle. Removing a missing object is
	// not an error.
	Remove(ctx context.Context, handle string) error

	// RemoveAll deletes every object stored under the given prefix.
	RemoveAll(ctx context.Context, prefix string) error
}
