// Package mirror provides the durable local key-value mirror shared by all
// devices/tabs of one browser profile, with a cross-origin change
// notification channel.
//
// Writers always replace full values; readers re-read the full value on
// every notification. Watch never fires for writes made through the same
// handle (matching the storage-event semantics the UI relies on).
package mirror

import "context"

// Event describes a change made by another origin.
type Event struct {
	Key    string
	Value  []byte // nil when the key was deleted
	Origin string // origin id of the writer
}

// Mirror is the durable local mirror port.
type Mirror interface {
	// Get returns the stored value, or (nil, nil) when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the full value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Watch registers a handler for changes made by other origins.
	// Returns a cancel function.
	Watch(fn func(Event)) (cancel func())

	// Origin returns this handle's origin id.
	Origin() string

	// Close releases the handle.
	Close() error
}
