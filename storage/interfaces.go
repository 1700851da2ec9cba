package storage

import "context"

// ChangeListener receives the keys touched by a write
type ChangeListener func(keys []string)

// Store is the key-value store the tracker persists everything in.
// Values are opaque bytes; callers use GetJSON/SetJSON for typed access.
type Store interface {
	// Get returns the values present for keys. Missing keys are absent from the map.
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	// Set writes every entry, replacing previous values.
	Set(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
	// OnChange registers listener for writes, including writes made by other
	// processes sharing the backend. The returned func unregisters it.
	OnChange(listener ChangeListener) (unsubscribe func())
	Close() error
}
