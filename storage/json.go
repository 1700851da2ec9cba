package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetJSON decodes the value at key into a T. found is false when the key is absent.
func GetJSON[T any](ctx context.Context, s Store, key string) (value T, found bool, err error) {
	values, err := s.Get(ctx, key)
	if err != nil {
		return value, false, err
	}
	raw, ok := values[key]
	if !ok {
		return value, false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return value, true, nil
}

// SetJSON encodes every entry and writes them in a single Set
func SetJSON(ctx context.Context, s Store, entries map[string]any) error {
	values := make(map[string][]byte, len(entries))
	for key, v := range entries {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		values[key] = raw
	}
	return s.Set(ctx, values)
}
