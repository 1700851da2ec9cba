package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps everything in process memory. Used for tests and for
// one-shot CLI runs that do not need persistence.
type MemoryStore struct {
	mu        sync.RWMutex
	data      map[string][]byte
	listeners *listenerSet
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:      make(map[string][]byte),
		listeners: newListenerSet(),
	}
}

func (s *MemoryStore) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := s.data[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, values map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	for k, v := range values {
		s.data[k] = append([]byte(nil), v...)
	}
	s.mu.Unlock()

	s.listeners.notify(sortedKeys(values))
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	for _, k := range keys {
		delete(s.data, k)
	}
	s.mu.Unlock()

	s.listeners.notify(keys)
	return nil
}

func (s *MemoryStore) OnChange(listener ChangeListener) func() {
	return s.listeners.add(listener)
}

func (s *MemoryStore) Close() error {
	return nil
}
