package utils

import "sync"

// SeenSet remembers keys already handled, e.g. price values captured in one
// extraction pass or URLs already queued
type SeenSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{seen: make(map[string]struct{})}
}

// Add returns true if key is new, false if it was seen before
func (s *SeenSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.seen[key]; exists {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

func (s *SeenSet) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.seen[key]
	return exists
}

// Count returns the number of keys seen
func (s *SeenSet) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
