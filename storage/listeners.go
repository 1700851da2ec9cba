package storage

import (
	"sort"
	"sync"
)

// listenerSet fans change notifications out to registered listeners
type listenerSet struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]ChangeListener
}

func newListenerSet() *listenerSet {
	return &listenerSet{listeners: make(map[int]ChangeListener)}
}

func (l *listenerSet) add(fn ChangeListener) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.listeners, id)
			l.mu.Unlock()
		})
	}
}

func (l *listenerSet) notify(keys []string) {
	if len(keys) == 0 {
		return
	}
	l.mu.RLock()
	fns := make([]ChangeListener, 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(keys)
	}
}

func sortedKeys(values map[string][]byte) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
