package memory

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// WorkingMemory is a short-term key/value store that evicts the least
// recently used key once full.
type WorkingMemory struct {
	mu    sync.Mutex
	cache *lru.Cache[string, string]
}

// NewWorkingMemory creates a working memory holding at most maxItems keys
func NewWorkingMemory(maxItems int) (*WorkingMemory, error) {
	if maxItems <= 0 {
		maxItems = 20
	}
	cache, err := lru.New[string, string](maxItems)
	if err != nil {
		return nil, err
	}
	return &WorkingMemory{cache: cache}, nil
}

// Set stores value under key, evicting the oldest key when full
func (w *WorkingMemory) Set(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cache.Add(key, value)
}

// Get returns the value for key and marks it recently used
func (w *WorkingMemory) Get(key string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cache.Get(key)
}

// Keys returns keys from oldest to newest
func (w *WorkingMemory) Keys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cache.Keys()
}

// Snapshot copies every key/value pair without touching recency
func (w *WorkingMemory) Snapshot() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]string, w.cache.Len())
	for _, k := range w.cache.Keys() {
		if v, ok := w.cache.Peek(k); ok {
			out[k] = v
		}
	}
	return out
}

// Len returns the number of keys held
func (w *WorkingMemory) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cache.Len()
}

// Clear drops every key
func (w *WorkingMemory) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cache.Purge()
}
