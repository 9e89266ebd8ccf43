package deskapi

import (
	"sync"

	"github.com/gregjones/httpcache"
)

// Compile-time interface satisfaction check.
var _ httpcache.Cache = (*sessionCache)(nil)

// sessionCache is an in-memory httpcache.Cache that can be emptied at once.
// httpcache keys entries by URL only, so the cache must not outlive the
// credential that filled it.
type sessionCache struct {
	mu    sync.RWMutex
	inner *httpcache.MemoryCache
}

func newSessionCache() *sessionCache {
	return &sessionCache{inner: httpcache.NewMemoryCache()}
}

func (s *sessionCache) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inner.Get(key)
}

func (s *sessionCache) Set(key string, responseBytes []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.inner.Set(key, responseBytes)
}

func (s *sessionCache) Delete(key string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.inner.Delete(key)
}

// Reset replaces the underlying store with an empty one.
func (s *sessionCache) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner = httpcache.NewMemoryCache()
}
