package ephemeral

import (
	"errors"
	"sync"
	"time"

	"github.com/Goofygiraffe06/blaze/internal/logging"
)

var (
	ErrTooLong   = errors.New("key too long")
	ErrStoreFull = errors.New("ephemeral store full")
)

const (
	maxKeyLength = 255
	maxStoreSize = 10_000
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// coreStore is a bounded map whose entries vanish after their TTL.
type coreStore[V any] struct {
	data map[string]*item[V]
	mu   sync.RWMutex
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

func newCoreStore[V any](gcInterval time.Duration) *coreStore[V] {
	store := &coreStore[V]{
		data: make(map[string]*item[V]),
		now:  time.Now,
		stop: make(chan struct{}),
	}
	go store.cleanup(gcInterval)
	return store
}

func (s *coreStore[V]) set(key string, value V, ttl time.Duration) error {
	if len(key) > maxKeyLength {
		return ErrTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists && len(s.data) >= maxStoreSize {
		logging.WarnLog("Ephemeral store set failed: store full (size: %d)", len(s.data))
		return ErrStoreFull
	}

	s.data[key] = &item[V]{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *coreStore[V]) get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero V
	it, ok := s.data[key]
	if !ok || !s.now().Before(it.expiresAt) {
		return zero, false
	}
	return it.value, true
}

// update applies fn to a live entry under the write lock, keeping its expiry.
func (s *coreStore[V]) update(key string, fn func(V) (V, bool)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.data[key]
	if !ok || !s.now().Before(it.expiresAt) {
		return false
	}
	next, changed := fn(it.value)
	if changed {
		it.value = next
	}
	return changed
}

func (s *coreStore[V]) close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *coreStore[V]) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		now := s.now()
		s.mu.Lock()
		expired := 0
		for k, v := range s.data {
			if !now.Before(v.expiresAt) {
				delete(s.data, k)
				expired++
			}
		}
		size := len(s.data)
		s.mu.Unlock()

		if expired > 0 {
			logging.DebugLog("Ephemeral store cleanup: removed %d expired items (current size: %d)", expired, size)
		}
	}
}
