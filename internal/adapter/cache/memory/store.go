// Package memory provides in-process idempotency and lock stores for tests
// and the single-process memory driver.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/strogmv/mailrelay/internal/port"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Store implements port.IdempotencyStore and port.DeliveryLock.
type Store struct {
	mu   sync.Mutex
	data map[string]entry
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{data: make(map[string]entry), now: time.Now}
}

// get returns a live entry, evicting it when expired. Callers hold mu.
func (s *Store) get(key string) (entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		return entry{}, false
	}
	return e, true
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.get(key)
	return ok, nil
}

func (s *Store) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(key); ok {
		return false, nil
	}
	s.data[key] = entry{value: value, expiresAt: s.expiry(ttl)}
	return true, nil
}

func (s *Store) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	if e, ok := s.get(key); ok {
		n, _ = strconv.ParseInt(e.value, 10, 64)
	}
	n++
	s.data[key] = entry{value: strconv.FormatInt(n, 10), expiresAt: s.expiry(ttl)}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

// Acquire takes key as a lease until ttl elapses or release is called.
func (s *Store) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(key); ok {
		return nil, false, nil
	}
	e := entry{value: "locked", expiresAt: s.expiry(ttl)}
	s.data[key] = e
	release := func(context.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.data[key]; ok && cur == e {
			delete(s.data, key)
		}
	}
	return release, true, nil
}

var (
	_ port.IdempotencyStore = (*Store)(nil)
	_ port.DeliveryLock     = (*Store)(nil)
)
