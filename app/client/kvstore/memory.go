package kvstore

import (
	"context"
	"strconv"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store with TTL semantics, used in tests and
// for running without a Redis server.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry

	// Now is overridable so tests can control expiry.
	Now func() time.Time
}

type memoryEntry struct {
	value     string
	list      []string
	expiresAt time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		Now:     time.Now,
	}
}

func (s *MemoryStore) live(key string) *memoryEntry {
	entry, ok := s.entries[key]
	if !ok {
		return nil
	}

	if !entry.expiresAt.IsZero() && !s.Now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil
	}

	return entry
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.live(key)
	if entry == nil {
		return "", false, nil
	}

	return entry.value, true, nil
}

func (s *MemoryStore) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memoryEntry{
		value:     value,
		expiresAt: s.deadline(ttl),
	}

	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live(key) != nil {
		return false, nil
	}

	s.entries[key] = &memoryEntry{
		value:     value,
		expiresAt: s.deadline(ttl),
	}

	return true, nil
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.live(key)
	if entry == nil {
		entry = &memoryEntry{}
		s.entries[key] = entry
	}

	current, _ := strconv.ParseInt(entry.value, 10, 64)
	current++
	entry.value = strconv.FormatInt(current, 10)

	return current, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry := s.live(key); entry != nil {
		entry.expiresAt = s.deadline(ttl)
	}

	return nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.live(key) != nil, nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)

	return nil
}

func (s *MemoryStore) RPush(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.live(key)
	if entry == nil {
		entry = &memoryEntry{}
		s.entries[key] = entry
	}

	entry.list = append(entry.list, values...)

	return nil
}

func (s *MemoryStore) LRange(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.live(key)
	if entry == nil {
		return nil, nil
	}

	result := make([]string, len(entry.list))
	copy(result, entry.list)

	return result, nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (s *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}

	return s.Now().Add(ttl)
}
