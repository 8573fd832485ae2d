package store

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Store remembers which request uuids have already been dispatched.
type Store interface {
	// Claim records uuid for ttl and reports whether this call recorded it.
	// Of several concurrent claims for the same uuid exactly one succeeds.
	Claim(ctx context.Context, uuid string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, uuid string) (bool, error)
	MarkProcessed(ctx context.Context, uuid string, ttl time.Duration) error
	Close() error
}

// DefaultMemorySize bounds the number of uuids a MemoryStore keeps.
const DefaultMemorySize = 65536

// MemoryStore keeps processed uuids in a bounded LRU. When full, the oldest
// entries are evicted before their ttl runs out.
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, time.Time]
}

// NewMemoryStore returns a MemoryStore holding at most size uuids, each for
// at most maxTTL. Non-positive values fall back to DefaultMemorySize and 24h.
func NewMemoryStore(size int, maxTTL time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultMemorySize
	}
	if maxTTL <= 0 {
		maxTTL = 24 * time.Hour
	}
	return &MemoryStore{
		cache: expirable.NewLRU[string, time.Time](size, nil, maxTTL),
	}
}

// Claim records uuid until ttl elapses unless it is already recorded.
func (m *MemoryStore) Claim(_ context.Context, uuid string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live(uuid) {
		return false, nil
	}
	m.cache.Add(uuid, time.Now().Add(ttl))
	return true, nil
}

// IsProcessed reports whether uuid is recorded and its ttl has not elapsed.
func (m *MemoryStore) IsProcessed(_ context.Context, uuid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live(uuid), nil
}

func (m *MemoryStore) live(uuid string) bool {
	expireAt, ok := m.cache.Get(uuid)
	return ok && time.Now().Before(expireAt)
}

// MarkProcessed records uuid until ttl elapses. A ttl longer than the store's
// maximum is capped by the LRU.
func (m *MemoryStore) MarkProcessed(_ context.Context, uuid string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Add(uuid, time.Now().Add(ttl))
	return nil
}

// Len returns the number of tracked uuids.
func (m *MemoryStore) Len() int { return m.cache.Len() }

// Close drops every tracked uuid.
func (m *MemoryStore) Close() error {
	m.cache.Purge()
	return nil
}
