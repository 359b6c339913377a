package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is a process-local Store backed by go-cache. Safe for concurrent use.
type MemoryStore struct {
	items *gocache.Cache
}

// NewMemoryStore creates a store that evicts entries after retention(ttl).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	keep := retention(ttl)
	return &MemoryStore{items: gocache.New(keep, keep)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key Key) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	v, ok := s.items.Get(key.String())
	if !ok {
		return Entry{}, false, nil
	}
	return v.(Entry), true, nil
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(ctx context.Context, key Key, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.items.Set(key.String(), entry, gocache.DefaultExpiration)
	return nil
}

// Len reports the number of stored entries, including ones past their TTL.
func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}
