package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
)

// OwnerCache is a ristretto-backed cache whose keys are scoped to an owner,
// so every entry belonging to one owner can be dropped at once.
//
// Each owner has a generation that InvalidateOwner bumps. A value computed
// before an invalidation can be stored with SetIfGeneration and is dropped
// instead of resurrecting stale data.
type OwnerCache[T any] struct {
	store *ristretto.Cache
	ttl   time.Duration

	mu   sync.Mutex
	keys map[uuid.UUID]map[string]struct{}
	gens map[uuid.UUID]uint64
}

// NewOwnerCache sizes the cache for roughly maxEntries live values.
func NewOwnerCache[T any](maxEntries int, ttl time.Duration) (*OwnerCache[T], error) {
	if maxEntries < 1 {
		maxEntries = 1
	}
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(maxEntries) * 10,
		MaxCost:     int64(maxEntries),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &OwnerCache[T]{
		store: store,
		ttl:   ttl,
		keys:  make(map[uuid.UUID]map[string]struct{}),
		gens:  make(map[uuid.UUID]uint64),
	}, nil
}

func ownerKey(owner uuid.UUID, key string) string {
	return owner.String() + ":" + key
}

// Get returns the cached value. A miss also forgets the key, since ristretto
// may have evicted, rejected or expired it.
func (c *OwnerCache[T]) Get(owner uuid.UUID, key string) (T, bool) {
	var zero T
	full := ownerKey(owner, key)
	v, ok := c.store.Get(full)
	if !ok {
		c.mu.Lock()
		c.forget(owner, full)
		c.mu.Unlock()
		return zero, false
	}
	data, ok := v.(T)
	if !ok {
		return zero, false
	}
	return data, true
}

// Generation is the owner's current invalidation count.
func (c *OwnerCache[T]) Generation(owner uuid.UUID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[owner]
}

// Set stores data and waits for the write buffer, so a following Get sees it.
func (c *OwnerCache[T]) Set(owner uuid.UUID, key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(owner, key, data)
}

// SetIfGeneration stores data only if owner has not been invalidated since
// gen was read. It reports whether the value was stored.
func (c *OwnerCache[T]) SetIfGeneration(owner uuid.UUID, key string, data T, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[owner] != gen {
		return false
	}
	c.set(owner, key, data)
	return true
}

// set must be called with mu held so it cannot interleave with InvalidateOwner.
func (c *OwnerCache[T]) set(owner uuid.UUID, key string, data T) {
	full := ownerKey(owner, key)
	m, ok := c.keys[owner]
	if !ok {
		m = make(map[string]struct{})
		c.keys[owner] = m
	}
	m[full] = struct{}{}

	if c.ttl > 0 {
		c.store.SetWithTTL(full, data, 1, c.ttl)
	} else {
		c.store.Set(full, data, 1)
	}
	c.store.Wait()
}

func (c *OwnerCache[T]) Delete(owner uuid.UUID, key string) {
	full := ownerKey(owner, key)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forget(owner, full)
	c.store.Del(full)
}

// InvalidateOwner drops every entry stored for owner and bumps its generation.
func (c *OwnerCache[T]) InvalidateOwner(owner uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[owner]++
	keys := c.keys[owner]
	delete(c.keys, owner)
	for k := range keys {
		c.store.Del(k)
	}
	return len(keys)
}

// CleanExpired forgets tracked keys that ristretto no longer holds.
func (c *OwnerCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for owner, m := range c.keys {
		for full := range m {
			if _, ok := c.store.Get(full); !ok {
				c.forget(owner, full)
				removed++
			}
		}
	}
	return removed
}

// Tracked is the number of keys currently remembered for owner.
func (c *OwnerCache[T]) Tracked(owner uuid.UUID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys[owner])
}

func (c *OwnerCache[T]) forget(owner uuid.UUID, full string) {
	m, ok := c.keys[owner]
	if !ok {
		return
	}
	delete(m, full)
	if len(m) == 0 {
		delete(c.keys, owner)
	}
}

func (c *OwnerCache[T]) Close() {
	c.store.Close()
}
