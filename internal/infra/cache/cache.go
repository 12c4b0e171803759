// Package cache is a bounded read cache with per-entry TTL and in-flight
// request coalescing. Each client owns its own instance.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/tutu-network/karma/internal/infra/metrics"
)

const (
	DefaultSize        = 1024
	DefaultTTL         = 30 * time.Second
	DefaultLoadTimeout = 30 * time.Second
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache maps string keys to values of type V.
type Cache[V any] struct {
	name  string
	ttl   time.Duration
	lru   *lru.Cache
	group singleflight.Group

	// loadTimeout bounds a shared load. The load is detached from the
	// caller that started it, so one caller giving up does not fail the
	// others waiting on the same key.
	loadTimeout time.Duration

	// gen is bumped on every invalidation. Loads started under an older
	// generation neither store their result nor are joined by new callers.
	gen atomic.Uint64
	mu  sync.Mutex

	now func() time.Time
}

// New creates a cache holding up to size entries, each valid for ttl.
// name labels the cache in metrics.
func New[V any](name string, size int, ttl time.Duration) (*Cache[V], error) {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create %s cache: %w", name, err)
	}
	return &Cache[V]{name: name, ttl: ttl, lru: l, loadTimeout: DefaultLoadTimeout, now: time.Now}, nil
}

// Get returns a fresh cached value. Expired entries are dropped.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	raw, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	e := raw.(entry[V])
	if c.expired(e) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores a value.
func (c *Cache[V]) Set(key string, v V) {
	c.lru.Add(key, entry[V]{value: v, storedAt: c.now()})
}

// GetOrLoad returns the cached value for key or calls load once for all
// concurrent callers of the same key. Errors are not cached. A caller whose
// ctx ends stops waiting; the shared load keeps running for the rest.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		metrics.CacheRequests.WithLabelValues(c.name, "hit").Inc()
		return v, nil
	}

	gen := c.gen.Load()
	flight := fmt.Sprintf("%d|%s", gen, key)
	ch := c.group.DoChan(flight, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		v, err := load(lctx)
		if err != nil {
			return v, err
		}
		c.mu.Lock()
		if c.gen.Load() == gen {
			c.Set(key, v)
		}
		c.mu.Unlock()
		return v, nil
	})

	select {
	case <-ctx.Done():
		metrics.CacheRequests.WithLabelValues(c.name, "abandoned").Inc()
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.CacheRequests.WithLabelValues(c.name, "shared").Inc()
		} else {
			metrics.CacheRequests.WithLabelValues(c.name, "miss").Inc()
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

// Invalidate drops key and detaches any in-flight load for it.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen.Add(1)
	c.lru.Remove(key)
}

// InvalidatePrefix drops every key starting with prefix and returns how
// many were removed.
func (c *Cache[V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen.Add(1)

	n := 0
	for _, k := range c.lru.Keys() {
		if s, ok := k.(string); ok && strings.HasPrefix(s, prefix) {
			c.lru.Remove(k)
			n++
		}
	}
	return n
}

// Purge empties the cache.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen.Add(1)
	c.lru.Purge()
}

// Sweep removes expired entries and returns how many it removed.
func (c *Cache[V]) Sweep() int {
	n := 0
	for _, k := range c.lru.Keys() {
		raw, ok := c.lru.Peek(k)
		if !ok {
			continue
		}
		if c.expired(raw.(entry[V])) {
			c.lru.Remove(k)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (c *Cache[V]) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = c.ttl
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int { return c.lru.Len() }

func (c *Cache[V]) expired(e entry[V]) bool {
	return c.now().Sub(e.storedAt) >= c.ttl
}
