// Package resultcache maps cache keys to artifact locations with an LRU
// capacity bound and an idle TTL.
package resultcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/hszk-dev/typereel/internal/domain/model"
	"github.com/hszk-dev/typereel/internal/infrastructure/metrics"
)

// Entry is a cached artifact location.
type Entry struct {
	Key        model.CacheKey
	Kind       model.Kind
	Location   string
	CreatedAt  time.Time
	AccessedAt time.Time
}

// RemoveFunc is called with the location of every entry leaving the cache,
// whether evicted for capacity or dropped after expiry.
type RemoveFunc func(location string)

// Config holds configuration for one cache instance.
type Config struct {
	Kind     model.Kind
	Capacity int
	TTL      time.Duration
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock overrides time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithRemoveFunc registers fn to run when entries leave the cache.
func WithRemoveFunc(fn RemoveFunc) Option {
	return func(c *Cache) { c.onRemove = fn }
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[model.CacheKey, *Entry]
	kind     model.Kind
	capacity int
	ttl      time.Duration
	now      func() time.Time
	onRemove RemoveFunc
}

// New creates a cache for one artifact kind.
func New(cfg Config, opts ...Option) (*Cache, error) {
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("capacity must be at least 1, got %d", cfg.Capacity)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %v", cfg.TTL)
	}

	c := &Cache{
		kind:     cfg.Kind,
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	l, err := simplelru.NewLRU[model.CacheKey, *Entry](cfg.Capacity, c.removed)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	c.lru = l

	return c, nil
}

// Get returns the location stored for key and refreshes its recency and idle
// timer. Expired entries are dropped and reported as absent.
func (c *Cache) Get(key model.CacheKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, c.kind.String()).Inc()
		return "", false
	}

	now := c.now()
	if c.expired(e, now) {
		c.lru.Remove(key)
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpExpire, metrics.CacheStatusSuccess, c.kind.String()).Inc()
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, c.kind.String()).Inc()
		return "", false
	}

	e.AccessedAt = now
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, c.kind.String()).Inc()
	return e.Location, true
}

// Put stores location for key, replacing any previous entry. Inserting past
// capacity evicts the least recently accessed entry.
func (c *Cache) Put(key model.CacheKey, location string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	var previous string
	if old, ok := c.lru.Peek(key); ok {
		previous = old.Location
	}

	evicted := c.lru.Add(key, &Entry{
		Key:        key,
		Kind:       c.kind,
		Location:   location,
		CreatedAt:  now,
		AccessedAt: now,
	})

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpPut, metrics.CacheStatusSuccess, c.kind.String()).Inc()
	if evicted {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpEvict, metrics.CacheStatusSuccess, c.kind.String()).Inc()
	}
	if previous != "" && previous != location {
		c.removed(key, &Entry{Location: previous})
	}
}

// Remove drops the entry for key, if any.
func (c *Cache) Remove(key model.CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Peek returns the entry for key without touching recency or expiry.
func (c *Cache) Peek(key model.CacheKey) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Sweep drops every expired entry and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok || !c.expired(e, now) {
			continue
		}
		c.lru.Remove(key)
		removed++
	}

	if removed > 0 {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpExpire, metrics.CacheStatusSuccess, c.kind.String()).Add(float64(removed))
	}
	return removed
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Kind returns the artifact kind this cache holds.
func (c *Cache) Kind() model.Kind {
	return c.kind
}

// Capacity returns the maximum number of entries.
func (c *Cache) Capacity() int {
	return c.capacity
}

func (c *Cache) expired(e *Entry, now time.Time) bool {
	return now.Sub(e.AccessedAt) >= c.ttl
}

func (c *Cache) removed(_ model.CacheKey, e *Entry) {
	if c.onRemove != nil {
		c.onRemove(e.Location)
	}
}
