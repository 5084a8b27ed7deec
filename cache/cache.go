// Package cache provides the in-memory verification cache: a bounded map from
// a credential hash to a previously verified identity with a time-to-live.
//
// Entries are evicted lazily on lookup, periodically by a background sweeper,
// and, when the cache is full, in order of insertion (oldest created first).
// Reads never refresh an entry's position, so eviction is not LRU-by-access.
package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/flownity-dev/flownity-backend-sub000/core"
)

const (
	// DefaultMaxEntries is the default capacity.
	DefaultMaxEntries = 1000

	// DefaultSweepInterval is how often expired entries are swept.
	DefaultSweepInterval = time.Minute

	// DefaultSweepBatch is how many keys one sweep step inspects while
	// holding the lock.
	DefaultSweepBatch = 256
)

// Logger defines an optional logging interface compatible with log/slog.
type Logger = core.Logger

// Entry is a cached identity with its lifetime.
type Entry struct {
	Identity  core.Identity
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (e *Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Cache is safe for concurrent use. The zero value is not usable; create
// one with New and release it with Close.
type Cache struct {
	mu      sync.Mutex
	entries *simplelru.LRU[string, *Entry]

	now           func() time.Time
	sweepInterval time.Duration
	sweepBatch    int
	logger        Logger
	onEvict       func(reason string)

	// evictReason labels the next simplelru eviction callback; empty
	// means the removal is not reported. Guarded by mu.
	evictReason string

	// sweeper lifecycle, guarded by mu
	sweeping bool
	closed   bool
	stop     chan struct{}
	wg       sync.WaitGroup
}

var _ core.Cache = (*Cache)(nil)

// New creates a Cache.
//
// Example:
//
//	c, err := cache.New(
//	    cache.WithMaxEntries(5000),
//	    cache.WithSweepInterval(30*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
func New(opts ...Option) (*Cache, error) {
	cfg := &config{
		maxEntries:    DefaultMaxEntries,
		sweepInterval: DefaultSweepInterval,
		sweepBatch:    DefaultSweepBatch,
		now:           time.Now,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	c := &Cache{
		now:           cfg.now,
		sweepInterval: cfg.sweepInterval,
		sweepBatch:    cfg.sweepBatch,
		logger:        cfg.logger,
		onEvict:       cfg.onEvict,
		stop:          make(chan struct{}),
		evictReason:   evictCapacity,
	}

	entries, err := simplelru.NewLRU[string, *Entry](cfg.maxEntries, func(string, *Entry) {
		c.evicted(c.evictReason)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	c.entries = entries

	return c, nil
}

// Get returns the identity cached for credential. Expired entries are
// treated as absent and removed, whether or not a sweep has run.
func (c *Cache) Get(credential string) (core.Identity, bool) {
	key := core.HashCredential(credential)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Peek(key)
	if !ok {
		return core.Identity{}, false
	}
	if entry.expired(now) {
		c.removeLocked(key, evictExpired)
		return core.Identity{}, false
	}
	return entry.Identity, true
}

// Set caches identity for credential. A non-positive ttl stores nothing.
// When the cache is full the entry created earliest is evicted first.
func (c *Cache) Set(credential string, identity core.Identity, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	key := core.HashCredential(credential)
	now := c.now()
	entry := &Entry{
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	// Replacing a key must refresh its insertion position, which
	// simplelru only does for Add on a new key.
	c.removeLocked(key, "")
	c.entries.Add(key, entry)
	c.startSweeperLocked()
}

// Entry returns a copy of the raw cache entry for credential, including
// expired entries that have not been swept yet.
func (c *Cache) Entry(credential string) (Entry, bool) {
	key := core.HashCredential(credential)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Peek(key)
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeLocked()
}

// ForceCleanup removes all expired entries immediately and returns how many
// were removed.
func (c *Cache) ForceCleanup() int {
	return c.sweep()
}

// Close stops the background sweeper and clears the cache. Set becomes a
// no-op afterwards.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.New("cache already closed")
	}
	c.closed = true
	close(c.stop)
	c.purgeLocked()
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

const (
	evictCapacity = "capacity"
	evictExpired  = "expired"
)

// removeLocked deletes key, reporting the removal under reason unless
// reason is empty.
func (c *Cache) removeLocked(key, reason string) {
	c.evictReason = reason
	c.entries.Remove(key)
	c.evictReason = evictCapacity
}

func (c *Cache) purgeLocked() {
	c.evictReason = ""
	c.entries.Purge()
	c.evictReason = evictCapacity
}

func (c *Cache) evicted(reason string) {
	if reason == "" {
		return
	}
	if c.logger != nil {
		c.logger.Debug("verification cache entry evicted", "reason", reason)
	}
	if c.onEvict != nil {
		c.onEvict(reason)
	}
}
