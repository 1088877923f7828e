// Package memory provides in-memory implementations of the ports, used in
// tests and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/pulse/adapters/clock"
	"github.com/artpar/pulse/ports"
)

// Cache is an in-memory implementation of ports.Cache with Redis-like
// semantics: counters are decimal strings and hashes hold integer fields.
// Keys are spread over fnv-hashed shards to reduce lock contention.
type Cache struct {
	shards  []*cacheShard
	clock   ports.Clock
	failure atomic.Pointer[error]

	sweep *time.Ticker
	done  chan struct{}
	once  sync.Once
}

type cacheShard struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	value     []byte
	hash      map[string]int64
	expiresAt time.Time
}

const defaultShards = 32

// NewCache creates an empty cache. A nil clock uses the system clock.
// Expired keys are evicted lazily on access; call StartSweeper to also
// evict them in the background.
func NewCache(c ports.Clock) *Cache {
	if c == nil {
		c = clock.Real{}
	}
	cache := &Cache{
		shards: make([]*cacheShard, defaultShards),
		clock:  c,
		done:   make(chan struct{}),
	}
	for i := range cache.shards {
		cache.shards[i] = &cacheShard{entries: make(map[string]*cacheEntry)}
	}
	return cache
}

// StartSweeper evicts expired keys every interval until Close.
func (c *Cache) StartSweeper(interval time.Duration) {
	if interval <= 0 || c.sweep != nil {
		return
	}
	c.sweep = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-c.sweep.C:
				c.Sweep()
			case <-c.done:
				return
			}
		}
	}()
}

// Sweep evicts every expired key.
func (c *Cache) Sweep() {
	for _, sh := range c.shards {
		sh.mu.Lock()
		for k := range sh.entries {
			c.live(sh, k)
		}
		sh.mu.Unlock()
	}
}

func (c *Cache) shard(key string) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

func (c *Cache) err() error {
	if p := c.failure.Load(); p != nil {
		return *p
	}
	return nil
}

// live returns the entry for key, evicting it if expired. Callers hold sh.mu.
func (c *Cache) live(sh *cacheShard, key string) *cacheEntry {
	e, ok := sh.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !c.clock.Now().Before(e.expiresAt) {
		delete(sh.entries, key)
		return nil
	}
	return e
}

func (c *Cache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.clock.Now().Add(ttl)
}

// Get returns a string value.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := c.err(); err != nil {
		return nil, false, err
	}
	sh := c.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e := c.live(sh, key)
	if e == nil || e.hash != nil {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

// Set stores a string value.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.err(); err != nil {
		return err
	}
	sh := c.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.entries[key] = &cacheEntry{value: append([]byte(nil), value...), expiresAt: c.expiry(ttl)}
	return nil
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if err := c.err(); err != nil {
		return err
	}
	for _, k := range keys {
		sh := c.shard(k)
		sh.mu.Lock()
		delete(sh.entries, k)
		sh.mu.Unlock()
	}
	return nil
}

// IncrBy increments a counter, creating it with ttl.
func (c *Cache) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if err := c.err(); err != nil {
		return 0, err
	}
	sh := c.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e := c.live(sh, key)
	if e == nil {
		e = &cacheEntry{value: []byte("0"), expiresAt: c.expiry(ttl)}
		sh.entries[key] = e
	}
	if e.hash != nil {
		return 0, fmt.Errorf("incr %s: key holds a hash", key)
	}
	n, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("incr %s: value is not an integer", key)
	}
	n += delta
	e.value = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// HIncrBy increments hash fields, creating the hash with ttl.
func (c *Cache) HIncrBy(ctx context.Context, key string, fields map[string]int64, ttl time.Duration) error {
	if err := c.err(); err != nil {
		return err
	}
	sh := c.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e := c.live(sh, key)
	if e == nil {
		e = &cacheEntry{hash: make(map[string]int64), expiresAt: c.expiry(ttl)}
		sh.entries[key] = e
	}
	if e.hash == nil {
		return fmt.Errorf("hincrby %s: key holds a string", key)
	}
	for f, d := range fields {
		e.hash[f] += d
	}
	return nil
}

// HGetAll returns a copy of a hash.
func (c *Cache) HGetAll(ctx context.Context, key string) (map[string]int64, error) {
	if err := c.err(); err != nil {
		return nil, err
	}
	sh := c.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	out := make(map[string]int64)
	if e := c.live(sh, key); e != nil {
		for f, v := range e.hash {
			out[f] = v
		}
	}
	return out, nil
}

// Ping reports the simulated failure, if any.
func (c *Cache) Ping(ctx context.Context) error {
	return c.err()
}

// Close stops the sweeper.
func (c *Cache) Close() error {
	c.once.Do(func() {
		close(c.done)
		if c.sweep != nil {
			c.sweep.Stop()
		}
	})
	return nil
}

// FailWith makes every subsequent call return err; nil restores the cache
// (for testing).
func (c *Cache) FailWith(err error) {
	if err == nil {
		c.failure.Store(nil)
		return
	}
	c.failure.Store(&err)
}

// Len returns the number of live keys (for testing).
func (c *Cache) Len() int {
	n := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		for k := range sh.entries {
			if c.live(sh, k) != nil {
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

// TTL returns the remaining lifetime of key, 0 for none (for testing).
func (c *Cache) TTL(key string) time.Duration {
	sh := c.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e := c.live(sh, key)
	if e == nil || e.expiresAt.IsZero() {
		return 0
	}
	return e.expiresAt.Sub(c.clock.Now())
}

var _ ports.Cache = (*Cache)(nil)
