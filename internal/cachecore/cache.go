// Package cachecore implements the KeyedSingleflightCache described in
// SPEC_FULL.md §4.1: a bounded, LRU + idle-TTL map keyed by an arbitrary
// comparable key, guaranteeing at most one in-flight producer per key and
// never caching a negative (error) outcome.
//
// It generalizes the teacher's two-tier (pkg/history/cache) manager: where
// that cache fans a lookup out to L1 (in-memory) then L2 (Redis), this one
// adds the single-flight collapsing a thundering herd of identical misses
// needs, and backs the bounded tier with hashicorp/golang-lru instead of a
// hand-rolled map + oldest-wins eviction loop.
package cachecore

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/wasmcache/component-cache/pkg/telemetry"
)

// Config configures one KeyedSingleflightCache instance.
type Config struct {
	// Name identifies this cache for metrics and log lines (e.g.
	// "component", "metadata").
	Name string

	// MaxCapacity bounds the number of entries; once exceeded, one LRU
	// victim is evicted per insertion.
	MaxCapacity int

	// TimeToIdle is how long an entry may go unaccessed before the
	// background reaper drops it. Zero disables idle eviction.
	TimeToIdle time.Duration

	// SweepPeriod is how often the background reaper walks the cache
	// looking for idle entries. Defaults to TimeToIdle/2 when zero and
	// TimeToIdle is set.
	SweepPeriod time.Duration
}

type entry[V any] struct {
	value      V
	lastAccess atomic.Int64 // unix nanos
}

func (e *entry[V]) touch() {
	e.lastAccess.Store(time.Now().UnixNano())
}

// call is the single-flight slot for a key that currently has no cached
// value: exactly one goroutine runs the producer, and every concurrent
// Get caller for the same key awaits call.done.
type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Cache is a bounded, LRU + idle-TTL map with single-flight semantics.
type Cache[K comparable, V any] struct {
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.CacheMetrics

	mu    sync.Mutex
	lru   *lru.Cache[K, *entry[V]]
	calls map[K]*call[V]

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a KeyedSingleflightCache and starts its background reaper.
func New[K comparable, V any](cfg Config, metrics *telemetry.CacheMetrics, logger *slog.Logger) (*Cache[K, V], error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 1
	}
	if cfg.SweepPeriod <= 0 {
		if cfg.TimeToIdle > 0 {
			cfg.SweepPeriod = cfg.TimeToIdle / 2
		}
		if cfg.SweepPeriod <= 0 {
			cfg.SweepPeriod = time.Minute
		}
	}

	c := &Cache[K, V]{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		calls:   make(map[K]*call[V]),
		stopCh:  make(chan struct{}),
	}

	evictedByCapacity := func(key K, _ *entry[V]) {
		c.metrics.RecordEviction(c.cfg.Name, "capacity")
		c.logger.Debug("cache entry evicted by capacity", "cache", c.cfg.Name, "key", key)
	}
	l, err := lru.NewWithEvict[K, *entry[V]](cfg.MaxCapacity, evictedByCapacity)
	if err != nil {
		return nil, err
	}
	c.lru = l

	if cfg.TimeToIdle > 0 {
		go c.reap()
	}

	return c, nil
}

// Producer is the async computation run at most once per key for every
// window of concurrent misses.
type Producer[V any] func(ctx context.Context) (V, error)

// GetOrInsert returns the cached value for key, computing it via producer
// on a miss. Concurrent callers for the same key collapse onto a single
// producer invocation and all observe the same outcome. A producer error
// is delivered to every current waiter but never cached: the next call
// for the same key starts a fresh producer.
//
// producer is invoked with a context independent of ctx (effectively
// context.Background()), not any individual caller's context: Go runs the
// producer in its own goroutine regardless of which caller created it, so
// there is no "leader" whose cancellation could orphan the computation —
// every caller, including the one that happened to start the producer, is
// just a waiter on its outcome. Cancelling ctx only stops *this* call from
// waiting; it never touches the producer or the cache entry.
func (c *Cache[K, V]) GetOrInsert(ctx context.Context, key K, producer Producer[V]) (V, error) {
	c.mu.Lock()
	if e, ok := c.lru.Get(key); ok {
		e.touch()
		c.mu.Unlock()
		c.metrics.RecordHit(c.cfg.Name)
		return e.value, nil
	}

	if cl, ok := c.calls[key]; ok {
		c.mu.Unlock()
		return c.await(ctx, cl)
	}

	cl := &call[V]{done: make(chan struct{})}
	c.calls[key] = cl
	c.mu.Unlock()

	c.metrics.RecordMiss(c.cfg.Name)
	c.metrics.RecordProducerStart(c.cfg.Name)

	go c.run(key, cl, producer)

	return c.await(ctx, cl)
}

func (c *Cache[K, V]) run(key K, cl *call[V], producer Producer[V]) {
	val, err := producer(context.Background())
	cl.val, cl.err = val, err

	c.mu.Lock()
	delete(c.calls, key)
	if err == nil {
		e := &entry[V]{value: val}
		e.touch()
		c.lru.Add(key, e)
		c.metrics.SetEntries(c.cfg.Name, c.lru.Len())
	}
	c.mu.Unlock()

	if err != nil {
		c.metrics.RecordProducerError(c.cfg.Name)
	}

	close(cl.done)
}

func (c *Cache[K, V]) await(ctx context.Context, cl *call[V]) (V, error) {
	select {
	case <-cl.done:
		return cl.val, cl.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Put inserts value under key directly, bypassing the single-flight
// producer path. It exists for callers that have already produced a value
// through some other route (e.g. a "fetch latest" call that must bypass
// the cache on read but still wants to memoize what it found) and need to
// populate the cache under a key that was not known until after the fetch.
func (c *Cache[K, V]) Put(key K, value V) {
	e := &entry[V]{value: value}
	e.touch()

	c.mu.Lock()
	c.lru.Add(key, e)
	c.metrics.SetEntries(c.cfg.Name, c.lru.Len())
	c.mu.Unlock()
}

// Len returns the number of entries currently held (not counting in-flight
// single-flight slots).
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Close stops the background reaper. Safe to call more than once.
func (c *Cache[K, V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *Cache[K, V]) reap() {
	ticker := time.NewTicker(c.cfg.SweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache[K, V]) sweep() {
	cutoff := time.Now().Add(-c.cfg.TimeToIdle).UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if e.lastAccess.Load() < cutoff {
			c.lru.Remove(key)
			c.metrics.RecordEviction(c.cfg.Name, "idle")
			c.logger.Debug("cache entry reaped for idleness", "cache", c.cfg.Name, "key", key)
		}
	}
	c.metrics.SetEntries(c.cfg.Name, c.lru.Len())
}
