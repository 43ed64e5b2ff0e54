// Package memo provides a single-flight, process-lifetime memoizing resolver.
//
// A Cache resolves each key at most once. Concurrent callers for a key that is
// being resolved wait for that one resolution and share its result. A failed
// resolution is remembered as "unavailable" rather than retried on every call.
package memo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ResolveFunc produces the value for key. Errors and panics are absorbed by the
// Cache and recorded as an unavailable entry.
type ResolveFunc[V any] func(ctx context.Context, key string) (V, error)

// Observer is notified after every underlying resolution.
type Observer func(key string, ok bool, took time.Duration)

type entry[V any] struct {
	value V
	ok    bool
}

// Cache memoizes resolved values per key with no expiry.
type Cache[V any] struct {
	name    string
	resolve ResolveFunc[V]

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]entry[V]

	logger   *slog.Logger
	observer Observer
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithLogger sets a logger for resolution failures.
func WithLogger[V any](logger *slog.Logger) Option[V] {
	return func(c *Cache[V]) {
		c.logger = logger
	}
}

// WithObserver sets a hook invoked after each underlying resolution.
func WithObserver[V any](obs Observer) Option[V] {
	return func(c *Cache[V]) {
		c.observer = obs
	}
}

// New creates a Cache. name is used in logs only.
func New[V any](name string, resolve ResolveFunc[V], opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		name:    name,
		resolve: resolve,
		entries: make(map[string]entry[V]),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key, resolving it on first use. ok is false when the
// value is unavailable, either because resolution failed (remembered) or because
// ctx ended while waiting (not remembered).
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	if e, found := c.lookup(key); found {
		return e.value, e.ok
	}

	// Resolution runs detached from the first caller so that one caller giving up
	// does not fail the resolution for everyone else sharing it.
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if e, found := c.lookup(key); found {
			return e, nil
		}
		e := c.run(detached, key)

		c.mu.Lock()
		c.entries[key] = e
		c.mu.Unlock()
		return e, nil
	})

	select {
	case res := <-ch:
		e := res.Val.(entry[V])
		return e.value, e.ok
	case <-ctx.Done():
		var zero V
		return zero, false
	}
}

// Peek returns the cached value without triggering resolution.
func (c *Cache[V]) Peek(key string) (V, bool) {
	e, _ := c.lookup(key)
	return e.value, e.ok
}

// Resolved reports whether key has settled, successfully or not.
func (c *Cache[V]) Resolved(key string) bool {
	_, found := c.lookup(key)
	return found
}

func (c *Cache[V]) lookup(key string) (entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[key]
	return e, found
}

func (c *Cache[V]) run(ctx context.Context, key string) (e entry[V]) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e = entry[V]{}
			c.logFailure(ctx, key, fmt.Errorf("resolver panic: %v", r))
		}
		if c.observer != nil {
			c.observer(key, e.ok, time.Since(start))
		}
	}()

	v, err := c.resolve(ctx, key)
	if err != nil {
		c.logFailure(ctx, key, err)
		return entry[V]{}
	}
	return entry[V]{value: v, ok: true}
}

func (c *Cache[V]) logFailure(ctx context.Context, key string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.WarnContext(ctx, "attribute unavailable",
		"cache", c.name,
		"key", key,
		"error", err,
	)
}
