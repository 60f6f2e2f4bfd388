// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cache stores external web search results by query fingerprint so
// repeated queries within the TTL never trigger a second paid call.
//
// The cache is an optimization: every store failure degrades to a miss on
// read and a dropped write, and never surfaces to the caller.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/metrics"
	"github.com/poiesic/searchgate/storage"
)

// DefaultTTL is how long a cached result stays readable.
const DefaultTTL = 24 * time.Hour

// ErrStoreRequired is returned when a cache store is not provided.
var ErrStoreRequired = errors.New("cache store required")

// Cache is the web search result cache.
type Cache struct {
	store        storage.CacheStore
	ttl          time.Duration
	maxKeyLength int
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "cache")
		return nil
	}
}

// WithTTL sets how long entries stay readable.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) error {
		if ttl <= 0 {
			return errors.New("cache ttl must be positive")
		}
		c.ttl = ttl
		return nil
	}
}

// WithMaxKeyLength bounds fingerprint length.
func WithMaxKeyLength(n int) Option {
	return func(c *Cache) error {
		if n < MinMaxKeyLength {
			return fmt.Errorf("max key length must be at least %d, got %d", MinMaxKeyLength, n)
		}
		c.maxKeyLength = n
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		c.now = now
		return nil
	}
}

// New creates a new Cache.
func New(store storage.CacheStore, opts ...Option) (*Cache, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	c := &Cache{
		store:        store,
		ttl:          DefaultTTL,
		maxKeyLength: DefaultMaxKeyLength,
		now:          time.Now,
		logger:       slog.Default().With("component", "cache"),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Key returns the fingerprint used for query.
func (c *Cache) Key(query string) string {
	return Fingerprint(query, c.maxKeyLength)
}

// Get returns the cached results for query if a fresh entry exists.
// Expired entries are misses even before cleanup removes them.
func (c *Cache) Get(ctx context.Context, query string) (*core.WebResults, bool) {
	key := c.Key(query)

	entry, err := c.store.GetCacheEntry(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			metrics.RecordCacheLookup("miss")
			return nil, false
		}
		c.logger.Warn("cache read failed, treating as miss", "key", key, "err", err)
		metrics.RecordCacheLookup("error")
		return nil, false
	}

	if !entry.Fresh(c.now(), c.ttl) {
		metrics.RecordCacheLookup("expired")
		return nil, false
	}

	results, err := storage.UnmarshalWebResults(entry.Payload)
	if err != nil {
		c.logger.Warn("cache entry unreadable, treating as miss", "key", key, "err", err)
		metrics.RecordCacheLookup("error")
		return nil, false
	}

	metrics.RecordCacheLookup("hit")
	return results, true
}

// Set stores results for query. Failures are logged and dropped.
func (c *Cache) Set(ctx context.Context, query string, results *core.WebResults) {
	if results == nil {
		return
	}

	entry := &core.CacheEntry{
		Key:       c.Key(query),
		Payload:   storage.MarshalWebResults(results),
		CreatedAt: c.now().UTC(),
	}
	if err := c.store.PutCacheEntry(ctx, entry); err != nil {
		c.logger.Warn("cache write failed, dropping entry", "key", entry.Key, "err", err)
	}
}

// Cleanup deletes every entry older than the TTL and returns how many were
// removed. It is idempotent and safe to run alongside reads and writes.
func (c *Cache) Cleanup(ctx context.Context) (int, error) {
	cutoff := c.now().Add(-c.ttl)
	removed, err := c.store.DeleteCacheEntriesBefore(ctx, cutoff)
	metrics.RecordCacheEvictions(removed)
	if err != nil {
		return removed, err
	}
	c.logger.Debug("cache cleanup complete", "removed", removed, "cutoff", cutoff)
	return removed, nil
}
