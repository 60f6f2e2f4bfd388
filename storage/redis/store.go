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

// Package redis implements the storage interfaces on a shared Redis instance.
//
// Every mutation that guards an invariant runs as a Lua script, so the
// conditional quota increment and notification dedupe are atomic across all
// processes sharing the instance. Cache keys share a hash tag so the expiry
// sweep stays on a single slot when Redis Cluster is used.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/searchgate/storage"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix   = "searchgate:"
	defaultDialTimeout = 5 * time.Second
)

// Store implements storage.Store on Redis.
type Store struct {
	client    goredis.UniversalClient
	prefix    string
	logger    *slog.Logger
	ownClient bool
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithKeyPrefix namespaces every key written by the store.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) error {
		if prefix == "" {
			return errors.New("key prefix cannot be empty")
		}
		s.prefix = prefix
		return nil
	}
}

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "redis-store")
		return nil
	}
}

// NewStore creates a Store over an existing client. The caller keeps
// ownership of the client; Close does not close it.
func NewStore(client goredis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	s := &Store{
		client: client,
		prefix: defaultKeyPrefix,
		logger: slog.Default().With("component", "redis-store"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Open connects to Redis and returns a Store that owns the connection.
// addr is either host:port, a redis:// URL, or a comma separated list of
// either for cluster deployments.
func Open(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	universal, err := buildUniversalOptions(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis address: %w", err)
	}
	client := goredis.NewUniversalClient(universal)

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to connect to Redis: %w", storage.ErrStoreUnavailable, err)
	}

	s, err := NewStore(client, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	s.ownClient = true
	s.logger.Info("connected to redis", "addrs", universal.Addrs)
	return s, nil
}

func buildUniversalOptions(raw string) (*goredis.UniversalOptions, error) {
	opts := &goredis.UniversalOptions{}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}

		parsed, err := goredis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}

	if len(opts.Addrs) == 0 {
		return nil, errors.New("no Redis addresses provided")
	}
	if len(opts.Addrs) > 1 {
		// Cluster mode only supports database 0
		opts.DB = 0
	}
	return opts, nil
}

func (s *Store) Quotas() storage.QuotaStore               { return (*quotaStore)(s) }
func (s *Store) Cache() storage.CacheStore                { return (*cacheStore)(s) }
func (s *Store) Notifications() storage.NotificationStore { return (*notificationStore)(s) }
func (s *Store) Tiers() storage.TierStore                 { return (*tierStore)(s) }

// Close closes the client if the store opened it.
func (s *Store) Close() error {
	if !s.ownClient {
		return nil
	}
	return s.client.Close()
}

func (s *Store) key(parts ...string) string {
	return s.prefix + strings.Join(parts, ":")
}

// translate maps client errors onto the storage error vocabulary.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, goredis.Nil):
		return storage.ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, goredis.ErrClosed):
		return fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, storage.ErrStorageClosed)
	default:
		return fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
	}
}
