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

package searchgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/searchgate/ai"
	"github.com/poiesic/searchgate/ai/openai"
	"github.com/poiesic/searchgate/cache"
	"github.com/poiesic/searchgate/community"
	"github.com/poiesic/searchgate/config"
	"github.com/poiesic/searchgate/dispatch"
	"github.com/poiesic/searchgate/janitor"
	"github.com/poiesic/searchgate/notify"
	"github.com/poiesic/searchgate/orchestrator"
	"github.com/poiesic/searchgate/quota"
	"github.com/poiesic/searchgate/storage"
	"github.com/poiesic/searchgate/storage/badger"
	"github.com/poiesic/searchgate/storage/redis"
	"github.com/poiesic/searchgate/tools"
	"github.com/poiesic/searchgate/websearch"
	"github.com/poiesic/searchgate/websearch/tavily"
)

// ErrUnknownTier is returned when assigning a tier with no allowance.
var ErrUnknownTier = errors.New("unknown tier")

// Gateway wires the stores, collaborators and operations of a search gateway.
type Gateway struct {
	cfg          *config.Config
	store        storage.Store
	index        *community.Index
	quotas       *quota.Manager
	cache        *cache.Cache
	notifier     *notify.Emitter
	provider     websearch.Provider
	aiProvider   ai.AIProvider
	orchestrator *orchestrator.Orchestrator
	dispatcher   *dispatch.Dispatcher
	janitor      *janitor.Janitor
	logger       *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*gatewayOptions)

type gatewayOptions struct {
	logger     *slog.Logger
	store      storage.Store
	provider   websearch.Provider
	aiProvider ai.AIProvider
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) GatewayOption {
	return func(o *gatewayOptions) {
		o.logger = logger
	}
}

// WithStore uses store instead of opening the configured driver.
// The gateway takes ownership and closes it.
func WithStore(store storage.Store) GatewayOption {
	return func(o *gatewayOptions) {
		o.store = store
	}
}

// WithWebSearchProvider replaces the configured Tavily client.
func WithWebSearchProvider(p websearch.Provider) GatewayOption {
	return func(o *gatewayOptions) {
		o.provider = p
	}
}

// WithAIProvider replaces the configured summarizer backend.
func WithAIProvider(p ai.AIProvider) GatewayOption {
	return func(o *gatewayOptions) {
		o.aiProvider = p
	}
}

// NewGateway builds a gateway from cfg.
func NewGateway(ctx context.Context, cfg *config.Config, opts ...GatewayOption) (*Gateway, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &gatewayOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	g := &Gateway{cfg: cfg, logger: logger.With("component", "gateway")}
	ok := false
	defer func() {
		if !ok {
			g.Close()
		}
	}()

	var err error
	g.store = options.store
	if g.store == nil {
		if g.store, err = openStore(ctx, cfg, logger); err != nil {
			return nil, err
		}
	}

	if g.index, err = community.NewIndex(community.WithLogger(logger)); err != nil {
		return nil, err
	}
	if cfg.CommunityData != "" {
		if err := g.index.LoadFile(ctx, cfg.CommunityData); err != nil {
			return nil, err
		}
	}

	g.quotas, err = quota.NewManager(g.store.Quotas(),
		quota.WithLogger(logger),
		quota.WithAllowances(cfg.TierAllowances),
		quota.WithDefaultTier(cfg.DefaultTier),
		quota.WithTierResolver(quota.NewStoreTierResolver(g.store.Tiers(), cfg.DefaultTier)),
	)
	if err != nil {
		return nil, err
	}

	g.cache, err = cache.New(g.store.Cache(),
		cache.WithLogger(logger),
		cache.WithTTL(cfg.CacheTTL()),
		cache.WithMaxKeyLength(cfg.MaxCacheKeyLength),
	)
	if err != nil {
		return nil, err
	}

	g.notifier, err = notify.NewEmitter(g.store.Notifications(),
		notify.WithLogger(logger),
		notify.WithPoolSize(cfg.NotifyPoolSize),
		notify.WithLowWaterMark(cfg.LowWaterMark),
	)
	if err != nil {
		return nil, err
	}

	g.provider = options.provider
	if g.provider == nil && cfg.WebSearchEnabled() {
		client, err := tavily.NewClient(cfg.Tavily.APIKey,
			tavily.WithEndpoint(cfg.Tavily.Endpoint),
			tavily.WithSearchDepth(cfg.Tavily.SearchDepth),
			tavily.WithTimeout(cfg.ProviderTimeout),
			tavily.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		g.provider = client
	}

	g.aiProvider = options.aiProvider
	if g.aiProvider == nil && cfg.SummariesEnabled() {
		aiOpts := []ai.ConfigOption{ai.WithHost(cfg.LLM.Host)}
		if cfg.LLM.Model != "" {
			aiOpts = append(aiOpts, ai.WithModel(cfg.LLM.Model))
		}
		if cfg.LLM.Token != "" {
			aiOpts = append(aiOpts, ai.WithToken(cfg.LLM.Token))
		}
		if g.aiProvider, err = openai.NewProvider(ai.NewConfig(aiOpts...)); err != nil {
			return nil, err
		}
	}

	policy, err := orchestrator.ParseChargePolicy(cfg.ChargePolicy)
	if err != nil {
		return nil, err
	}
	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithCache(g.cache),
		orchestrator.WithNotifier(g.notifier),
		orchestrator.WithChargePolicy(policy),
		orchestrator.WithCacheHitConsumesQuota(cfg.CacheHitConsumesQuota),
		orchestrator.WithProviderTimeout(cfg.ProviderTimeout),
		orchestrator.WithMaxResults(cfg.MaxSearchResults),
	}
	if g.provider != nil {
		orchOpts = append(orchOpts, orchestrator.WithProvider(g.provider))
	} else {
		g.logger.Warn("no web search provider configured, escalations will fall back to community results")
	}
	if g.aiProvider != nil {
		orchOpts = append(orchOpts, orchestrator.WithSummarizer(g.aiProvider.Summarizer()))
	}
	if g.orchestrator, err = orchestrator.New(g.index, g.quotas, orchOpts...); err != nil {
		return nil, err
	}

	if g.dispatcher, err = dispatch.New(dispatch.WithLogger(logger)); err != nil {
		return nil, err
	}
	handlers, err := tools.NewHandlers(g.orchestrator, g.index, g.quotas, logger)
	if err != nil {
		return nil, err
	}
	if err := handlers.Register(g.dispatcher); err != nil {
		return nil, err
	}

	g.janitor, err = janitor.New(g.cache,
		janitor.WithInterval(cfg.CleanupInterval),
		janitor.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	ok = true
	return g, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Store.Driver == config.StoreDriverRedis {
		store, err := redis.Open(ctx, cfg.Store.RedisAddr,
			redis.WithKeyPrefix(cfg.Store.KeyPrefix),
			redis.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := badger.OpenStore(cfg.Store.Path, false)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Close flushes pending notifications and releases every resource.
func (g *Gateway) Close() error {
	var errs []error

	if g.notifier != nil {
		g.notifier.Release()
	}
	if g.aiProvider != nil {
		if err := g.aiProvider.Close(); err != nil {
			g.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if g.index != nil {
		if err := g.index.Close(); err != nil {
			g.logger.Error("error closing community index", "err", err)
			errs = append(errs, err)
		}
	}
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			g.logger.Error("error closing store", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the configuration the gateway was built from.
func (g *Gateway) Config() *config.Config {
	return g.cfg
}

// Dispatcher returns the operation dispatcher.
func (g *Gateway) Dispatcher() *dispatch.Dispatcher {
	return g.dispatcher
}

// Orchestrator returns the search orchestrator.
func (g *Gateway) Orchestrator() *orchestrator.Orchestrator {
	return g.orchestrator
}

// Quotas returns the quota manager.
func (g *Gateway) Quotas() *quota.Manager {
	return g.quotas
}

// Cache returns the result cache.
func (g *Gateway) Cache() *cache.Cache {
	return g.cache
}

// Index returns the community index.
func (g *Gateway) Index() *community.Index {
	return g.index
}

// Janitor returns the cache janitor. It is not started by NewGateway.
func (g *Gateway) Janitor() *janitor.Janitor {
	return g.janitor
}

// Notifications returns the notification store.
func (g *Gateway) Notifications() storage.NotificationStore {
	return g.store.Notifications()
}

// SetTier assigns subjectID to tier. The change applies to the next quota check.
func (g *Gateway) SetTier(ctx context.Context, subjectID, tier string) error {
	if _, ok := g.cfg.TierAllowances[tier]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	return g.store.Tiers().SetTier(ctx, subjectID, tier)
}
