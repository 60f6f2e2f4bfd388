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

package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/metrics"
	"github.com/poiesic/searchgate/storage"
)

const DefaultTier = "free"

// DefaultAllowances is the daily web search allowance per tier.
var DefaultAllowances = map[string]int{
	"free":       10,
	"pro":        100,
	"enterprise": 1000,
}

// Decision is the outcome of a quota check or consume.
type Decision struct {
	Resource    string
	Allowed     bool
	Remaining   int
	Limit       int
	Tier        string
	WindowStart time.Time
	ResetsAt    time.Time
	// Degraded is set when the store could not be read and the decision
	// was made without it.
	Degraded bool
}

// Manager enforces per-subject, per-resource allowances over fixed windows.
//
// Check is advisory and fails open: a store error yields an allowed,
// degraded decision. Consume is the only operation that spends budget and it
// fails closed: a store error denies the spend.
type Manager struct {
	store       storage.QuotaStore
	tiers       TierResolver
	allowances  map[string]int
	defaultTier string
	window      time.Duration
	resources   []string
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger.With("component", "quota")
		return nil
	}
}

// WithTierResolver sets how subjects are mapped to tiers.
// Default resolves every subject to the default tier.
func WithTierResolver(resolver TierResolver) Option {
	return func(m *Manager) error {
		if resolver == nil {
			return errors.New("tier resolver cannot be nil")
		}
		m.tiers = resolver
		return nil
	}
}

// WithAllowances sets the per-tier limit table.
func WithAllowances(allowances map[string]int) Option {
	return func(m *Manager) error {
		if len(allowances) == 0 {
			return fmt.Errorf("%w: table is empty", ErrInvalidAllowances)
		}
		for tier, limit := range allowances {
			if limit < 0 {
				return fmt.Errorf("%w: tier %q has negative limit %d", ErrInvalidAllowances, tier, limit)
			}
		}
		m.allowances = maps.Clone(allowances)
		return nil
	}
}

// WithDefaultTier sets the tier used for unknown or unassigned subjects.
func WithDefaultTier(tier string) Option {
	return func(m *Manager) error {
		if tier == "" {
			return errors.New("default tier cannot be empty")
		}
		m.defaultTier = tier
		return nil
	}
}

// WithWindow sets the quota window length. Default is one day.
func WithWindow(window time.Duration) Option {
	return func(m *Manager) error {
		if window <= 0 {
			return core.ErrInvalidWindow
		}
		m.window = window
		return nil
	}
}

// WithResources sets the resources reported by Status.
// Default is the web search resource only.
func WithResources(resources ...string) Option {
	return func(m *Manager) error {
		if len(resources) == 0 {
			return core.ErrEmptyResource
		}
		m.resources = append([]string(nil), resources...)
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		m.now = now
		return nil
	}
}

// NewManager creates a new quota manager.
func NewManager(store storage.QuotaStore, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}

	m := &Manager{
		store:       store,
		allowances:  maps.Clone(DefaultAllowances),
		defaultTier: DefaultTier,
		window:      core.DefaultWindow,
		resources:   []string{core.ResourceWebSearch},
		now:         time.Now,
		logger:      slog.Default().With("component", "quota"),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	if _, ok := m.allowances[m.defaultTier]; !ok {
		return nil, fmt.Errorf("%w: default tier %q has no allowance", ErrInvalidAllowances, m.defaultTier)
	}
	if m.tiers == nil {
		defaultTier := m.defaultTier
		m.tiers = TierResolverFunc(func(context.Context, string) (string, error) {
			return defaultTier, nil
		})
	}

	return m, nil
}

// Window returns the configured window length.
func (m *Manager) Window() time.Duration {
	return m.window
}

// Allowance resolves the subject's tier and its limit. Unknown tiers and
// resolver failures fall back to the default tier.
func (m *Manager) Allowance(ctx context.Context, subjectID string) core.Allowance {
	tier, err := m.tiers.ResolveTier(ctx, subjectID)
	if err != nil {
		m.logger.Warn("tier resolution failed, using default tier", "subject", subjectID, "err", err)
		tier = m.defaultTier
	}
	limit, ok := m.allowances[tier]
	if !ok {
		m.logger.Warn("unknown tier, using default tier", "subject", subjectID, "tier", tier)
		tier = m.defaultTier
		limit = m.allowances[tier]
	}
	return core.Allowance{Tier: tier, Limit: limit, Window: m.window}
}

// Check reports whether the subject may consume one unit of resource.
// Store failures fail open with Degraded set.
func (m *Manager) Check(ctx context.Context, subjectID, resource string) (Decision, error) {
	if err := core.ValidateQuotaKey(subjectID, resource); err != nil {
		return Decision{}, err
	}

	now := m.now()
	allowance := m.Allowance(ctx, subjectID)
	record, err := m.store.EnsureQuota(ctx, subjectID, resource, allowance, now)
	if err != nil {
		m.logger.Warn("quota check failed, allowing request", "subject", subjectID, "resource", resource, "err", err)
		metrics.RecordQuotaDecision("check", resource, "degraded")
		windowStart := core.WindowStart(now, m.window)
		return Decision{
			Resource:    resource,
			Allowed:     allowance.Limit > 0,
			Remaining:   allowance.Limit,
			Limit:       allowance.Limit,
			Tier:        allowance.Tier,
			WindowStart: windowStart,
			ResetsAt:    windowStart.Add(m.window),
			Degraded:    true,
		}, nil
	}

	d := m.decision(resource, record)
	if d.Allowed {
		metrics.RecordQuotaDecision("check", resource, "allowed")
	} else {
		metrics.RecordQuotaDecision("check", resource, "denied")
	}
	return d, nil
}

// Consume atomically spends one unit of resource.
//
// Returns the post-consume decision. When the subject has no units left the
// decision is returned with ErrQuotaExceeded. Store failures are returned
// wrapping storage.ErrStoreUnavailable and nothing is spent.
func (m *Manager) Consume(ctx context.Context, subjectID, resource string) (Decision, error) {
	if err := core.ValidateQuotaKey(subjectID, resource); err != nil {
		return Decision{}, err
	}

	allowance := m.Allowance(ctx, subjectID)
	record, ok, err := m.store.IncrementIfBelowLimit(ctx, subjectID, resource, allowance, m.now())
	if err != nil {
		m.logger.Error("quota consume failed, denying request", "subject", subjectID, "resource", resource, "err", err)
		metrics.RecordQuotaDecision("consume", resource, "error")
		if !errors.Is(err, storage.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
		}
		return Decision{Resource: resource, Limit: allowance.Limit, Tier: allowance.Tier}, err
	}

	d := m.decision(resource, record)
	if !ok {
		metrics.RecordQuotaDecision("consume", resource, "exceeded")
		d.Allowed = false
		return d, ErrQuotaExceeded
	}

	metrics.RecordQuotaDecision("consume", resource, "consumed")
	m.logger.Debug("quota consumed", "subject", subjectID, "resource", resource, "remaining", d.Remaining)
	return d, nil
}

// Status returns a fail-open decision for every configured resource.
func (m *Manager) Status(ctx context.Context, subjectID string) ([]Decision, error) {
	decisions := make([]Decision, 0, len(m.resources))
	for _, resource := range m.resources {
		d, err := m.Check(ctx, subjectID, resource)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

func (m *Manager) decision(resource string, record *core.QuotaRecord) Decision {
	remaining := record.Remaining()
	return Decision{
		Resource:    resource,
		Allowed:     remaining > 0,
		Remaining:   remaining,
		Limit:       record.Allowance,
		Tier:        record.Tier,
		WindowStart: record.WindowStart,
		ResetsAt:    record.WindowEnd(m.window),
	}
}
