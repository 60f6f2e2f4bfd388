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

package storage

import (
	"context"
	"time"

	"github.com/poiesic/searchgate/core"
)

// QuotaStore persists quota records.
// Implementations must be thread-safe and support concurrent access.
type QuotaStore interface {
	// GetQuota returns the stored record for (subjectID, resource) as is,
	// without rolling it over. Returns ErrNotFound if no record exists.
	GetQuota(ctx context.Context, subjectID, resource string) (*core.QuotaRecord, error)

	// EnsureQuota loads the record for (subjectID, resource), creating it lazily
	// when absent. The record is rolled over to the window containing now and
	// its tier and allowance refreshed from allowance. Consumed is never
	// incremented.
	EnsureQuota(ctx context.Context, subjectID, resource string, allowance core.Allowance, now time.Time) (*core.QuotaRecord, error)

	// IncrementIfBelowLimit atomically loads or creates the record, rolls it
	// over, refreshes its allowance and, if Consumed < allowance.Limit,
	// increments Consumed. Returns the record after the operation and whether
	// the increment happened.
	IncrementIfBelowLimit(ctx context.Context, subjectID, resource string, allowance core.Allowance, now time.Time) (*core.QuotaRecord, bool, error)
}

// CacheStore persists web search payloads keyed by query fingerprint.
type CacheStore interface {
	// GetCacheEntry returns the entry for key regardless of age.
	// Returns ErrNotFound if no entry exists.
	GetCacheEntry(ctx context.Context, key string) (*core.CacheEntry, error)

	// PutCacheEntry stores entry, replacing any existing entry with the same key.
	// Concurrent writers race with last-writer-wins semantics.
	PutCacheEntry(ctx context.Context, entry *core.CacheEntry) error

	// DeleteCacheEntriesBefore removes every entry whose CreatedAt is at or
	// before cutoff and returns how many were removed. Safe to run concurrently
	// with reads and writes, and idempotent.
	DeleteCacheEntriesBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// NotificationStore is the notification sink.
type NotificationStore interface {
	// CreateNotification stores n. When n.DedupeKey is set and a notification
	// with the same key already exists, nothing is stored and created is false.
	// ID and CreatedAt are filled in when empty.
	CreateNotification(ctx context.Context, n *core.Notification) (created bool, err error)

	// ListNotifications returns up to limit notifications for subjectID,
	// most recent first.
	ListNotifications(ctx context.Context, subjectID string, limit int) ([]*core.Notification, error)
}

// TierStore persists subject to tier assignments.
type TierStore interface {
	// GetTier returns the tier assigned to subjectID.
	// Returns ErrNotFound if the subject has no explicit assignment.
	GetTier(ctx context.Context, subjectID string) (string, error)

	// SetTier assigns tier to subjectID. An empty tier removes the assignment.
	SetTier(ctx context.Context, subjectID, tier string) error
}

// Store bundles the stores served by a single storage driver.
type Store interface {
	Quotas() QuotaStore
	Cache() CacheStore
	Notifications() NotificationStore
	Tiers() TierStore

	// Close releases the driver's resources.
	Close() error
}
