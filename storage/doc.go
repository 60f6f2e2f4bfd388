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

// Package storage provides the storage abstraction layer for searchgate.
//
// This package defines the store interfaces that decouple the quota, cache and
// notification logic from the storage driver. Two drivers ship with the module:
//
//   - storage/badger: embedded BadgerDB, the default for single-node deployments
//   - storage/redis: a shared Redis instance for multi-process deployments
//
// # Architecture
//
//   - QuotaStore: per-subject quota records with an atomic conditional increment
//   - CacheStore: fingerprint-addressed web search payloads with a time index
//   - NotificationStore: the notification sink, deduplicated by key
//   - TierStore: subject to tier assignments
//   - Store: bundles the four stores served by one driver
//
// # Atomicity
//
// IncrementIfBelowLimit is the only operation that guards a budget. Drivers
// must make it linearizable per (subject, resource): concurrent callers holding
// the last unit observe exactly one success. Window rollover happens inside the
// same atomic step, before the limit comparison.
//
// CreateNotification must honour DedupeKey atomically: for a given key at most
// one notification is ever created.
//
// # Errors
//
// Drivers return ErrNotFound for missing records and wrap any backend failure
// with ErrStoreUnavailable so callers can choose between failing open and
// failing closed.
//
// # Usage
//
//	store, err := badger.OpenStore("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//
// # Thread Safety
//
// All store implementations must be thread-safe and support concurrent access
// from multiple goroutines and, for shared drivers, multiple processes.
package storage
