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
	"fmt"

	"github.com/poiesic/searchgate/core"
)

// MarshalQuotaRecord serializes a QuotaRecord to bytes.
func MarshalQuotaRecord(record *core.QuotaRecord) []byte {
	buf := make([]byte, core.QuotaRecordMUS.Size(*record))
	core.QuotaRecordMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalQuotaRecord deserializes a QuotaRecord from bytes.
func UnmarshalQuotaRecord(data []byte) (*core.QuotaRecord, error) {
	record, _, err := core.QuotaRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: quota record: %w", ErrSerializationFailed, err)
	}
	return &record, nil
}

// MarshalCacheEntry serializes a CacheEntry to bytes.
func MarshalCacheEntry(entry *core.CacheEntry) []byte {
	buf := make([]byte, core.CacheEntryMUS.Size(*entry))
	core.CacheEntryMUS.Marshal(*entry, buf)
	return buf
}

// UnmarshalCacheEntry deserializes a CacheEntry from bytes.
func UnmarshalCacheEntry(data []byte) (*core.CacheEntry, error) {
	entry, _, err := core.CacheEntryMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: cache entry: %w", ErrSerializationFailed, err)
	}
	return &entry, nil
}

// MarshalWebResults serializes WebResults to bytes.
func MarshalWebResults(results *core.WebResults) []byte {
	buf := make([]byte, core.WebResultsMUS.Size(*results))
	core.WebResultsMUS.Marshal(*results, buf)
	return buf
}

// UnmarshalWebResults deserializes WebResults from bytes.
func UnmarshalWebResults(data []byte) (*core.WebResults, error) {
	results, _, err := core.WebResultsMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: web results: %w", ErrSerializationFailed, err)
	}
	return &results, nil
}

// MarshalNotification serializes a Notification to bytes.
func MarshalNotification(n *core.Notification) []byte {
	buf := make([]byte, core.NotificationMUS.Size(*n))
	core.NotificationMUS.Marshal(*n, buf)
	return buf
}

// UnmarshalNotification deserializes a Notification from bytes.
func UnmarshalNotification(data []byte) (*core.Notification, error) {
	n, _, err := core.NotificationMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: notification: %w", ErrSerializationFailed, err)
	}
	return &n, nil
}
