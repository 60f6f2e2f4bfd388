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

package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/storage"
)

// QuotaRepository implements storage.QuotaStore for BadgerDB.
type QuotaRepository struct {
	backend *Backend
}

var _ storage.QuotaStore = (*QuotaRepository)(nil)

// NewQuotaRepository creates a new QuotaRepository.
func NewQuotaRepository(backend *Backend) *QuotaRepository {
	return &QuotaRepository{
		backend: backend,
	}
}

// GetQuota retrieves the stored record without rolling it over.
func (r *QuotaRepository) GetQuota(ctx context.Context, subjectID, resource string) (*core.QuotaRecord, error) {
	if err := core.ValidateQuotaKey(subjectID, resource); err != nil {
		return nil, err
	}

	var record *core.QuotaRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		record, err = readQuota(tx, makeQuotaKey(subjectID, resource))
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return record, err
}

// EnsureQuota loads or lazily creates the record for the active window.
// The record is only written when it was created, rolled over or its
// allowance changed.
func (r *QuotaRepository) EnsureQuota(ctx context.Context, subjectID, resource string, allowance core.Allowance, now time.Time) (*core.QuotaRecord, error) {
	record, _, err := r.apply(ctx, subjectID, resource, allowance, now, false)
	return record, err
}

// IncrementIfBelowLimit atomically charges one unit when the limit allows it.
func (r *QuotaRepository) IncrementIfBelowLimit(ctx context.Context, subjectID, resource string, allowance core.Allowance, now time.Time) (*core.QuotaRecord, bool, error) {
	return r.apply(ctx, subjectID, resource, allowance, now, true)
}

func (r *QuotaRepository) apply(ctx context.Context, subjectID, resource string, allowance core.Allowance, now time.Time, increment bool) (*core.QuotaRecord, bool, error) {
	if err := core.ValidateQuotaKey(subjectID, resource); err != nil {
		return nil, false, err
	}
	if err := core.ValidateAllowance(allowance); err != nil {
		return nil, false, err
	}

	key := makeQuotaKey(subjectID, resource)
	var (
		record      *core.QuotaRecord
		incremented bool
	)
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		// Reset per attempt; Update may run this function more than once.
		incremented = false

		var err error
		record, err = readQuota(tx, key)
		if err != nil {
			return err
		}

		dirty := false
		if record == nil {
			record = &core.QuotaRecord{
				SubjectID:   subjectID,
				Resource:    resource,
				WindowStart: core.WindowStart(now, allowance.Window),
			}
			dirty = true
		} else if record.Rollover(now, allowance.Window) {
			dirty = true
		}

		if record.Tier != allowance.Tier || record.Allowance != allowance.Limit {
			record.Tier = allowance.Tier
			record.Allowance = allowance.Limit
			dirty = true
		}

		if increment && record.Consumed < record.Allowance {
			record.Consumed++
			incremented = true
			dirty = true
		}

		if !dirty {
			return nil
		}
		return tx.Set(key, storage.MarshalQuotaRecord(record))
	})
	if err != nil {
		return nil, false, err
	}
	return record, incremented, nil
}

// readQuota reads a quota record, returning nil if it doesn't exist.
func readQuota(tx *badger.Txn, key []byte) (*core.QuotaRecord, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *core.QuotaRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalQuotaRecord(val)
		return unmarshalErr
	})
	return record, err
}
