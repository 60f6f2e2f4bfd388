package badger

import (
	"context"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/storage"
)

// TierRepository implements storage.TierStore for BadgerDB.
type TierRepository struct {
	backend *Backend
}

var _ storage.TierStore = (*TierRepository)(nil)

// NewTierRepository creates a new TierRepository.
func NewTierRepository(backend *Backend) *TierRepository {
	return &TierRepository{
		backend: backend,
	}
}

// GetTier returns the subject's explicit tier assignment.
func (r *TierRepository) GetTier(ctx context.Context, subjectID string) (string, error) {
	var tier string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeTierKey(subjectID))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		tier = string(val)
		return nil
	}, false)
	return tier, err
}

// SetTier assigns a tier; an empty tier removes the assignment.
func (r *TierRepository) SetTier(ctx context.Context, subjectID, tier string) error {
	if strings.TrimSpace(subjectID) == "" {
		return core.ErrEmptySubject
	}

	key := makeTierKey(subjectID)
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		if tier == "" {
			return tx.Delete(key)
		}
		return tx.Set(key, []byte(tier))
	})
}
