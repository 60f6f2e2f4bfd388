package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/storage"
)

// NotificationRepository implements storage.NotificationStore for BadgerDB.
type NotificationRepository struct {
	backend *Backend
}

var _ storage.NotificationStore = (*NotificationRepository)(nil)

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(backend *Backend) *NotificationRepository {
	return &NotificationRepository{
		backend: backend,
	}
}

// CreateNotification stores a notification unless its dedupe key was already used.
func (r *NotificationRepository) CreateNotification(ctx context.Context, n *core.Notification) (bool, error) {
	if err := core.ValidateNotification(n); err != nil {
		return false, err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	created := false
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		created = false
		if n.DedupeKey != "" {
			dk := makeDedupeKey(n.DedupeKey)
			_, err := tx.Get(dk)
			switch {
			case err == nil:
				return nil
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			if err := tx.Set(dk, []byte(n.ID)); err != nil {
				return err
			}
		}

		key := makeNotificationKey(n.SubjectID, n.CreatedAt, n.ID)
		if err := tx.Set(key, storage.MarshalNotification(n)); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// ListNotifications returns a subject's notifications, most recent first.
func (r *NotificationRepository) ListNotifications(ctx context.Context, subjectID string, limit int) ([]*core.Notification, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	prefix := makeNotificationPrefix(subjectID)
	var results []*core.Notification
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Reverse iteration starts from the last key with the prefix
		seekKey := append(append([]byte{}, prefix...), 0xFF)
		for iter.Seek(seekKey); iter.Valid() && len(results) < limit; iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				n, err := storage.UnmarshalNotification(val)
				if err != nil {
					return err
				}
				results = append(results, n)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)

	return results, err
}
