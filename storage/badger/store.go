package badger

import (
	"github.com/poiesic/searchgate/storage"
)

// Store bundles the BadgerDB repositories sharing one backend.
type Store struct {
	backend       *Backend
	quotas        *QuotaRepository
	cache         *CacheRepository
	notifications *NotificationRepository
	tiers         *TierRepository
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a Store over an open backend.
// Closing the Store closes the backend.
func NewStore(backend *Backend) *Store {
	return &Store{
		backend:       backend,
		quotas:        NewQuotaRepository(backend),
		cache:         NewCacheRepository(backend),
		notifications: NewNotificationRepository(backend),
		tiers:         NewTierRepository(backend),
	}
}

// OpenStore opens a BadgerDB database and returns a Store over it.
func OpenStore(filePath string, inMemory bool) (*Store, error) {
	backend, err := OpenBackend(filePath, inMemory)
	if err != nil {
		return nil, err
	}
	return NewStore(backend), nil
}

func (s *Store) Quotas() storage.QuotaStore               { return s.quotas }
func (s *Store) Cache() storage.CacheStore                { return s.cache }
func (s *Store) Notifications() storage.NotificationStore { return s.notifications }
func (s *Store) Tiers() storage.TierStore                 { return s.tiers }

// Backend returns the underlying backend.
func (s *Store) Backend() *Backend {
	return s.backend
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
