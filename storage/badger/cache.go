package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/storage"
)

const defaultDeleteBatchSize = 500

// CacheRepository implements storage.CacheStore for BadgerDB.
//
// Entries are stored under their fingerprint with a secondary index ordered by
// creation time, so expiry sweeps only visit expired keys.
type CacheRepository struct {
	backend   *Backend
	batchSize int
}

var _ storage.CacheStore = (*CacheRepository)(nil)

// NewCacheRepository creates a new CacheRepository.
func NewCacheRepository(backend *Backend) *CacheRepository {
	return &CacheRepository{
		backend:   backend,
		batchSize: defaultDeleteBatchSize,
	}
}

// GetCacheEntry retrieves an entry by fingerprint regardless of its age.
func (r *CacheRepository) GetCacheEntry(ctx context.Context, key string) (*core.CacheEntry, error) {
	var entry *core.CacheEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		entry, err = readCacheEntry(tx, makeCacheEntryKey(key))
		if err != nil {
			return err
		}
		if entry == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return entry, err
}

// PutCacheEntry stores an entry, replacing any previous one with the same key.
func (r *CacheRepository) PutCacheEntry(ctx context.Context, entry *core.CacheEntry) error {
	if entry == nil || entry.Key == "" {
		return storage.ErrInvalidQuery
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	primary := makeCacheEntryKey(entry.Key)
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		old, err := readCacheEntry(tx, primary)
		if err != nil {
			return err
		}
		if old != nil && !old.CreatedAt.Equal(entry.CreatedAt) {
			if err := tx.Delete(makeCacheTimeKey(old.CreatedAt, old.Key)); err != nil {
				return err
			}
		}

		if err := tx.Set(primary, storage.MarshalCacheEntry(entry)); err != nil {
			return err
		}
		return tx.Set(makeCacheTimeKey(entry.CreatedAt, entry.Key), []byte{})
	})
}

// DeleteCacheEntriesBefore removes entries created at or before cutoff.
// Work is split into bounded transactions; each batch re-reads the primary
// entry so an entry re-set after the scan is left in place.
func (r *CacheRepository) DeleteCacheEntriesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		batch, err := r.scanExpired(cutoff)
		if err != nil {
			return removed, err
		}
		if len(batch) == 0 {
			return removed, nil
		}

		n := 0
		err = r.backend.Update(ctx, func(tx *badger.Txn) error {
			n = 0
			for _, idx := range batch {
				entry, err := readCacheEntry(tx, makeCacheEntryKey(idx.key))
				if err != nil {
					return err
				}
				if entry != nil && entry.CreatedAt.UnixMicro() == idx.micro {
					if err := tx.Delete(makeCacheEntryKey(idx.key)); err != nil {
						return err
					}
					n++
				}
				if err := tx.Delete(idx.raw); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return removed, err
		}
		removed += n

		if len(batch) < r.batchSize {
			return removed, nil
		}
	}
}

type cacheIndexKey struct {
	raw   []byte
	micro int64
	key   string
}

// scanExpired collects up to batchSize index keys at or before cutoff.
func (r *CacheRepository) scanExpired(cutoff time.Time) ([]cacheIndexKey, error) {
	var batch []cacheIndexKey
	cutoffMicro := cutoff.UnixMicro()

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(cacheTimePrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid() && len(batch) < r.batchSize; iter.Next() {
			raw := iter.Item().KeyCopy(nil)
			micro, key, ok := parseCacheTimeKey(raw)
			if !ok {
				continue
			}
			if micro > cutoffMicro {
				break
			}
			batch = append(batch, cacheIndexKey{raw: raw, micro: micro, key: key})
		}
		return nil
	}, false)

	return batch, err
}

// readCacheEntry reads a cache entry, returning nil if it doesn't exist.
func readCacheEntry(tx *badger.Txn, key []byte) (*core.CacheEntry, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var entry *core.CacheEntry
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		entry, unmarshalErr = storage.UnmarshalCacheEntry(val)
		return unmarshalErr
	})
	return entry, err
}
