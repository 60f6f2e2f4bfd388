package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/searchgate/storage"
)

const (
	defaultConflictRetries = 64
	conflictBaseDelay      = 200 * time.Microsecond
	conflictMaxDelay       = 20 * time.Millisecond
)

var errClosed = fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, storage.ErrStorageClosed)

// Backend wraps a BadgerDB instance and provides low-level operations.
type Backend struct {
	db              *badger.DB
	logger          *slog.Logger
	conflictRetries int
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Ensure directory exists
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:              db,
		logger:          logger,
		conflictRetries: defaultConflictRetries,
	}, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction and fn is responsible
// for committing it. The transaction is always discarded afterwards.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return errClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return translate(fn(tx))
}

// Update runs fn in a read-write transaction and commits it.
//
// Badger transactions are optimistic: if another transaction committed a write
// to a key fn read, Commit fails with ErrConflict. Update then re-runs fn
// against a fresh snapshot after a short jittered backoff, so fn must be
// free of side effects outside the transaction.
func (b *Backend) Update(ctx context.Context, fn func(tx *badger.Txn) error) error {
	if b.db.IsClosed() {
		return errClosed
	}

	delay := conflictBaseDelay
	for attempt := 1; ; attempt++ {
		err := b.tryUpdate(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return translate(err)
		}
		if attempt >= b.conflictRetries {
			b.logger.Warn("transaction conflict retries exhausted", "attempts", attempt)
			return fmt.Errorf("%w: %d conflicting attempts", storage.ErrTransactionFailed, attempt)
		}

		wait := delay/2 + rand.N(delay/2+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay = min(delay*2, conflictMaxDelay)
	}
}

func (b *Backend) tryUpdate(fn func(tx *badger.Txn) error) error {
	tx := b.db.NewTransaction(true)
	defer tx.Discard()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// translate maps badger errors onto the storage error vocabulary.
// Storage errors and context errors pass through unchanged.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return storage.ErrNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return errClosed
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrStoreUnavailable),
		errors.Is(err, storage.ErrStorageClosed),
		errors.Is(err, storage.ErrTransactionFailed),
		errors.Is(err, storage.ErrSerializationFailed),
		errors.Is(err, storage.ErrInvalidQuery),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, badger.ErrConflict):
		return err
	default:
		return fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
	}
}
