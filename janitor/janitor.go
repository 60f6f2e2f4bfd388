// Package janitor periodically removes expired entries from the result cache.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultInterval    = time.Hour
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// Cleaner deletes expired entries and reports how many were removed.
type Cleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// Janitor sweeps a Cleaner on a fixed interval.
type Janitor struct {
	cleaner     Cleaner
	interval    time.Duration
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// Option configures a Janitor.
type Option func(*Janitor) error

// WithInterval sets the time between sweeps.
func WithInterval(d time.Duration) Option {
	return func(j *Janitor) error {
		if d <= 0 {
			return fmt.Errorf("interval must be positive, got %s", d)
		}
		j.interval = d
		return nil
	}
}

// WithRetry sets how often a failed sweep is retried and the base backoff.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(j *Janitor) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		if baseDelay < 0 {
			return fmt.Errorf("retry delay cannot be negative, got %s", baseDelay)
		}
		j.maxAttempts = maxAttempts
		j.retryDelay = baseDelay
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Janitor) error {
		if logger == nil {
			logger = slog.Default()
		}
		j.logger = logger.With("component", "janitor")
		return nil
	}
}

// New creates a janitor for cleaner.
func New(cleaner Cleaner, opts ...Option) (*Janitor, error) {
	if cleaner == nil {
		return nil, ErrCleanerRequired
	}
	j := &Janitor{
		cleaner:     cleaner,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		logger:      slog.Default().With("component", "janitor"),
	}
	for _, opt := range opts {
		if err := opt(j); err != nil {
			return nil, err
		}
	}
	return j, nil
}

// RunOnce performs a single sweep, retrying failures with exponential backoff.
// Entries removed by failed attempts are included in the count.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	total := 0
	err := retryWithBackoff(ctx, j.logger, func() error {
		n, err := j.cleaner.Cleanup(ctx)
		total += n
		return err
	}, j.maxAttempts, j.retryDelay)
	if err != nil {
		return total, fmt.Errorf("cache sweep failed: %w", err)
	}
	return total, nil
}

// Start sweeps in the background every interval until ctx is cancelled.
// Use Wait to block until the background loop has exited.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return ErrAlreadyStarted
	}
	j.started = true

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop(ctx)
	}()
	return nil
}

// Wait blocks until a started janitor has stopped.
func (j *Janitor) Wait() {
	j.wg.Wait()
}

func (j *Janitor) loop(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("janitor started", "interval", j.interval)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopped")
			return
		case <-ticker.C:
			removed, err := j.RunOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				j.logger.Error("cache sweep failed", "err", err, "removed", removed)
				continue
			}
			if removed > 0 {
				j.logger.Info("cache sweep complete", "removed", removed)
			}
		}
	}
}
