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

// Package notify turns post-consume quota states into notifications and
// delivers them to the notification sink in the background.
//
// Emission never blocks or fails the request that triggered it: notifications
// are handed to a worker pool and failures are only logged.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/searchgate/core"
	"github.com/poiesic/searchgate/metrics"
	"github.com/poiesic/searchgate/storage"
)

const (
	DefaultLowWaterMark = 5
	DefaultPoolSize     = 4
	defaultEmitTimeout  = 5 * time.Second
)

// ErrSinkRequired is returned when a notification sink is not provided.
var ErrSinkRequired = errors.New("notification sink required")

// Emitter decides and delivers quota notifications.
type Emitter struct {
	sink         storage.NotificationStore
	pool         *ants.Pool
	lowWaterMark int
	timeout      time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	idle     *sync.Cond // signalled when pending drops to zero
	pending  int
	released bool
}

// Option configures an Emitter.
type Option func(*Emitter) error

// WithPoolSize sets the number of emission workers.
func WithPoolSize(size int) Option {
	return func(e *Emitter) error {
		if size < 1 {
			size = 1
		}
		if e.pool != nil {
			e.pool.Release()
		}
		pool, err := newPool(size, e)
		if err != nil {
			return err
		}
		e.pool = pool
		return nil
	}
}

// WithLowWaterMark sets the remaining count at or below which a warning is sent.
func WithLowWaterMark(n int) Option {
	return func(e *Emitter) error {
		if n < 0 {
			return errors.New("low water mark cannot be negative")
		}
		e.lowWaterMark = n
		return nil
	}
}

// WithTimeout bounds each delivery to the sink.
func WithTimeout(d time.Duration) Option {
	return func(e *Emitter) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		e.timeout = d
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger.With("component", "notify")
		return nil
	}
}

// NewEmitter creates an Emitter delivering to sink.
func NewEmitter(sink storage.NotificationStore, opts ...Option) (*Emitter, error) {
	if sink == nil {
		return nil, ErrSinkRequired
	}

	e := &Emitter{
		sink:         sink,
		lowWaterMark: DefaultLowWaterMark,
		timeout:      defaultEmitTimeout,
		logger:       slog.Default().With("component", "notify"),
	}
	e.idle = sync.NewCond(&e.mu)

	for _, opt := range opts {
		if err := opt(e); err != nil {
			e.Release()
			return nil, err
		}
	}

	if e.pool == nil {
		pool, err := newPool(DefaultPoolSize, e)
		if err != nil {
			return nil, err
		}
		e.pool = pool
	}

	return e, nil
}

func newPool(size int, e *Emitter) (*ants.Pool, error) {
	return ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			e.logger.Error("notification worker panicked", "panic", p)
		}),
	)
}

// Plan returns the notification warranted by a successful consume that left
// remaining units of limit in the window starting at windowStart, or nil.
//
// A warning is planned while 0 < remaining <= lowWaterMark and an exhausted
// notice when remaining reaches zero. Both carry a dedupe key scoped to the
// subject, resource and window, so the sink stores each at most once per window.
func Plan(subjectID, resource string, remaining, limit int, windowStart time.Time, lowWaterMark int) *core.Notification {
	var (
		typ     core.NotificationType
		message string
	)
	switch {
	case remaining <= 0:
		typ = core.NotificationExhausted
		message = fmt.Sprintf("You have used all %d of your %s requests for this period.", limit, resourceLabel(resource))
	case remaining <= lowWaterMark:
		typ = core.NotificationWarning
		message = fmt.Sprintf("You have %d of %d %s requests left for this period.", remaining, limit, resourceLabel(resource))
	default:
		return nil
	}

	return &core.Notification{
		SubjectID: subjectID,
		Type:      typ,
		Message:   message,
		Data: map[string]string{
			"resource":     resource,
			"remaining":    strconv.Itoa(max(remaining, 0)),
			"limit":        strconv.Itoa(limit),
			"window_start": windowStart.UTC().Format(time.RFC3339),
		},
		DedupeKey: DedupeKey(typ, subjectID, resource, windowStart),
	}
}

// DedupeKey scopes a notification type to one subject, resource and window.
func DedupeKey(typ core.NotificationType, subjectID, resource string, windowStart time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", typ, subjectID, resource, windowStart.UTC().Format(time.RFC3339))
}

func resourceLabel(resource string) string {
	if resource == core.ResourceWebSearch {
		return "web search"
	}
	return resource
}

// Evaluate plans a notification for a post-consume state and enqueues it.
// It returns immediately; delivery happens in the background.
func (e *Emitter) Evaluate(subjectID, resource string, remaining, limit int, windowStart time.Time) {
	n := Plan(subjectID, resource, remaining, limit, windowStart, e.lowWaterMark)
	if n == nil {
		return
	}
	e.Emit(n)
}

// Emit enqueues a notification for delivery.
// When every worker is busy the delivery spills to its own goroutine.
func (e *Emitter) Emit(n *core.Notification) {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		e.dropped(n)
		return
	}
	e.pending++
	e.mu.Unlock()

	task := func() {
		defer e.done()
		e.deliver(n)
	}

	if err := e.pool.Submit(task); err != nil {
		if errors.Is(err, ants.ErrPoolClosed) {
			e.done()
			e.dropped(n)
			return
		}
		e.logger.Debug("notification pool saturated, delivering on a new goroutine", "err", err)
		go task()
	}
}

func (e *Emitter) done() {
	e.mu.Lock()
	e.pending--
	if e.pending == 0 {
		e.idle.Broadcast()
	}
	e.mu.Unlock()
}

func (e *Emitter) dropped(n *core.Notification) {
	e.logger.Warn("notification dropped, emitter released", "subject", n.SubjectID, "type", n.Type)
	metrics.RecordNotification(string(n.Type), "dropped")
}

func (e *Emitter) deliver(n *core.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	created, err := e.sink.CreateNotification(ctx, n)
	switch {
	case err != nil:
		e.logger.Error("failed to emit notification", "subject", n.SubjectID, "type", n.Type, "err", err)
		metrics.RecordNotification(string(n.Type), "error")
	case !created:
		e.logger.Debug("notification already sent", "subject", n.SubjectID, "dedupeKey", n.DedupeKey)
		metrics.RecordNotification(string(n.Type), "duplicate")
	default:
		e.logger.Info("notification emitted", "subject", n.SubjectID, "type", n.Type)
		metrics.RecordNotification(string(n.Type), "created")
	}
}

// Flush waits until every enqueued notification has been delivered or failed.
// Notifications emitted while Flush waits are waited for too.
func (e *Emitter) Flush() {
	e.mu.Lock()
	for e.pending > 0 {
		e.idle.Wait()
	}
	e.mu.Unlock()
}

// Release stops accepting notifications, waits for pending ones and stops the
// worker pool. Notifications emitted afterwards are dropped.
func (e *Emitter) Release() {
	e.mu.Lock()
	e.released = true
	for e.pending > 0 {
		e.idle.Wait()
	}
	e.mu.Unlock()

	if e.pool != nil {
		e.pool.Release()
	}
}
