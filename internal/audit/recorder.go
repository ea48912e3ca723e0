// Package audit records significant engine actions to an append-only log.
//
// Recording is best-effort: a failed write is logged and counted but never
// returned to the caller, so auditing can not abort a primary operation.
// Entries are queried newest first.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atmx/sentinel/internal/id"
	"github.com/atmx/sentinel/internal/metrics"
	"github.com/atmx/sentinel/internal/model"
	"github.com/atmx/sentinel/internal/store"
)

// writeTimeout bounds a single audit write so a slow store can not stall
// the caller indefinitely.
const writeTimeout = 2 * time.Second

// Publisher receives every recorded entry. Publish must not block.
type Publisher interface {
	Publish(e model.AuditEntry)
}

// Recorder appends audit entries to a store and fans them out to an
// optional publisher.
type Recorder struct {
	store     store.AuditStore
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
	ids       *id.Generator

	mu   sync.Mutex
	last time.Time
}

// NewRecorder creates a recorder writing to st. Pass nil for pub if nobody
// listens for live entries.
func NewRecorder(st store.AuditStore, pub Publisher, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:     st,
		publisher: pub,
		logger:    logger.With("component", "audit"),
		now:       func() time.Time { return time.Now().UTC() },
		ids:       id.NewGenerator(),
	}
}

// SetClock overrides the time source. Tests only.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// Record appends one entry. It never fails from the caller's point of view.
func (r *Recorder) Record(ctx context.Context, level model.Level, component, message string) {
	e := r.mint(level, component, message)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.store.AppendAudit(wctx, &e); err != nil {
		metrics.AuditWriteFailures.Inc()
		r.logger.Error("audit write failed",
			"err", err,
			"level", string(level),
			"entry_component", component,
			"message", message,
		)
		return
	}
	if r.publisher != nil {
		r.publisher.Publish(e)
	}
}

func (r *Recorder) Info(ctx context.Context, component, format string, args ...any) {
	r.Record(ctx, model.LevelInfo, component, fmt.Sprintf(format, args...))
}

func (r *Recorder) Warn(ctx context.Context, component, format string, args ...any) {
	r.Record(ctx, model.LevelWarn, component, fmt.Sprintf(format, args...))
}

func (r *Recorder) Error(ctx context.Context, component, format string, args ...any) {
	r.Record(ctx, model.LevelError, component, fmt.Sprintf(format, args...))
}

// Query returns up to limit entries at or after since (nil for all), newest
// first. Without new writes, repeated queries return identical sequences.
func (r *Recorder) Query(ctx context.Context, limit int, since *time.Time) ([]model.AuditEntry, error) {
	return r.store.ListAudit(ctx, store.AuditQuery{Limit: limit, Since: since})
}

// mint stamps an entry. Timestamps never go backwards within a process and
// ids are minted from the same instant, so (TS, ID) order is creation order.
func (r *Recorder) mint(level model.Level, component, message string) model.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now()
	if ts.Before(r.last) {
		ts = r.last
	}
	r.last = ts

	return model.AuditEntry{
		ID:        r.ids.At(ts),
		TS:        ts,
		Level:     level,
		Component: component,
		Message:   message,
	}
}
