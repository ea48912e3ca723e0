package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/sentinel/internal/model"
)

const openPositionsKey = "sentinel:positions:open"

// CachedLedger wraps a primary Ledger with a Redis read-through cache of the
// open position list. Fills go to the primary and invalidate the cache, so a
// reader sees either the pre-fill or post-fill list, never a mix.
type CachedLedger struct {
	primary Ledger
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedLedger creates a cached wrapper around a primary ledger. rdb is
// usually a *redis.Client.
func NewCachedLedger(primary Ledger, rdb redis.Cmdable, ttl time.Duration) *CachedLedger {
	return &CachedLedger{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (l *CachedLedger) ApplyFill(ctx context.Context, f model.Fill) (*model.Position, error) {
	p, err := l.primary.ApplyFill(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := l.rdb.Del(ctx, openPositionsKey).Err(); err != nil {
		slog.Warn("position cache invalidation failed", "err", err)
	}
	return p, nil
}

func (l *CachedLedger) ListOpenPositions(ctx context.Context) ([]model.Position, error) {
	data, err := l.rdb.Get(ctx, openPositionsKey).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	// Cache miss.
	positions, err := l.primary.ListOpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(positions); err == nil {
		l.rdb.Set(ctx, openPositionsKey, data, l.ttl)
	}
	return positions, nil
}

// ListFills is not cached; the fill log is only read by reports.
func (l *CachedLedger) ListFills(ctx context.Context, since time.Time) ([]model.FillRecord, error) {
	return l.primary.ListFills(ctx, since)
}
