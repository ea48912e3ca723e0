package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/sentinel/internal/model"
	"github.com/atmx/sentinel/internal/store"
)

type failingStore struct{ store.MemoryStore }

func (*failingStore) AppendAudit(context.Context, *model.AuditEntry) error {
	return errors.New("disk full")
}

type capture struct{ got []model.AuditEntry }

func (c *capture) Publish(e model.AuditEntry) { c.got = append(c.got, e) }

func TestRecord_AppendsAndPublishes(t *testing.T) {
	ctx := context.Background()
	pub := &capture{}
	r := NewRecorder(store.NewMemoryStore(), pub, nil)

	r.Info(ctx, "proposal", "proposed %s %s x%d", "A", "YES", 3)
	r.Warn(ctx, "valuation", "1 row missing quotes")

	entries, err := r.Query(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.LevelWarn, entries[0].Level, "newest first")
	assert.Equal(t, "proposed A YES x3", entries[1].Message)
	assert.Equal(t, "proposal", entries[1].Component)
	assert.Len(t, pub.got, 2)
}

func TestRecord_StoreFailureIsSwallowed(t *testing.T) {
	pub := &capture{}
	r := NewRecorder(&failingStore{}, pub, nil)

	assert.NotPanics(t, func() {
		r.Error(context.Background(), "ledger", "fill rejected")
	})
	assert.Empty(t, pub.got, "unpersisted entries are not published")
}

func TestRecord_CancelledContextStillWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRecorder(store.NewMemoryStore(), nil, nil)
	r.Info(ctx, "api", "request finished")

	entries, err := r.Query(context.Background(), 0, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecord_ClockNeverGoesBackwards(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(store.NewMemoryStore(), nil, nil)

	times := []time.Time{
		time.Date(2026, 10, 17, 12, 0, 5, 0, time.UTC),
		time.Date(2026, 10, 17, 12, 0, 1, 0, time.UTC), // skewed back
		time.Date(2026, 10, 17, 12, 0, 9, 0, time.UTC),
	}
	i := 0
	r.SetClock(func() time.Time { t := times[i]; i++; return t })

	for _, msg := range []string{"first", "second", "third"} {
		r.Info(ctx, "test", msg)
	}

	entries, err := r.Query(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "third", entries[0].Message)
	assert.Equal(t, "second", entries[1].Message)
	assert.Equal(t, "first", entries[2].Message)
	assert.Equal(t, entries[2].TS, entries[1].TS)
}

func TestQuery_RepeatableWithoutWrites(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(store.NewMemoryStore(), nil, nil)
	for i := 0; i < 20; i++ {
		r.Info(ctx, "test", "entry %d", i)
	}

	a, err := r.Query(ctx, 50, nil)
	require.NoError(t, err)
	b, err := r.Query(ctx, 50, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	for i := 1; i < len(a); i++ {
		assert.Greater(t, a[i-1].ID, a[i].ID)
	}
}
