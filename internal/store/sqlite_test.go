package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/sentinel/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sentinel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteProposals_RoundTripAndTransition(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	ts := time.Date(2026, 10, 17, 9, 30, 0, 123, time.UTC)

	in := &model.ProposedTrade{
		ID: "01J0000000000000000000000A", RunID: "run-1", TS: ts,
		Ticker: "KXBTC-26OCT17-B100", Side: "YES", LimitPriceCents: 50, Contracts: 20,
		EstimatedMaxLossCents: 1000, Status: model.StatusProposed, Rationale: "score=3.00",
	}
	require.NoError(t, s.CreateProposal(ctx, in))

	got, err := s.GetProposal(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, *in, *got)

	got, err = s.UpdateProposalStatus(ctx, in.ID, model.StatusExpired)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, got.Status)
	assert.Equal(t, in.Contracts, got.Contracts)

	_, err = s.UpdateProposalStatus(ctx, in.ID, model.StatusAccepted)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = s.GetProposal(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSQLiteProposals_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	base := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateProposal(ctx, &model.ProposedTrade{
			ID: id, RunID: "r", TS: base.Add(time.Duration(i) * time.Minute),
			Ticker: "T", Side: "YES", LimitPriceCents: 10, Contracts: 1,
			EstimatedMaxLossCents: 10, Status: model.StatusProposed,
		}))
	}

	list, err := s.ListProposals(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	all, err := s.ListProposals(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteAudit_OrderingAndSince(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)
	base := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.AppendAudit(ctx, &model.AuditEntry{
			ID: id, TS: base.Add(time.Duration(i) * time.Second),
			Level: model.LevelWarn, Component: "valuation", Message: "missing quote",
		}))
	}

	entries, err := s.ListAudit(ctx, AuditQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].ID)
	assert.Equal(t, model.LevelWarn, entries[0].Level)
	assert.Equal(t, base.Add(2*time.Second), entries[0].TS)

	since := base.Add(time.Second)
	entries, err = s.ListAudit(ctx, AuditQuery{Since: &since, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
