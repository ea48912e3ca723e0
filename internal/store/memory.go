package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atmx/sentinel/internal/id"
	"github.com/atmx/sentinel/internal/model"
)

type posKey struct {
	ticker string
	side   model.Side
}

// MemoryStore implements Ledger, ProposalStore and AuditStore with in-memory
// maps. Used for testing and development; nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[posKey]model.Position
	fills     []model.FillRecord
	fillIDs   *id.Generator
	proposals []model.ProposedTrade
	byID      map[string]int
	audit     []model.AuditEntry
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[posKey]model.Position),
		byID:      make(map[string]int),
		fillIDs:   id.NewGenerator(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// --- Ledger ---

func (s *MemoryStore) ListOpenPositions(_ context.Context) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		positions = append(positions, p)
	}
	sortPositions(positions)
	return positions, nil
}

func (s *MemoryStore) ApplyFill(_ context.Context, f model.Fill) (*model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := posKey{f.Ticker, f.Side}
	cur := s.lookup(key)
	now := s.now()
	next, err := model.ApplyFill(cur, s.lookup(posKey{f.Ticker, f.Side.Opposite()}), f, now)
	if err != nil {
		return nil, err
	}
	s.fills = append(s.fills, model.FillRecord{
		ID:               s.fillIDs.At(now),
		TS:               now,
		Ticker:           f.Ticker,
		Side:             f.Side,
		QtyDelta:         f.QtyDelta,
		PriceCents:       f.PriceCents,
		RealizedPnLCents: model.RealizedPnL(cur, f),
	})
	if next == nil {
		delete(s.positions, key)
		return nil, nil
	}
	s.positions[key] = *next
	out := *next
	return &out, nil
}

func (s *MemoryStore) ListFills(_ context.Context, since time.Time) ([]model.FillRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.FillRecord
	for _, f := range s.fills {
		if !f.TS.Before(since) {
			out = append(out, f)
		}
	}
	return out, nil
}

// lookup returns a copy of the position under key, or nil. Caller holds mu.
func (s *MemoryStore) lookup(key posKey) *model.Position {
	p, ok := s.positions[key]
	if !ok {
		return nil
	}
	return &p
}

// --- Proposals ---

func (s *MemoryStore) CreateProposal(_ context.Context, t *model.ProposedTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[t.ID]; ok {
		return fmt.Errorf("proposal %s already exists", t.ID)
	}
	s.byID[t.ID] = len(s.proposals)
	s.proposals = append(s.proposals, *t)
	return nil
}

func (s *MemoryStore) GetProposal(_ context.Context, id string) (*model.ProposedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", id, model.ErrNotFound)
	}
	t := s.proposals[i]
	return &t, nil
}

func (s *MemoryStore) ListProposals(_ context.Context, limit int) ([]model.ProposedTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.proposals)
	if limit > 0 {
		n = min(limit, n)
	}
	out := make([]model.ProposedTrade, 0, n)
	for i := len(s.proposals) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.proposals[i])
	}
	return out, nil
}

func (s *MemoryStore) UpdateProposalStatus(_ context.Context, id string, to model.TradeStatus) (*model.ProposedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", id, model.ErrNotFound)
	}
	t := &s.proposals[i]
	if !model.CanTransition(t.Status, to) {
		return nil, fmt.Errorf("%w: proposal %s %s -> %s", model.ErrInvalidTransition, id, t.Status, to)
	}
	t.Status = to
	out := *t
	return &out, nil
}

// --- Audit ---

func (s *MemoryStore) AppendAudit(_ context.Context, e *model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, *e)
	return nil
}

func (s *MemoryStore) ListAudit(_ context.Context, q AuditQuery) ([]model.AuditEntry, error) {
	s.mu.RLock()
	entries := make([]model.AuditEntry, 0, len(s.audit))
	for _, e := range s.audit {
		if q.Since != nil && e.TS.Before(*q.Since) {
			continue
		}
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sortAuditNewestFirst(entries)
	if len(entries) > q.limit() {
		entries = entries[:q.limit()]
	}
	return entries, nil
}

func sortPositions(ps []model.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Ticker != ps[j].Ticker {
			return ps[i].Ticker < ps[j].Ticker
		}
		return ps[i].Side > ps[j].Side // yes before no
	})
}

func sortAuditNewestFirst(es []model.AuditEntry) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].TS.Equal(es[j].TS) {
			return es[i].TS.After(es[j].TS)
		}
		return es[i].ID > es[j].ID
	})
}
