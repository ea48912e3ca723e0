package proposal

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/sentinel/internal/audit"
	"github.com/atmx/sentinel/internal/correlation"
	"github.com/atmx/sentinel/internal/model"
	"github.com/atmx/sentinel/internal/notify"
	"github.com/atmx/sentinel/internal/signal"
	"github.com/atmx/sentinel/internal/store"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func cand(ticker string, price int64, closesIn time.Duration) model.Candidate {
	return model.Candidate{Ticker: ticker, Side: model.SideYes, LimitPriceCents: price, CloseTime: now.Add(closesIn)}
}

func abc() []model.Candidate {
	return []model.Candidate{
		cand("A", 50, 6*time.Hour),
		cand("B", 30, 6*time.Hour),
		cand("C", 25, 6*time.Hour),
	}
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *store.MemoryStore, *audit.Recorder) {
	t.Helper()
	ms := store.NewMemoryStore()
	rec := audit.NewRecorder(ms, nil, nil)
	e := NewEngine(ms, rec, opts...)
	e.now = func() time.Time { return now }
	return e, ms, rec
}

func tickers(trades []model.ProposedTrade) []string {
	out := make([]string, len(trades))
	for i, t := range trades {
		out[i] = t.Ticker
	}
	return out
}

func TestPropose_GreedyTakesWholeBudget(t *testing.T) {
	e, ms, _ := newEngine(t)

	res, err := e.Propose(context.Background(), Request{HorizonHours: 24, BudgetCents: 1000, MaxTrades: 3}, abc())
	require.NoError(t, err)

	require.Len(t, res.Proposed, 1)
	a := res.Proposed[0]
	assert.Equal(t, "A", a.Ticker)
	assert.Equal(t, "YES", a.Side)
	assert.Equal(t, int64(20), a.Contracts)
	assert.Equal(t, int64(1000), a.EstimatedMaxLossCents)
	assert.Equal(t, model.StatusProposed, a.Status)
	assert.Equal(t, res.RunID, a.RunID)
	assert.Equal(t, int64(1000), res.CommittedCents)
	assert.Equal(t, int64(0), res.UnallocatedCents)
	assert.Equal(t, 3, res.CandidatesEligible)

	stored, err := ms.GetProposal(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, *stored)
}

func TestPropose_FixedOneContract(t *testing.T) {
	e, _, _ := newEngine(t, WithSizing(Sizing{Policy: PolicyFixed, ContractsPerTrade: 1}))

	res, err := e.Propose(context.Background(), Request{HorizonHours: 24, BudgetCents: 1000, MaxTrades: 3}, abc())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, tickers(res.Proposed))
	assert.Equal(t, int64(105), res.CommittedCents)
	assert.Equal(t, int64(895), res.UnallocatedCents)
	for _, tr := range res.Proposed {
		assert.Equal(t, int64(1), tr.Contracts)
	}
}

func TestPropose_EqualSplit(t *testing.T) {
	e, _, _ := newEngine(t)
	sz := Sizing{Policy: PolicyEqualSplit}

	res, err := e.Propose(context.Background(), Request{HorizonHours: 24, BudgetCents: 1000, MaxTrades: 3, Sizing: &sz}, abc())
	require.NoError(t, err)

	// 333c per trade: A 6x50, B 11x30, C 13x25.
	require.Len(t, res.Proposed, 3)
	assert.Equal(t, int64(6), res.Proposed[0].Contracts)
	assert.Equal(t, int64(11), res.Proposed[1].Contracts)
	assert.Equal(t, int64(13), res.Proposed[2].Contracts)
	assert.Equal(t, int64(955), res.CommittedCents)
	assert.Equal(t, int64(45), res.UnallocatedCents)
	assert.Equal(t, "equal_split", res.Sizing)
}

func TestPropose_EqualSplitNeverOverspends(t *testing.T) {
	e, _, _ := newEngine(t)
	sz := Sizing{Policy: PolicyEqualSplit}

	// 100c over 3 trades is 33c each; a 50c contract still gets one, then the
	// next 50c contract fits exactly and the third does not.
	cands := []model.Candidate{cand("A", 50, time.Hour), cand("B", 50, time.Hour), cand("C", 50, time.Hour)}
	res, err := e.Propose(context.Background(), Request{HorizonHours: 24, BudgetCents: 100, MaxTrades: 3, Sizing: &sz}, cands)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, tickers(res.Proposed))
	assert.Equal(t, int64(0), res.UnallocatedCents)
}

func TestPropose_MaxContractsPerTradeCapsGreedy(t *testing.T) {
	e, _, _ := newEngine(t, WithSizing(Sizing{Policy: PolicyGreedy, MaxContractsPerTrade: 4}))

	res, err := e.Propose(context.Background(), Request{HorizonHours: 24, BudgetCents: 1000, MaxTrades: 3}, abc())
	require.NoError(t, err)
	// 4x50 + 4x30 + 4x25
	assert.Equal(t, int64(420), res.CommittedCents)
	assert.Len(t, res.Proposed, 3)
}

func TestPropose_SkipsUnaffordableAndKeepsGoing(t *testing.T) {
	e, _, _ := newEngine(t, WithSizing(Sizing{Policy: PolicyFixed, ContractsPerTrade: 1}))
	cands := []model.Candidate{cand("A", 90, time.Hour), cand("B", 60, time.Hour), cand("C", 30, time.Hour)}

	res, err := e.Propose(context.Background(), Request{HorizonHours: 24, BudgetCents: 100, MaxTrades: 5}, cands)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, tickers(res.Proposed))

	res, err = e.Propose(context.Background(), Request{HorizonHours: 24, BudgetCents: 95, MaxTrades: 5},
		[]model.Candidate{cand("X", 70, time.Hour), cand("Y", 80, time.Hour), cand("Z", 20, time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Z"}, tickers(res.Proposed))
	assert.Equal(t, int64(5), res.UnallocatedCents)
}

func TestPropose_HorizonFilter(t *testing.T) {
	e, _, _ := newEngine(t, WithSizing(Sizing{Policy: PolicyFixed, ContractsPerTrade: 1}))
	cands := []model.Candidate{
		cand("PAST", 10, -time.Minute),
		cand("NOW", 10, 0),
		cand("EDGE", 10, 2*time.Hour),
		cand("LATE", 10, 2*time.Hour+time.Second),
		cand("IN", 10, time.Hour),
	}

	res, err := e.Propose(context.Background(), Request{HorizonHours: 2, BudgetCents: 1000, MaxTrades: 10}, cands)
	require.NoError(t, err)
	assert.Equal(t, []string{"EDGE", "IN"}, tickers(res.Proposed))
	assert.Equal(t, 5, res.CandidatesConsidered)
	assert.Equal(t, 2, res.CandidatesEligible)
}

func TestPropose_RanksByScoreStably(t *testing.T) {
	e, _, _ := newEngine(t, WithSizing(Sizing{Policy: PolicyFixed, ContractsPerTrade: 1}))
	cands := abc()
	cands[0].Score = 1
	cands[1].Score = 5
	cands[2].Score = 1

	res, err := e.Propose(context.Background(), Request{HorizonHours: 24, BudgetCents: 1000, MaxTrades: 3}, cands)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "C"}, tickers(res.Proposed))
}

func TestPropose_TickerPrefixFilter(t *testing.T) {
	e, _, _ := newEngine(t, WithSizing(Sizing{Policy: PolicyFixed, ContractsPerTrade: 1}))
	cands := []model.Candidate{
		cand("KXETH-26OCT17-B4", 10, time.Hour),
		cand("KXBTC15M-26OCT171215-B1", 10, time.Hour),
	}

	res, err := e.Propose(context.Background(),
		Request{HorizonHours: 24, BudgetCents: 100, MaxTrades: 3, TickerPrefixes: []string{"KXBTC15M"}}, cands)
	require.NoError(t, err)
	assert.Equal(t, []string{"KXBTC15M-26OCT171215-B1"}, tickers(res.Proposed))
}

func TestPropose_ZeroBudgetOrTradesIsEmpty(t *testing.T) {
	e, ms, _ := newEngine(t)

	for _, req := range []Request{
		{HorizonHours: 24, BudgetCents: 0, MaxTrades: 3},
		{HorizonHours: 24, BudgetCents: 1000, MaxTrades: 0},
	} {
		res, err := e.Propose(context.Background(), req, abc())
		require.NoError(t, err)
		assert.NotNil(t, res.Proposed)
		assert.Empty(t, res.Proposed)
		assert.Equal(t, req.BudgetCents, res.UnallocatedCents)
	}

	stored, _ := ms.ListProposals(context.Background(), 0)
	assert.Empty(t, stored)
}

func TestPropose_RejectsNegativeInputs(t *testing.T) {
	e, ms, rec := newEngine(t)
	ctx := context.Background()

	_, err := e.Propose(ctx, Request{HorizonHours: 24, BudgetCents: -1, MaxTrades: 3}, abc())
	assert.ErrorIs(t, err, model.ErrInvalidBudget)
	_, err = e.Propose(ctx, Request{HorizonHours: -1, BudgetCents: 100, MaxTrades: 3}, abc())
	assert.ErrorIs(t, err, model.ErrInvalidHorizon)
	_, err = e.Propose(ctx, Request{HorizonHours: 1, BudgetCents: 100, MaxTrades: -3}, abc())
	assert.ErrorIs(t, err, model.ErrInvalidMaxTrades)
	assert.ErrorIs(t, err, model.ErrValidation)

	stored, _ := ms.ListProposals(ctx, 0)
	assert.Empty(t, stored)

	entries, err := rec.Query(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, en := range entries {
		assert.Equal(t, model.LevelWarn, en.Level)
	}
}

func TestPropose_InvalidCandidatesSkippedAndAudited(t *testing.T) {
	e, _, rec := newEngine(t, WithSizing(Sizing{Policy: PolicyFixed, ContractsPerTrade: 1}))
	cands := []model.Candidate{
		{Ticker: "BADPRICE", Side: model.SideYes, LimitPriceCents: 100, CloseTime: now.Add(time.Hour)},
		{Ticker: "BADSIDE", Side: "maybe", LimitPriceCents: 10, CloseTime: now.Add(time.Hour)},
		cand("OK", 10, time.Hour),
	}

	res, err := e.Propose(context.Background(), Request{HorizonHours: 24, BudgetCents: 100, MaxTrades: 3}, cands)
	require.NoError(t, err)
	assert.Equal(t, []string{"OK"}, tickers(res.Proposed))
	assert.Equal(t, 2, res.CandidatesInvalid)

	entries, _ := rec.Query(context.Background(), 0, nil)
	warns := 0
	for _, en := range entries {
		if en.Level == model.LevelWarn {
			warns++
		}
	}
	assert.Equal(t, 2, warns)
}

func TestPropose_AuditsEachProposalWithRemainingBudget(t *testing.T) {
	e, _, rec := newEngine(t, WithSizing(Sizing{Policy: PolicyFixed, ContractsPerTrade: 1}))

	_, err := e.Propose(context.Background(), Request{HorizonHours: 24, BudgetCents: 1000, MaxTrades: 3}, abc())
	require.NoError(t, err)

	entries, err := rec.Query(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Len(t, entries, 4, "three proposals plus the run summary")
	assert.Contains(t, entries[0].Message, "unallocated 895c")
	assert.Contains(t, entries[1].Message, "proposed C YES x1 @ 25c max_loss=25c remaining=895c")
	assert.Contains(t, entries[3].Message, "proposed A YES x1 @ 50c max_loss=50c remaining=950c")
}

func TestPropose_BudgetAndCountNeverExceeded(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	policies := []Sizing{
		{Policy: PolicyGreedy},
		{Policy: PolicyFixed, ContractsPerTrade: 3},
		{Policy: PolicyEqualSplit},
		{Policy: PolicyGreedy, MaxContractsPerTrade: 2},
	}

	for iter := 0; iter < 300; iter++ {
		var cands []model.Candidate
		for i := 0; i < rng.Intn(12); i++ {
			c := cand(string(rune('A'+i)), int64(1+rng.Intn(99)), time.Duration(rng.Intn(48))*time.Hour)
			c.Score = float64(rng.Intn(4))
			cands = append(cands, c)
		}
		req := Request{
			HorizonHours: float64(rng.Intn(36)),
			BudgetCents:  int64(rng.Intn(3000)),
			MaxTrades:    rng.Intn(6),
		}
		sz := policies[iter%len(policies)]
		req.Sizing = &sz

		e, _, _ := newEngine(t)
		res, err := e.Propose(context.Background(), req, cands)
		require.NoError(t, err)

		var sum int64
		for _, tr := range res.Proposed {
			assert.GreaterOrEqual(t, tr.Contracts, int64(1))
			assert.Equal(t, tr.Contracts*tr.LimitPriceCents, tr.EstimatedMaxLossCents)
			sum += tr.EstimatedMaxLossCents
		}
		assert.LessOrEqual(t, sum, req.BudgetCents)
		assert.LessOrEqual(t, len(res.Proposed), req.MaxTrades)
		assert.Equal(t, sum, res.CommittedCents)
		assert.Equal(t, req.BudgetCents-sum, res.UnallocatedCents)
	}
}

func TestPropose_SeriesLimiterShrinksTrades(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	_, err := ms.ApplyFill(ctx, model.Fill{Ticker: "KXBTC-26OCT17-B100", Side: model.SideYes, QtyDelta: 4, PriceCents: 50})
	require.NoError(t, err)

	rec := audit.NewRecorder(ms, nil, nil)
	e := NewEngine(ms, rec, WithLimiter(correlation.NewPositionLimiter(0, 500), ms))
	e.now = func() time.Time { return now }

	cands := []model.Candidate{
		cand("KXBTC-26OCT17-B101", 40, time.Hour),
		cand("KXBTC-26OCT17-B102", 40, time.Hour),
		cand("KXETH-26OCT17-B4", 40, time.Hour),
	}
	res, err := e.Propose(ctx, Request{HorizonHours: 24, BudgetCents: 2000, MaxTrades: 3}, cands)
	require.NoError(t, err)

	// 200c already held in the series leaves 300c: 7 contracts at 40c. The
	// second BTC strike has no room left; ETH is another series.
	require.Equal(t, []string{"KXBTC-26OCT17-B101", "KXETH-26OCT17-B4"}, tickers(res.Proposed))
	assert.Equal(t, int64(7), res.Proposed[0].Contracts)
	assert.Equal(t, int64(12), res.Proposed[1].Contracts)
}

type failingProposals struct {
	*store.MemoryStore
	failAfter int
	created   int
}

func (f *failingProposals) CreateProposal(ctx context.Context, t *model.ProposedTrade) error {
	if f.created >= f.failAfter {
		return errors.New("disk full")
	}
	f.created++
	return f.MemoryStore.CreateProposal(ctx, t)
}

func TestPropose_PersistFailureAbortsKeepingEarlierTrades(t *testing.T) {
	ms := store.NewMemoryStore()
	fp := &failingProposals{MemoryStore: ms, failAfter: 1}
	rec := audit.NewRecorder(ms, nil, nil)
	e := NewEngine(fp, rec, WithSizing(Sizing{Policy: PolicyFixed, ContractsPerTrade: 1}))

	_, err := e.Propose(context.Background(), Request{HorizonHours: 1e6, BudgetCents: 1000, MaxTrades: 3},
		[]model.Candidate{
			{Ticker: "A", Side: model.SideNo, LimitPriceCents: 10, CloseTime: time.Now().Add(time.Hour)},
			{Ticker: "B", Side: model.SideNo, LimitPriceCents: 10, CloseTime: time.Now().Add(time.Hour)},
		})
	require.Error(t, err)

	stored, _ := ms.ListProposals(context.Background(), 0)
	require.Len(t, stored, 1)
	assert.Equal(t, "NO", stored[0].Side)

	entries, _ := rec.Query(context.Background(), 1, nil)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LevelError, entries[0].Level)
}

func TestTransition_ForwardOnly(t *testing.T) {
	e, _, rec := newEngine(t)
	ctx := context.Background()

	res, err := e.Propose(ctx, Request{HorizonHours: 24, BudgetCents: 100, MaxTrades: 1}, abc())
	require.NoError(t, err)
	tradeID := res.Proposed[0].ID

	got, err := e.Transition(ctx, tradeID, model.StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
	assert.Equal(t, res.Proposed[0].Contracts, got.Contracts)

	_, err = e.Transition(ctx, tradeID, model.StatusExpired)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	_, err = e.Transition(ctx, "missing", model.StatusExpired)
	assert.ErrorIs(t, err, model.ErrNotFound)

	entries, _ := rec.Query(ctx, 2, nil)
	assert.Equal(t, model.LevelWarn, entries[0].Level)
	assert.Equal(t, model.LevelWarn, entries[1].Level)
}

type stubSource struct {
	cands   []model.Candidate
	horizon time.Duration
	calls   int
}

func (s *stubSource) Candidates(_ context.Context, h time.Duration) ([]model.Candidate, error) {
	s.calls++
	s.horizon = h
	return s.cands, nil
}

var _ signal.Source = (*stubSource)(nil)

func TestRun_UsesSourceAndSkipsItWhenNothingToSpend(t *testing.T) {
	e, _, _ := newEngine(t)
	src := &stubSource{cands: abc()}

	res, err := e.Run(context.Background(), Request{HorizonHours: 1.5, BudgetCents: 100, MaxTrades: 1}, src)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, src.horizon)
	assert.Len(t, res.Proposed, 1)

	_, err = e.Run(context.Background(), Request{HorizonHours: 1, BudgetCents: 0, MaxTrades: 1}, src)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls)
}

type recordingSender struct{ messages []string }

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	r.messages = append(r.messages, title+"\n"+message)
	return errors.New("chat unavailable")
}

func (r *recordingSender) Name() string { return "recording" }

func TestPropose_NotifierFailureDoesNotFailRun(t *testing.T) {
	s := &recordingSender{}
	e, _, _ := newEngine(t, WithNotifier(notify.NewNotifier([]notify.Sender{s}, nil)))

	res, err := e.Propose(context.Background(), Request{HorizonHours: 24, BudgetCents: 1000, MaxTrades: 3}, abc())
	require.NoError(t, err)
	require.Len(t, res.Proposed, 1)
	require.Len(t, s.messages, 1)
	assert.Contains(t, s.messages[0], "A YES x20 @ 50c")
}

func TestDollarsToCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"10", 1000},
		{"10.5", 1050},
		{"0.019", 1},
		{"0.009", 0},
		{"12.349", 1234},
	}
	for _, tt := range tests {
		got, err := DollarsToCents(decimal.RequireFromString(tt.in))
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := DollarsToCents(decimal.RequireFromString("-0.01"))
	assert.ErrorIs(t, err, model.ErrInvalidBudget)
	_, err = DollarsToCents(decimal.RequireFromString("1e20"))
	assert.ErrorIs(t, err, model.ErrInvalidBudget)
}

func TestSizingValidate(t *testing.T) {
	assert.NoError(t, DefaultSizing.Validate())
	assert.Error(t, Sizing{Policy: PolicyFixed}.Validate())
	assert.Error(t, Sizing{Policy: "kelly"}.Validate())
	assert.Error(t, Sizing{Policy: PolicyGreedy, MaxContractsPerTrade: -1}.Validate())

	p, err := ParsePolicy(" Equal_Split ")
	require.NoError(t, err)
	assert.Equal(t, PolicyEqualSplit, p)
}

func TestPropose_IDsFollowCreationOrderInSQLite(t *testing.T) {
	sq, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "sentinel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	// The recorder runs on the wall clock while the engine clock is frozen,
	// so audit ids and trade ids are minted at different instants.
	rec := audit.NewRecorder(sq, nil, nil)
	e := NewEngine(sq, rec, WithSizing(Sizing{Policy: PolicyFixed, ContractsPerTrade: 1}))
	e.now = func() time.Time { return now }

	cands := make([]model.Candidate, 0, 8)
	for i := 0; i < 8; i++ {
		cands = append(cands, cand(fmt.Sprintf("KXT-%d", i), 10, 6*time.Hour))
	}
	req := Request{HorizonHours: 24, BudgetCents: 10_000, MaxTrades: 8}

	var created []string
	for run := 0; run < 2; run++ {
		res, err := e.Propose(context.Background(), req, cands)
		require.NoError(t, err)
		require.Len(t, res.Proposed, 8)
		for _, tr := range res.Proposed {
			created = append(created, tr.ID)
		}
	}
	for i := 1; i < len(created); i++ {
		assert.Less(t, created[i-1], created[i], "id %d", i)
	}

	listed, err := sq.ListProposals(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, listed, len(created))
	for i, tr := range listed {
		assert.Equal(t, created[len(created)-1-i], tr.ID, "position %d", i)
	}
}
