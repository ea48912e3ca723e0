// Package proposal turns a horizon, a budget and a ranked candidate list
// into a bounded set of paper trades.
//
// Each run walks eligible candidates best first and sizes each one with the
// configured policy. The summed estimated max loss of a run never exceeds
// its budget and a run never proposes more than max_trades trades. Budgets
// are scoped to one call; callers sharing a budget across runs must track it
// themselves. Proposals never touch the position ledger.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/sentinel/internal/audit"
	"github.com/atmx/sentinel/internal/contract"
	"github.com/atmx/sentinel/internal/correlation"
	"github.com/atmx/sentinel/internal/id"
	"github.com/atmx/sentinel/internal/metrics"
	"github.com/atmx/sentinel/internal/model"
	"github.com/atmx/sentinel/internal/notify"
	"github.com/atmx/sentinel/internal/signal"
	"github.com/atmx/sentinel/internal/store"
)

const component = "proposal"

// maxHorizonHours keeps the horizon inside time.Duration.
const maxHorizonHours = 24 * 365 * 100

// Request is one proposal run.
type Request struct {
	HorizonHours   float64  `json:"hours_ahead"`
	BudgetCents    int64    `json:"budget_cents"`
	MaxTrades      int      `json:"max_trades"`
	TickerPrefixes []string `json:"ticker_prefixes,omitempty"`
	// Sizing overrides the engine default for this run.
	Sizing *Sizing `json:"sizing,omitempty"`
}

// Validate rejects negative inputs. Zero budget or zero max_trades is valid
// and yields an empty run.
func (r Request) Validate() error {
	if r.BudgetCents < 0 {
		return fmt.Errorf("%w: %d cents", model.ErrInvalidBudget, r.BudgetCents)
	}
	if r.HorizonHours < 0 || math.IsNaN(r.HorizonHours) || math.IsInf(r.HorizonHours, 0) {
		return fmt.Errorf("%w: %v hours", model.ErrInvalidHorizon, r.HorizonHours)
	}
	if r.MaxTrades < 0 {
		return fmt.Errorf("%w: %d", model.ErrInvalidMaxTrades, r.MaxTrades)
	}
	if r.Sizing != nil {
		return r.Sizing.Validate()
	}
	return nil
}

func (r Request) horizon() time.Duration {
	return time.Duration(min(r.HorizonHours, maxHorizonHours) * float64(time.Hour))
}

// Result is the outcome of a run. Under-filling the budget is not an error:
// UnallocatedCents says how much was left.
type Result struct {
	RunID                string                `json:"run_id"`
	Proposed             []model.ProposedTrade `json:"proposed"`
	BudgetCents          int64                 `json:"budget_cents"`
	CommittedCents       int64                 `json:"committed_cents"`
	UnallocatedCents     int64                 `json:"unallocated_cents"`
	Sizing               string                `json:"sizing"`
	CandidatesConsidered int                   `json:"candidates_considered"`
	CandidatesEligible   int                   `json:"candidates_eligible"`
	CandidatesInvalid    int                   `json:"candidates_invalid"`
}

// PositionLister seeds concentration limits with held positions.
type PositionLister interface {
	ListOpenPositions(ctx context.Context) ([]model.Position, error)
}

// Engine runs proposals and persists them.
type Engine struct {
	store    store.ProposalStore
	audit    *audit.Recorder
	sizing   Sizing
	limiter  *correlation.PositionLimiter
	held     PositionLister
	notifier *notify.Notifier
	ids      *id.Generator
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSizing sets the default sizing policy.
func WithSizing(s Sizing) Option {
	return func(e *Engine) { e.sizing = s }
}

// WithLimiter caps summed max loss per market and per series. When held is
// non-nil its open positions count against the caps at cost basis.
func WithLimiter(l *correlation.PositionLimiter, held PositionLister) Option {
	return func(e *Engine) {
		e.limiter = l
		e.held = held
	}
}

// WithNotifier sends a summary of every non-empty run.
func WithNotifier(n *notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// NewEngine creates an engine persisting to st.
func NewEngine(st store.ProposalStore, rec *audit.Recorder, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		audit:  rec,
		sizing: DefaultSizing,
		ids:    id.NewGenerator(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sizing returns the default sizing policy.
func (e *Engine) Sizing() Sizing {
	return e.sizing
}

// Run pulls candidates from src and proposes against them.
func (e *Engine) Run(ctx context.Context, req Request, src signal.Source) (*Result, error) {
	if err := e.validate(ctx, req); err != nil {
		return nil, err
	}

	var cands []model.Candidate
	if req.BudgetCents > 0 && req.MaxTrades > 0 {
		var err error
		cands, err = src.Candidates(ctx, req.horizon())
		if err != nil {
			metrics.ProposalRuns.WithLabelValues("failed").Inc()
			e.audit.Error(ctx, component, "signal source failed: %v", err)
			return nil, fmt.Errorf("proposal: candidates: %w", err)
		}
	}
	return e.Propose(ctx, req, cands)
}

// Propose allocates req's budget over candidates and persists each accepted
// trade with status proposed. If persisting fails the run stops; trades
// already stored stay stored.
func (e *Engine) Propose(ctx context.Context, req Request, candidates []model.Candidate) (*Result, error) {
	if err := e.validate(ctx, req); err != nil {
		return nil, err
	}

	sizing := e.sizing
	if req.Sizing != nil {
		sizing = *req.Sizing
	}

	exposure := correlation.Exposure{}
	if e.limiter.Enabled() && e.held != nil {
		positions, err := e.held.ListOpenPositions(ctx)
		if err != nil {
			metrics.ProposalRuns.WithLabelValues("failed").Inc()
			e.audit.Error(ctx, component, "list positions for limits: %v", err)
			return nil, fmt.Errorf("proposal: positions: %w", err)
		}
		for _, p := range positions {
			exposure.Add(p.Ticker, p.CostBasisCents)
		}
	}

	now := e.now()
	alloc := allocate(req, candidates, now, sizing, e.limiter, exposure)
	for _, bad := range alloc.invalid {
		e.audit.Warn(ctx, component, "skipping candidate: %v", bad)
	}

	res := &Result{
		RunID:                uuid.NewString(),
		Proposed:             make([]model.ProposedTrade, 0, len(alloc.trades)),
		BudgetCents:          req.BudgetCents,
		Sizing:               sizing.String(),
		CandidatesConsidered: len(candidates),
		CandidatesEligible:   alloc.eligible,
		CandidatesInvalid:    len(alloc.invalid),
	}

	remaining := req.BudgetCents
	for _, p := range alloc.trades {
		t := model.ProposedTrade{
			ID:                    e.ids.At(now),
			RunID:                 res.RunID,
			TS:                    now,
			Ticker:                p.cand.Ticker,
			Side:                  p.cand.Side.Upper(),
			LimitPriceCents:       p.cand.LimitPriceCents,
			Contracts:             p.contracts,
			EstimatedMaxLossCents: p.contracts * p.cand.LimitPriceCents,
			Status:                model.StatusProposed,
			Rationale:             p.cand.Rationale,
		}
		if err := e.store.CreateProposal(ctx, &t); err != nil {
			metrics.ProposalRuns.WithLabelValues("failed").Inc()
			e.audit.Error(ctx, component, "run %s: persist %s failed after %d of %d trades: %v",
				res.RunID, t.Ticker, len(res.Proposed), len(alloc.trades), err)
			return nil, fmt.Errorf("proposal: persist %s: %w", t.Ticker, err)
		}

		remaining -= t.EstimatedMaxLossCents
		res.Proposed = append(res.Proposed, t)
		res.CommittedCents += t.EstimatedMaxLossCents
		metrics.ProposedTrades.WithLabelValues(t.Side).Inc()
		e.audit.Info(ctx, component, "proposed %s %s x%d @ %dc max_loss=%dc remaining=%dc",
			t.Ticker, t.Side, t.Contracts, t.LimitPriceCents, t.EstimatedMaxLossCents, remaining)
	}
	res.UnallocatedCents = req.BudgetCents - res.CommittedCents

	metrics.ProposalRuns.WithLabelValues("ok").Inc()
	if req.BudgetCents > 0 {
		metrics.CommittedBudget.Observe(float64(res.CommittedCents) / float64(req.BudgetCents))
	}
	e.audit.Info(ctx, component, "run %s: %d trades, committed %dc of %dc, unallocated %dc (%d candidates, %d eligible, sizing %s)",
		res.RunID, len(res.Proposed), res.CommittedCents, res.BudgetCents, res.UnallocatedCents,
		res.CandidatesConsidered, res.CandidatesEligible, res.Sizing)
	slog.Info("proposal run complete",
		"run_id", res.RunID,
		"proposed", len(res.Proposed),
		"committed_cents", res.CommittedCents,
		"unallocated_cents", res.UnallocatedCents,
	)

	e.notify(ctx, res)
	return res, nil
}

// Transition moves a proposed trade to a terminal status.
func (e *Engine) Transition(ctx context.Context, tradeID string, to model.TradeStatus) (*model.ProposedTrade, error) {
	t, err := e.store.UpdateProposalStatus(ctx, tradeID, to)
	if err != nil {
		level := model.LevelWarn
		if !isClientError(err) {
			level = model.LevelError
		}
		e.audit.Record(ctx, level, component, fmt.Sprintf("transition %s -> %s rejected: %v", tradeID, to, err))
		return nil, err
	}
	e.audit.Info(ctx, component, "trade %s (%s %s x%d) -> %s", t.ID, t.Ticker, t.Side, t.Contracts, t.Status)
	return t, nil
}

// List returns up to limit proposed trades, newest first.
func (e *Engine) List(ctx context.Context, limit int) ([]model.ProposedTrade, error) {
	return e.store.ListProposals(ctx, limit)
}

// Get returns one proposed trade.
func (e *Engine) Get(ctx context.Context, tradeID string) (*model.ProposedTrade, error) {
	return e.store.GetProposal(ctx, tradeID)
}

// isClientError reports whether err is the caller's fault rather than ours.
func isClientError(err error) bool {
	return errors.Is(err, model.ErrValidation) ||
		errors.Is(err, model.ErrInvariantViolation) ||
		errors.Is(err, model.ErrNotFound)
}

func (e *Engine) validate(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		metrics.ProposalRuns.WithLabelValues("rejected").Inc()
		e.audit.Warn(ctx, component, "run rejected: %v", err)
		return err
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, res *Result) {
	if !e.notifier.Enabled() || len(res.Proposed) == 0 {
		return
	}
	var b strings.Builder
	for _, t := range res.Proposed {
		fmt.Fprintf(&b, "%s %s x%d @ %dc (max loss %dc)\n", t.Ticker, t.Side, t.Contracts, t.LimitPriceCents, t.EstimatedMaxLossCents)
	}
	fmt.Fprintf(&b, "committed %dc of %dc", res.CommittedCents, res.BudgetCents)
	_ = e.notifier.Notify(ctx, fmt.Sprintf("Paper proposals (%d)", len(res.Proposed)), b.String())
}

type planned struct {
	cand      model.Candidate
	contracts int64
}

type plan struct {
	trades   []planned
	eligible int
	invalid  []error
}

// allocate is the pure core of a run. Candidates are ranked by score, ties
// keep their received order, then filtered to now < close <= now+horizon.
func allocate(req Request, candidates []model.Candidate, now time.Time, sizing Sizing,
	limiter *correlation.PositionLimiter, exposure correlation.Exposure) plan {
	var p plan
	if req.BudgetCents == 0 || req.MaxTrades == 0 {
		return p
	}

	cutoff := now.Add(req.horizon())
	ranked := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if err := validateCandidate(c); err != nil {
			p.invalid = append(p.invalid, err)
			continue
		}
		if !c.CloseTime.After(now) || c.CloseTime.After(cutoff) {
			continue
		}
		if !contract.HasPrefix(c.Ticker, req.TickerPrefixes) {
			continue
		}
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	p.eligible = len(ranked)

	remaining := req.BudgetCents
	for _, c := range ranked {
		if len(p.trades) >= req.MaxTrades {
			break
		}
		price := c.LimitPriceCents
		if price > remaining {
			continue
		}

		n := sizing.contracts(price, remaining, req.BudgetCents, req.MaxTrades)
		if limiter.Enabled() {
			n = min(n, limiter.Headroom(c.Ticker, exposure)/price)
		}
		if n < 1 {
			continue
		}

		cost := n * price
		remaining -= cost
		if exposure != nil {
			exposure.Add(c.Ticker, cost)
		}
		p.trades = append(p.trades, planned{cand: c, contracts: n})
	}
	return p
}

func validateCandidate(c model.Candidate) error {
	switch {
	case strings.TrimSpace(c.Ticker) == "":
		return model.ErrInvalidTicker
	case !c.Side.Valid():
		return fmt.Errorf("%s: %w", c.Ticker, model.ErrInvalidSide)
	case c.LimitPriceCents < 1 || c.LimitPriceCents > 99:
		return fmt.Errorf("%s: %w: limit %d not in 1..99", c.Ticker, model.ErrInvalidPrice, c.LimitPriceCents)
	case math.IsNaN(c.Score):
		return fmt.Errorf("%s: %w: score is NaN", c.Ticker, model.ErrValidation)
	}
	return nil
}
