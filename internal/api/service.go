// Package api provides the HTTP handlers the dashboard polls: positions,
// valuation snapshots, proposal runs and the audit trail.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/sentinel/internal/audit"
	"github.com/atmx/sentinel/internal/ledger"
	"github.com/atmx/sentinel/internal/model"
	"github.com/atmx/sentinel/internal/proposal"
	"github.com/atmx/sentinel/internal/signal"
	"github.com/atmx/sentinel/internal/valuation"
)

// Request defaults, matching the dashboard's paper-run form.
const (
	defaultHoursAhead    = 24
	defaultBudgetDollars = 10
	defaultMaxTrades     = 3
	defaultProposalLimit = 200
	defaultReportHours   = 24
	maxListLimit         = 1000
)

// Service wires the engine components to HTTP.
type Service struct {
	ledger    *ledger.Service
	valuation *valuation.Calculator
	proposals *proposal.Engine
	signals   signal.Source
	audit     *audit.Recorder
}

// NewService creates the HTTP service.
func NewService(l *ledger.Service, v *valuation.Calculator, p *proposal.Engine, src signal.Source, rec *audit.Recorder) *Service {
	return &Service{
		ledger:    l,
		valuation: v,
		proposals: p,
		signals:   src,
		audit:     rec,
	}
}

// Register mounts the API routes on r. hub may be nil.
func (s *Service) Register(r chi.Router, hub *Hub) {
	if hub != nil {
		r.Get("/ws", hub.HandleWS)
	}

	r.Get("/positions", s.ListPositions)
	r.Post("/positions/fills", s.ApplyFill)
	r.Get("/valuation", s.GetValuation)

	r.Post("/proposals/run", s.RunProposals)
	r.Get("/proposals", s.ListProposals)
	r.Get("/proposals/{tradeID}", s.GetProposal)
	r.Post("/proposals/{tradeID}/status", s.UpdateProposalStatus)

	r.Get("/audit", s.ListAudit)
	r.Get("/report/performance", s.GetPerformance)
}

// --- Request/Response types ---

// FillRequest is the JSON body for POST /positions/fills.
type FillRequest struct {
	Ticker     string `json:"ticker"`
	Side       string `json:"side"` // "yes" or "no", any case
	QtyDelta   int64  `json:"qty_delta"`
	PriceCents int64  `json:"price_cents"`
}

// FillResponse carries the resulting position, null once closed.
type FillResponse struct {
	Position *model.Position `json:"position"`
	Closed   bool            `json:"closed"`
}

// RunRequest is the JSON body for POST /proposals/run. Omitted fields take
// the dashboard defaults.
type RunRequest struct {
	HoursAhead        *float64         `json:"hours_ahead"`
	BudgetDollars     *decimal.Decimal `json:"budget_dollars"`
	MaxTrades         *int             `json:"max_trades"`
	TickerPrefixes    stringList       `json:"ticker_prefixes"`
	Sizing            string           `json:"sizing,omitempty"`
	ContractsPerTrade int64            `json:"contracts_per_trade,omitempty"`
}

// StatusRequest is the JSON body for POST /proposals/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// stringList accepts either a JSON string or an array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = clean([]string{one})
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = clean(many)
	return nil
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// --- HTTP Handlers ---

// ListPositions handles GET /api/v1/positions
func (s *Service) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.ledger.ListOpenPositions(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// ApplyFill handles POST /api/v1/positions/fills
func (s *Service) ApplyFill(w http.ResponseWriter, r *http.Request) {
	var req FillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.audit.Warn(r.Context(), "ledger", "fill rejected: invalid request body: %v", err)
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	side, err := model.ParseSide(req.Side)
	if err != nil {
		s.audit.Warn(r.Context(), "ledger", "fill rejected %s: %v", req.Ticker, err)
		writeErr(w, err)
		return
	}

	p, err := s.ledger.ApplyFill(r.Context(), model.Fill{
		Ticker:     strings.TrimSpace(req.Ticker),
		Side:       side,
		QtyDelta:   req.QtyDelta,
		PriceCents: req.PriceCents,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FillResponse{Position: p, Closed: p == nil})
}

// GetValuation handles GET /api/v1/valuation
func (s *Service) GetValuation(w http.ResponseWriter, r *http.Request) {
	v, err := s.valuation.Snapshot(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// RunProposals handles POST /api/v1/proposals/run
func (s *Service) RunProposals(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.audit.Warn(r.Context(), "proposal", "run rejected: invalid request body: %v", err)
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	req, err := s.toProposalRequest(body)
	if err != nil {
		s.audit.Warn(r.Context(), "proposal", "run rejected: %v", err)
		writeErr(w, err)
		return
	}

	res, err := s.proposals.Run(r.Context(), req, s.signals)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) toProposalRequest(body RunRequest) (proposal.Request, error) {
	req := proposal.Request{
		HorizonHours:   defaultHoursAhead,
		MaxTrades:      defaultMaxTrades,
		TickerPrefixes: body.TickerPrefixes,
	}
	if body.HoursAhead != nil {
		req.HorizonHours = *body.HoursAhead
	}
	if body.MaxTrades != nil {
		req.MaxTrades = *body.MaxTrades
	}

	dollars := decimal.NewFromInt(defaultBudgetDollars)
	if body.BudgetDollars != nil {
		dollars = *body.BudgetDollars
	}
	cents, err := proposal.DollarsToCents(dollars)
	if err != nil {
		return req, err
	}
	req.BudgetCents = cents

	if body.Sizing != "" {
		policy, err := proposal.ParsePolicy(body.Sizing)
		if err != nil {
			return req, err
		}
		sz := s.proposals.Sizing()
		sz.Policy = policy
		if body.ContractsPerTrade > 0 {
			sz.ContractsPerTrade = body.ContractsPerTrade
		}
		req.Sizing = &sz
	}
	return req, nil
}

// ListProposals handles GET /api/v1/proposals
func (s *Service) ListProposals(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultProposalLimit)
	if err != nil {
		writeErr(w, err)
		return
	}
	trades, err := s.proposals.List(r.Context(), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	if trades == nil {
		trades = []model.ProposedTrade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetProposal handles GET /api/v1/proposals/{tradeID}
func (s *Service) GetProposal(w http.ResponseWriter, r *http.Request) {
	t, err := s.proposals.Get(r.Context(), chi.URLParam(r, "tradeID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// UpdateProposalStatus handles POST /api/v1/proposals/{tradeID}/status
func (s *Service) UpdateProposalStatus(w http.ResponseWriter, r *http.Request) {
	tradeID := chi.URLParam(r, "tradeID")
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.audit.Warn(r.Context(), "proposal", "transition %s rejected: invalid request body: %v", tradeID, err)
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	status, err := model.ParseTradeStatus(req.Status)
	if err != nil {
		s.audit.Warn(r.Context(), "proposal", "transition %s -> %q rejected: %v", tradeID, req.Status, err)
		writeErr(w, err)
		return
	}

	t, err := s.proposals.Transition(r.Context(), tradeID, status)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListAudit handles GET /api/v1/audit
func (s *Service) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, 0)
	if err != nil {
		writeErr(w, err)
		return
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, "since must be an RFC 3339 timestamp", http.StatusBadRequest)
			return
		}
		since = &ts
	}

	entries, err := s.audit.Query(r.Context(), limit, since)
	if err != nil {
		writeErr(w, err)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetPerformance handles GET /api/v1/report/performance?hours=24. hours=0
// reports every fill on record.
func (s *Service) GetPerformance(w http.ResponseWriter, r *http.Request) {
	hours := float64(defaultReportHours)
	if raw := r.URL.Query().Get("hours"); raw != "" {
		h, err := strconv.ParseFloat(raw, 64)
		if err != nil || h < 0 || math.IsNaN(h) || math.IsInf(h, 0) {
			writeErr(w, fmt.Errorf("%w: hours must be a non-negative number", model.ErrValidation))
			return
		}
		hours = h
	}

	until := time.Now().UTC()
	var since time.Time
	if hours > 0 {
		since = until.Add(-time.Duration(min(hours, maxReportHours) * float64(time.Hour)))
	}

	perf, err := s.ledger.Performance(r.Context(), since, until)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

// maxReportHours keeps the window inside time.Duration.
const maxReportHours = 24 * 365 * 100

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", model.ErrValidation)
	}
	return min(n, maxListLimit), nil
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvariantViolation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		msg = "internal error"
	}
	writeError(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "err", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
