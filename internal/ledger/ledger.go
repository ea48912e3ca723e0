// Package ledger is the Position Ledger: validated, audited access to the
// open positions held in a store.Ledger.
package ledger

import (
	"context"
	"errors"
	"log/slog"

	"github.com/atmx/sentinel/internal/audit"
	"github.com/atmx/sentinel/internal/metrics"
	"github.com/atmx/sentinel/internal/model"
	"github.com/atmx/sentinel/internal/store"
)

const component = "ledger"

// Service applies fills and lists open positions. It never reads quotes.
type Service struct {
	store store.Ledger
	audit *audit.Recorder
}

// NewService creates a ledger service over st.
func NewService(st store.Ledger, rec *audit.Recorder) *Service {
	return &Service{store: st, audit: rec}
}

// ListOpenPositions returns open positions ordered by ticker, then side.
func (s *Service) ListOpenPositions(ctx context.Context) ([]model.Position, error) {
	return s.store.ListOpenPositions(ctx)
}

// ApplyFill validates f and applies it atomically. Rejected fills leave the
// ledger untouched and are audited at WARN (bad input) or ERROR (invariant).
func (s *Service) ApplyFill(ctx context.Context, f model.Fill) (*model.Position, error) {
	if err := f.Validate(); err != nil {
		s.reject(ctx, f, err)
		return nil, err
	}

	p, err := s.store.ApplyFill(ctx, f)
	if err != nil {
		s.reject(ctx, f, err)
		return nil, err
	}

	metrics.FillsTotal.WithLabelValues("applied").Inc()
	if p == nil {
		s.audit.Info(ctx, component, "closed %s %s at %dc (qty_delta=%d)",
			f.Ticker, f.Side, f.PriceCents, f.QtyDelta)
	} else {
		s.audit.Info(ctx, component, "fill %s %s qty_delta=%d at %dc -> qty=%d avg=%dc cost=%dc",
			f.Ticker, f.Side, f.QtyDelta, f.PriceCents, p.Quantity, p.AvgEntryCents, p.CostBasisCents)
	}
	slog.Info("fill applied",
		"ticker", f.Ticker,
		"side", string(f.Side),
		"qty_delta", f.QtyDelta,
		"price_cents", f.PriceCents,
		"closed", p == nil,
	)
	return p, nil
}

func (s *Service) reject(ctx context.Context, f model.Fill, err error) {
	metrics.FillsTotal.WithLabelValues("rejected").Inc()

	level := model.LevelError
	if errors.Is(err, model.ErrValidation) {
		level = model.LevelWarn
	}
	s.audit.Record(ctx, level, component, "fill rejected "+f.Ticker+" "+string(f.Side)+": "+err.Error())
	slog.Warn("fill rejected", "ticker", f.Ticker, "side", string(f.Side), "err", err)
}
