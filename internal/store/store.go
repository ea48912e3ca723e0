// Package store defines the persistence interfaces for the engine.
// Implementations include in-memory (tests and development), PostgreSQL
// (shared deployments), SQLite (single-host file) and a Redis read-through
// cache in front of a ledger.
package store

import (
	"context"
	"time"

	"github.com/atmx/sentinel/internal/model"
)

// Ledger holds open positions keyed by ticker and side.
type Ledger interface {
	// ListOpenPositions returns open positions ordered by ticker, then side.
	ListOpenPositions(ctx context.Context) ([]model.Position, error)

	// ApplyFill applies a fill atomically with respect to concurrent reads.
	// It returns the resulting position, or nil when the position closed.
	// A rejected fill leaves the ledger unchanged.
	ApplyFill(ctx context.Context, f model.Fill) (*model.Position, error)

	// ListFills returns applied fills at or after since, oldest first.
	// Rejected fills are never logged.
	ListFills(ctx context.Context, since time.Time) ([]model.FillRecord, error)
}

// ProposalStore persists proposed trades.
type ProposalStore interface {
	// CreateProposal persists a new trade. ID and TS are set by the caller.
	CreateProposal(ctx context.Context, t *model.ProposedTrade) error

	// GetProposal returns model.ErrNotFound for unknown ids.
	GetProposal(ctx context.Context, id string) (*model.ProposedTrade, error)

	// ListProposals returns up to limit trades, newest first.
	ListProposals(ctx context.Context, limit int) ([]model.ProposedTrade, error)

	// UpdateProposalStatus moves a trade forward in its lifecycle. Illegal
	// moves return model.ErrInvalidTransition and change nothing.
	UpdateProposalStatus(ctx context.Context, id string, to model.TradeStatus) (*model.ProposedTrade, error)
}

// AuditQuery selects audit entries. Zero Limit means DefaultAuditLimit.
type AuditQuery struct {
	Limit int
	Since *time.Time
}

// DefaultAuditLimit matches what the dashboard shows.
const DefaultAuditLimit = 300

func (q AuditQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultAuditLimit
	}
	return q.Limit
}

// AuditStore is an append-only audit log.
type AuditStore interface {
	AppendAudit(ctx context.Context, e *model.AuditEntry) error

	// ListAudit returns entries newest first (TS desc, then ID desc).
	ListAudit(ctx context.Context, q AuditQuery) ([]model.AuditEntry, error)
}
