package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/sentinel/internal/id"
	"github.com/atmx/sentinel/internal/model"
)

// PostgresStore implements Ledger, ProposalStore and AuditStore on
// PostgreSQL. Fills run in a transaction holding a per-ticker advisory lock,
// so concurrent fills on one market serialize and readers never see a
// half-applied fill.
type PostgresStore struct {
	pool    *pgxpool.Pool
	fillIDs *id.Generator
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, fillIDs: id.NewGenerator()}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// --- Ledger ---

const positionColumns = `ticker, side, qty, avg_entry_cents, cost_basis_cents, opened_at, updated_at`

func (s *PostgresStore) ListOpenPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions ORDER BY ticker, side DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) ApplyFill(ctx context.Context, f model.Fill) (*model.Position, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin fill: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, f.Ticker); err != nil {
		return nil, fmt.Errorf("postgres: lock %s: %w", f.Ticker, err)
	}

	rows, err := tx.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE ticker = $1 FOR UPDATE`, f.Ticker)
	if err != nil {
		return nil, fmt.Errorf("postgres: load %s: %w", f.Ticker, err)
	}
	var cur, opp *model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		if p.Side == f.Side {
			cur = &p
		} else {
			opp = &p
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load %s: %w", f.Ticker, err)
	}

	now := time.Now().UTC()
	next, err := model.ApplyFill(cur, opp, f, now)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO fills (`+fillColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.fillIDs.At(now), now, f.Ticker, string(f.Side), f.QtyDelta, f.PriceCents,
		model.RealizedPnL(cur, f)); err != nil {
		return nil, fmt.Errorf("postgres: log fill %s %s: %w", f.Ticker, f.Side, err)
	}

	if next == nil {
		_, err = tx.Exec(ctx, `DELETE FROM positions WHERE ticker = $1 AND side = $2`, f.Ticker, string(f.Side))
	} else {
		_, err = tx.Exec(ctx,
			`INSERT INTO positions (`+positionColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (ticker, side) DO UPDATE
			 SET qty = EXCLUDED.qty,
			     avg_entry_cents = EXCLUDED.avg_entry_cents,
			     cost_basis_cents = EXCLUDED.cost_basis_cents,
			     updated_at = EXCLUDED.updated_at`,
			next.Ticker, string(next.Side), next.Quantity, next.AvgEntryCents,
			next.CostBasisCents, next.OpenedAt, next.UpdatedAt)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: write %s %s: %w", f.Ticker, f.Side, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit fill: %w", err)
	}
	return next, nil
}

const fillColumns = `id, ts, ticker, side, qty_delta, price_cents, realized_pnl_cents`

func (s *PostgresStore) ListFills(ctx context.Context, since time.Time) ([]model.FillRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillColumns+` FROM fills WHERE ts >= $1 ORDER BY ts, id`, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}
	defer rows.Close()

	var fills []model.FillRecord
	for rows.Next() {
		var f model.FillRecord
		var side string
		if err := rows.Scan(&f.ID, &f.TS, &f.Ticker, &side, &f.QtyDelta,
			&f.PriceCents, &f.RealizedPnLCents); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		f.Side = model.Side(side)
		f.TS = f.TS.UTC()
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

func scanPosition(row pgx.Row) (model.Position, error) {
	var p model.Position
	var side string
	if err := row.Scan(&p.Ticker, &side, &p.Quantity, &p.AvgEntryCents,
		&p.CostBasisCents, &p.OpenedAt, &p.UpdatedAt); err != nil {
		return p, fmt.Errorf("postgres: scan position: %w", err)
	}
	p.Side = model.Side(side)
	return p, nil
}

// --- Proposals ---

const proposalColumns = `id, run_id, ts, ticker, side, limit_price_cents, contracts,
	estimated_max_loss_cents, status, rationale`

func (s *PostgresStore) CreateProposal(ctx context.Context, t *model.ProposedTrade) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO proposed_trades (`+proposalColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.RunID, t.TS, t.Ticker, t.Side, t.LimitPriceCents, t.Contracts,
		t.EstimatedMaxLossCents, string(t.Status), t.Rationale)
	if err != nil {
		return fmt.Errorf("postgres: create proposal %s: %w", t.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetProposal(ctx context.Context, id string) (*model.ProposedTrade, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposed_trades WHERE id = $1`, id)
	t, err := scanProposal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("proposal %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get proposal %s: %w", id, err)
	}
	return &t, nil
}

func (s *PostgresStore) ListProposals(ctx context.Context, limit int) ([]model.ProposedTrade, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposed_trades ORDER BY ts DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list proposals: %w", err)
	}
	defer rows.Close()

	var trades []model.ProposedTrade
	for rows.Next() {
		t, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan proposal: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) UpdateProposalStatus(ctx context.Context, id string, to model.TradeStatus) (*model.ProposedTrade, error) {
	if !to.Terminal() {
		return nil, fmt.Errorf("%w: proposal %s -> %s", model.ErrInvalidTransition, id, to)
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE proposed_trades SET status = $2
		 WHERE id = $1 AND status = $3
		 RETURNING `+proposalColumns,
		id, string(to), string(model.StatusProposed))
	t, err := scanProposal(row)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: update proposal %s: %w", id, err)
	}

	// Nothing updated: either unknown or already terminal.
	cur, err := s.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: proposal %s %s -> %s", model.ErrInvalidTransition, id, cur.Status, to)
}

func scanProposal(row pgx.Row) (model.ProposedTrade, error) {
	var t model.ProposedTrade
	var status string
	err := row.Scan(&t.ID, &t.RunID, &t.TS, &t.Ticker, &t.Side, &t.LimitPriceCents,
		&t.Contracts, &t.EstimatedMaxLossCents, &status, &t.Rationale)
	t.Status = model.TradeStatus(status)
	t.TS = t.TS.UTC()
	return t, err
}

// --- Audit ---

func (s *PostgresStore) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, ts, level, component, message) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.TS, string(e.Level), e.Component, e.Message)
	if err != nil {
		return fmt.Errorf("postgres: append audit %s: %w", e.ID, err)
	}
	return nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, q AuditQuery) ([]model.AuditEntry, error) {
	query := `SELECT id, ts, level, component, message FROM audit_log`
	args := []any{}
	if q.Since != nil {
		query += ` WHERE ts >= $1`
		args = append(args, *q.Since)
	}
	query += fmt.Sprintf(` ORDER BY ts DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, q.limit())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var level string
		if err := rows.Scan(&e.ID, &e.TS, &level, &e.Component, &e.Message); err != nil {
			return nil, fmt.Errorf("postgres: scan audit: %w", err)
		}
		e.Level = model.Level(level)
		e.TS = e.TS.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
