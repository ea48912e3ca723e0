package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/atmx/sentinel/internal/model"
)

// SQLiteStore implements ProposalStore and AuditStore on a local SQLite file.
// It suits a single-host deployment where the ledger lives elsewhere.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer keeps status transitions serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Proposals ---

const sqliteProposalColumns = `id, run_id, ts_ns, ticker, side, limit_price_cents, contracts,
	estimated_max_loss_cents, status, rationale`

func (s *SQLiteStore) CreateProposal(ctx context.Context, t *model.ProposedTrade) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proposed_trades (`+sqliteProposalColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.RunID, t.TS.UnixNano(), t.Ticker, t.Side, t.LimitPriceCents, t.Contracts,
		t.EstimatedMaxLossCents, string(t.Status), t.Rationale)
	if err != nil {
		return fmt.Errorf("sqlite: create proposal %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetProposal(ctx context.Context, id string) (*model.ProposedTrade, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteProposalColumns+` FROM proposed_trades WHERE id = ?`, id)
	t, err := scanSQLiteProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("proposal %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get proposal %s: %w", id, err)
	}
	return &t, nil
}

func (s *SQLiteStore) ListProposals(ctx context.Context, limit int) ([]model.ProposedTrade, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteProposalColumns+` FROM proposed_trades
		 ORDER BY ts_ns DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list proposals: %w", err)
	}
	defer rows.Close()

	var trades []model.ProposedTrade
	for rows.Next() {
		t, err := scanSQLiteProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan proposal: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) UpdateProposalStatus(ctx context.Context, id string, to model.TradeStatus) (*model.ProposedTrade, error) {
	if !to.Terminal() {
		return nil, fmt.Errorf("%w: proposal %s -> %s", model.ErrInvalidTransition, id, to)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE proposed_trades SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(model.StatusProposed))
	if err != nil {
		return nil, fmt.Errorf("sqlite: update proposal %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: update proposal %s: %w", id, err)
	}

	cur, err := s.GetProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: proposal %s %s -> %s", model.ErrInvalidTransition, id, cur.Status, to)
	}
	return cur, nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProposal(row sqlScanner) (model.ProposedTrade, error) {
	var t model.ProposedTrade
	var tsNs int64
	var status string
	err := row.Scan(&t.ID, &t.RunID, &tsNs, &t.Ticker, &t.Side, &t.LimitPriceCents,
		&t.Contracts, &t.EstimatedMaxLossCents, &status, &t.Rationale)
	t.TS = time.Unix(0, tsNs).UTC()
	t.Status = model.TradeStatus(status)
	return t, err
}

// --- Audit ---

func (s *SQLiteStore) AppendAudit(ctx context.Context, e *model.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, ts_ns, level, component, message) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.TS.UnixNano(), string(e.Level), e.Component, e.Message)
	if err != nil {
		return fmt.Errorf("sqlite: append audit %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, q AuditQuery) ([]model.AuditEntry, error) {
	var since int64
	if q.Since != nil {
		since = q.Since.UnixNano()
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts_ns, level, component, message FROM audit_log
		 WHERE ts_ns >= ?
		 ORDER BY ts_ns DESC, id DESC LIMIT ?`, since, q.limit())
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var tsNs int64
		var level string
		if err := rows.Scan(&e.ID, &tsNs, &level, &e.Component, &e.Message); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit: %w", err)
		}
		e.TS = time.Unix(0, tsNs).UTC()
		e.Level = model.Level(level)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
