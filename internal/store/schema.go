package store

// PostgresSchema creates the tables used by PostgresStore.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS positions (
	ticker           TEXT        NOT NULL,
	side             TEXT        NOT NULL CHECK (side IN ('yes', 'no')),
	qty              BIGINT      NOT NULL CHECK (qty > 0),
	avg_entry_cents  BIGINT      NOT NULL CHECK (avg_entry_cents BETWEEN 1 AND 99),
	cost_basis_cents BIGINT      NOT NULL,
	opened_at        TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (ticker, side),
	CHECK (cost_basis_cents = qty * avg_entry_cents)
);

CREATE TABLE IF NOT EXISTS fills (
	id                 TEXT        PRIMARY KEY,
	ts                 TIMESTAMPTZ NOT NULL,
	ticker             TEXT        NOT NULL,
	side               TEXT        NOT NULL CHECK (side IN ('yes', 'no')),
	qty_delta          BIGINT      NOT NULL CHECK (qty_delta <> 0),
	price_cents        BIGINT      NOT NULL CHECK (price_cents BETWEEN 0 AND 100),
	realized_pnl_cents BIGINT      NOT NULL
);

CREATE INDEX IF NOT EXISTS fills_ts_idx ON fills (ts, id);

CREATE TABLE IF NOT EXISTS proposed_trades (
	id                       TEXT        PRIMARY KEY,
	run_id                   TEXT        NOT NULL,
	ts                       TIMESTAMPTZ NOT NULL,
	ticker                   TEXT        NOT NULL,
	side                     TEXT        NOT NULL,
	limit_price_cents        BIGINT      NOT NULL,
	contracts                BIGINT      NOT NULL,
	estimated_max_loss_cents BIGINT      NOT NULL,
	status                   TEXT        NOT NULL,
	rationale                TEXT        NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS audit_log (
	id        TEXT        PRIMARY KEY,
	ts        TIMESTAMPTZ NOT NULL,
	level     TEXT        NOT NULL,
	component TEXT        NOT NULL,
	message   TEXT        NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_log_ts_idx ON audit_log (ts DESC, id DESC);
`

// SQLiteSchema creates the tables used by SQLiteStore. Timestamps are unix
// nanoseconds so ordering is exact.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS proposed_trades (
	id                       TEXT    PRIMARY KEY,
	run_id                   TEXT    NOT NULL,
	ts_ns                    INTEGER NOT NULL,
	ticker                   TEXT    NOT NULL,
	side                     TEXT    NOT NULL,
	limit_price_cents        INTEGER NOT NULL,
	contracts                INTEGER NOT NULL,
	estimated_max_loss_cents INTEGER NOT NULL,
	status                   TEXT    NOT NULL,
	rationale                TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS audit_log (
	id        TEXT    PRIMARY KEY,
	ts_ns     INTEGER NOT NULL,
	level     TEXT    NOT NULL,
	component TEXT    NOT NULL,
	message   TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_log_ts_idx ON audit_log (ts_ns DESC, id DESC);
`
