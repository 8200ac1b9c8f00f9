// Package postgres opens the relational store and owns its schema. The
// schema is exported so the integration-test harness can apply it to a fresh
// container.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"securevault/internal/platform/config"
	txcontext "securevault/pkg/platform/tx"
)

// Open connects to PostgreSQL and verifies the connection. Returns nil if
// the URL is empty (callers fall back to in-memory stores).
func Open(cfg config.Postgres) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// TxRunner runs service callbacks inside a SQL transaction threaded through
// context. Nested calls reuse the outer transaction.
type TxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Schema creates all tables the engine persists to. Applied by deployments
// through their migration tooling and by the test harness directly.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL,
	inactivity_threshold_days INT NOT NULL,
	last_activity_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS nominees (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL REFERENCES users (id),
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	relationship TEXT NOT NULL,
	identity_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS assets (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL REFERENCES users (id),
	asset_type TEXT NOT NULL,
	encrypted_ref TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS asset_nominees (
	asset_id UUID NOT NULL REFERENCES assets (id),
	nominee_id UUID NOT NULL REFERENCES nominees (id),
	PRIMARY KEY (asset_id, nominee_id)
);

CREATE TABLE IF NOT EXISTS verification_requests (
	id UUID PRIMARY KEY,
	asset_id UUID NOT NULL,
	nominee_id UUID NOT NULL,
	user_id UUID NOT NULL,
	status TEXT NOT NULL,
	reupload_attempts INT NOT NULL DEFAULT 0,
	deadline_at TIMESTAMPTZ,
	submitted_at TIMESTAMPTZ,
	reviewed_at TIMESTAMPTZ,
	reviewed_by TEXT NOT NULL DEFAULT '',
	admin_notes TEXT NOT NULL DEFAULT '',
	rejection_reason TEXT NOT NULL DEFAULT '',
	missing_documents TEXT[] NOT NULL DEFAULT '{}',
	version BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

-- One active claim per (asset, nominee). The partial index lets the
-- inactivity sweep run concurrently on multiple instances without a global
-- lock: the second insert loses with a unique violation.
CREATE UNIQUE INDEX IF NOT EXISTS verification_requests_active_pair
	ON verification_requests (asset_id, nominee_id)
	WHERE status NOT IN ('APPROVED', 'REJECTED', 'EXPIRED', 'CLOSED');

CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	request_id UUID NOT NULL REFERENCES verification_requests (id),
	kind TEXT NOT NULL,
	file_name TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	storage_key TEXT NOT NULL,
	status TEXT NOT NULL,
	uploaded_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS documents_request ON documents (request_id);

CREATE TABLE IF NOT EXISTS audit_entries (
	id UUID PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	actor_type TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	action TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS audit_entries_ts ON audit_entries (ts DESC);
CREATE INDEX IF NOT EXISTS audit_entries_target ON audit_entries (target_type, target_id);

CREATE TABLE IF NOT EXISTS audit_outbox (
	id UUID PRIMARY KEY,
	entry_id UUID NOT NULL,
	category TEXT NOT NULL,
	payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS audit_outbox_unpublished
	ON audit_outbox (created_at)
	WHERE published_at IS NULL;
`
