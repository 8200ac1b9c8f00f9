// Package relay ships audit outbox rows to the downstream Kafka pipeline.
// The outbox table is written in the same transaction as the audited state
// change; the relay gives at-least-once delivery without ever making audit
// writes best-effort.
package relay

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"securevault/internal/audit"
)

// Producer publishes one audit payload. Implemented by KafkaProducer and by
// test fakes.
type Producer interface {
	Publish(ctx context.Context, category audit.Category, key string, payload []byte) error
}

// Relay polls the outbox and publishes unpublished rows in order.
type Relay struct {
	db       *sql.DB
	producer Producer
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

func New(db *sql.DB, producer Producer, logger *slog.Logger, interval time.Duration, batch int) *Relay {
	if batch <= 0 {
		batch = 100
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{db: db, producer: producer, logger: logger, interval: interval, batch: batch}
}

// Run polls until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Drain(ctx); err != nil {
				// Rows stay unpublished and are retried next tick.
				r.logger.ErrorContext(ctx, "audit relay drain failed", "error", err)
			}
		}
	}
}

// Drain publishes up to one batch of pending rows and returns how many were
// shipped. Exported for tests and for flush-on-shutdown.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	const selectPending = `
		SELECT id, entry_id, category, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, selectPending, r.batch)
	if err != nil {
		return 0, fmt.Errorf("select outbox: %w", err)
	}
	type pending struct {
		id       uuid.UUID
		entryID  uuid.UUID
		category audit.Category
		payload  []byte
	}
	var batch []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.entryID, &p.category, &p.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	published := 0
	for _, p := range batch {
		if err := r.producer.Publish(ctx, p.category, p.entryID.String(), p.payload); err != nil {
			return published, fmt.Errorf("publish outbox entry %s: %w", p.entryID, err)
		}
		if _, err := r.db.ExecContext(ctx,
			`UPDATE audit_outbox SET published_at = $1 WHERE id = $2`,
			time.Now(), p.id,
		); err != nil {
			// The entry will be re-published next drain; consumers must be
			// idempotent on entry ID, which Kafka keying gives them.
			return published, fmt.Errorf("mark outbox entry published: %w", err)
		}
		published++
	}
	return published, nil
}
