// Package postgres persists audit entries using the transactional outbox
// pattern. Append writes both the queryable row and an outbox row through
// the caller's transaction, so an entry and the state change that produced
// it commit atomically; the relay later ships outbox rows to Kafka.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"securevault/internal/audit"
	id "securevault/pkg/domain"
	txcontext "securevault/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	exec := txcontext.ExecutorFrom(ctx, s.db)

	const insertEntry = `
		INSERT INTO audit_entries (id, ts, actor_type, actor_id, action, target_type, target_id, details, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := exec.ExecContext(ctx, insertEntry,
		uuid.UUID(entry.ID),
		entry.Timestamp,
		string(entry.ActorType),
		entry.ActorID,
		string(entry.Action),
		entry.TargetType,
		entry.TargetID,
		entry.Details,
		string(entry.Outcome),
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	const insertOutbox = `
		INSERT INTO audit_outbox (id, entry_id, category, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := exec.ExecContext(ctx, insertOutbox,
		uuid.New(),
		uuid.UUID(entry.ID),
		string(entry.Action.Category()),
		payload,
		time.Now(),
	); err != nil {
		return fmt.Errorf("insert audit outbox entry: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	query := `
		SELECT id, ts, actor_type, actor_id, action, target_type, target_id, details, outcome
		FROM audit_entries
	`
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}
	if filter.ActorType != "" {
		add("actor_type = ", string(filter.ActorType))
	}
	if filter.ActorID != "" {
		add("actor_id = ", filter.ActorID)
	}
	if filter.Action != "" {
		add("action = ", string(filter.Action))
	}
	if filter.TargetType != "" {
		add("target_type = ", filter.TargetType)
	}
	if filter.TargetID != "" {
		add("target_id = ", filter.TargetID)
	}
	if filter.Outcome != "" {
		add("outcome = ", string(filter.Outcome))
	}
	if !filter.From.IsZero() {
		add("ts >= ", filter.From)
	}
	if !filter.To.IsZero() {
		add("ts <= ", filter.To)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY ts DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e   audit.Entry
			uid uuid.UUID
		)
		if err := rows.Scan(&uid, &e.Timestamp, &e.ActorType, &e.ActorID, &e.Action, &e.TargetType, &e.TargetID, &e.Details, &e.Outcome); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = id.EntryID(uid)
		out = append(out, e)
	}
	return out, rows.Err()
}
