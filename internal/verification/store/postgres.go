package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"securevault/internal/verification/models"
	id "securevault/pkg/domain"
	"securevault/pkg/platform/sentinel"
	txcontext "securevault/pkg/platform/tx"
)

const pqUniqueViolation = "23505"

const requestColumns = `
	id, asset_id, nominee_id, user_id, status, reupload_attempts,
	deadline_at, submitted_at, reviewed_at, reviewed_by, admin_notes,
	rejection_reason, missing_documents, version, created_at, updated_at
`

// PostgresRequests persists verification requests. The partial unique index
// verification_requests_active_pair backs the one-active-claim invariant;
// version checks on UPDATE back Execute's isolation.
type PostgresRequests struct {
	db *sql.DB
}

func NewPostgresRequests(db *sql.DB) *PostgresRequests {
	return &PostgresRequests{db: db}
}

func (s *PostgresRequests) Create(ctx context.Context, req *models.Request) error {
	const query = `
		INSERT INTO verification_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(req.ID), uuid.UUID(req.AssetID), uuid.UUID(req.NomineeID), uuid.UUID(req.UserID),
		string(req.Status), req.ReuploadAttempts, req.DeadlineAt, req.SubmittedAt, req.ReviewedAt,
		req.ReviewedBy, req.AdminNotes, req.RejectionReason, pq.Array(req.MissingDocuments),
		req.Version, req.CreatedAt, req.UpdatedAt,
	)
	if isUnique(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert verification request: %w", err)
	}
	return nil
}

func (s *PostgresRequests) FindByID(ctx context.Context, requestID id.VerificationID) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM verification_requests WHERE id = $1`
	return scanRequest(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(requestID)))
}

func (s *PostgresRequests) FindActiveByPair(ctx context.Context, assetID id.AssetID, nomineeID id.NomineeID) (*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM verification_requests
		WHERE asset_id = $1 AND nominee_id = $2
		  AND status NOT IN ('APPROVED', 'REJECTED', 'EXPIRED', 'CLOSED')
	`
	return scanRequest(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(assetID), uuid.UUID(nomineeID)))
}

func (s *PostgresRequests) List(ctx context.Context, filter Filter) ([]*models.Request, error) {
	var (
		conds []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !filter.UserID.IsNil() {
		args = append(args, uuid.UUID(filter.UserID))
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	query := `SELECT ` + requestColumns + ` FROM verification_requests`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.queryRequests(ctx, query, args...)
}

func (s *PostgresRequests) ListOverdue(ctx context.Context, now time.Time) ([]*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM verification_requests
		WHERE status = 'AWAITING_DOCUMENTS' AND deadline_at IS NOT NULL AND deadline_at < $1
		ORDER BY created_at ASC
	`
	return s.queryRequests(ctx, query, now)
}

// Execute applies fn inside a row lock and persists with a version check.
// The SELECT ... FOR UPDATE needs a surrounding transaction to hold the
// lock; without one the version predicate alone still rejects lost updates.
func (s *PostgresRequests) Execute(ctx context.Context, requestID id.VerificationID, fn func(*models.Request) error) (*models.Request, error) {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	query := `SELECT ` + requestColumns + ` FROM verification_requests WHERE id = $1`
	if _, inTx := txcontext.From(ctx); inTx {
		query += " FOR UPDATE"
	}
	req, err := scanRequest(exec.QueryRowContext(ctx, query, uuid.UUID(requestID)))
	if err != nil {
		return nil, err
	}
	expected := req.Version
	if err := fn(req); err != nil {
		return nil, err
	}
	req.Version = expected + 1

	const update = `
		UPDATE verification_requests
		SET status = $3, reupload_attempts = $4, deadline_at = $5, submitted_at = $6,
		    reviewed_at = $7, reviewed_by = $8, admin_notes = $9, rejection_reason = $10,
		    missing_documents = $11, version = $12, updated_at = $13
		WHERE id = $1 AND version = $2
	`
	res, err := exec.ExecContext(ctx, update,
		uuid.UUID(req.ID), expected, string(req.Status), req.ReuploadAttempts, req.DeadlineAt,
		req.SubmittedAt, req.ReviewedAt, req.ReviewedBy, req.AdminNotes, req.RejectionReason,
		pq.Array(req.MissingDocuments), req.Version, req.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update verification request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, sentinel.ErrConflict
	}
	return req, nil
}

func (s *PostgresRequests) queryRequests(ctx context.Context, query string, args ...any) ([]*models.Request, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list verification requests: %w", err)
	}
	defer rows.Close()
	var out []*models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		req                rowRequest
		rID, aID, nID, uID uuid.UUID
		missing            pq.StringArray
	)
	err := row.Scan(&rID, &aID, &nID, &uID, &req.Status, &req.ReuploadAttempts,
		&req.DeadlineAt, &req.SubmittedAt, &req.ReviewedAt, &req.ReviewedBy, &req.AdminNotes,
		&req.RejectionReason, &missing, &req.Version, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan verification request: %w", err)
	}
	out := &models.Request{
		ID:               id.VerificationID(rID),
		AssetID:          id.AssetID(aID),
		NomineeID:        id.NomineeID(nID),
		UserID:           id.UserID(uID),
		Status:           models.Status(req.Status),
		ReuploadAttempts: req.ReuploadAttempts,
		ReviewedBy:       req.ReviewedBy,
		AdminNotes:       req.AdminNotes,
		RejectionReason:  req.RejectionReason,
		MissingDocuments: []string(missing),
		Version:          req.Version,
		CreatedAt:        req.CreatedAt,
		UpdatedAt:        req.UpdatedAt,
	}
	if req.DeadlineAt.Valid {
		t := req.DeadlineAt.Time
		out.DeadlineAt = &t
	}
	if req.SubmittedAt.Valid {
		t := req.SubmittedAt.Time
		out.SubmittedAt = &t
	}
	if req.ReviewedAt.Valid {
		t := req.ReviewedAt.Time
		out.ReviewedAt = &t
	}
	return out, nil
}

type rowRequest struct {
	Status           string
	ReuploadAttempts int
	DeadlineAt       sql.NullTime
	SubmittedAt      sql.NullTime
	ReviewedAt       sql.NullTime
	ReviewedBy       string
	AdminNotes       string
	RejectionReason  string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PostgresDocuments persists document metadata.
type PostgresDocuments struct {
	db *sql.DB
}

func NewPostgresDocuments(db *sql.DB) *PostgresDocuments {
	return &PostgresDocuments{db: db}
}

const documentColumns = `
	id, request_id, kind, file_name, content_type, size_bytes, storage_key,
	status, uploaded_at, updated_at
`

func (s *PostgresDocuments) Save(ctx context.Context, doc *models.Document) error {
	const query = `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(doc.ID), uuid.UUID(doc.RequestID), string(doc.Kind), doc.FileName,
		doc.ContentType, doc.SizeBytes, doc.StorageKey, string(doc.Status),
		doc.UploadedAt, doc.UpdatedAt,
	)
	if isUnique(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresDocuments) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(docID)))
}

func (s *PostgresDocuments) ListByRequest(ctx context.Context, requestID id.VerificationID) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE request_id = $1 ORDER BY uploaded_at ASC`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, uuid.UUID(requestID))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	var out []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *PostgresDocuments) Update(ctx context.Context, doc *models.Document) error {
	const query = `
		UPDATE documents
		SET status = $2, updated_at = $3
		WHERE id = $1
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(doc.ID), string(doc.Status), doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d        models.Document
		dID, rID uuid.UUID
		kind, st string
	)
	err := row.Scan(&dID, &rID, &kind, &d.FileName, &d.ContentType, &d.SizeBytes,
		&d.StorageKey, &st, &d.UploadedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	d.ID = id.DocumentID(dID)
	d.RequestID = id.VerificationID(rID)
	d.Kind = models.DocumentKind(kind)
	d.Status = models.DocumentStatus(st)
	return &d, nil
}

func isUnique(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
