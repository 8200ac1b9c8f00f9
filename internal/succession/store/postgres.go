package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"securevault/internal/succession/models"
	id "securevault/pkg/domain"
	"securevault/pkg/platform/sentinel"
	txcontext "securevault/pkg/platform/tx"
)

const pqUniqueViolation = "23505"

// PostgresUsers persists users. Pure I/O; business rules live in services.
type PostgresUsers struct {
	db *sql.DB
}

func NewPostgresUsers(db *sql.DB) *PostgresUsers {
	return &PostgresUsers{db: db}
}

func (s *PostgresUsers) Create(ctx context.Context, user *models.User) error {
	const query = `
		INSERT INTO users (id, email, full_name, inactivity_threshold_days, last_activity_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(user.ID), user.Email, user.FullName, user.InactivityThresholdDays,
		user.LastActivityAt, string(user.Status), user.CreatedAt, user.UpdatedAt,
	)
	if isUnique(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresUsers) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	const query = `
		SELECT id, email, full_name, inactivity_threshold_days, last_activity_at, status, created_at, updated_at
		FROM users WHERE id = $1
	`
	return scanUser(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(userID)))
}

func (s *PostgresUsers) ListActive(ctx context.Context) ([]*models.User, error) {
	const query = `
		SELECT id, email, full_name, inactivity_threshold_days, last_activity_at, status, created_at, updated_at
		FROM users WHERE status = $1
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, string(models.UserStatusActive))
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		u, err := scanUserRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PostgresUsers) Update(ctx context.Context, user *models.User) error {
	const query = `
		UPDATE users
		SET email = $2, full_name = $3, inactivity_threshold_days = $4,
		    last_activity_at = $5, status = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(user.ID), user.Email, user.FullName, user.InactivityThresholdDays,
		user.LastActivityAt, string(user.Status), user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res)
}

// PostgresNominees persists nominees.
type PostgresNominees struct {
	db *sql.DB
}

func NewPostgresNominees(db *sql.DB) *PostgresNominees {
	return &PostgresNominees{db: db}
}

func (s *PostgresNominees) Create(ctx context.Context, nominee *models.Nominee) error {
	const query = `
		INSERT INTO nominees (id, owner_id, name, email, phone, relationship, identity_confirmed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(nominee.ID), uuid.UUID(nominee.OwnerID), nominee.Name, nominee.Email,
		nominee.Phone, nominee.Relationship, nominee.IdentityConfirmed, nominee.CreatedAt,
	)
	if isUnique(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert nominee: %w", err)
	}
	return nil
}

func (s *PostgresNominees) FindByID(ctx context.Context, nomineeID id.NomineeID) (*models.Nominee, error) {
	const query = `
		SELECT id, owner_id, name, email, phone, relationship, identity_confirmed, created_at
		FROM nominees WHERE id = $1
	`
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(nomineeID))
	var (
		n        models.Nominee
		nID, oID uuid.UUID
	)
	err := row.Scan(&nID, &oID, &n.Name, &n.Email, &n.Phone, &n.Relationship, &n.IdentityConfirmed, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find nominee: %w", err)
	}
	n.ID = id.NomineeID(nID)
	n.OwnerID = id.UserID(oID)
	return &n, nil
}

func (s *PostgresNominees) ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Nominee, error) {
	const query = `
		SELECT id, owner_id, name, email, phone, relationship, identity_confirmed, created_at
		FROM nominees WHERE owner_id = $1
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list nominees: %w", err)
	}
	defer rows.Close()
	var out []*models.Nominee
	for rows.Next() {
		var (
			n        models.Nominee
			nID, oID uuid.UUID
		)
		if err := rows.Scan(&nID, &oID, &n.Name, &n.Email, &n.Phone, &n.Relationship, &n.IdentityConfirmed, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan nominee: %w", err)
		}
		n.ID = id.NomineeID(nID)
		n.OwnerID = id.UserID(oID)
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *PostgresNominees) Update(ctx context.Context, nominee *models.Nominee) error {
	const query = `
		UPDATE nominees
		SET name = $2, email = $3, phone = $4, relationship = $5, identity_confirmed = $6
		WHERE id = $1
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(nominee.ID), nominee.Name, nominee.Email, nominee.Phone,
		nominee.Relationship, nominee.IdentityConfirmed,
	)
	if err != nil {
		return fmt.Errorf("update nominee: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresNominees) Delete(ctx context.Context, nomineeID id.NomineeID) error {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	if _, err := exec.ExecContext(ctx, `DELETE FROM asset_nominees WHERE nominee_id = $1`, uuid.UUID(nomineeID)); err != nil {
		return fmt.Errorf("unlink nominee: %w", err)
	}
	res, err := exec.ExecContext(ctx, `DELETE FROM nominees WHERE id = $1`, uuid.UUID(nomineeID))
	if err != nil {
		return fmt.Errorf("delete nominee: %w", err)
	}
	return requireRow(res)
}

// PostgresAssets persists assets and their nominee links.
type PostgresAssets struct {
	db *sql.DB
}

func NewPostgresAssets(db *sql.DB) *PostgresAssets {
	return &PostgresAssets{db: db}
}

func (s *PostgresAssets) Create(ctx context.Context, asset *models.Asset) error {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	const query = `
		INSERT INTO assets (id, owner_id, asset_type, encrypted_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := exec.ExecContext(ctx, query,
		uuid.UUID(asset.ID), uuid.UUID(asset.OwnerID), asset.Type, asset.EncryptedRef,
		string(asset.Status), asset.CreatedAt, asset.UpdatedAt,
	)
	if isUnique(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return s.syncLinks(ctx, asset)
}

func (s *PostgresAssets) FindByID(ctx context.Context, assetID id.AssetID) (*models.Asset, error) {
	const query = `
		SELECT a.id, a.owner_id, a.asset_type, a.encrypted_ref, a.status, a.created_at, a.updated_at,
		       COALESCE(ARRAY_AGG(an.nominee_id) FILTER (WHERE an.nominee_id IS NOT NULL), '{}')
		FROM assets a
		LEFT JOIN asset_nominees an ON an.asset_id = a.id
		WHERE a.id = $1
		GROUP BY a.id
	`
	return scanAsset(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(assetID)))
}

func (s *PostgresAssets) ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Asset, error) {
	const query = `
		SELECT a.id, a.owner_id, a.asset_type, a.encrypted_ref, a.status, a.created_at, a.updated_at,
		       COALESCE(ARRAY_AGG(an.nominee_id) FILTER (WHERE an.nominee_id IS NOT NULL), '{}')
		FROM assets a
		LEFT JOIN asset_nominees an ON an.asset_id = a.id
		WHERE a.owner_id = $1
		GROUP BY a.id
	`
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()
	var out []*models.Asset
	for rows.Next() {
		a, err := scanAssetRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresAssets) Update(ctx context.Context, asset *models.Asset) error {
	const query = `
		UPDATE assets
		SET asset_type = $2, encrypted_ref = $3, status = $4, updated_at = $5
		WHERE id = $1
	`
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(asset.ID), asset.Type, asset.EncryptedRef, string(asset.Status), asset.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return s.syncLinks(ctx, asset)
}

func (s *PostgresAssets) syncLinks(ctx context.Context, asset *models.Asset) error {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	if _, err := exec.ExecContext(ctx, `DELETE FROM asset_nominees WHERE asset_id = $1`, uuid.UUID(asset.ID)); err != nil {
		return fmt.Errorf("clear asset links: %w", err)
	}
	for _, nomineeID := range asset.NomineeIDs {
		if _, err := exec.ExecContext(ctx,
			`INSERT INTO asset_nominees (asset_id, nominee_id) VALUES ($1, $2)`,
			uuid.UUID(asset.ID), uuid.UUID(nomineeID),
		); err != nil {
			return fmt.Errorf("link nominee: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u   models.User
		uid uuid.UUID
	)
	err := row.Scan(&uid, &u.Email, &u.FullName, &u.InactivityThresholdDays, &u.LastActivityAt, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.ID = id.UserID(uid)
	return &u, nil
}

func scanUserRows(rows *sql.Rows) (*models.User, error) {
	return scanUser(rows)
}

func scanAsset(row rowScanner) (*models.Asset, error) {
	var (
		a        models.Asset
		aID, oID uuid.UUID
		nominees pq.StringArray
	)
	err := row.Scan(&aID, &oID, &a.Type, &a.EncryptedRef, &a.Status, &a.CreatedAt, &a.UpdatedAt, &nominees)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan asset: %w", err)
	}
	a.ID = id.AssetID(aID)
	a.OwnerID = id.UserID(oID)
	for _, raw := range nominees {
		n, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse nominee link: %w", err)
		}
		a.NomineeIDs = append(a.NomineeIDs, id.NomineeID(n))
	}
	return &a, nil
}

func scanAssetRows(rows *sql.Rows) (*models.Asset, error) {
	return scanAsset(rows)
}

func isUnique(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
