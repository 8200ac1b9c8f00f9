// Package store persists the succession aggregates. Both implementations
// (in-memory for development and tests, PostgreSQL for production) return
// sentinel errors so services translate uniformly.
package store

import (
	"context"

	"securevault/internal/succession/models"
	id "securevault/pkg/domain"
)

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	// ListActive returns users whose status is ACTIVE; the sweep input.
	ListActive(ctx context.Context) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

type NomineeStore interface {
	Create(ctx context.Context, nominee *models.Nominee) error
	FindByID(ctx context.Context, nomineeID id.NomineeID) (*models.Nominee, error)
	ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Nominee, error)
	Update(ctx context.Context, nominee *models.Nominee) error
	Delete(ctx context.Context, nomineeID id.NomineeID) error
}

type AssetStore interface {
	Create(ctx context.Context, asset *models.Asset) error
	FindByID(ctx context.Context, assetID id.AssetID) (*models.Asset, error)
	ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Asset, error)
	Update(ctx context.Context, asset *models.Asset) error
}
