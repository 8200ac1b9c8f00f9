// Package store persists verification requests and their documents.
package store

import (
	"context"
	"time"

	"securevault/internal/verification/models"
	id "securevault/pkg/domain"
)

// Filter narrows request listings for the admin queue.
type Filter struct {
	Statuses []models.Status
	UserID   id.UserID
	Limit    int
}

// RequestStore persists verification requests.
//
// Create returns sentinel.ErrConflict when a non-terminal request already
// exists for the same (asset, nominee) pair. Execute loads the request,
// applies fn under the store's concurrency control, and persists the result
// with an incremented version; a version race surfaces as
// sentinel.ErrConflict and callers retry or fail.
type RequestStore interface {
	Create(ctx context.Context, req *models.Request) error
	FindByID(ctx context.Context, requestID id.VerificationID) (*models.Request, error)
	FindActiveByPair(ctx context.Context, assetID id.AssetID, nomineeID id.NomineeID) (*models.Request, error)
	List(ctx context.Context, filter Filter) ([]*models.Request, error)
	ListOverdue(ctx context.Context, now time.Time) ([]*models.Request, error)
	Execute(ctx context.Context, requestID id.VerificationID, fn func(*models.Request) error) (*models.Request, error)
}

// DocumentStore persists document metadata. File bytes live in the object
// store and are addressed by Document.StorageKey.
type DocumentStore interface {
	Save(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	ListByRequest(ctx context.Context, requestID id.VerificationID) ([]*models.Document, error)
	Update(ctx context.Context, doc *models.Document) error
}
