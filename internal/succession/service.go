// Package succession manages the vault owner's aggregates: the owner
// record, the nominees they designate and the assets those nominees may
// eventually claim. The verification workflow consumes these records; this
// service owns their lifecycle, in particular the nominee-removal cascade.
package succession

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"securevault/internal/audit"
	"securevault/internal/succession/models"
	succstore "securevault/internal/succession/store"
	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
	txcontext "securevault/pkg/platform/tx"
	"securevault/pkg/requestcontext"
)

// ClaimCloser terminates every open verification claim a nominee holds.
// The verification engine implements it.
type ClaimCloser interface {
	CloseForNominee(ctx context.Context, nomineeID id.NomineeID, reason string) (int, error)
}

// Service mutates the succession aggregates on behalf of the vault owner.
type Service struct {
	users    succstore.UserStore
	nominees succstore.NomineeStore
	assets   succstore.AssetStore
	claims   ClaimCloser
	audit    *audit.Recorder
	tx       txcontext.Runner
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewService(users succstore.UserStore, nominees succstore.NomineeStore, assets succstore.AssetStore, claims ClaimCloser, recorder *audit.Recorder, tx txcontext.Runner, logger *slog.Logger) *Service {
	return &Service{
		users:    users,
		nominees: nominees,
		assets:   assets,
		claims:   claims,
		audit:    recorder,
		tx:       tx,
		logger:   logger,
		tracer:   otel.Tracer("securevault/succession"),
	}
}

// RegisterNominee records a new nominee and links them to the given assets.
// Every asset must belong to the same owner and the per-asset nominee bound
// holds across the whole batch.
func (s *Service) RegisterNominee(ctx context.Context, nominee *models.Nominee, assetIDs []id.AssetID) error {
	ctx, span := s.tracer.Start(ctx, "succession.RegisterNominee")
	defer span.End()

	if _, err := s.users.FindByID(ctx, nominee.OwnerID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "vault owner not found")
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.nominees.Create(ctx, nominee); err != nil {
			return dErrors.Wrap(err, dErrors.CodeConflict, "nominee already exists")
		}
		for _, assetID := range assetIDs {
			asset, err := s.assets.FindByID(ctx, assetID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeNotFound, "asset not found")
			}
			if asset.OwnerID != nominee.OwnerID {
				return dErrors.New(dErrors.CodeForbidden, "asset belongs to a different owner")
			}
			if err := asset.LinkNominee(nominee.ID); err != nil {
				return err
			}
			if err := s.assets.Update(ctx, asset); err != nil {
				return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update asset")
			}
		}
		return s.audit.Success(ctx, audit.ActorUser, nominee.OwnerID.String(), audit.ActionNomineeRegistered,
			"nominee", nominee.ID.String(),
			fmt.Sprintf("linked to %d assets", len(assetIDs)))
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// ListNominees returns the owner's registered nominees.
func (s *Service) ListNominees(ctx context.Context, ownerID id.UserID) ([]*models.Nominee, error) {
	nominees, err := s.nominees.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list nominees")
	}
	return nominees, nil
}

// DeleteNominee removes a nominee from the owner's vault. The removal
// cascades: every open verification claim the nominee holds is closed with
// its tokens revoked, and the nominee is unlinked from every asset. Closed
// requests stay on record. Returns the number of claims closed.
func (s *Service) DeleteNominee(ctx context.Context, ownerID id.UserID, nomineeID id.NomineeID) (int, error) {
	ctx, span := s.tracer.Start(ctx, "succession.DeleteNominee")
	defer span.End()

	nominee, err := s.nominees.FindByID(ctx, nomineeID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeNotFound, "nominee not found")
	}
	if nominee.OwnerID != ownerID {
		return 0, dErrors.New(dErrors.CodeForbidden, "nominee belongs to a different owner")
	}

	closed := 0
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		closed, err = s.claims.CloseForNominee(ctx, nomineeID, "nominee removed by vault owner")
		if err != nil {
			return err
		}
		assets, err := s.assets.ListByOwner(ctx, ownerID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list assets")
		}
		for _, asset := range assets {
			before := len(asset.NomineeIDs)
			asset.UnlinkNominee(nomineeID)
			if len(asset.NomineeIDs) == before {
				continue
			}
			asset.UpdatedAt = requestcontext.Now(ctx)
			if err := s.assets.Update(ctx, asset); err != nil {
				return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update asset")
			}
		}
		if err := s.nominees.Delete(ctx, nomineeID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to delete nominee")
		}
		return s.audit.Success(ctx, audit.ActorUser, ownerID.String(), audit.ActionNomineeDeleted,
			"nominee", nomineeID.String(),
			fmt.Sprintf("%d open claims closed", closed))
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	s.logger.Info("nominee removed", "nominee_id", nomineeID, "owner_id", ownerID, "claims_closed", closed)
	return closed, nil
}
