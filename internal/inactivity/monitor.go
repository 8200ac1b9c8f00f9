// Package inactivity detects vault owners who have gone quiet and opens
// the succession workflow for their nominees. The sweep is the only entry
// point that creates verification requests.
package inactivity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"securevault/internal/audit"
	"securevault/internal/platform/metrics"
	succmodels "securevault/internal/succession/models"
	succstore "securevault/internal/succession/store"
	vservice "securevault/internal/verification/service"
	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
	txcontext "securevault/pkg/platform/tx"
	"securevault/pkg/requestcontext"
)

// Monitor runs the periodic inactivity sweep and handles owner activity
// coming back in.
type Monitor struct {
	users   succstore.UserStore
	assets  succstore.AssetStore
	engine  *vservice.Engine
	audit   *audit.Recorder
	metrics *metrics.Metrics
	tx      txcontext.Runner
	logger  *slog.Logger
	tracer  trace.Tracer
}

func NewMonitor(users succstore.UserStore, assets succstore.AssetStore, engine *vservice.Engine, recorder *audit.Recorder, m *metrics.Metrics, tx txcontext.Runner, logger *slog.Logger) *Monitor {
	return &Monitor{
		users:   users,
		assets:  assets,
		engine:  engine,
		audit:   recorder,
		metrics: m,
		tx:      tx,
		logger:  logger,
		tracer:  otel.Tracer("securevault/inactivity"),
	}
}

// RecordActivity resets the owner's inactivity clock. An owner who was
// already flagged inactive is reactivated, but claims their nominees opened
// stay in flight: nominees may be mid-process with documents submitted, so
// discarding their work takes the explicit CancelClaims call, never a login.
func (m *Monitor) RecordActivity(ctx context.Context, userID id.UserID) (*succmodels.User, error) {
	ctx, span := m.tracer.Start(ctx, "inactivity.RecordActivity")
	defer span.End()

	now := requestcontext.Now(ctx)
	user, err := m.users.FindByID(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "user not found")
	}

	wasTriggered := user.Status == succmodels.UserStatusInactivityTriggered
	err = m.tx.RunInTx(ctx, func(ctx context.Context) error {
		user.RecordActivity(now)
		if wasTriggered {
			user.ApplyReactivated(now)
		}
		if err := m.users.Update(ctx, user); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update user")
		}
		return m.audit.Success(ctx, audit.ActorUser, userID.String(), audit.ActionActivityRecorded,
			"user", userID.String(), "")
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if wasTriggered {
		m.logger.Info("owner reactivated, open claims left in flight", "user_id", userID)
	}
	return user, nil
}

// CancelClaims closes every open claim against the owner's assets. This is
// the explicit step a returning owner (or an administrator acting for them)
// takes after reactivation; it is never triggered by login alone.
func (m *Monitor) CancelClaims(ctx context.Context, userID id.UserID) (int, error) {
	ctx, span := m.tracer.Start(ctx, "inactivity.CancelClaims")
	defer span.End()

	if _, err := m.users.FindByID(ctx, userID); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeNotFound, "user not found")
	}
	cancelled, err := m.engine.CancelClaimsForUser(ctx, userID, "claims cancelled by returning vault owner")
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	m.logger.Info("claims cancelled", "user_id", userID, "cancelled", cancelled)
	return cancelled, nil
}

// Sweep flags every owner past their inactivity threshold and opens one
// verification request per (asset, nominee) pair. Idempotent: rerunning it
// skips owners already flagged and pairs that already hold an active claim.
func (m *Monitor) Sweep(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "inactivity.Sweep")
	defer span.End()

	started := time.Now()
	defer func() {
		m.metrics.SweepRuns.Inc()
		m.metrics.SweepDuration.Observe(time.Since(started).Seconds())
	}()

	now := requestcontext.Now(ctx)
	users, err := m.users.ListActive(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list users")
	}
	for _, user := range users {
		if !user.InactiveSince(now) {
			continue
		}
		if err := m.trigger(ctx, user); err != nil {
			m.logger.Error("inactivity trigger failed", "user_id", user.ID, "err", err)
			continue
		}
	}

	// The same loop retires claims whose document window lapsed.
	expired, err := m.engine.ExpireOverdue(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		m.logger.Info("overdue requests expired", "count", expired)
	}
	return nil
}

func (m *Monitor) trigger(ctx context.Context, user *succmodels.User) error {
	now := requestcontext.Now(ctx)
	if err := user.CanMarkInactive(); err != nil {
		return err
	}

	err := m.tx.RunInTx(ctx, func(ctx context.Context) error {
		user.ApplyInactivityTriggered(now)
		if err := m.users.Update(ctx, user); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update user")
		}
		return m.audit.Success(ctx, audit.ActorSystem, "inactivity-monitor", audit.ActionInactivityTriggered,
			"user", user.ID.String(),
			fmt.Sprintf("no activity since %s", user.LastActivityAt.Format(time.RFC3339)))
	})
	if err != nil {
		return err
	}

	assets, err := m.assets.ListByOwner(ctx, user.ID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list assets")
	}
	for _, asset := range assets {
		if asset.Status != succmodels.AssetStatusActive {
			continue
		}
		opened := 0
		for _, nomineeID := range asset.NomineeIDs {
			_, _, err := m.engine.OpenClaim(ctx, user.ID, asset.ID, nomineeID)
			if err != nil {
				if dErrors.HasCode(err, dErrors.CodeConflict) {
					continue
				}
				m.logger.Error("claim creation failed",
					"asset_id", asset.ID, "nominee_id", nomineeID, "err", err)
				continue
			}
			opened++
		}
		if opened > 0 {
			asset.ApplyPendingVerification(now)
			if err := m.assets.Update(ctx, asset); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("asset status update failed", "asset_id", asset.ID, "err", err)
			}
		}
	}
	return nil
}

// Run drives the sweep until the context ends.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sweepCtx := requestcontext.WithTime(ctx, time.Now().UTC())
			if err := m.Sweep(sweepCtx); err != nil {
				m.logger.Error("inactivity sweep failed", "err", err)
			}
		}
	}
}
