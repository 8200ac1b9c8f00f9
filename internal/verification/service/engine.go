// Package service implements the verification workflow engine: the
// nominee-facing half of the claim lifecycle, from token redemption through
// document submission, plus the system-driven expiry and closure paths.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"securevault/internal/audit"
	"securevault/internal/notify"
	"securevault/internal/objectstore"
	"securevault/internal/platform/config"
	"securevault/internal/platform/metrics"
	succstore "securevault/internal/succession/store"
	"securevault/internal/token"
	"securevault/internal/verification/models"
	"securevault/internal/verification/store"
	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
	"securevault/pkg/platform/sentinel"
	txcontext "securevault/pkg/platform/tx"
	"securevault/pkg/requestcontext"
)

const targetRequest = "verification_request"

// Engine drives the verification state machine. Every mutation runs inside
// a transaction boundary so the state change, its audit entry and any token
// bookkeeping land atomically.
type Engine struct {
	requests  store.RequestStore
	documents store.DocumentStore
	nominees  succstore.NomineeStore
	tokens    *token.Service
	objects   objectstore.Store
	audit     *audit.Recorder
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	tx        txcontext.Runner
	logger    *slog.Logger
	tracer    trace.Tracer

	limits      models.UploadLimits
	docWindow   time.Duration
	maxReupload int
}

// Config wires the engine's collaborators.
type Config struct {
	Requests  store.RequestStore
	Documents store.DocumentStore
	Nominees  succstore.NomineeStore
	Tokens    *token.Service
	Objects   objectstore.Store
	Audit     *audit.Recorder
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Tx        txcontext.Runner
	Logger    *slog.Logger
	Workflow  config.Workflow
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		requests:  cfg.Requests,
		documents: cfg.Documents,
		nominees:  cfg.Nominees,
		tokens:    cfg.Tokens,
		objects:   cfg.Objects,
		audit:     cfg.Audit,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		tx:        cfg.Tx,
		logger:    cfg.Logger,
		tracer:    otel.Tracer("securevault/verification"),
		limits: models.UploadLimits{
			MaxBytes:     cfg.Workflow.MaxUploadBytes,
			ContentTypes: cfg.Workflow.AllowedContentTypes,
		},
		docWindow:   time.Duration(cfg.Workflow.DocumentExpiryDays) * 24 * time.Hour,
		maxReupload: cfg.Workflow.MaxReuploadAttempts,
	}
}

// OpenClaim creates a verification request for one (asset, nominee) pair and
// issues its access token. The plaintext token is returned for out-of-band
// delivery and never stored. A second open claim for the same pair fails
// with a conflict, which the inactivity sweep treats as already done.
func (e *Engine) OpenClaim(ctx context.Context, userID id.UserID, assetID id.AssetID, nomineeID id.NomineeID) (*models.Request, string, error) {
	ctx, span := e.tracer.Start(ctx, "verification.OpenClaim")
	defer span.End()

	nominee, err := e.nominees.FindByID(ctx, nomineeID)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeNotFound, "nominee not found")
	}

	now := requestcontext.Now(ctx)
	req := models.NewRequest(id.NewVerificationID(), assetID, nomineeID, userID, now)

	var plaintext string
	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.requests.Create(ctx, req); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "an active verification request already exists for this nominee and asset")
			}
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create verification request")
		}
		tok, value, err := e.tokens.Issue(ctx, req.ID)
		if err != nil {
			return err
		}
		plaintext = value
		e.metrics.TokensIssued.Inc()
		if err := e.audit.Success(ctx, audit.ActorSystem, "inactivity-monitor", audit.ActionTokenIssued,
			targetRequest, req.ID.String(),
			fmt.Sprintf("token=%s expires=%s", tok.ID, tok.ExpiresAt.Format(time.RFC3339))); err != nil {
			return err
		}
		return e.audit.Success(ctx, audit.ActorSystem, "inactivity-monitor", audit.ActionRequestCreated,
			targetRequest, req.ID.String(), fmt.Sprintf("asset=%s nominee=%s", assetID, nomineeID))
	})
	if err != nil {
		span.RecordError(err)
		return nil, "", err
	}
	e.metrics.RequestsCreated.Inc()

	e.send(ctx, notify.Message{
		Event:     notify.EventVerificationStarted,
		Recipient: nominee.Email,
		Fields:    map[string]string{"request_id": req.ID.String()},
	})
	return req, plaintext, nil
}

// AccessView is what a nominee sees when they open their verification link.
type AccessView struct {
	RequestID   id.VerificationID `json:"request_id"`
	Status      models.Status     `json:"status"`
	Outstanding []token.Action    `json:"outstanding"`
	TokenExpiry time.Time         `json:"token_expires_at"`
	DeadlineAt  *time.Time        `json:"deadline_at,omitempty"`
	Missing     []string          `json:"missing_documents,omitempty"`
	Attempts    int               `json:"reupload_attempts"`
}

// VerifyToken resolves a presented token without consuming anything, so the
// nominee page can poll it. Failures are audited and answered with one
// generic message that leaks nothing about why.
func (e *Engine) VerifyToken(ctx context.Context, value string) (*AccessView, error) {
	ctx, span := e.tracer.Start(ctx, "verification.VerifyToken")
	defer span.End()

	tctx, err := e.tokens.Validate(ctx, value)
	if err != nil {
		return nil, e.rejectToken(ctx, span, err)
	}
	req, err := e.requests.FindByID(ctx, tctx.RequestID)
	if err != nil {
		return nil, e.rejectToken(ctx, span, err)
	}
	e.metrics.TokenValidations.WithLabelValues("accepted").Inc()
	return &AccessView{
		RequestID:   req.ID,
		Status:      req.Status,
		Outstanding: tctx.Outstanding,
		TokenExpiry: tctx.ExpiresAt,
		DeadlineAt:  req.DeadlineAt,
		Missing:     req.MissingDocuments,
		Attempts:    req.ReuploadAttempts,
	}, nil
}

func (e *Engine) rejectToken(ctx context.Context, span trace.Span, cause error) error {
	span.RecordError(cause)
	e.metrics.TokenValidations.WithLabelValues("rejected").Inc()
	if err := e.audit.Failure(ctx, audit.ActorNominee, "unknown", audit.ActionTokenRejected,
		"token", "", string(dErrors.CodeOf(cause))); err != nil {
		e.logger.Error("audit append failed", "err", err)
	}
	// One opaque answer for every failure mode.
	return dErrors.New(dErrors.CodeUnauthorized, "invalid or expired verification link")
}

// ConfirmIdentity checks the nominee's declared name and relationship
// against the record the vault owner created, and requires the legal
// declaration to be accepted. A match advances the claim and opens the
// document window; a mismatch is audited and answered without revealing
// which field was wrong or what the record holds.
func (e *Engine) ConfirmIdentity(ctx context.Context, value, fullName, relationship string, declarationAccepted bool) (*models.Request, error) {
	ctx, span := e.tracer.Start(ctx, "verification.ConfirmIdentity")
	defer span.End()

	tctx, err := e.tokens.Validate(ctx, value)
	if err != nil {
		return nil, e.rejectToken(ctx, span, err)
	}
	if !declarationAccepted {
		return nil, dErrors.New(dErrors.CodeValidation, "the legal declaration must be accepted")
	}
	req, err := e.requests.FindByID(ctx, tctx.RequestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "verification request not found")
	}
	if err := req.CanConfirmIdentity(); err != nil {
		e.denied(ctx, "confirm_identity", req.ID, err)
		return nil, err
	}
	nominee, err := e.nominees.FindByID(ctx, req.NomineeID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "nominee record not found")
	}

	if !nominee.MatchesName(fullName) || !nominee.MatchesRelationship(relationship) {
		e.metrics.Transitions.WithLabelValues("confirm_identity", "denied").Inc()
		if err := e.audit.Failure(ctx, audit.ActorNominee, nominee.ID.String(), audit.ActionIdentityMismatch,
			targetRequest, req.ID.String(), "declared identity did not match the nominee record"); err != nil {
			e.logger.Error("audit append failed", "err", err)
		}
		return nil, dErrors.New(dErrors.CodeValidation, "the provided details do not match our records")
	}

	now := requestcontext.Now(ctx)
	var updated *models.Request
	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = e.requests.Execute(ctx, req.ID, func(r *models.Request) error {
			if err := r.CanConfirmIdentity(); err != nil {
				return err
			}
			if err := r.ApplyIdentityConfirmed(now); err != nil {
				return err
			}
			return r.ApplyDocumentWindowOpened(now, now.Add(e.docWindow))
		})
		if err != nil {
			return err
		}
		nominee.IdentityConfirmed = true
		if err := e.nominees.Update(ctx, nominee); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update nominee")
		}
		if _, err := e.tokens.Consume(ctx, value, req.ID, token.ActionIdentity); err != nil {
			return err
		}
		// The token must outlive the document window it just opened.
		if err := e.tokens.ExtendTo(ctx, value, *updated.DeadlineAt); err != nil {
			return err
		}
		return e.audit.Success(ctx, audit.ActorNominee, nominee.ID.String(), audit.ActionIdentityConfirmed,
			targetRequest, req.ID.String(),
			fmt.Sprintf("document window open until %s", updated.DeadlineAt.Format(time.RFC3339)))
	})
	if err != nil {
		span.RecordError(err)
		e.metrics.Transitions.WithLabelValues("confirm_identity", "failed").Inc()
		return nil, err
	}
	e.metrics.Transitions.WithLabelValues("confirm_identity", "applied").Inc()
	return updated, nil
}

// UploadDocument stores one evidence file against an open document window.
// Re-uploading the same kind before submission replaces the earlier file in
// review terms; the submission picks the latest per kind.
func (e *Engine) UploadDocument(ctx context.Context, value, kindRaw, fileName, contentType string, data []byte) (*models.Document, error) {
	ctx, span := e.tracer.Start(ctx, "verification.UploadDocument")
	defer span.End()

	tctx, err := e.tokens.Validate(ctx, value)
	if err != nil {
		if lapsed := e.settleLapsedDeadline(ctx, value, err); lapsed != nil {
			span.RecordError(lapsed)
			return nil, lapsed
		}
		return nil, e.rejectToken(ctx, span, err)
	}
	if !outstanding(tctx, token.ActionDocuments) {
		if err := e.audit.Failure(ctx, audit.ActorNominee, "unknown", audit.ActionScopeViolation,
			targetRequest, tctx.RequestID.String(), "token presented without an open documents scope"); err != nil {
			e.logger.Error("audit append failed", "err", err)
		}
		return nil, dErrors.New(dErrors.CodeForbidden, "this verification link no longer accepts documents")
	}
	kind, err := models.ParseDocumentKind(kindRaw)
	if err != nil {
		return nil, err
	}
	if err := e.limits.ValidateUpload(fileName, contentType, int64(len(data))); err != nil {
		return nil, err
	}

	req, err := e.requests.FindByID(ctx, tctx.RequestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "verification request not found")
	}
	now := requestcontext.Now(ctx)
	if req.Overdue(now) {
		if err := e.expireOne(ctx, req.ID); err != nil {
			e.logger.Error("deadline expiry failed", "request_id", req.ID, "err", err)
		}
		return nil, dErrors.New(dErrors.CodeExpired, "the document submission deadline has passed")
	}
	if err := req.CanSubmitDocuments(); err != nil {
		e.denied(ctx, "upload_document", req.ID, err)
		return nil, err
	}

	doc := models.NewDocument(id.NewDocumentID(), req.ID, kind, fileName, contentType, int64(len(data)), now)
	if err := e.objects.Put(ctx, doc.StorageKey, contentType, data); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store document")
	}
	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := e.documents.Save(ctx, doc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record document")
		}
		return e.audit.Success(ctx, audit.ActorNominee, req.NomineeID.String(), audit.ActionDocumentUploaded,
			targetRequest, req.ID.String(), fmt.Sprintf("kind=%s file=%s size=%d", kind, fileName, len(data)))
	})
	if err != nil {
		span.RecordError(err)
		if derr := e.objects.Delete(ctx, doc.StorageKey); derr != nil && !errors.Is(derr, sentinel.ErrNotFound) {
			e.logger.Error("orphaned upload cleanup failed", "key", doc.StorageKey, "err", derr)
		}
		return nil, err
	}
	return doc, nil
}

// SubmitDocuments finalises the upload window. It requires every document
// kind present, both declarations affirmed, and the deadline unexpired;
// success queues the claim for admin review and consumes the token's
// document scope.
func (e *Engine) SubmitDocuments(ctx context.Context, value string, truthDeclared, legalDeclared bool) (*models.Request, error) {
	ctx, span := e.tracer.Start(ctx, "verification.SubmitDocuments")
	defer span.End()

	tctx, err := e.tokens.Validate(ctx, value)
	if err != nil {
		if lapsed := e.settleLapsedDeadline(ctx, value, err); lapsed != nil {
			span.RecordError(lapsed)
			return nil, lapsed
		}
		return nil, e.rejectToken(ctx, span, err)
	}
	if !truthDeclared || !legalDeclared {
		return nil, dErrors.New(dErrors.CodeValidation, "both declarations must be accepted before submission")
	}

	req, err := e.requests.FindByID(ctx, tctx.RequestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "verification request not found")
	}
	now := requestcontext.Now(ctx)
	if req.Overdue(now) {
		if err := e.expireOne(ctx, req.ID); err != nil {
			e.logger.Error("deadline expiry failed", "request_id", req.ID, "err", err)
		}
		return nil, dErrors.New(dErrors.CodeExpired, "the document submission deadline has passed")
	}

	docs, err := e.documents.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load documents")
	}
	latest := latestPerKind(docs)
	if missing := missingKinds(latest); len(missing) > 0 {
		return nil, dErrors.Newf(dErrors.CodeValidation, "missing required documents: %s", strings.Join(missing, ", "))
	}

	var updated *models.Request
	err = e.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = e.requests.Execute(ctx, req.ID, func(r *models.Request) error {
			if err := r.CanSubmitDocuments(); err != nil {
				return err
			}
			if err := r.ApplyDocumentsSubmitted(now); err != nil {
				return err
			}
			return r.ApplyPendingAdminReview(now)
		})
		if err != nil {
			return err
		}
		for _, doc := range latest {
			if doc.Status != models.DocPending {
				continue
			}
			if err := doc.ApplyStatus(models.DocUnderReview, now); err != nil {
				return err
			}
			if err := e.documents.Update(ctx, doc); err != nil {
				return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update document")
			}
		}
		if _, err := e.tokens.Consume(ctx, value, req.ID, token.ActionDocuments); err != nil {
			return err
		}
		return e.audit.Success(ctx, audit.ActorNominee, req.NomineeID.String(), audit.ActionDocumentsSubmitted,
			targetRequest, req.ID.String(), fmt.Sprintf("documents=%d", len(latest)))
	})
	if err != nil {
		span.RecordError(err)
		e.metrics.Transitions.WithLabelValues("submit_documents", "failed").Inc()
		return nil, err
	}
	e.metrics.Transitions.WithLabelValues("submit_documents", "applied").Inc()

	e.send(ctx, notify.Message{
		Event:     notify.EventReviewQueued,
		Recipient: "admin-review-queue",
		Fields:    map[string]string{"request_id": req.ID.String()},
	})
	return updated, nil
}

// StatusView is the nominee's timeline: the claim, its documents and the
// audit trail that concerns it.
type StatusView struct {
	Request   *models.Request    `json:"request"`
	Documents []*models.Document `json:"documents"`
	Timeline  []audit.Entry      `json:"timeline"`
}

// Status returns the claim as the nominee may see it.
func (e *Engine) Status(ctx context.Context, value string) (*StatusView, error) {
	ctx, span := e.tracer.Start(ctx, "verification.Status")
	defer span.End()

	tctx, err := e.tokens.Validate(ctx, value)
	if err != nil {
		return nil, e.rejectToken(ctx, span, err)
	}
	req, err := e.requests.FindByID(ctx, tctx.RequestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "verification request not found")
	}
	docs, err := e.documents.ListByRequest(ctx, req.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load documents")
	}
	timeline, err := e.audit.Query(ctx, audit.Filter{TargetType: targetRequest, TargetID: req.ID.String(), Limit: 50})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load timeline")
	}
	return &StatusView{Request: req, Documents: docs, Timeline: timeline}, nil
}

// ExpireOverdue terminates every claim whose document deadline has lapsed.
// Safe to run from multiple instances: the version check makes the second
// expiry a no-op conflict.
func (e *Engine) ExpireOverdue(ctx context.Context) (int, error) {
	ctx, span := e.tracer.Start(ctx, "verification.ExpireOverdue")
	defer span.End()

	now := requestcontext.Now(ctx)
	overdue, err := e.requests.ListOverdue(ctx, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list overdue requests")
	}
	expired := 0
	for _, req := range overdue {
		if err := e.expireOne(ctx, req.ID); err != nil {
			if dErrors.HasCode(err, dErrors.CodeConflict) || dErrors.HasCode(err, dErrors.CodeInvalidState) {
				continue
			}
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (e *Engine) expireOne(ctx context.Context, requestID id.VerificationID) error {
	now := requestcontext.Now(ctx)
	var nomineeID id.NomineeID
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		updated, err := e.requests.Execute(ctx, requestID, func(r *models.Request) error {
			return r.ApplyExpiry(now)
		})
		if err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "request changed concurrently")
			}
			return err
		}
		nomineeID = updated.NomineeID
		revoked, err := e.tokens.Revoke(ctx, requestID)
		if err != nil {
			return err
		}
		if revoked > 0 {
			if err := e.audit.Success(ctx, audit.ActorSystem, "deadline-sweep", audit.ActionTokenRevoked,
				targetRequest, requestID.String(), fmt.Sprintf("%d token(s) revoked", revoked)); err != nil {
				return err
			}
		}
		return e.audit.Success(ctx, audit.ActorSystem, "deadline-sweep", audit.ActionRequestExpired,
			targetRequest, requestID.String(), "document submission deadline passed")
	})
	if err != nil {
		return err
	}
	e.metrics.Transitions.WithLabelValues("expire", "applied").Inc()

	if nominee, nerr := e.nominees.FindByID(ctx, nomineeID); nerr == nil {
		e.send(ctx, notify.Message{
			Event:     notify.EventRequestExpired,
			Recipient: nominee.Email,
			Fields:    map[string]string{"request_id": requestID.String()},
		})
	}
	return nil
}

// settleLapsedDeadline handles a token whose expiry coincided with the
// document deadline: the claim behind it is expired in-band and the nominee
// gets the deadline error rather than the opaque token one. Returns nil
// when there is nothing to settle.
func (e *Engine) settleLapsedDeadline(ctx context.Context, value string, cause error) error {
	if !dErrors.HasCode(cause, dErrors.CodeExpired) {
		return nil
	}
	tctx, err := e.tokens.Peek(ctx, value)
	if err != nil {
		return nil
	}
	req, err := e.requests.FindByID(ctx, tctx.RequestID)
	if err != nil {
		return nil
	}
	if !req.Overdue(requestcontext.Now(ctx)) {
		return nil
	}
	if err := e.expireOne(ctx, req.ID); err != nil &&
		!dErrors.HasCode(err, dErrors.CodeConflict) && !dErrors.HasCode(err, dErrors.CodeInvalidState) {
		e.logger.Error("deadline expiry failed", "request_id", req.ID, "err", err)
	}
	return dErrors.New(dErrors.CodeExpired, "the document submission deadline has passed")
}

// CancelClaimsForUser closes every active claim against a user's assets;
// called when the owner proves they are alive. Closed claims stay on record.
func (e *Engine) CancelClaimsForUser(ctx context.Context, userID id.UserID, reason string) (int, error) {
	ctx, span := e.tracer.Start(ctx, "verification.CancelClaimsForUser")
	defer span.End()

	active, err := e.requests.List(ctx, store.Filter{UserID: userID})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list requests")
	}
	closed := 0
	for _, req := range active {
		if req.Status.Terminal() {
			continue
		}
		if err := e.closeOne(ctx, req.ID, audit.ActionClaimsCancelled, reason); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}

// CloseForNominee closes every active claim held by one nominee; called
// when the owner removes the nominee from their vault.
func (e *Engine) CloseForNominee(ctx context.Context, nomineeID id.NomineeID, reason string) (int, error) {
	ctx, span := e.tracer.Start(ctx, "verification.CloseForNominee")
	defer span.End()

	all, err := e.requests.List(ctx, store.Filter{})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list requests")
	}
	closed := 0
	for _, req := range all {
		if req.NomineeID != nomineeID || req.Status.Terminal() {
			continue
		}
		if err := e.closeOne(ctx, req.ID, audit.ActionRequestClosed, reason); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}

func (e *Engine) closeOne(ctx context.Context, requestID id.VerificationID, action audit.Action, reason string) error {
	now := requestcontext.Now(ctx)
	err := e.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := e.requests.Execute(ctx, requestID, func(r *models.Request) error {
			return r.ApplyClosed(now)
		}); err != nil {
			return err
		}
		revoked, err := e.tokens.Revoke(ctx, requestID)
		if err != nil {
			return err
		}
		if revoked > 0 {
			if err := e.audit.Success(ctx, audit.ActorSystem, "workflow-engine", audit.ActionTokenRevoked,
				targetRequest, requestID.String(), fmt.Sprintf("%d token(s) revoked", revoked)); err != nil {
				return err
			}
		}
		return e.audit.Success(ctx, audit.ActorSystem, "workflow-engine", action,
			targetRequest, requestID.String(), reason)
	})
	if err != nil {
		return err
	}
	e.metrics.Transitions.WithLabelValues("close", "applied").Inc()
	return nil
}

func (e *Engine) denied(ctx context.Context, attempted string, requestID id.VerificationID, cause error) {
	e.metrics.Transitions.WithLabelValues(attempted, "denied").Inc()
	if err := e.audit.Failure(ctx, audit.ActorNominee, "unknown", audit.ActionTransitionDenied,
		targetRequest, requestID.String(), fmt.Sprintf("%s: %v", attempted, cause)); err != nil {
		e.logger.Error("audit append failed", "err", err)
	}
}

func (e *Engine) send(ctx context.Context, msg notify.Message) {
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.metrics.NotifyFailures.Inc()
		e.logger.Error("notification delivery failed", "event", msg.Event, "err", err)
		if aerr := e.audit.Failure(ctx, audit.ActorSystem, "notifier", audit.ActionNotifyFailed,
			"notification", string(msg.Event), err.Error()); aerr != nil {
			e.logger.Error("audit append failed", "err", aerr)
		}
	}
}

func outstanding(tctx *token.Context, action token.Action) bool {
	for _, a := range tctx.Outstanding {
		if a == action {
			return true
		}
	}
	return false
}

func latestPerKind(docs []*models.Document) map[models.DocumentKind]*models.Document {
	latest := make(map[models.DocumentKind]*models.Document)
	for _, doc := range docs {
		current, ok := latest[doc.Kind]
		if !ok || doc.UploadedAt.After(current.UploadedAt) {
			latest[doc.Kind] = doc
		}
	}
	return latest
}

func missingKinds(latest map[models.DocumentKind]*models.Document) []string {
	var missing []string
	for _, kind := range models.RequiredKinds {
		if _, ok := latest[kind]; !ok {
			missing = append(missing, string(kind))
		}
	}
	return missing
}
