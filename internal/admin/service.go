// Package admin implements the review gate: the human decision point every
// verification claim must pass before any asset is released.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"securevault/internal/audit"
	"securevault/internal/notify"
	"securevault/internal/platform/config"
	"securevault/internal/platform/metrics"
	succmodels "securevault/internal/succession/models"
	succstore "securevault/internal/succession/store"
	"securevault/internal/token"
	"securevault/internal/verification/models"
	"securevault/internal/verification/store"
	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
	txcontext "securevault/pkg/platform/tx"
	"securevault/pkg/requestcontext"
)

const targetRequest = "verification_request"

// Decision is an admin verdict on a claim under review.
type Decision string

const (
	DecisionApprove          Decision = "APPROVE"
	DecisionReject           Decision = "REJECT"
	DecisionRequestDocuments Decision = "REQUEST_DOCUMENTS"
)

// Review is one submitted verdict.
type Review struct {
	Decision         Decision         `json:"decision"`
	Checklist        models.Checklist `json:"checklist"`
	Notes            string           `json:"notes"`
	RejectionReason  string           `json:"rejection_reason"`
	MissingDocuments []string         `json:"missing_documents"`
}

// ReviewResult reports what actually happened. Applied can differ from the
// submitted decision: a re-upload request past the attempt bound becomes a
// rejection.
type ReviewResult struct {
	Request *models.Request `json:"request"`
	Applied Decision        `json:"applied"`
	Token   string          `json:"-"`
}

// QueueItem is one row in the review queue.
type QueueItem struct {
	Request  *models.Request `json:"request"`
	Priority models.Priority `json:"priority"`
}

// Detail is the full picture an admin reviews: the claim, its evidence and
// its audit trail.
type Detail struct {
	Request   *models.Request    `json:"request"`
	Documents []*models.Document `json:"documents"`
	Checklist []string           `json:"checklist_items"`
	Trail     []audit.Entry      `json:"trail"`
}

// Gate owns all admin-side mutations of the workflow.
type Gate struct {
	requests  store.RequestStore
	documents store.DocumentStore
	assets    succstore.AssetStore
	nominees  succstore.NomineeStore
	tokens    *token.Service
	audit     *audit.Recorder
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	tx        txcontext.Runner
	logger    *slog.Logger
	tracer    trace.Tracer

	docWindow   time.Duration
	maxReupload int
}

// GateConfig wires the gate's collaborators.
type GateConfig struct {
	Requests  store.RequestStore
	Documents store.DocumentStore
	Assets    succstore.AssetStore
	Nominees  succstore.NomineeStore
	Tokens    *token.Service
	Audit     *audit.Recorder
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Tx        txcontext.Runner
	Logger    *slog.Logger
	Workflow  config.Workflow
}

func NewGate(cfg GateConfig) *Gate {
	return &Gate{
		requests:    cfg.Requests,
		documents:   cfg.Documents,
		assets:      cfg.Assets,
		nominees:    cfg.Nominees,
		tokens:      cfg.Tokens,
		audit:       cfg.Audit,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		tx:          cfg.Tx,
		logger:      cfg.Logger,
		tracer:      otel.Tracer("securevault/admin"),
		docWindow:   time.Duration(cfg.Workflow.DocumentExpiryDays) * 24 * time.Hour,
		maxReupload: cfg.Workflow.MaxReuploadAttempts,
	}
}

// ListQueue returns requests matching the filter with derived priorities,
// oldest first so nothing starves.
func (g *Gate) ListQueue(ctx context.Context, filter store.Filter) ([]QueueItem, error) {
	ctx, span := g.tracer.Start(ctx, "admin.ListQueue")
	defer span.End()

	reqs, err := g.requests.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list requests")
	}
	now := requestcontext.Now(ctx)
	items := make([]QueueItem, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, QueueItem{Request: req, Priority: req.Priority(now)})
	}
	return items, nil
}

// GetDetail loads everything an admin needs to review one claim.
func (g *Gate) GetDetail(ctx context.Context, requestID id.VerificationID) (*Detail, error) {
	ctx, span := g.tracer.Start(ctx, "admin.GetDetail")
	defer span.End()

	req, err := g.requests.FindByID(ctx, requestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "verification request not found")
	}
	docs, err := g.documents.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load documents")
	}
	trail, err := g.audit.Query(ctx, audit.Filter{TargetType: targetRequest, TargetID: requestID.String(), Limit: 100})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load audit trail")
	}
	return &Detail{Request: req, Documents: docs, Checklist: models.ChecklistItems, Trail: trail}, nil
}

// AuditTrail exposes the append-only log to the admin surface.
func (g *Gate) AuditTrail(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	return g.audit.Query(ctx, filter)
}

// SubmitReview applies an admin verdict. Approval demands a fully affirmed
// checklist and reviewer notes; rejection demands a reason; a re-upload
// request demands the
// missing document list and respects the attempt bound, past which the
// claim is rejected instead of looping.
func (g *Gate) SubmitReview(ctx context.Context, requestID id.VerificationID, review Review) (*ReviewResult, error) {
	ctx, span := g.tracer.Start(ctx, "admin.SubmitReview")
	defer span.End()

	adminID := requestcontext.AdminID(ctx)
	if adminID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "review requires an authenticated admin")
	}
	if err := review.Checklist.Validate(); err != nil {
		return nil, err
	}

	switch review.Decision {
	case DecisionApprove:
		if !review.Checklist.Complete() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "approval requires every checklist item affirmed; unchecked: %s",
				strings.Join(review.Checklist.Unchecked(), ", "))
		}
		if strings.TrimSpace(review.Notes) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "approval requires reviewer notes")
		}
		return g.approve(ctx, requestID, adminID, review)
	case DecisionReject:
		if strings.TrimSpace(review.RejectionReason) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "rejection requires a reason")
		}
		return g.reject(ctx, requestID, adminID, review)
	case DecisionRequestDocuments:
		if len(review.MissingDocuments) == 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "a re-upload request must name the missing documents")
		}
		for _, kind := range review.MissingDocuments {
			if _, err := models.ParseDocumentKind(kind); err != nil {
				return nil, err
			}
		}
		return g.requestDocuments(ctx, requestID, adminID, review)
	default:
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown decision %q", review.Decision)
	}
}

func (g *Gate) approve(ctx context.Context, requestID id.VerificationID, adminID string, review Review) (*ReviewResult, error) {
	now := requestcontext.Now(ctx)
	var updated *models.Request
	err := g.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = g.requests.Execute(ctx, requestID, func(r *models.Request) error {
			if err := r.CanReview(); err != nil {
				return err
			}
			return r.ApplyApproval(adminID, review.Notes, now)
		})
		if err != nil {
			return err
		}
		if err := g.setDocumentStatuses(ctx, requestID, models.DocValidated, now); err != nil {
			return err
		}
		if err := g.revokeTokens(ctx, requestID); err != nil {
			return err
		}
		if err := g.releaseAsset(ctx, updated, now); err != nil {
			return err
		}
		return g.audit.Success(ctx, audit.ActorAdmin, adminID, audit.ActionRequestApproved,
			targetRequest, requestID.String(), review.Notes)
	})
	if err != nil {
		span := trace.SpanFromContext(ctx)
		span.RecordError(err)
		return nil, err
	}
	g.metrics.ReviewDecisions.WithLabelValues("approved").Inc()
	g.notifyNominee(ctx, updated, notify.EventRequestApproved, nil)
	return &ReviewResult{Request: updated, Applied: DecisionApprove}, nil
}

func (g *Gate) reject(ctx context.Context, requestID id.VerificationID, adminID string, review Review) (*ReviewResult, error) {
	now := requestcontext.Now(ctx)
	var updated *models.Request
	err := g.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = g.requests.Execute(ctx, requestID, func(r *models.Request) error {
			if err := r.CanReview(); err != nil {
				return err
			}
			return r.ApplyRejection(adminID, review.RejectionReason, review.Notes, now)
		})
		if err != nil {
			return err
		}
		if err := g.setDocumentStatuses(ctx, requestID, models.DocRejected, now); err != nil {
			return err
		}
		if err := g.revokeTokens(ctx, requestID); err != nil {
			return err
		}
		return g.audit.Success(ctx, audit.ActorAdmin, adminID, audit.ActionRequestRejected,
			targetRequest, requestID.String(), review.RejectionReason)
	})
	if err != nil {
		return nil, err
	}
	g.metrics.ReviewDecisions.WithLabelValues("rejected").Inc()
	g.notifyNominee(ctx, updated, notify.EventRequestRejected, map[string]string{"reason": review.RejectionReason})
	return &ReviewResult{Request: updated, Applied: DecisionReject}, nil
}

func (g *Gate) requestDocuments(ctx context.Context, requestID id.VerificationID, adminID string, review Review) (*ReviewResult, error) {
	now := requestcontext.Now(ctx)
	deadline := now.Add(g.docWindow)

	var (
		updated   *models.Request
		forced    bool
		plaintext string
	)
	err := g.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = g.requests.Execute(ctx, requestID, func(r *models.Request) error {
			if cerr := r.CanRequestDocuments(g.maxReupload); cerr != nil {
				if !dErrors.HasCode(cerr, dErrors.CodeSecurity) {
					return cerr
				}
				forced = true
				return r.ApplyForcedRejection(adminID, now)
			}
			if err := r.ApplyDocumentsRequested(adminID, review.MissingDocuments, review.Notes, now); err != nil {
				return err
			}
			return r.ApplyDocumentWindowOpened(now, deadline)
		})
		if err != nil {
			return err
		}
		if forced {
			if err := g.setDocumentStatuses(ctx, requestID, models.DocRejected, now); err != nil {
				return err
			}
			if err := g.revokeTokens(ctx, requestID); err != nil {
				return err
			}
			return g.audit.Success(ctx, audit.ActorAdmin, adminID, audit.ActionRequestRejected,
				targetRequest, requestID.String(), "maximum document re-upload attempts exceeded")
		}
		if err := g.audit.Success(ctx, audit.ActorAdmin, adminID, audit.ActionDocumentsRequested,
			targetRequest, requestID.String(), "missing: "+strings.Join(review.MissingDocuments, ", ")); err != nil {
			return err
		}
		// The new upload window gets a fresh token scoped to documents only,
		// living exactly as long as the window does.
		var tok *token.Token
		tok, plaintext, err = g.tokens.Issue(ctx, requestID, token.ActionDocuments)
		if err != nil {
			return err
		}
		if err := g.tokens.ExtendTo(ctx, plaintext, deadline); err != nil {
			return err
		}
		g.metrics.TokensIssued.Inc()
		if err := g.audit.Success(ctx, audit.ActorSystem, "review-gate", audit.ActionTokenIssued,
			targetRequest, requestID.String(),
			fmt.Sprintf("token=%s scope=%s expires=%s", tok.ID, token.ActionDocuments, deadline.Format(time.RFC3339))); err != nil {
			return err
		}
		return g.audit.Success(ctx, audit.ActorSystem, "review-gate", audit.ActionReuploadOpened,
			targetRequest, requestID.String(),
			fmt.Sprintf("attempt %d of %d, deadline %s", updated.ReuploadAttempts, g.maxReupload, deadline.Format(time.RFC3339)))
	})
	if err != nil {
		return nil, err
	}

	if forced {
		g.metrics.ReviewDecisions.WithLabelValues("rejected").Inc()
		g.notifyNominee(ctx, updated, notify.EventRequestRejected,
			map[string]string{"reason": "maximum document re-upload attempts exceeded"})
		return &ReviewResult{Request: updated, Applied: DecisionReject}, nil
	}
	g.metrics.ReviewDecisions.WithLabelValues("documents_requested").Inc()
	g.notifyNominee(ctx, updated, notify.EventDocumentsRequested,
		map[string]string{"missing": strings.Join(review.MissingDocuments, ", ")})
	return &ReviewResult{Request: updated, Applied: DecisionRequestDocuments, Token: plaintext}, nil
}

// revokeTokens invalidates the request's tokens and audits the revocation
// when any were still live.
func (g *Gate) revokeTokens(ctx context.Context, requestID id.VerificationID) error {
	revoked, err := g.tokens.Revoke(ctx, requestID)
	if err != nil {
		return err
	}
	if revoked == 0 {
		return nil
	}
	return g.audit.Success(ctx, audit.ActorSystem, "review-gate", audit.ActionTokenRevoked,
		targetRequest, requestID.String(), fmt.Sprintf("%d token(s) revoked", revoked))
}

// releaseAsset hands the asset to the nominee once the claim is approved.
func (g *Gate) releaseAsset(ctx context.Context, req *models.Request, now time.Time) error {
	asset, err := g.assets.FindByID(ctx, req.AssetID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "asset not found")
	}
	if asset.Status == succmodels.AssetStatusReleased {
		return nil
	}
	if err := asset.CanRelease(); err != nil {
		return err
	}
	asset.ApplyRelease(now)
	if err := g.assets.Update(ctx, asset); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to release asset")
	}
	return g.audit.Success(ctx, audit.ActorSystem, "review-gate", audit.ActionAssetReleased,
		"asset", asset.ID.String(), fmt.Sprintf("released to nominee %s", req.NomineeID))
}

func (g *Gate) setDocumentStatuses(ctx context.Context, requestID id.VerificationID, status models.DocumentStatus, now time.Time) error {
	docs, err := g.documents.ListByRequest(ctx, requestID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load documents")
	}
	for _, doc := range docs {
		if doc.Status != models.DocUnderReview {
			continue
		}
		if err := doc.ApplyStatus(status, now); err != nil {
			return err
		}
		if err := g.documents.Update(ctx, doc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to update document")
		}
	}
	return nil
}

func (g *Gate) notifyNominee(ctx context.Context, req *models.Request, event notify.Event, fields map[string]string) {
	nominee, err := g.nominees.FindByID(ctx, req.NomineeID)
	if err != nil {
		g.logger.Warn("nominee lookup for notification failed", "nominee_id", req.NomineeID, "err", err)
		return
	}
	if fields == nil {
		fields = map[string]string{}
	}
	fields["request_id"] = req.ID.String()
	if err := g.notifier.Send(ctx, notify.Message{Event: event, Recipient: nominee.Email, Fields: fields}); err != nil {
		g.metrics.NotifyFailures.Inc()
		g.logger.Error("notification delivery failed", "event", event, "err", err)
		if aerr := g.audit.Failure(ctx, audit.ActorSystem, "notifier", audit.ActionNotifyFailed,
			"notification", string(event), err.Error()); aerr != nil {
			g.logger.Error("audit append failed", "err", aerr)
		}
	}
}
