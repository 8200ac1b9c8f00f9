package docsession

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"securevault/internal/audit"
	"securevault/internal/objectstore"
	"securevault/internal/platform/metrics"
	"securevault/internal/verification/models"
	vstore "securevault/internal/verification/store"
	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
	"securevault/pkg/requestcontext"
)

const targetSession = "document_session"

// Service opens, serves and reaps document access sessions. Evidence is
// viewable inline for the session's lifetime; persistent download is denied
// unconditionally and every denial lands in the audit log.
type Service struct {
	sessions  Store
	documents vstore.DocumentStore
	objects   objectstore.Store
	audit     *audit.Recorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
	ttl       time.Duration
}

func NewService(sessions Store, documents vstore.DocumentStore, objects objectstore.Store, recorder *audit.Recorder, m *metrics.Metrics, logger *slog.Logger, ttl time.Duration) *Service {
	return &Service{
		sessions:  sessions,
		documents: documents,
		objects:   objects,
		audit:     recorder,
		metrics:   m,
		logger:    logger,
		ttl:       ttl,
	}
}

// Open grants the calling admin a view-only window onto one document.
func (s *Service) Open(ctx context.Context, documentID id.DocumentID) (*Session, error) {
	adminID := requestcontext.AdminID(ctx)
	if adminID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "document access requires an authenticated admin")
	}
	if _, err := s.documents.FindByID(ctx, documentID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "document not found")
	}
	now := requestcontext.Now(ctx)
	session := NewSession(id.NewSessionID(), documentID, adminID, now, s.ttl)
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to open session")
	}
	s.metrics.DocSessionsOpened.Inc()
	if err := s.audit.Success(ctx, audit.ActorAdmin, adminID, audit.ActionDocSessionOpened,
		targetSession, session.ID.String(),
		fmt.Sprintf("document=%s expires=%s", documentID, session.ExpiresAt.Format(time.RFC3339))); err != nil {
		return nil, err
	}
	return session, nil
}

// View streams the document for inline display. The session must be open,
// unexpired and owned by the calling admin.
func (s *Service) View(ctx context.Context, sessionID id.SessionID) ([]byte, *models.Document, error) {
	session, err := s.resolve(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.documents.FindByID(ctx, session.DocumentID)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeNotFound, "document not found")
	}
	data, _, err := s.objects.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load document content")
	}
	return data, doc, nil
}

// DenyDownload records a persistent-download attempt and refuses it. The
// product rule is absolute: evidence never leaves the review surface.
func (s *Service) DenyDownload(ctx context.Context, sessionID id.SessionID) error {
	adminID := requestcontext.AdminID(ctx)
	session, err := s.sessions.FindByID(ctx, sessionID)
	target := sessionID.String()
	details := "persistent download attempted"
	if err == nil {
		details = fmt.Sprintf("persistent download attempted for document %s", session.DocumentID)
	}
	if aerr := s.audit.Failure(ctx, audit.ActorAdmin, adminID, audit.ActionDownloadDenied,
		targetSession, target, details); aerr != nil {
		s.logger.Error("audit append failed", "err", aerr)
	}
	return dErrors.New(dErrors.CodeForbidden, "documents are view-only and cannot be downloaded")
}

// Close ends a session early.
func (s *Service) Close(ctx context.Context, sessionID id.SessionID) (*Session, error) {
	adminID := requestcontext.AdminID(ctx)
	now := requestcontext.Now(ctx)
	session, err := s.sessions.End(ctx, sessionID, StateClosed, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "session not found or already ended")
	}
	if err := s.audit.Success(ctx, audit.ActorAdmin, adminID, audit.ActionDocSessionClosed,
		targetSession, sessionID.String(), ""); err != nil {
		return nil, err
	}
	return session, nil
}

// Reap expires every session past its TTL and audits each one.
func (s *Service) Reap(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	expired, err := s.sessions.ExpireDue(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, session := range expired {
		s.metrics.DocSessionsExpired.Inc()
		if err := s.audit.Success(ctx, audit.ActorSystem, "session-reaper", audit.ActionDocSessionExpired,
			targetSession, session.ID.String(), fmt.Sprintf("document=%s", session.DocumentID)); err != nil {
			return len(expired), err
		}
	}
	return len(expired), nil
}

// Run drives the reaper until the context ends.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			reapCtx := requestcontext.WithTime(ctx, time.Now().UTC())
			if n, err := s.Reap(reapCtx); err != nil {
				s.logger.Error("session reap failed", "err", err)
			} else if n > 0 {
				s.logger.Info("sessions expired", "count", n)
			}
		}
	}
}

func (s *Service) resolve(ctx context.Context, sessionID id.SessionID) (*Session, error) {
	adminID := requestcontext.AdminID(ctx)
	if adminID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "document access requires an authenticated admin")
	}
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "session not found")
	}
	if session.AdminID != adminID {
		return nil, dErrors.New(dErrors.CodeForbidden, "session belongs to another admin")
	}
	if !session.Active(requestcontext.Now(ctx)) {
		return nil, dErrors.New(dErrors.CodeExpired, "session has ended")
	}
	return session, nil
}
