package docsession

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"securevault/internal/audit"
	auditmem "securevault/internal/audit/store/memory"
	"securevault/internal/objectstore"
	"securevault/internal/platform/metrics"
	"securevault/internal/verification/models"
	vstore "securevault/internal/verification/store"
	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
	"securevault/pkg/requestcontext"
)

const sessionTTL = 5 * time.Minute

type ServiceSuite struct {
	suite.Suite
	sessions *InMemoryStore
	auditRec *audit.Recorder
	service  *Service
	doc      *models.Document

	now time.Time
	ctx context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithAdminID(requestcontext.WithTime(context.Background(), s.now), "admin-1")

	s.sessions = NewInMemoryStore()
	documents := vstore.NewInMemoryDocuments()
	objects := objectstore.NewInMemory()
	s.auditRec = audit.NewRecorder(auditmem.NewInMemory())

	s.doc = models.NewDocument(id.NewDocumentID(), id.NewVerificationID(), models.KindDeathCertificate,
		"certificate.pdf", "application/pdf", 10, s.now)
	s.Require().NoError(documents.Save(s.ctx, s.doc))
	s.Require().NoError(objects.Put(s.ctx, s.doc.StorageKey, s.doc.ContentType, []byte("scan bytes")))

	s.service = NewService(s.sessions, documents, objects, s.auditRec,
		metrics.NewWith(prometheus.NewRegistry()), slog.New(slog.NewTextHandler(io.Discard, nil)), sessionTTL)
}

func (s *ServiceSuite) asAdmin(adminID string, t time.Time) context.Context {
	return requestcontext.WithAdminID(requestcontext.WithTime(context.Background(), t), adminID)
}

func (s *ServiceSuite) TestOpen() {
	s.Run("grants a time-boxed session and audits it", func() {
		session, err := s.service.Open(s.ctx, s.doc.ID)
		s.Require().NoError(err)
		s.Equal(StateOpen, session.State)
		s.Equal("admin-1", session.AdminID)
		s.Equal(s.now.Add(sessionTTL), session.ExpiresAt)

		entries, err := s.auditRec.Query(s.ctx, audit.Filter{Action: audit.ActionDocSessionOpened})
		s.Require().NoError(err)
		s.Len(entries, 1)
	})

	s.Run("requires an authenticated admin", func() {
		_, err := s.service.Open(requestcontext.WithTime(context.Background(), s.now), s.doc.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown document is rejected", func() {
		_, err := s.service.Open(s.ctx, id.NewDocumentID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestView() {
	session, err := s.service.Open(s.ctx, s.doc.ID)
	s.Require().NoError(err)

	s.Run("streams the document while the session is open", func() {
		data, doc, err := s.service.View(s.ctx, session.ID)
		s.Require().NoError(err)
		s.Equal([]byte("scan bytes"), data)
		s.Equal(s.doc.ID, doc.ID)
	})

	s.Run("another admin cannot use the session", func() {
		_, _, err := s.service.View(s.asAdmin("admin-2", s.now), session.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("an expired session refuses to serve", func() {
		_, _, err := s.service.View(s.asAdmin("admin-1", s.now.Add(sessionTTL+time.Second)), session.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	})

	s.Run("unknown session is not found", func() {
		_, _, err := s.service.View(s.ctx, id.NewSessionID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestDenyDownload() {
	session, err := s.service.Open(s.ctx, s.doc.ID)
	s.Require().NoError(err)

	err = s.service.DenyDownload(s.ctx, session.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	// Even a bogus session ID gets the refusal, and both attempts are audited.
	err = s.service.DenyDownload(s.ctx, id.NewSessionID())
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	entries, qerr := s.auditRec.Query(s.ctx, audit.Filter{Action: audit.ActionDownloadDenied})
	s.Require().NoError(qerr)
	s.Len(entries, 2)
	for _, e := range entries {
		s.Equal(audit.OutcomeFailed, e.Outcome)
	}
}

func (s *ServiceSuite) TestClose() {
	session, err := s.service.Open(s.ctx, s.doc.ID)
	s.Require().NoError(err)

	closed, err := s.service.Close(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(StateClosed, closed.State)
	s.Require().NotNil(closed.EndedAt)

	s.Run("a closed session no longer serves", func() {
		_, _, err := s.service.View(s.ctx, session.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	})

	s.Run("closing twice fails", func() {
		_, err := s.service.Close(s.ctx, session.ID)
		s.Error(err)
	})
}

func (s *ServiceSuite) TestReap() {
	first, err := s.service.Open(s.ctx, s.doc.ID)
	s.Require().NoError(err)
	second, err := s.service.Open(s.ctx, s.doc.ID)
	s.Require().NoError(err)

	s.Run("nothing to reap before the ttl", func() {
		n, err := s.service.Reap(s.ctx)
		s.Require().NoError(err)
		s.Zero(n)
	})

	s.Run("reaps every session past its ttl exactly once", func() {
		late := s.asAdmin("admin-1", s.now.Add(sessionTTL+time.Second))
		n, err := s.service.Reap(late)
		s.Require().NoError(err)
		s.Equal(2, n)

		for _, sessionID := range []id.SessionID{first.ID, second.ID} {
			found, err := s.sessions.FindByID(s.ctx, sessionID)
			s.Require().NoError(err)
			s.Equal(StateExpired, found.State)
		}

		entries, err := s.auditRec.Query(s.ctx, audit.Filter{Action: audit.ActionDocSessionExpired})
		s.Require().NoError(err)
		s.Len(entries, 2)

		n, err = s.service.Reap(late)
		s.Require().NoError(err)
		s.Zero(n)
	})
}
