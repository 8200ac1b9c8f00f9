package service

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
	"securevault/internal/notify"
	"securevault/internal/objectstore"
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

type EngineSuite struct {
	suite.Suite
	requests  *store.InMemoryRequests
	documents *store.InMemoryDocuments
	nominees  *succstore.InMemoryNominees
	tokens    *token.Service
	objects   *objectstore.InMemory
	auditRec  *audit.Recorder
	notifier  *notify.Recorder
	engine    *Engine

	now     time.Time
	ctx     context.Context
	userID  id.UserID
	assetID id.AssetID
	nominee *succmodels.Nominee
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	s.requests = store.NewInMemoryRequests()
	s.documents = store.NewInMemoryDocuments()
	s.nominees = succstore.NewInMemoryNominees()
	s.tokens = token.NewService(token.NewInMemoryStore(), 14*24*time.Hour)
	s.objects = objectstore.NewInMemory()
	s.auditRec = audit.NewRecorder(auditmem.NewInMemory())
	s.notifier = notify.NewRecorder()

	s.userID = id.NewUserID()
	s.assetID = id.NewAssetID()

	var err error
	s.nominee, err = succmodels.NewNominee(id.NewNomineeID(), s.userID, "Asha Rao", "asha@example.com", "", "sister", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.nominees.Create(s.ctx, s.nominee))

	s.engine = NewEngine(Config{
		Requests:  s.requests,
		Documents: s.documents,
		Nominees:  s.nominees,
		Tokens:    s.tokens,
		Objects:   s.objects,
		Audit:     s.auditRec,
		Notifier:  s.notifier,
		Metrics:   metrics.NewWith(prometheus.NewRegistry()),
		Tx:        txcontext.Passthrough{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Workflow: config.Workflow{
			DocumentExpiryDays:  14,
			TokenTTL:            14 * 24 * time.Hour,
			MaxReuploadAttempts: 3,
			MaxUploadBytes:      10 << 20,
			AllowedContentTypes: []string{"application/pdf", "image/jpeg", "image/png"},
		},
	})
}

func (s *EngineSuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *EngineSuite) openClaim() (*models.Request, string) {
	req, value, err := s.engine.OpenClaim(s.ctx, s.userID, s.assetID, s.nominee.ID)
	s.Require().NoError(err)
	return req, value
}

func (s *EngineSuite) confirmIdentity(value string) *models.Request {
	req, err := s.engine.ConfirmIdentity(s.ctx, value, s.nominee.Name, s.nominee.Relationship, true)
	s.Require().NoError(err)
	return req
}

func (s *EngineSuite) uploadAll(value string) {
	for kind, file := range map[string]string{
		"DEATH_CERTIFICATE": "certificate.pdf",
		"ID_PROOF":          "id.jpg",
		"LEGAL_DECLARATION": "declaration.pdf",
	} {
		ct := "application/pdf"
		if file == "id.jpg" {
			ct = "image/jpeg"
		}
		_, err := s.engine.UploadDocument(s.ctx, value, kind, file, ct, []byte("scan bytes"))
		s.Require().NoError(err)
	}
}

func (s *EngineSuite) auditActions(targetID string) []audit.Action {
	entries, err := s.auditRec.Query(s.ctx, audit.Filter{TargetID: targetID})
	s.Require().NoError(err)
	out := make([]audit.Action, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func (s *EngineSuite) TestOpenClaim() {
	s.Run("creates the claim, issues a token and notifies the nominee", func() {
		req, value := s.openClaim()
		s.Equal(models.StatusIdentityPending, req.Status)
		s.NotEmpty(value)

		actions := s.auditActions(req.ID.String())
		s.Contains(actions, audit.ActionRequestCreated)
		s.Contains(actions, audit.ActionTokenIssued)

		sent := s.notifier.Sent()
		s.Require().Len(sent, 1)
		s.Equal(notify.EventVerificationStarted, sent[0].Event)
		s.Equal(s.nominee.Email, sent[0].Recipient)
	})

	s.Run("second claim for the same pair conflicts", func() {
		_, _, err := s.engine.OpenClaim(s.ctx, s.userID, s.assetID, s.nominee.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown nominee is rejected", func() {
		_, _, err := s.engine.OpenClaim(s.ctx, s.userID, id.NewAssetID(), id.NewNomineeID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *EngineSuite) TestVerifyToken() {
	req, value := s.openClaim()

	s.Run("valid token resolves the claim without consuming", func() {
		for i := 0; i < 2; i++ {
			view, err := s.engine.VerifyToken(s.ctx, value)
			s.Require().NoError(err)
			s.Equal(req.ID, view.RequestID)
			s.Equal(models.StatusIdentityPending, view.Status)
			s.ElementsMatch([]token.Action{token.ActionIdentity, token.ActionDocuments}, view.Outstanding)
		}
	})

	s.Run("every failure mode gets the same opaque answer", func() {
		_, err := s.engine.VerifyToken(s.ctx, "not-a-token")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Contains(err.Error(), "invalid or expired verification link")

		_, expiredErr := s.engine.VerifyToken(s.at(s.now.Add(15*24*time.Hour)), value)
		s.Equal(err.Error(), expiredErr.Error())

		entries, qerr := s.auditRec.Query(s.ctx, audit.Filter{Action: audit.ActionTokenRejected})
		s.Require().NoError(qerr)
		s.Len(entries, 2)
	})
}

func (s *EngineSuite) TestConfirmIdentity() {
	s.Run("matching details open the document window", func() {
		req, value := s.openClaim()
		updated := s.confirmIdentity(value)

		s.Equal(models.StatusAwaitingDocuments, updated.Status)
		s.Require().NotNil(updated.DeadlineAt)
		s.Equal(s.now.Add(14*24*time.Hour), *updated.DeadlineAt)
		s.Greater(updated.Version, req.Version)

		stored, err := s.nominees.FindByID(s.ctx, s.nominee.ID)
		s.Require().NoError(err)
		s.True(stored.IdentityConfirmed)

		view, err := s.engine.VerifyToken(s.ctx, value)
		s.Require().NoError(err)
		s.Equal([]token.Action{token.ActionDocuments}, view.Outstanding)

		s.Contains(s.auditActions(req.ID.String()), audit.ActionIdentityConfirmed)
	})

	s.Run("comparison ignores case and surrounding whitespace", func() {
		s.assetID = id.NewAssetID()
		_, value := s.openClaim()
		_, err := s.engine.ConfirmIdentity(s.ctx, value, "  asha rao  ", " Sister ", true)
		s.NoError(err)
	})

	s.Run("name mismatch is audited and never reveals the expected name", func() {
		s.assetID = id.NewAssetID()
		req, value := s.openClaim()

		_, err := s.engine.ConfirmIdentity(s.ctx, value, "Someone Else", s.nominee.Relationship, true)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.NotContains(err.Error(), s.nominee.Name)

		entries, qerr := s.auditRec.Query(s.ctx, audit.Filter{
			Action:   audit.ActionIdentityMismatch,
			TargetID: req.ID.String(),
		})
		s.Require().NoError(qerr)
		s.Len(entries, 1)
		s.Equal(audit.OutcomeFailed, entries[0].Outcome)
	})

	s.Run("relationship mismatch gets the same opaque answer", func() {
		s.assetID = id.NewAssetID()
		req, value := s.openClaim()

		_, nameErr := s.engine.ConfirmIdentity(s.ctx, value, "Someone Else", s.nominee.Relationship, true)
		s.Require().Error(nameErr)
		_, relErr := s.engine.ConfirmIdentity(s.ctx, value, s.nominee.Name, "cousin", true)
		s.Require().Error(relErr)
		s.Equal(nameErr.Error(), relErr.Error())

		entries, qerr := s.auditRec.Query(s.ctx, audit.Filter{
			Action:   audit.ActionIdentityMismatch,
			TargetID: req.ID.String(),
		})
		s.Require().NoError(qerr)
		s.Len(entries, 2)
	})

	s.Run("declaration must be accepted", func() {
		s.assetID = id.NewAssetID()
		req, value := s.openClaim()

		_, err := s.engine.ConfirmIdentity(s.ctx, value, s.nominee.Name, s.nominee.Relationship, false)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "legal declaration")

		s.NotContains(s.auditActions(req.ID.String()), audit.ActionIdentityMismatch)
	})

	s.Run("repeat confirmation is an invalid state", func() {
		s.assetID = id.NewAssetID()
		_, value := s.openClaim()
		s.confirmIdentity(value)

		_, err := s.engine.ConfirmIdentity(s.ctx, value, s.nominee.Name, s.nominee.Relationship, true)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *EngineSuite) TestUploadDocument() {
	_, value := s.openClaim()

	s.Run("upload before the window opens is an invalid state", func() {
		_, err := s.engine.UploadDocument(s.ctx, value, "ID_PROOF", "id.jpg", "image/jpeg", []byte("x"))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.confirmIdentity(value)

	s.Run("valid upload stores bytes and records the document", func() {
		doc, err := s.engine.UploadDocument(s.ctx, value, "death_certificate", "certificate.pdf", "application/pdf", []byte("scan bytes"))
		s.Require().NoError(err)
		s.Equal(models.KindDeathCertificate, doc.Kind)
		s.Equal(models.DocPending, doc.Status)

		data, ct, err := s.objects.Get(s.ctx, doc.StorageKey)
		s.Require().NoError(err)
		s.Equal([]byte("scan bytes"), data)
		s.Equal("application/pdf", ct)

		s.Contains(s.auditActions(doc.RequestID.String()), audit.ActionDocumentUploaded)
	})

	s.Run("unknown kind is rejected before any bytes are stored", func() {
		_, err := s.engine.UploadDocument(s.ctx, value, "PASSPORT", "p.pdf", "application/pdf", []byte("x"))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("oversized upload is rejected", func() {
		big := make([]byte, (10<<20)+1)
		_, err := s.engine.UploadDocument(s.ctx, value, "ID_PROOF", "id.jpg", "image/jpeg", big)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *EngineSuite) TestSubmitDocuments() {
	req, value := s.openClaim()
	s.confirmIdentity(value)

	s.Run("both declarations are mandatory", func() {
		_, err := s.engine.SubmitDocuments(s.ctx, value, true, false)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing certificate is named, optional kinds are not", func() {
		_, err := s.engine.SubmitDocuments(s.ctx, value, true, true)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "DEATH_CERTIFICATE")
		s.NotContains(err.Error(), "ID_PROOF")
		s.NotContains(err.Error(), "LEGAL_DECLARATION")
	})

	s.uploadAll(value)

	// Replace the ID proof before submitting; only the latest upload per
	// kind goes to review.
	replaced, err := s.engine.UploadDocument(s.at(s.now.Add(time.Minute)), value, "ID_PROOF", "id2.jpg", "image/jpeg", []byte("better scan"))
	s.Require().NoError(err)

	s.Run("submission queues the claim for review", func() {
		updated, err := s.engine.SubmitDocuments(s.ctx, value, true, true)
		s.Require().NoError(err)
		s.Equal(models.StatusPendingAdminReview, updated.Status)
		s.Require().NotNil(updated.SubmittedAt)

		docs, err := s.documents.ListByRequest(s.ctx, req.ID)
		s.Require().NoError(err)
		byID := make(map[id.DocumentID]*models.Document, len(docs))
		for _, d := range docs {
			byID[d.ID] = d
		}
		s.Equal(models.DocUnderReview, byID[replaced.ID].Status)

		underReview := 0
		for _, d := range docs {
			if d.Status == models.DocUnderReview {
				underReview++
			}
		}
		s.Equal(3, underReview, "superseded uploads stay out of review")

		s.Contains(s.auditActions(req.ID.String()), audit.ActionDocumentsSubmitted)

		sent := s.notifier.Sent()
		s.Equal(notify.EventReviewQueued, sent[len(sent)-1].Event)
	})

	s.Run("token's document scope is consumed", func() {
		view, err := s.engine.VerifyToken(s.ctx, value)
		s.Require().NoError(err)
		s.Empty(view.Outstanding)

		_, err = s.engine.SubmitDocuments(s.ctx, value, true, true)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("upload on a consumed scope is audited as a violation", func() {
		_, err := s.engine.UploadDocument(s.ctx, value, "ID_PROOF", "late.jpg", "image/jpeg", []byte("x"))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		entries, qerr := s.auditRec.Query(s.ctx, audit.Filter{
			Action:   audit.ActionScopeViolation,
			TargetID: req.ID.String(),
		})
		s.Require().NoError(qerr)
		s.Len(entries, 1)
		s.Equal(audit.OutcomeFailed, entries[0].Outcome)
	})

	s.Run("certificate alone satisfies the document requirement", func() {
		s.assetID = id.NewAssetID()
		_, value := s.openClaim()
		s.confirmIdentity(value)
		_, err := s.engine.UploadDocument(s.ctx, value, "DEATH_CERTIFICATE", "certificate.pdf", "application/pdf", []byte("scan bytes"))
		s.Require().NoError(err)

		updated, err := s.engine.SubmitDocuments(s.ctx, value, true, true)
		s.Require().NoError(err)
		s.Equal(models.StatusPendingAdminReview, updated.Status)
	})
}

func (s *EngineSuite) TestDeadlineExpiry() {
	req, value := s.openClaim()
	s.confirmIdentity(value)
	late := s.at(s.now.Add(15 * 24 * time.Hour))

	s.Run("upload after the deadline expires the claim", func() {
		_, err := s.engine.UploadDocument(late, value, "ID_PROOF", "id.jpg", "image/jpeg", []byte("x"))
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))

		found, err := s.requests.FindByID(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusExpired, found.Status)
		s.Nil(found.DeadlineAt)
	})

	s.Run("expiry revokes the token and notifies the nominee", func() {
		_, err := s.engine.VerifyToken(s.ctx, value)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		actions := s.auditActions(req.ID.String())
		s.Contains(actions, audit.ActionRequestExpired)
		s.Contains(actions, audit.ActionTokenRevoked)

		var events []notify.Event
		for _, m := range s.notifier.Sent() {
			events = append(events, m.Event)
		}
		s.Contains(events, notify.EventRequestExpired)
	})
}

func (s *EngineSuite) TestTokenFollowsDeadline() {
	_, value := s.openClaim()
	tenDays := s.at(s.now.Add(10 * 24 * time.Hour))
	_, err := s.engine.ConfirmIdentity(tenDays, value, s.nominee.Name, s.nominee.Relationship, true)
	s.Require().NoError(err)

	s.Run("the link stays live for the whole document window", func() {
		twentyDays := s.at(s.now.Add(20 * 24 * time.Hour))
		_, err := s.engine.UploadDocument(twentyDays, value, "DEATH_CERTIFICATE", "certificate.pdf", "application/pdf", []byte("scan bytes"))
		s.Require().NoError(err)

		view, err := s.engine.VerifyToken(twentyDays, value)
		s.Require().NoError(err)
		s.Require().NotNil(view.DeadlineAt)
		s.Equal(*view.DeadlineAt, view.TokenExpiry)
	})
}

func (s *EngineSuite) TestExpireOverdue() {
	req, value := s.openClaim()
	s.confirmIdentity(value)
	late := s.at(s.now.Add(15 * 24 * time.Hour))

	expired, err := s.engine.ExpireOverdue(late)
	s.Require().NoError(err)
	s.Equal(1, expired)

	found, err := s.requests.FindByID(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusExpired, found.Status)

	// A second sweep finds nothing left to expire.
	expired, err = s.engine.ExpireOverdue(late)
	s.Require().NoError(err)
	s.Zero(expired)
}

func (s *EngineSuite) TestStatus() {
	req, value := s.openClaim()
	s.confirmIdentity(value)
	s.uploadAll(value)

	view, err := s.engine.Status(s.ctx, value)
	s.Require().NoError(err)
	s.Equal(req.ID, view.Request.ID)
	s.Len(view.Documents, 3)
	s.NotEmpty(view.Timeline)
	for _, entry := range view.Timeline {
		s.Equal(req.ID.String(), entry.TargetID)
	}
}

func (s *EngineSuite) TestCancelClaimsForUser() {
	req, value := s.openClaim()

	closed, err := s.engine.CancelClaimsForUser(s.ctx, s.userID, "vault owner activity resumed")
	s.Require().NoError(err)
	s.Equal(1, closed)

	found, err := s.requests.FindByID(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusClosed, found.Status)

	_, err = s.engine.VerifyToken(s.ctx, value)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	s.Contains(s.auditActions(req.ID.String()), audit.ActionClaimsCancelled)

	closed, err = s.engine.CancelClaimsForUser(s.ctx, s.userID, "again")
	s.Require().NoError(err)
	s.Zero(closed)
}

func (s *EngineSuite) TestCloseForNominee() {
	req, _ := s.openClaim()

	closed, err := s.engine.CloseForNominee(s.ctx, s.nominee.ID, "nominee removed from vault")
	s.Require().NoError(err)
	s.Equal(1, closed)

	found, err := s.requests.FindByID(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusClosed, found.Status)
	s.Contains(s.auditActions(req.ID.String()), audit.ActionRequestClosed)
}
