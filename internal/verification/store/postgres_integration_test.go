//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	pgplatform "securevault/internal/platform/postgres"
	"securevault/internal/verification/models"
	"securevault/internal/verification/store"
	id "securevault/pkg/domain"
	"securevault/pkg/platform/sentinel"
	"securevault/pkg/testutil/containers"
)

type PostgresRequestsSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	requests *store.PostgresRequests
	docs     *store.PostgresDocuments
	runner   *pgplatform.TxRunner
	now      time.Time
}

func TestPostgresRequestsSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRequestsSuite))
}

func (s *PostgresRequestsSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.requests = store.NewPostgresRequests(s.postgres.DB)
	s.docs = store.NewPostgresDocuments(s.postgres.DB)
	s.runner = pgplatform.NewTxRunner(s.postgres.DB)
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresRequestsSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "documents", "verification_requests")
	s.Require().NoError(err)
}

func (s *PostgresRequestsSuite) newRequest() *models.Request {
	return models.NewRequest(id.NewVerificationID(), id.NewAssetID(), id.NewNomineeID(), id.NewUserID(), s.now)
}

func (s *PostgresRequestsSuite) TestCreateAndFind() {
	ctx := context.Background()

	s.Run("round trips all columns", func() {
		req := s.newRequest()
		deadline := s.now.Add(14 * 24 * time.Hour)
		req.Status = models.StatusAwaitingDocuments
		req.DeadlineAt = &deadline
		req.MissingDocuments = []string{"ID_PROOF", "LEGAL_DECLARATION"}
		s.Require().NoError(s.requests.Create(ctx, req))

		got, err := s.requests.FindByID(ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(req.ID, got.ID)
		s.Equal(models.StatusAwaitingDocuments, got.Status)
		s.Require().NotNil(got.DeadlineAt)
		s.True(got.DeadlineAt.Equal(deadline))
		s.Nil(got.SubmittedAt)
		s.Equal([]string{"ID_PROOF", "LEGAL_DECLARATION"}, got.MissingDocuments)
		s.Equal(int64(1), got.Version)
	})

	s.Run("unknown id reports not found", func() {
		_, err := s.requests.FindByID(ctx, id.NewVerificationID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresRequestsSuite) TestActivePairIndex() {
	ctx := context.Background()
	first := s.newRequest()
	s.Require().NoError(s.requests.Create(ctx, first))

	s.Run("second active claim for the pair conflicts", func() {
		dup := models.NewRequest(id.NewVerificationID(), first.AssetID, first.NomineeID, first.UserID, s.now)
		s.ErrorIs(s.requests.Create(ctx, dup), sentinel.ErrConflict)
	})

	s.Run("different nominee on the same asset is fine", func() {
		other := models.NewRequest(id.NewVerificationID(), first.AssetID, id.NewNomineeID(), first.UserID, s.now)
		s.NoError(s.requests.Create(ctx, other))
	})

	s.Run("closing the claim frees the pair", func() {
		_, err := s.requests.Execute(ctx, first.ID, func(r *models.Request) error {
			return r.ApplyClosed(s.now)
		})
		s.Require().NoError(err)

		_, err = s.requests.FindActiveByPair(ctx, first.AssetID, first.NomineeID)
		s.ErrorIs(err, sentinel.ErrNotFound)

		fresh := models.NewRequest(id.NewVerificationID(), first.AssetID, first.NomineeID, first.UserID, s.now)
		s.NoError(s.requests.Create(ctx, fresh))
	})
}

func (s *PostgresRequestsSuite) TestExecute() {
	ctx := context.Background()

	s.Run("persists the mutation with a version bump", func() {
		req := s.newRequest()
		s.Require().NoError(s.requests.Create(ctx, req))

		updated, err := s.requests.Execute(ctx, req.ID, func(r *models.Request) error {
			return r.ApplyIdentityConfirmed(s.now)
		})
		s.Require().NoError(err)
		s.Equal(models.StatusIdentityConfirmed, updated.Status)
		s.Equal(int64(2), updated.Version)

		got, err := s.requests.FindByID(ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusIdentityConfirmed, got.Status)
		s.Equal(int64(2), got.Version)
	})

	s.Run("failing mutation leaves the row untouched", func() {
		req := s.newRequest()
		s.Require().NoError(s.requests.Create(ctx, req))

		_, err := s.requests.Execute(ctx, req.ID, func(r *models.Request) error {
			return r.ApplyApproval("admin-1", "", s.now)
		})
		s.Error(err)

		got, err := s.requests.FindByID(ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusIdentityPending, got.Status)
		s.Equal(int64(1), got.Version)
	})

	s.Run("unknown id reports not found", func() {
		_, err := s.requests.Execute(ctx, id.NewVerificationID(), func(*models.Request) error { return nil })
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestExecuteConcurrency drives parallel identity confirmations at one row.
// Inside transactions the row lock serializes them, so exactly one observes
// IDENTITY_PENDING and wins; the rest fail on the state machine, never on a
// lost update.
func (s *PostgresRequestsSuite) TestExecuteConcurrency() {
	ctx := context.Background()
	req := s.newRequest()
	s.Require().NoError(s.requests.Create(ctx, req))

	const goroutines = 20
	var wg sync.WaitGroup
	var wins atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
				_, err := s.requests.Execute(txCtx, req.ID, func(r *models.Request) error {
					return r.ApplyIdentityConfirmed(s.now)
				})
				return err
			})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load(), "exactly one confirmation should win")

	got, err := s.requests.FindByID(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusIdentityConfirmed, got.Status)
	s.Equal(int64(2), got.Version)
}

func (s *PostgresRequestsSuite) TestList() {
	ctx := context.Background()

	a := s.newRequest()
	s.Require().NoError(s.requests.Create(ctx, a))

	b := s.newRequest()
	b.CreatedAt = s.now.Add(time.Minute)
	b.UpdatedAt = b.CreatedAt
	s.Require().NoError(s.requests.Create(ctx, b))
	_, err := s.requests.Execute(ctx, b.ID, func(r *models.Request) error {
		return r.ApplyIdentityConfirmed(s.now)
	})
	s.Require().NoError(err)

	s.Run("filters by status", func() {
		got, err := s.requests.List(ctx, store.Filter{
			Statuses: []models.Status{models.StatusIdentityConfirmed},
		})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(b.ID, got[0].ID)
	})

	s.Run("filters by user", func() {
		got, err := s.requests.List(ctx, store.Filter{UserID: a.UserID})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(a.ID, got[0].ID)
	})

	s.Run("orders by creation time and honors the limit", func() {
		got, err := s.requests.List(ctx, store.Filter{Limit: 1})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(a.ID, got[0].ID)
	})
}

func (s *PostgresRequestsSuite) TestListOverdue() {
	ctx := context.Background()

	overdue := s.newRequest()
	s.Require().NoError(s.requests.Create(ctx, overdue))
	_, err := s.requests.Execute(ctx, overdue.ID, func(r *models.Request) error {
		if err := r.ApplyIdentityConfirmed(s.now); err != nil {
			return err
		}
		return r.ApplyDocumentWindowOpened(s.now, s.now.Add(24*time.Hour))
	})
	s.Require().NoError(err)

	fresh := s.newRequest()
	s.Require().NoError(s.requests.Create(ctx, fresh))

	got, err := s.requests.ListOverdue(ctx, s.now.Add(48*time.Hour))
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(overdue.ID, got[0].ID)

	got, err = s.requests.ListOverdue(ctx, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *PostgresRequestsSuite) TestDocuments() {
	ctx := context.Background()
	req := s.newRequest()
	s.Require().NoError(s.requests.Create(ctx, req))

	first := models.NewDocument(id.NewDocumentID(), req.ID, models.KindDeathCertificate,
		"certificate.pdf", "application/pdf", 2048, s.now)
	second := models.NewDocument(id.NewDocumentID(), req.ID, models.KindIDProof,
		"id.jpg", "image/jpeg", 1024, s.now.Add(time.Minute))

	s.Run("saves and lists in upload order", func() {
		s.Require().NoError(s.docs.Save(ctx, first))
		s.Require().NoError(s.docs.Save(ctx, second))

		got, err := s.docs.ListByRequest(ctx, req.ID)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(first.ID, got[0].ID)
		s.Equal(second.ID, got[1].ID)
		s.Equal(models.DocPending, got[0].Status)
		s.Equal("application/pdf", got[0].ContentType)
	})

	s.Run("duplicate id conflicts", func() {
		s.ErrorIs(s.docs.Save(ctx, first), sentinel.ErrConflict)
	})

	s.Run("updates review status", func() {
		s.Require().NoError(first.ApplyStatus(models.DocUnderReview, s.now.Add(time.Hour)))
		s.Require().NoError(s.docs.Update(ctx, first))

		got, err := s.docs.FindByID(ctx, first.ID)
		s.Require().NoError(err)
		s.Equal(models.DocUnderReview, got.Status)
	})

	s.Run("updating an unknown document reports not found", func() {
		ghost := models.NewDocument(id.NewDocumentID(), req.ID, models.KindLegalDeclaration,
			"declaration.pdf", "application/pdf", 512, s.now)
		s.ErrorIs(s.docs.Update(ctx, ghost), sentinel.ErrNotFound)
	})
}
