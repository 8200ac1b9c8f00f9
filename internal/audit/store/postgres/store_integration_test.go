//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"securevault/internal/audit"
	"securevault/internal/audit/store/postgres"
	pgplatform "securevault/internal/platform/postgres"
	id "securevault/pkg/domain"
	"securevault/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	runner   *pgplatform.TxRunner
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.runner = pgplatform.NewTxRunner(s.postgres.DB)
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "audit_entries", "audit_outbox")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) entry(action audit.Action, at time.Time) audit.Entry {
	return audit.Entry{
		ID:         id.NewEntryID(),
		Timestamp:  at,
		ActorType:  audit.ActorAdmin,
		ActorID:    "admin-1",
		Action:     action,
		TargetType: "verification_request",
		TargetID:   id.NewVerificationID().String(),
		Outcome:    audit.OutcomeSuccess,
	}
}

func (s *PostgresStoreSuite) TestAppendWritesEntryAndOutboxRow() {
	ctx := context.Background()
	e := s.entry(audit.ActionRequestApproved, s.now)
	e.Details = "all checklist items confirmed"
	s.Require().NoError(s.store.Append(ctx, e))

	got, err := s.store.Query(ctx, audit.Filter{TargetID: e.TargetID})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(e.ID, got[0].ID)
	s.Equal(audit.ActionRequestApproved, got[0].Action)
	s.Equal("all checklist items confirmed", got[0].Details)
	s.True(got[0].Timestamp.Equal(s.now))

	var category string
	row := s.postgres.DB.QueryRowContext(ctx,
		`SELECT category FROM audit_outbox WHERE entry_id = $1 AND published_at IS NULL`,
		e.ID.String())
	s.Require().NoError(row.Scan(&category))
	s.Equal(string(audit.CategoryCompliance), category)
}

// TestAppendRollsBackWithTransaction pins the outbox guarantee: an entry
// written through an aborted transaction leaves no trace in either table.
func (s *PostgresStoreSuite) TestAppendRollsBackWithTransaction() {
	ctx := context.Background()
	e := s.entry(audit.ActionRequestRejected, s.now)

	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Append(txCtx, e); err != nil {
			return err
		}
		return context.Canceled
	})
	s.ErrorIs(err, context.Canceled)

	got, err := s.store.Query(ctx, audit.Filter{TargetID: e.TargetID})
	s.Require().NoError(err)
	s.Empty(got)

	var count int
	row := s.postgres.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_outbox`)
	s.Require().NoError(row.Scan(&count))
	s.Zero(count)
}

func (s *PostgresStoreSuite) TestQueryFilters() {
	ctx := context.Background()

	approved := s.entry(audit.ActionRequestApproved, s.now)
	rejectedToken := s.entry(audit.ActionTokenRejected, s.now.Add(time.Minute))
	rejectedToken.ActorType = audit.ActorNominee
	rejectedToken.ActorID = "anonymous"
	rejectedToken.Outcome = audit.OutcomeFailed
	old := s.entry(audit.ActionRequestCreated, s.now.Add(-48*time.Hour))

	for _, e := range []audit.Entry{approved, rejectedToken, old} {
		s.Require().NoError(s.store.Append(ctx, e))
	}

	s.Run("by actor type", func() {
		got, err := s.store.Query(ctx, audit.Filter{ActorType: audit.ActorNominee})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(rejectedToken.ID, got[0].ID)
	})

	s.Run("by outcome", func() {
		got, err := s.store.Query(ctx, audit.Filter{Outcome: audit.OutcomeFailed})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(audit.ActionTokenRejected, got[0].Action)
	})

	s.Run("by time window", func() {
		got, err := s.store.Query(ctx, audit.Filter{From: s.now.Add(-time.Hour)})
		s.Require().NoError(err)
		s.Len(got, 2)
	})

	s.Run("newest first with limit", func() {
		got, err := s.store.Query(ctx, audit.Filter{Limit: 2})
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(rejectedToken.ID, got[0].ID)
		s.Equal(approved.ID, got[1].ID)
	})
}
