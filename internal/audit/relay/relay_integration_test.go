//go:build integration

package relay_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"securevault/internal/audit"
	"securevault/internal/audit/relay"
	"securevault/internal/audit/store/postgres"
	id "securevault/pkg/domain"
	"securevault/pkg/testutil/containers"
)

type published struct {
	category audit.Category
	key      string
	payload  []byte
}

// capturingProducer records publishes and can be made to fail.
type capturingProducer struct {
	published []published
	failures  int
}

func (p *capturingProducer) Publish(_ context.Context, category audit.Category, key string, payload []byte) error {
	if p.failures > 0 {
		p.failures--
		return fmt.Errorf("broker unavailable")
	}
	p.published = append(p.published, published{category: category, key: key, payload: payload})
	return nil
}

type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	producer *capturingProducer
	relay    *relay.Relay
	now      time.Time
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func (s *RelaySuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "audit_entries", "audit_outbox")
	s.Require().NoError(err)

	s.producer = &capturingProducer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.relay = relay.New(s.postgres.DB, s.producer, logger, time.Second, 100)
}

func (s *RelaySuite) append(action audit.Action, at time.Time) audit.Entry {
	e := audit.Entry{
		ID:         id.NewEntryID(),
		Timestamp:  at,
		ActorType:  audit.ActorSystem,
		ActorID:    "system",
		Action:     action,
		TargetType: "verification_request",
		TargetID:   id.NewVerificationID().String(),
		Outcome:    audit.OutcomeSuccess,
	}
	s.Require().NoError(s.store.Append(context.Background(), e))
	return e
}

func (s *RelaySuite) TestDrainShipsPendingRowsInOrder() {
	ctx := context.Background()
	first := s.append(audit.ActionRequestCreated, s.now)
	second := s.append(audit.ActionRequestExpired, s.now.Add(time.Minute))

	n, err := s.relay.Drain(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Require().Len(s.producer.published, 2)

	s.Equal(first.ID.String(), s.producer.published[0].key)
	s.Equal(second.ID.String(), s.producer.published[1].key)
	s.Equal(audit.CategoryCompliance, s.producer.published[0].category)

	var decoded audit.Entry
	s.Require().NoError(json.Unmarshal(s.producer.published[0].payload, &decoded))
	s.Equal(first.ID, decoded.ID)
	s.Equal(audit.ActionRequestCreated, decoded.Action)

	s.Run("drained rows are not shipped twice", func() {
		n, err := s.relay.Drain(ctx)
		s.Require().NoError(err)
		s.Zero(n)
		s.Len(s.producer.published, 2)
	})
}

// TestDrainRetriesAfterPublishFailure pins at-least-once delivery: a row the
// producer rejects stays unpublished and ships on the next drain.
func (s *RelaySuite) TestDrainRetriesAfterPublishFailure() {
	ctx := context.Background()
	entry := s.append(audit.ActionTokenRevoked, s.now)

	s.producer.failures = 1
	n, err := s.relay.Drain(ctx)
	s.Error(err)
	s.Zero(n)
	s.Empty(s.producer.published)

	n, err = s.relay.Drain(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Require().Len(s.producer.published, 1)
	s.Equal(entry.ID.String(), s.producer.published[0].key)
}

func (s *RelaySuite) TestDrainHonorsBatchSize() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	small := relay.New(s.postgres.DB, s.producer, logger, time.Second, 2)

	for i := 0; i < 5; i++ {
		s.append(audit.ActionDocumentUploaded, s.now.Add(time.Duration(i)*time.Second))
	}

	n, err := small.Drain(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = small.Drain(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = small.Drain(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Len(s.producer.published, 5)
}
