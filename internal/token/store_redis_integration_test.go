//go:build integration

package token

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "securevault/pkg/domain"
	"securevault/pkg/platform/sentinel"
	"securevault/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

// newToken builds a live token; expiry is wall-clock because Redis key TTLs
// are real time.
func (s *RedisStoreSuite) newToken(requestID id.VerificationID, hash string) *Token {
	now := time.Now()
	return &Token{
		ID:        id.NewTokenID(),
		RequestID: requestID,
		Hash:      hash,
		Scope:     DefaultScope(),
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func (s *RedisStoreSuite) TestSaveAndFind() {
	ctx := context.Background()

	s.Run("round trips the record", func() {
		t := s.newToken(id.NewVerificationID(), "hash-1")
		s.Require().NoError(s.store.Save(ctx, t))

		got, err := s.store.FindByHash(ctx, "hash-1")
		s.Require().NoError(err)
		s.Equal(t.ID, got.ID)
		s.Equal(t.RequestID, got.RequestID)
		s.ElementsMatch(DefaultScope(), got.Scope)
		s.False(got.Revoked)
	})

	s.Run("unknown hash reports not found", func() {
		_, err := s.store.FindByHash(ctx, "no-such-hash")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("token already past retention cannot be saved", func() {
		t := s.newToken(id.NewVerificationID(), "hash-dead")
		t.ExpiresAt = time.Now().Add(-48 * time.Hour)
		s.ErrorIs(s.store.Save(ctx, t), sentinel.ErrExpired)
	})
}

func (s *RedisStoreSuite) TestConsumeAction() {
	ctx := context.Background()
	now := time.Now()

	s.Run("marks the action consumed exactly once", func() {
		t := s.newToken(id.NewVerificationID(), "hash-consume")
		s.Require().NoError(s.store.Save(ctx, t))

		got, err := s.store.ConsumeAction(ctx, t.Hash, ActionIdentity, now)
		s.Require().NoError(err)
		s.Equal([]Action{ActionIdentity}, got.Consumed)

		again, err := s.store.ConsumeAction(ctx, t.Hash, ActionIdentity, now)
		s.Require().NoError(err)
		s.Equal([]Action{ActionIdentity}, again.Consumed)
		s.Equal([]Action{ActionDocuments}, again.Outstanding())
	})

	s.Run("revoked token is refused", func() {
		t := s.newToken(id.NewVerificationID(), "hash-revoked")
		t.Revoked = true
		s.Require().NoError(s.store.Save(ctx, t))

		_, err := s.store.ConsumeAction(ctx, t.Hash, ActionIdentity, now)
		s.ErrorIs(err, sentinel.ErrRevoked)
	})

	s.Run("expired token is refused", func() {
		t := s.newToken(id.NewVerificationID(), "hash-expired")
		t.ExpiresAt = now.Add(time.Minute)
		s.Require().NoError(s.store.Save(ctx, t))

		_, err := s.store.ConsumeAction(ctx, t.Hash, ActionIdentity, now.Add(2*time.Minute))
		s.ErrorIs(err, sentinel.ErrExpired)
	})

	s.Run("out of scope action is refused", func() {
		t := s.newToken(id.NewVerificationID(), "hash-scoped")
		t.Scope = []Action{ActionDocuments}
		s.Require().NoError(s.store.Save(ctx, t))

		_, err := s.store.ConsumeAction(ctx, t.Hash, ActionIdentity, now)
		s.ErrorIs(err, sentinel.ErrScopeMismatch)
	})
}

// TestConcurrentConsume drives parallel consumes through the WATCH loop.
// Every caller must observe a consumed token; none may error out.
func (s *RedisStoreSuite) TestConcurrentConsume() {
	ctx := context.Background()
	now := time.Now()
	t := s.newToken(id.NewVerificationID(), "hash-race")
	s.Require().NoError(s.store.Save(ctx, t))

	const goroutines = 10
	var wg sync.WaitGroup
	var failures atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.ConsumeAction(ctx, t.Hash, ActionIdentity, now); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Zero(failures.Load())
	got, err := s.store.FindByHash(ctx, t.Hash)
	s.Require().NoError(err)
	s.Equal([]Action{ActionIdentity}, got.Consumed)
}

func (s *RedisStoreSuite) TestRevokeByRequest() {
	ctx := context.Background()
	requestID := id.NewVerificationID()

	first := s.newToken(requestID, "hash-a")
	second := s.newToken(requestID, "hash-b")
	other := s.newToken(id.NewVerificationID(), "hash-other")
	for _, t := range []*Token{first, second, other} {
		s.Require().NoError(s.store.Save(ctx, t))
	}

	n, err := s.store.RevokeByRequest(ctx, requestID)
	s.Require().NoError(err)
	s.Equal(2, n)

	got, err := s.store.FindByHash(ctx, "hash-a")
	s.Require().NoError(err)
	s.True(got.Revoked)

	untouched, err := s.store.FindByHash(ctx, "hash-other")
	s.Require().NoError(err)
	s.False(untouched.Revoked)

	s.Run("second revocation finds nothing live", func() {
		n, err := s.store.RevokeByRequest(ctx, requestID)
		s.Require().NoError(err)
		s.Zero(n)
	})
}
