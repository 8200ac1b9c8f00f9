package token

import (
	"context"
	"sync"
	"time"

	id "securevault/pkg/domain"
	"securevault/pkg/platform/sentinel"
)

// InMemoryStore is the development/test token store.
type InMemoryStore struct {
	mu     sync.Mutex
	byHash map[string]*Token
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byHash: make(map[string]*Token)}
}

func (s *InMemoryStore) Save(ctx context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := cloneToken(t)
	s.byHash[t.Hash] = &copy
	return nil
}

func (s *InMemoryStore) FindByHash(ctx context.Context, hash string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copy := cloneToken(t)
	return &copy, nil
}

func (s *InMemoryStore) ConsumeAction(ctx context.Context, hash string, action Action, now time.Time) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if t.Revoked {
		return nil, sentinel.ErrRevoked
	}
	if t.Expired(now) {
		return nil, sentinel.ErrExpired
	}
	if !t.InScope(action) {
		return nil, sentinel.ErrScopeMismatch
	}
	if !t.IsConsumed(action) {
		t.Consumed = append(t.Consumed, action)
	}
	copy := cloneToken(t)
	return &copy, nil
}

func (s *InMemoryStore) ExtendExpiry(ctx context.Context, hash string, until time.Time) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if t.Revoked {
		return nil, sentinel.ErrRevoked
	}
	if until.After(t.ExpiresAt) {
		t.ExpiresAt = until
	}
	copy := cloneToken(t)
	return &copy, nil
}

func (s *InMemoryStore) RevokeByRequest(ctx context.Context, requestID id.VerificationID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked := 0
	for _, t := range s.byHash {
		if t.RequestID == requestID && !t.Revoked {
			t.Revoked = true
			revoked++
		}
	}
	return revoked, nil
}

func cloneToken(t *Token) Token {
	copy := *t
	copy.Scope = append([]Action(nil), t.Scope...)
	copy.Consumed = append([]Action(nil), t.Consumed...)
	return copy
}
