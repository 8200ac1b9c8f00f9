package docsession

import (
	"context"
	"sync"
	"time"

	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
	"securevault/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in process memory.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[id.SessionID]*Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[id.SessionID]*Session)}
}

func (s *InMemoryStore) Save(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; ok {
		return sentinel.ErrConflict
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, sessionID id.SessionID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *InMemoryStore) End(_ context.Context, sessionID id.SessionID, state State, now time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if session.State != StateOpen {
		return nil, dErrors.Newf(dErrors.CodeInvalidState, "session is already %s", session.State)
	}
	session.State = state
	t := now
	session.EndedAt = &t
	cp := *session
	return &cp, nil
}

func (s *InMemoryStore) ExpireDue(_ context.Context, now time.Time) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Session
	for _, session := range s.sessions {
		if session.State == StateOpen && now.After(session.ExpiresAt) {
			session.State = StateExpired
			t := now
			session.EndedAt = &t
			cp := *session
			out = append(out, &cp)
		}
	}
	return out, nil
}
