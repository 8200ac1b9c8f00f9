// Package docsession grants admins short-lived, view-only access to
// uploaded evidence. Sessions expire on a fixed TTL; downloads are always
// denied and the denial is audited.
package docsession

import (
	"time"

	id "securevault/pkg/domain"
)

// State is the session lifecycle.
type State string

const (
	StateOpen    State = "OPEN"
	StateClosed  State = "CLOSED"
	StateExpired State = "EXPIRED"
)

// Session is one admin's window onto one document.
type Session struct {
	ID         id.SessionID  `json:"id"`
	DocumentID id.DocumentID `json:"document_id"`
	AdminID    string        `json:"admin_id"`
	State      State         `json:"state"`
	OpenedAt   time.Time     `json:"opened_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
}

// NewSession opens a session with the configured TTL.
func NewSession(sessionID id.SessionID, documentID id.DocumentID, adminID string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:         sessionID,
		DocumentID: documentID,
		AdminID:    adminID,
		State:      StateOpen,
		OpenedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}
}

// Active reports whether the session still grants access.
func (s *Session) Active(now time.Time) bool {
	return s.State == StateOpen && !now.After(s.ExpiresAt)
}
