package docsession

import (
	"context"
	"time"

	id "securevault/pkg/domain"
)

// Store persists document access sessions.
//
// ExpireDue transitions every open session past its ExpiresAt to EXPIRED
// and returns the sessions it transitioned, so the reaper can audit each
// one exactly once even when multiple instances run it.
type Store interface {
	Save(ctx context.Context, session *Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*Session, error)
	End(ctx context.Context, sessionID id.SessionID, state State, now time.Time) (*Session, error)
	ExpireDue(ctx context.Context, now time.Time) ([]*Session, error)
}
