package token

import (
	"context"
	"time"

	id "securevault/pkg/domain"
)

// Store persists tokens keyed by value hash. ConsumeAction must be atomic:
// expiry check and consumption mark happen as one operation so a token can
// never be redeemed twice in a race.
type Store interface {
	Save(ctx context.Context, t *Token) error
	FindByHash(ctx context.Context, hash string) (*Token, error)
	// ConsumeAction validates the token is live and marks the action
	// consumed, idempotently. Returns sentinel.ErrExpired, ErrRevoked or
	// ErrNotFound when the token is unusable.
	ConsumeAction(ctx context.Context, hash string, action Action, now time.Time) (*Token, error)
	// ExtendExpiry pushes the token's expiry out to the given instant when
	// that is later than the current one.
	ExtendExpiry(ctx context.Context, hash string, until time.Time) (*Token, error)
	// RevokeByRequest invalidates every token bound to the request and
	// returns how many were live.
	RevokeByRequest(ctx context.Context, requestID id.VerificationID) (int, error)
}
