package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
	"securevault/pkg/platform/sentinel"
	"securevault/pkg/requestcontext"
)

// tokenBytes gives 256 bits of entropy.
const tokenBytes = 32

// Service owns the token lifecycle. Issuing a token implicitly revokes any
// prior token for the same request, so exactly one link is live per request.
type Service struct {
	store Store
	ttl   time.Duration
}

func NewService(store Store, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl}
}

// Issue mints a token scoped to the request and returns the record plus the
// plaintext value for out-of-band delivery. The plaintext is never stored.
func (s *Service) Issue(ctx context.Context, requestID id.VerificationID, scope ...Action) (*Token, string, error) {
	if len(scope) == 0 {
		scope = DefaultScope()
	}

	if _, err := s.store.RevokeByRequest(ctx, requestID); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to revoke prior tokens")
	}

	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate token")
	}
	value := base64.RawURLEncoding.EncodeToString(raw)

	now := requestcontext.Now(ctx)
	t := &Token{
		ID:        id.NewTokenID(),
		RequestID: requestID,
		Hash:      HashValue(value),
		Scope:     append([]Action(nil), scope...),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.Save(ctx, t); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to persist token")
	}
	return t, value, nil
}

// Validate resolves a presented value to its request context. Poll-safe:
// it never consumes anything.
func (s *Service) Validate(ctx context.Context, value string) (*Context, error) {
	t, err := s.store.FindByHash(ctx, HashValue(value))
	if err != nil {
		return nil, translate(err)
	}
	if t.Revoked {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
	}
	if t.Expired(requestcontext.Now(ctx)) {
		return nil, dErrors.New(dErrors.CodeExpired, "token has expired")
	}
	return tokenContext(t), nil
}

// Peek resolves a presented value without enforcing expiry, so callers can
// settle a deadline that lapsed together with the token. Unknown and
// revoked tokens still fail.
func (s *Service) Peek(ctx context.Context, value string) (*Context, error) {
	t, err := s.store.FindByHash(ctx, HashValue(value))
	if err != nil {
		return nil, translate(err)
	}
	if t.Revoked {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
	}
	return tokenContext(t), nil
}

// ExtendTo aligns the token's lifetime with a later deadline so the link
// stays usable for as long as the claim allows action. Never shortens.
func (s *Service) ExtendTo(ctx context.Context, value string, until time.Time) error {
	if _, err := s.store.ExtendExpiry(ctx, HashValue(value), until); err != nil {
		return translate(err)
	}
	return nil
}

// Consume atomically marks a scoped action complete. Re-presenting the token
// for the same action is idempotent; presenting it against a foreign request
// is a security failure, not a retryable one.
func (s *Service) Consume(ctx context.Context, value string, requestID id.VerificationID, action Action) (*Context, error) {
	hash := HashValue(value)
	t, err := s.store.FindByHash(ctx, hash)
	if err != nil {
		return nil, translate(err)
	}
	if t.RequestID != requestID {
		return nil, dErrors.Wrap(sentinel.ErrScopeMismatch, dErrors.CodeSecurity, "token presented for a foreign request")
	}
	updated, err := s.store.ConsumeAction(ctx, hash, action, requestcontext.Now(ctx))
	if err != nil {
		return nil, translate(err)
	}
	return tokenContext(updated), nil
}

// Revoke invalidates every token for a request; called when the request
// reaches a terminal state or a new token supersedes the old.
func (s *Service) Revoke(ctx context.Context, requestID id.VerificationID) (int, error) {
	n, err := s.store.RevokeByRequest(ctx, requestID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to revoke tokens")
	}
	return n, nil
}

// HashValue maps a plaintext token value to its storage key.
func HashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func tokenContext(t *Token) *Context {
	return &Context{
		TokenID:     t.ID,
		RequestID:   t.RequestID,
		ExpiresAt:   t.ExpiresAt,
		Outstanding: t.Outstanding(),
	}
}

func translate(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeUnauthorized, "unknown token")
	case errors.Is(err, sentinel.ErrRevoked):
		return dErrors.New(dErrors.CodeUnauthorized, "token has been revoked")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.New(dErrors.CodeExpired, "token has expired")
	case errors.Is(err, sentinel.ErrScopeMismatch):
		return dErrors.Wrap(err, dErrors.CodeSecurity, "token out of scope")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "token contention, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, fmt.Sprintf("token store failure: %v", err))
	}
}
