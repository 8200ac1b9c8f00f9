// Package token issues and redeems the single-purpose bearer tokens that
// let an unauthenticated nominee act on exactly one verification request.
// Token values are never persisted: only their SHA-256 hash is stored, and
// the plaintext exists once, at issuance, for out-of-band delivery.
package token

import (
	"time"

	id "securevault/pkg/domain"
)

// Action is a scoped step a token may authorize.
type Action string

const (
	ActionIdentity  Action = "IDENTITY"
	ActionDocuments Action = "DOCUMENTS"
)

// DefaultScope covers the full nominee flow.
func DefaultScope() []Action {
	return []Action{ActionIdentity, ActionDocuments}
}

// Token is the server-side record. Hash is the hex SHA-256 of the secret
// value; the value itself is never stored.
type Token struct {
	ID        id.TokenID        `json:"id"`
	RequestID id.VerificationID `json:"request_id"`
	Hash      string            `json:"hash"`
	Scope     []Action          `json:"scope"`
	Consumed  []Action          `json:"consumed"`
	IssuedAt  time.Time         `json:"issued_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Revoked   bool              `json:"revoked"`
}

// Expired reports whether the token's natural lifetime has passed.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// InScope reports whether the token covers the action at all.
func (t *Token) InScope(action Action) bool {
	for _, a := range t.Scope {
		if a == action {
			return true
		}
	}
	return false
}

// IsConsumed reports whether the action was already completed.
func (t *Token) IsConsumed(action Action) bool {
	for _, a := range t.Consumed {
		if a == action {
			return true
		}
	}
	return false
}

// Outstanding lists scoped actions not yet consumed.
func (t *Token) Outstanding() []Action {
	var out []Action
	for _, a := range t.Scope {
		if !t.IsConsumed(a) {
			out = append(out, a)
		}
	}
	return out
}

// Context is what Validate returns to callers: enough to resume the right
// request, nothing secret.
type Context struct {
	TokenID     id.TokenID
	RequestID   id.VerificationID
	ExpiresAt   time.Time
	Outstanding []Action
}
