package models

import (
	"strings"
	"time"

	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
)

// Nominee is a person designated by exactly one owner to potentially inherit
// access to some of that owner's assets.
type Nominee struct {
	ID                id.NomineeID `json:"id"`
	OwnerID           id.UserID    `json:"owner_id"`
	Name              string       `json:"name"`
	Email             string       `json:"email"`
	Phone             string       `json:"phone"`
	Relationship      string       `json:"relationship"`
	IdentityConfirmed bool         `json:"identity_confirmed"`
	CreatedAt         time.Time    `json:"created_at"`
}

// MatchesName compares an entered name against the record: trimmed and
// case-insensitive, otherwise exact. No normalization for diacritics,
// honorifics or word order — the nominee must know the exact name on file.
func (n *Nominee) MatchesName(entered string) bool {
	return strings.EqualFold(strings.TrimSpace(entered), strings.TrimSpace(n.Name))
}

// MatchesRelationship compares the declared relationship the same way.
func (n *Nominee) MatchesRelationship(entered string) bool {
	return strings.EqualFold(strings.TrimSpace(entered), strings.TrimSpace(n.Relationship))
}

func NewNominee(nomineeID id.NomineeID, ownerID id.UserID, name, email, phone, relationship string, now time.Time) (*Nominee, error) {
	if strings.TrimSpace(name) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "nominee name is required")
	}
	if email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "nominee email is required")
	}
	if relationship == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "nominee relationship is required")
	}
	return &Nominee{
		ID:           nomineeID,
		OwnerID:      ownerID,
		Name:         name,
		Email:        email,
		Phone:        phone,
		Relationship: relationship,
		CreatedAt:    now,
	}, nil
}
