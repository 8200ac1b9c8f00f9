// Package domain holds the typed identifiers shared across the engine.
// Using distinct types per entity keeps call sites honest: a NomineeID can
// never be passed where an AssetID is expected.
package domain

import "github.com/google/uuid"

type (
	// UserID identifies a vault owner.
	UserID uuid.UUID
	// NomineeID identifies a person designated to inherit asset access.
	NomineeID uuid.UUID
	// AssetID identifies a stored encrypted asset.
	AssetID uuid.UUID
	// VerificationID identifies a verification request (one nominee's claim).
	VerificationID uuid.UUID
	// DocumentID identifies an uploaded evidence document.
	DocumentID uuid.UUID
	// TokenID identifies a verification token record (not its secret value).
	TokenID uuid.UUID
	// SessionID identifies a document access session.
	SessionID uuid.UUID
	// EntryID identifies an audit log entry.
	EntryID uuid.UUID
)

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id NomineeID) String() string      { return uuid.UUID(id).String() }
func (id AssetID) String() string        { return uuid.UUID(id).String() }
func (id VerificationID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) String() string     { return uuid.UUID(id).String() }
func (id TokenID) String() string        { return uuid.UUID(id).String() }
func (id SessionID) String() string      { return uuid.UUID(id).String() }
func (id EntryID) String() string        { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id NomineeID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id AssetID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id VerificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id TokenID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewNomineeID returns a fresh random NomineeID.
func NewNomineeID() NomineeID { return NomineeID(uuid.New()) }

// NewAssetID returns a fresh random AssetID.
func NewAssetID() AssetID { return AssetID(uuid.New()) }

// NewVerificationID returns a fresh random VerificationID.
func NewVerificationID() VerificationID { return VerificationID(uuid.New()) }

// NewDocumentID returns a fresh random DocumentID.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewTokenID returns a fresh random TokenID.
func NewTokenID() TokenID { return TokenID(uuid.New()) }

// NewSessionID returns a fresh random SessionID.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewEntryID returns a fresh random EntryID.
func NewEntryID() EntryID { return EntryID(uuid.New()) }

// ParseUserID parses a UserID from its string form.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseNomineeID parses a NomineeID from its string form.
func ParseNomineeID(s string) (NomineeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NomineeID{}, err
	}
	return NomineeID(u), nil
}

// ParseAssetID parses an AssetID from its string form.
func ParseAssetID(s string) (AssetID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AssetID{}, err
	}
	return AssetID(u), nil
}

// ParseVerificationID parses a VerificationID from its string form.
func ParseVerificationID(s string) (VerificationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return VerificationID{}, err
	}
	return VerificationID(u), nil
}

// ParseDocumentID parses a DocumentID from its string form.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DocumentID{}, err
	}
	return DocumentID(u), nil
}

// ParseSessionID parses a SessionID from its string form.
func ParseSessionID(s string) (SessionID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(u), nil
}
