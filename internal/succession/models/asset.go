package models

import (
	"time"

	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
)

// MaxNomineesPerAsset bounds how many nominees one asset can name.
const MaxNomineesPerAsset = 3

// AssetStatus is the asset lifecycle. An asset belongs exclusively to its
// owner until release; a released asset grants read access to the approved
// nominee.
type AssetStatus string

const (
	AssetStatusActive              AssetStatus = "ACTIVE"
	AssetStatusPendingVerification AssetStatus = "PENDING_VERIFICATION"
	AssetStatusReleased            AssetStatus = "RELEASED"
)

// Asset references an encrypted payload held in the external object store.
// The engine never sees the plaintext, only EncryptedRef.
type Asset struct {
	ID           id.AssetID     `json:"id"`
	OwnerID      id.UserID      `json:"owner_id"`
	Type         string         `json:"type"`
	EncryptedRef string         `json:"encrypted_ref"`
	NomineeIDs   []id.NomineeID `json:"nominee_ids"`
	Status       AssetStatus    `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// LinkNominee attaches a nominee, enforcing the per-asset bound.
func (a *Asset) LinkNominee(nomineeID id.NomineeID) error {
	for _, existing := range a.NomineeIDs {
		if existing == nomineeID {
			return nil
		}
	}
	if len(a.NomineeIDs) >= MaxNomineesPerAsset {
		return dErrors.Newf(dErrors.CodeValidation, "asset %s already has %d nominees", a.ID, MaxNomineesPerAsset)
	}
	a.NomineeIDs = append(a.NomineeIDs, nomineeID)
	return nil
}

// UnlinkNominee removes a nominee link; used by the nominee-deletion cascade.
func (a *Asset) UnlinkNominee(nomineeID id.NomineeID) {
	out := a.NomineeIDs[:0]
	for _, existing := range a.NomineeIDs {
		if existing != nomineeID {
			out = append(out, existing)
		}
	}
	a.NomineeIDs = out
}

// ApplyPendingVerification marks the asset while claims are open.
func (a *Asset) ApplyPendingVerification(now time.Time) {
	if a.Status == AssetStatusActive {
		a.Status = AssetStatusPendingVerification
		a.UpdatedAt = now
	}
}

// CanRelease checks the transition to RELEASED.
func (a *Asset) CanRelease() error {
	if a.Status == AssetStatusReleased {
		return dErrors.Newf(dErrors.CodeInvalidState, "asset %s is already released", a.ID)
	}
	return nil
}

// ApplyRelease grants the approved nominee read access.
func (a *Asset) ApplyRelease(now time.Time) {
	a.Status = AssetStatusReleased
	a.UpdatedAt = now
}
