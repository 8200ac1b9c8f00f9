// Package models holds the verification request aggregate: one nominee's
// claim against one asset of a reportedly deceased user.
package models

import (
	"time"

	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
)

// Status is the request lifecycle.
type Status string

const (
	StatusNotStarted         Status = "NOT_STARTED"
	StatusIdentityPending    Status = "IDENTITY_PENDING"
	StatusIdentityConfirmed  Status = "IDENTITY_CONFIRMED"
	StatusAwaitingDocuments  Status = "AWAITING_DOCUMENTS"
	StatusDocumentsSubmitted Status = "DOCUMENTS_SUBMITTED"
	StatusPendingAdminReview Status = "PENDING_ADMIN_REVIEW"
	StatusDocumentsRequested Status = "DOCUMENTS_REQUESTED"
	StatusApproved           Status = "APPROVED"
	StatusRejected           Status = "REJECTED"
	StatusExpired            Status = "EXPIRED"
	StatusClosed             Status = "CLOSED"
)

// statusTransitions is the single source of truth for the state machine.
// Every mutation path below funnels through transition(), so no code path
// can skip a step.
var statusTransitions = map[Status][]Status{
	StatusNotStarted:         {StatusIdentityPending},
	StatusIdentityPending:    {StatusIdentityConfirmed, StatusClosed},
	StatusIdentityConfirmed:  {StatusAwaitingDocuments, StatusClosed},
	StatusAwaitingDocuments:  {StatusDocumentsSubmitted, StatusExpired, StatusClosed},
	StatusDocumentsSubmitted: {StatusPendingAdminReview, StatusClosed},
	StatusPendingAdminReview: {StatusApproved, StatusRejected, StatusDocumentsRequested, StatusClosed},
	StatusDocumentsRequested: {StatusAwaitingDocuments, StatusRejected, StatusClosed},
	StatusApproved:           {},
	StatusRejected:           {},
	StatusExpired:            {},
	StatusClosed:             {},
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired, StatusClosed:
		return true
	}
	return false
}

// CanTransitionTo checks the transition table.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Priority orders the admin queue; derived from waiting time, never stored.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Request is the aggregate root for one nominee's claim.
//
// Invariants:
//   - at most one Request per (AssetID, NomineeID) pair is non-terminal
//     at a time; enforced by the stores
//   - ReuploadAttempts is monotonic and bounded by configuration
//   - DeadlineAt is set while documents are awaited, reset when the
//     document window reopens, and cleared only on terminal states
//   - Version increments on every persisted mutation (optimistic locking)
type Request struct {
	ID               id.VerificationID `json:"id"`
	AssetID          id.AssetID        `json:"asset_id"`
	NomineeID        id.NomineeID      `json:"nominee_id"`
	UserID           id.UserID         `json:"user_id"`
	Status           Status            `json:"status"`
	ReuploadAttempts int               `json:"reupload_attempts"`
	DeadlineAt       *time.Time        `json:"deadline_at,omitempty"`
	SubmittedAt      *time.Time        `json:"submitted_at,omitempty"`
	ReviewedAt       *time.Time        `json:"reviewed_at,omitempty"`
	ReviewedBy       string            `json:"reviewed_by,omitempty"`
	AdminNotes       string            `json:"admin_notes,omitempty"`
	RejectionReason  string            `json:"rejection_reason,omitempty"`
	MissingDocuments []string          `json:"missing_documents,omitempty"`
	Version          int64             `json:"version"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// NewRequest creates a claim in IDENTITY_PENDING, the state the inactivity
// sweep hands to the nominee.
func NewRequest(requestID id.VerificationID, assetID id.AssetID, nomineeID id.NomineeID, userID id.UserID, now time.Time) *Request {
	return &Request{
		ID:        requestID,
		AssetID:   assetID,
		NomineeID: nomineeID,
		UserID:    userID,
		Status:    StatusIdentityPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Priority derives the admin queue priority from how long the claim has
// waited for review.
func (r *Request) Priority(now time.Time) Priority {
	if r.SubmittedAt == nil {
		return PriorityNormal
	}
	waiting := now.Sub(*r.SubmittedAt)
	switch {
	case waiting > 7*24*time.Hour:
		return PriorityHigh
	case waiting > 3*24*time.Hour:
		return PriorityMedium
	default:
		return PriorityNormal
	}
}

func (r *Request) transition(next Status, now time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot transition request from %s to %s", r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = now
	if next.Terminal() {
		r.DeadlineAt = nil
	}
	return nil
}

// CanConfirmIdentity gates the nominee's identity step.
func (r *Request) CanConfirmIdentity() error {
	if r.Status != StatusIdentityPending {
		return dErrors.Newf(dErrors.CodeInvalidState, "identity confirmation requires IDENTITY_PENDING, request is %s", r.Status)
	}
	return nil
}

// ApplyIdentityConfirmed records a successful identity match.
func (r *Request) ApplyIdentityConfirmed(now time.Time) error {
	return r.transition(StatusIdentityConfirmed, now)
}

// ApplyDocumentWindowOpened starts (or restarts) the document-upload window
// and stamps its deadline. Reopening after an admin re-upload request is the
// only path that touches ReuploadAttempts.
func (r *Request) ApplyDocumentWindowOpened(now, deadline time.Time) error {
	reopening := r.Status == StatusDocumentsRequested
	if err := r.transition(StatusAwaitingDocuments, now); err != nil {
		return err
	}
	if reopening {
		r.ReuploadAttempts++
	}
	d := deadline
	r.DeadlineAt = &d
	return nil
}

// CanSubmitDocuments gates the nominee's submission step.
func (r *Request) CanSubmitDocuments() error {
	if r.Status != StatusAwaitingDocuments {
		return dErrors.Newf(dErrors.CodeInvalidState, "document submission requires AWAITING_DOCUMENTS, request is %s", r.Status)
	}
	return nil
}

// ApplyDocumentsSubmitted records a complete submission.
func (r *Request) ApplyDocumentsSubmitted(now time.Time) error {
	if err := r.transition(StatusDocumentsSubmitted, now); err != nil {
		return err
	}
	t := now
	r.SubmittedAt = &t
	return nil
}

// ApplyPendingAdminReview is the automatic hop after submission.
func (r *Request) ApplyPendingAdminReview(now time.Time) error {
	return r.transition(StatusPendingAdminReview, now)
}

// CanReview gates every admin decision.
func (r *Request) CanReview() error {
	if r.Status != StatusPendingAdminReview {
		return dErrors.Newf(dErrors.CodeInvalidState, "review requires PENDING_ADMIN_REVIEW, request is %s", r.Status)
	}
	return nil
}

// ApplyApproval records the admin's approval. Caller has already enforced
// the checklist-complete precondition.
func (r *Request) ApplyApproval(adminID, notes string, now time.Time) error {
	if err := r.transition(StatusApproved, now); err != nil {
		return err
	}
	t := now
	r.ReviewedAt = &t
	r.ReviewedBy = adminID
	r.AdminNotes = notes
	return nil
}

// ApplyRejection records a rejection with its mandatory reason.
func (r *Request) ApplyRejection(adminID, reason, notes string, now time.Time) error {
	if err := r.transition(StatusRejected, now); err != nil {
		return err
	}
	t := now
	r.ReviewedAt = &t
	r.ReviewedBy = adminID
	r.AdminNotes = notes
	r.RejectionReason = reason
	return nil
}

// CanRequestDocuments gates the re-upload loop against its bound. At the
// bound the gate forces a rejection instead, so callers never loop.
func (r *Request) CanRequestDocuments(maxAttempts int) error {
	if err := r.CanReview(); err != nil {
		return err
	}
	if r.ReuploadAttempts >= maxAttempts {
		return dErrors.Newf(dErrors.CodeSecurity, "re-upload attempts exhausted (%d of %d)", r.ReuploadAttempts, maxAttempts)
	}
	return nil
}

// ApplyDocumentsRequested records which documents the admin wants again.
func (r *Request) ApplyDocumentsRequested(adminID string, missing []string, notes string, now time.Time) error {
	if err := r.transition(StatusDocumentsRequested, now); err != nil {
		return err
	}
	t := now
	r.ReviewedAt = &t
	r.ReviewedBy = adminID
	r.AdminNotes = notes
	r.MissingDocuments = append([]string(nil), missing...)
	return nil
}

// ApplyForcedRejection terminates a claim that exhausted its re-upload
// attempts.
func (r *Request) ApplyForcedRejection(adminID string, now time.Time) error {
	if err := r.transition(StatusRejected, now); err != nil {
		return err
	}
	t := now
	r.ReviewedAt = &t
	r.ReviewedBy = adminID
	r.RejectionReason = "maximum document re-upload attempts exceeded"
	return nil
}

// Overdue reports whether the document deadline has passed.
func (r *Request) Overdue(now time.Time) bool {
	return r.Status == StatusAwaitingDocuments && r.DeadlineAt != nil && now.After(*r.DeadlineAt)
}

// ApplyExpiry terminates a claim whose upload window lapsed.
func (r *Request) ApplyExpiry(now time.Time) error {
	if !r.Overdue(now) {
		return dErrors.Newf(dErrors.CodeInvalidState, "request %s is not overdue", r.ID)
	}
	return r.transition(StatusExpired, now)
}

// CanClose gates administrative closure (owner returned, nominee deleted).
func (r *Request) CanClose() error {
	if r.Status.Terminal() {
		return dErrors.Newf(dErrors.CodeInvalidState, "request %s is already terminal (%s)", r.ID, r.Status)
	}
	return nil
}

// ApplyClosed terminates the claim without a verdict, preserving it for
// audit continuity. Requests are never deleted.
func (r *Request) ApplyClosed(now time.Time) error {
	if err := r.CanClose(); err != nil {
		return err
	}
	return r.transition(StatusClosed, now)
}
