// Package audit is the append-only record of every state-changing action in
// the engine. There is deliberately no update or delete API: immutability is
// part of the product promise, not an implementation detail.
package audit

import (
	"time"

	id "securevault/pkg/domain"
)

// ActorType identifies who triggered an audited action.
type ActorType string

const (
	ActorUser    ActorType = "USER"
	ActorNominee ActorType = "NOMINEE"
	ActorAdmin   ActorType = "ADMIN"
	ActorSystem  ActorType = "SYSTEM"
)

// Outcome records whether the audited action succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
)

// Category classifies audit events for retention and relay routing.
// Compliance events need tamper-proof storage and long retention; security
// events feed alerting; operations events can be sampled.
type Category string

const (
	CategoryCompliance Category = "compliance"
	CategorySecurity   Category = "security"
	CategoryOperations Category = "operations"
)

// Action is the fixed vocabulary of audited actions.
type Action string

const (
	// Workflow lifecycle
	ActionRequestCreated     Action = "request_created"
	ActionIdentityConfirmed  Action = "identity_confirmed"
	ActionIdentityMismatch   Action = "identity_confirmation_failed"
	ActionDocumentUploaded   Action = "document_uploaded"
	ActionDocumentsSubmitted Action = "documents_submitted"
	ActionRequestApproved    Action = "request_approved"
	ActionRequestRejected    Action = "request_rejected"
	ActionDocumentsRequested Action = "documents_requested"
	ActionReuploadOpened     Action = "reupload_window_opened"
	ActionRequestExpired     Action = "request_expired"
	ActionRequestClosed      Action = "request_closed"
	ActionClaimsCancelled    Action = "claims_cancelled"
	ActionTransitionDenied   Action = "transition_denied"

	// Tokens
	ActionTokenIssued    Action = "token_issued"
	ActionTokenRevoked   Action = "token_revoked"
	ActionTokenRejected  Action = "token_validation_failed"
	ActionScopeViolation Action = "token_scope_violation"

	// Users and sweep
	ActionActivityRecorded    Action = "user_activity_recorded"
	ActionInactivityTriggered Action = "user_inactivity_triggered"
	ActionNomineeRegistered   Action = "nominee_registered"
	ActionNomineeDeleted      Action = "nominee_deleted"
	ActionAssetReleased       Action = "asset_released"

	// Document access sessions
	ActionDocSessionOpened  Action = "document_session_opened"
	ActionDocSessionClosed  Action = "document_session_closed"
	ActionDocSessionExpired Action = "document_session_expired"
	ActionDownloadDenied    Action = "document_download_denied"

	// Collaborators
	ActionNotifyFailed Action = "notification_delivery_failed"
)

var actionCategories = map[Action]Category{
	ActionRequestCreated:     CategoryCompliance,
	ActionIdentityConfirmed:  CategoryCompliance,
	ActionDocumentsSubmitted: CategoryCompliance,
	ActionDocumentUploaded:   CategoryCompliance,
	ActionRequestApproved:    CategoryCompliance,
	ActionRequestRejected:    CategoryCompliance,
	ActionDocumentsRequested: CategoryCompliance,
	ActionReuploadOpened:     CategoryCompliance,
	ActionRequestExpired:     CategoryCompliance,
	ActionRequestClosed:      CategoryCompliance,
	ActionClaimsCancelled:    CategoryCompliance,
	ActionNomineeRegistered:  CategoryCompliance,
	ActionNomineeDeleted:     CategoryCompliance,
	ActionAssetReleased:      CategoryCompliance,

	ActionIdentityMismatch:  CategorySecurity,
	ActionTransitionDenied:  CategorySecurity,
	ActionTokenRejected:     CategorySecurity,
	ActionScopeViolation:    CategorySecurity,
	ActionDocSessionOpened:  CategorySecurity,
	ActionDocSessionClosed:  CategorySecurity,
	ActionDocSessionExpired: CategorySecurity,
	ActionDownloadDenied:    CategorySecurity,

	ActionTokenIssued:         CategoryOperations,
	ActionTokenRevoked:        CategoryOperations,
	ActionActivityRecorded:    CategoryOperations,
	ActionInactivityTriggered: CategoryOperations,
	ActionNotifyFailed:        CategoryOperations,
}

// Category returns the routing category for this action. Unknown actions
// default to operations.
func (a Action) Category() Category {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Entry is a single immutable audit record.
type Entry struct {
	ID         id.EntryID `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	ActorType  ActorType  `json:"actor_type"`
	ActorID    string     `json:"actor_id"`
	Action     Action     `json:"action"`
	TargetType string     `json:"target_type"`
	TargetID   string     `json:"target_id"`
	Details    string     `json:"details,omitempty"`
	Outcome    Outcome    `json:"outcome"`
}

// Filter narrows a Query. Zero values mean "any".
type Filter struct {
	ActorType  ActorType
	ActorID    string
	Action     Action
	TargetType string
	TargetID   string
	Outcome    Outcome
	From       time.Time
	To         time.Time
	Limit      int
}
