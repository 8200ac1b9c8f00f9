// Package models holds the succession aggregates: vault owners, their
// nominees and their assets.
package models

import (
	"time"

	id "securevault/pkg/domain"
	dErrors "securevault/pkg/domain-errors"
)

// UserStatus is the owner lifecycle. Users are never hard-deleted; CLOSED is
// the soft-delete terminal.
type UserStatus string

const (
	UserStatusActive              UserStatus = "ACTIVE"
	UserStatusInactivityTriggered UserStatus = "INACTIVITY_TRIGGERED"
	UserStatusReleaseInProgress   UserStatus = "RELEASE_IN_PROGRESS"
	UserStatusClosed              UserStatus = "CLOSED"
)

var userTransitions = map[UserStatus][]UserStatus{
	UserStatusActive:              {UserStatusInactivityTriggered, UserStatusClosed},
	UserStatusInactivityTriggered: {UserStatusActive, UserStatusReleaseInProgress, UserStatusClosed},
	UserStatusReleaseInProgress:   {UserStatusClosed},
	UserStatusClosed:              {},
}

func (s UserStatus) CanTransitionTo(next UserStatus) bool {
	for _, allowed := range userTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// User is a vault owner.
//
// Invariants:
//   - InactivityThresholdDays is positive
//   - LastActivityAt moves only forward, and only via login activity —
//     the inactivity monitor changes Status, never activity
type User struct {
	ID                      id.UserID  `json:"id"`
	Email                   string     `json:"email"`
	FullName                string     `json:"full_name"`
	InactivityThresholdDays int        `json:"inactivity_threshold_days"`
	LastActivityAt          time.Time  `json:"last_activity_at"`
	Status                  UserStatus `json:"status"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// InactiveSince reports whether the user has breached their inactivity
// threshold as of now.
func (u *User) InactiveSince(now time.Time) bool {
	threshold := time.Duration(u.InactivityThresholdDays) * 24 * time.Hour
	return now.Sub(u.LastActivityAt) > threshold
}

// RecordActivity moves the activity clock forward. It deliberately does not
// touch Status: a returning user must explicitly cancel in-flight claims so
// a nominee's submitted documents are never silently discarded.
func (u *User) RecordActivity(now time.Time) {
	if now.After(u.LastActivityAt) {
		u.LastActivityAt = now
		u.UpdatedAt = now
	}
}

// CanMarkInactive checks the transition into INACTIVITY_TRIGGERED.
func (u *User) CanMarkInactive() error {
	if !u.Status.CanTransitionTo(UserStatusInactivityTriggered) {
		return dErrors.Newf(dErrors.CodeInvalidState, "user %s cannot be marked inactive from %s", u.ID, u.Status)
	}
	return nil
}

// ApplyInactivityTriggered transitions the user after a threshold breach.
func (u *User) ApplyInactivityTriggered(now time.Time) {
	u.Status = UserStatusInactivityTriggered
	u.UpdatedAt = now
}

// ApplyReactivated returns the user to ACTIVE after an explicit claim
// cancellation.
func (u *User) ApplyReactivated(now time.Time) {
	u.Status = UserStatusActive
	u.UpdatedAt = now
}

func NewUser(userID id.UserID, email, fullName string, thresholdDays int, now time.Time) (*User, error) {
	if email == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "user email is required")
	}
	if thresholdDays <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "inactivity threshold must be positive")
	}
	return &User{
		ID:                      userID,
		Email:                   email,
		FullName:                fullName,
		InactivityThresholdDays: thresholdDays,
		LastActivityAt:          now,
		Status:                  UserStatusActive,
		CreatedAt:               now,
		UpdatedAt:               now,
	}, nil
}
