// Package familyaccess implements consent-based sharing of medical records
// between accounts. An owner grants a viewer read access either by accepting
// a direct access request or by handing out a single-use invite token whose
// redemption files that request on the viewer's behalf.
//
// All durable state lives behind the Ledger interface. Workflows are
// stateless and safe for concurrent use; uniqueness and single-use rules are
// enforced by the ledger, not by in-process locking.
package familyaccess

import (
	"time"
)

// RequestStatus is the lifecycle state of an AccessRequest.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// AccessRequest asks an owner to let the requester view their records.
type AccessRequest struct {
	ID          string        `json:"id"`
	RequesterID string        `json:"requester_user_id"`
	OwnerID     string        `json:"owner_user_id"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	RespondedAt *time.Time    `json:"responded_at,omitempty"`
}

// Grant is a durable authorization for ViewerID to read OwnerID's records.
type Grant struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_user_id"`
	ViewerID  string    `json:"viewer_user_id"`
	CanView   bool      `json:"can_view_medical_records"`
	CreatedAt time.Time `json:"created_at"`
}

// InviteToken is a single-use, time-limited credential issued by an owner.
type InviteToken struct {
	Token     string     `json:"invite_token"`
	OwnerID   string     `json:"owner_user_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	IsUsed    bool       `json:"is_used"`
	UsedByID  *string    `json:"used_by_user_id,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// IsExpired reports whether the token is past its expiry at now.
func (t *InviteToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// UsedBy returns the redeeming user id, or "" when unused.
func (t *InviteToken) UsedBy() string {
	if t.UsedByID == nil {
		return ""
	}
	return *t.UsedByID
}

// OutcomeKind tags a successful redemption.
type OutcomeKind string

const (
	// OutcomeCreated means this call consumed the token and filed a new request.
	OutcomeCreated OutcomeKind = "created"
	// OutcomeAlreadyRedeemed means the token was already consumed by the same
	// requester, or the relationship it would create already exists.
	OutcomeAlreadyRedeemed OutcomeKind = "already_redeemed"
)

// RedemptionOutcome is the result of a successful Redeem.
type RedemptionOutcome struct {
	Kind OutcomeKind `json:"outcome"`
	// Request is set only when Kind is OutcomeCreated.
	Request *AccessRequest `json:"request,omitempty"`
	Token   *InviteToken   `json:"-"`
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
