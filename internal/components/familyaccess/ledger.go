package familyaccess

import (
	"context"
	"time"
)

// Ledger persists access requests, grants and invite tokens.
//
// Implementations must enforce, at the storage level:
//   - at most one pending request per (requester, owner); CreateRequest
//     returns ErrDuplicatePending on violation
//   - at most one grant per (owner, viewer); UpsertGrant returns the existing row
//   - TransitionRequest and MarkInviteUsed as compare-and-swap writes
//
// Lookups that miss return ErrNotFound. Returned values are copies.
type Ledger interface {
	CreateRequest(ctx context.Context, req *AccessRequest) error
	GetRequest(ctx context.Context, id string) (*AccessRequest, error)
	// TransitionRequest moves a pending request to status at the given time.
	// It returns ErrAlreadyResponded when the request is no longer pending.
	TransitionRequest(ctx context.Context, id string, status RequestStatus, at time.Time) error
	// ListRequestsByOwner returns requests addressed to ownerID, newest first.
	// An empty status matches all.
	ListRequestsByOwner(ctx context.Context, ownerID string, status RequestStatus) ([]*AccessRequest, error)

	// UpsertGrant inserts g unless a grant for the pair exists, and returns the stored grant.
	UpsertGrant(ctx context.Context, g *Grant) (*Grant, error)
	GetGrant(ctx context.Context, ownerID, viewerID string) (*Grant, error)
	DeleteGrant(ctx context.Context, ownerID, viewerID string) error
	ListGrantsByOwner(ctx context.Context, ownerID string) ([]*Grant, error)
	ListGrantsByViewer(ctx context.Context, viewerID string) ([]*Grant, error)

	CreateInvite(ctx context.Context, t *InviteToken) error
	GetInvite(ctx context.Context, token string) (*InviteToken, error)
	// FindReusableInvite returns the newest unused token of ownerID that has
	// not expired at now.
	FindReusableInvite(ctx context.Context, ownerID string, now time.Time) (*InviteToken, error)
	// MarkInviteUsed flips is_used from false to true. It reports false,
	// without error, when the token was already used.
	MarkInviteUsed(ctx context.Context, token, usedBy string, at time.Time) (bool, error)

	// InTx runs fn inside a transaction. fn must use the Ledger it is given.
	InTx(ctx context.Context, fn func(tx Ledger) error) error
}
