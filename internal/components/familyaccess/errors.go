package familyaccess

import "errors"

var (
	// ErrSelfReference is returned when an operation names the caller as its own counterpart.
	ErrSelfReference = errors.New("familyaccess: cannot target own account")
	// ErrDuplicatePending is returned when a pending request already exists for the pair.
	ErrDuplicatePending = errors.New("familyaccess: access request already pending")
	// ErrDuplicateGrant is returned when the requester already holds a grant from the owner.
	ErrDuplicateGrant = errors.New("familyaccess: access already granted")
	ErrNotFound       = errors.New("familyaccess: not found")
	ErrForbidden      = errors.New("familyaccess: forbidden")
	// ErrAlreadyResponded is returned for any transition attempt on a terminal request.
	ErrAlreadyResponded = errors.New("familyaccess: request already responded to")
	ErrExpired          = errors.New("familyaccess: invite token expired")
	// ErrTokenConsumed is returned when another account already redeemed the token.
	ErrTokenConsumed   = errors.New("familyaccess: invite token already used")
	ErrInvalidArgument = errors.New("familyaccess: invalid argument")
)
