package domain

import "errors"

// Sentinel errors shared by stores. Services map them to srvcerror values.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyMember     = errors.New("user is already a member")
	ErrInviteUnavailable = errors.New("invite code is expired or used up")
	ErrChallengeClosed   = errors.New("challenge no longer accepts members")
)
