package challenge

import (
	"net/http"

	"github.com/programme-lv/streaks/srvcerror"
)

const ErrCodeChallengeNotFound = "challenge_not_found"

func ErrChallengeNotFound() *srvcerror.Error {
	return srvcerror.New(ErrCodeChallengeNotFound, "challenge not found").
		SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeChallengePrivate = "challenge_private"

func ErrChallengePrivate() *srvcerror.Error {
	return srvcerror.New(ErrCodeChallengePrivate, "private challenges can only be joined with an invite code").
		SetHttpStatusCode(http.StatusForbidden)
}

const ErrCodeChallengeClosed = "challenge_closed"

func ErrChallengeClosed() *srvcerror.Error {
	return srvcerror.New(ErrCodeChallengeClosed, "challenge no longer accepts members").
		SetHttpStatusCode(http.StatusConflict)
}

const ErrCodeAlreadyMember = "already_member"

func ErrAlreadyMember() *srvcerror.Error {
	return srvcerror.New(ErrCodeAlreadyMember, "you are already a member of this challenge").
		SetHttpStatusCode(http.StatusConflict)
}

const ErrCodeInviteNotFound = "invite_not_found"

func ErrInviteNotFound() *srvcerror.Error {
	return srvcerror.New(ErrCodeInviteNotFound, "invite code not found").
		SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeInviteExhausted = "invite_exhausted"

func ErrInviteExhausted() *srvcerror.Error {
	return srvcerror.New(ErrCodeInviteExhausted, "invite code is expired or has no uses left").
		SetHttpStatusCode(http.StatusGone)
}
