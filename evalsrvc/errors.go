package evalsrvc

import (
	"errors"
	"net/http"

	"github.com/programme-lv/streaks/srvcerror"
)

// ErrAlreadyResolved is returned when the day already has a final result.
// Job handlers treat it as success.
var ErrAlreadyResolved = errors.New("daily result already resolved")

const ErrCodeChallengeNotFound = "challenge_not_found"

func ErrChallengeNotFound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeChallengeNotFound,
		"challenge not found",
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeMemberNotFound = "member_not_found"

func ErrMemberNotFound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeMemberNotFound,
		"membership not found",
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeInvalidDate = "invalid_date"

func ErrInvalidDate() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeInvalidDate,
		"date must be formatted as YYYY-MM-DD",
	).SetHttpStatusCode(http.StatusBadRequest)
}

const ErrCodeDateInFuture = "date_in_future"

func ErrDateInFuture() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeDateInFuture,
		"cannot evaluate a day that has not started",
	).SetHttpStatusCode(http.StatusBadRequest)
}

const ErrCodeProblemNotFound = "problem_not_found"

func ErrProblemNotFound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeProblemNotFound,
		"problem not found",
	).SetHttpStatusCode(http.StatusNotFound)
}
