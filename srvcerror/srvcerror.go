package srvcerror

import "net/http"

type Error struct {
	errorCode  string
	msgToUser  string // public
	dbgInfoErr error  // private, for debugging

	httpStatus int // optional, for HTTP responses
}

func (e *Error) Error() string {
	return e.msgToUser
}

func (e *Error) ErrorCode() string {
	return e.errorCode
}

func (e *Error) DebugInfo() error {
	return e.dbgInfoErr
}

// Unwrap exposes the debug error so errors.Is sees through service errors.
func (e *Error) Unwrap() error {
	return e.dbgInfoErr
}

// Is matches any service error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.errorCode == e.errorCode
}

func (e *Error) SetDebug(err error) *Error {
	e.dbgInfoErr = err
	return e
}

func (e *Error) HttpStatusCode() int {
	if e.httpStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.httpStatus
}

func (e *Error) SetHttpStatusCode(code int) *Error {
	e.httpStatus = code
	return e
}

func New(errorCode string, msgToUser string) *Error {
	return &Error{
		errorCode: errorCode,
		msgToUser: msgToUser,
	}
}

const ErrCodeInternalServerError = "internal_server_error"

func ErrInternalSE() *Error {
	return New(
		ErrCodeInternalServerError,
		"internal server error",
	).SetHttpStatusCode(http.StatusInternalServerError)
}

const ErrCodeInvalidRequest = "invalid_request"

func ErrInvalidRequest(msg string) *Error {
	return New(ErrCodeInvalidRequest, msg).
		SetHttpStatusCode(http.StatusBadRequest)
}

const ErrCodeUnauthorized = "unauthorized"

func ErrUnauthorized() *Error {
	return New(ErrCodeUnauthorized, "authentication required").
		SetHttpStatusCode(http.StatusUnauthorized)
}

const ErrCodeForbidden = "forbidden"

func ErrForbidden() *Error {
	return New(ErrCodeForbidden, "insufficient permissions").
		SetHttpStatusCode(http.StatusForbidden)
}
