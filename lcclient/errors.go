package lcclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindAuthExpired ErrorKind = "auth_expired"
	KindNotFound    ErrorKind = "not_found"
	KindTimeout     ErrorKind = "timeout"
	KindGeneric     ErrorKind = "generic"
)

// Error is the only error type returned by Client methods.
type Error struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("leetcode %s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable is false only for missing entities.
func (e *Error) Retryable() bool {
	return e.Kind != KindNotFound
}

func (e *Error) RateLimited() bool {
	return e.Kind == KindRateLimited
}

// KindOf returns the classified kind of err, or "" if err is not from this package.
func KindOf(err error) ErrorKind {
	var lcErr *Error
	if errors.As(err, &lcErr) {
		return lcErr.Kind
	}
	return ""
}

func kindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthExpired
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return KindTimeout
	}
	return KindGeneric
}

func classifyTransport(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Op: op, Err: err}
	}
	return &Error{Kind: KindGeneric, Op: op, Err: err}
}
