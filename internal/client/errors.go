package client

import (
	"errors"
	"fmt"
)

// ErrorKind classifies upstream failures. The kind, not the message, drives HTTP mapping and retries.
type ErrorKind string

const (
	KindInvalidLocation     ErrorKind = "invalid_location"
	KindRateLimitExceeded   ErrorKind = "rate_limit_exceeded"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindInvalidCredentials  ErrorKind = "invalid_credentials"
)

// Retryable reports whether a caller may re-issue the request later.
// This package never retries on its own.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimitExceeded || k == KindUpstreamUnavailable
}

// Error is the typed error returned by the geocoder and forecast fetcher.
type Error struct {
	Kind       ErrorKind
	StatusCode int // upstream HTTP status, 0 for transport failures
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: HTTP %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrRateLimitExceeded) works
// regardless of status code or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable is the retry hint carried by every typed error.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

var (
	ErrInvalidLocation     = &Error{Kind: KindInvalidLocation}
	ErrRateLimitExceeded   = &Error{Kind: KindRateLimitExceeded}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrInvalidCredentials  = &Error{Kind: KindInvalidCredentials}
)

// KindOf returns the ErrorKind carried by err, or "" when err is not a typed client error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is a typed client error with a retryable kind.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

func newError(kind ErrorKind, status int, err error) *Error {
	return &Error{Kind: kind, StatusCode: status, Err: err}
}
