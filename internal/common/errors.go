// Package common defines shared constants and sentinel errors used across
// the your-tube server. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")
	ErrorConflict     = errors.New("conflict")
	ErrorUpstream     = errors.New("upstream failure")
	ErrorRateLimited  = errors.New("too many requests")

	// Auth errors. All of them match ErrorUnauthorized.
	ErrInvalidToken         = fmt.Errorf("%w: invalid token", ErrorUnauthorized)
	ErrTokenExpired         = fmt.Errorf("%w: token expired", ErrorUnauthorized)
	ErrRefreshTokenMismatch = fmt.Errorf("%w: refresh token mismatch", ErrorUnauthorized)
	ErrInvalidCredentials   = fmt.Errorf("%w: invalid credentials", ErrorUnauthorized)
	ErrAccountGone          = fmt.Errorf("%w: account no longer exists", ErrorUnauthorized)
)

// Error is a sentinel kind paired with a message that is safe to show to
// the caller. errors.Is(err, Kind) holds for every Error.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Message returns the caller-facing text of err, or fallback when err does
// not carry one.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return fallback
}
