package model

import "errors"

// Error taxonomy of the session authority. Credential and token errors are
// recoverable by the caller and never carry internal detail; Unavailable and
// Internal are surfaced distinctly so the request layer can pick a retry
// strategy.
var (
	// ErrInvalidCredentials covers both unknown identifier and password
	// mismatch so responses cannot be used for account enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTooManyAttempts is returned while a lockout is in effect for a key.
	ErrTooManyAttempts = errors.New("too many failed attempts")

	ErrTokenMalformed    = errors.New("token malformed")
	ErrBadSignature      = errors.New("token signature invalid")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenRevoked      = errors.New("token revoked")
	ErrUnknownKey        = errors.New("token signed with unknown key")
	ErrInsufficientScope = errors.New("insufficient scope")

	// ErrUnavailable signals an external store timeout or outage. Authorize
	// fails closed with this error, never open.
	ErrUnavailable = errors.New("dependency unavailable")

	ErrInternal = errors.New("internal error")
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIdentifierTaken is returned on registration conflicts.
	ErrIdentifierTaken = errors.New("identifier already taken")

	// ErrCacheMiss is returned by Cache.Get when the key is absent.
	ErrCacheMiss = errors.New("cache miss")
)
