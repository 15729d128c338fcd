// Package common defines shared constants and sentinel errors used across
// the sync engine. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal         = errors.New("internal error")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidArgument marks malformed caller input, such as a negative
	// sync cursor or a negative share-link lifetime.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState marks a client claiming a version the server has not
	// assigned yet. It indicates a client-side bug and is never retried.
	ErrInvalidState = errors.New("invalid state")

	// Share-token lifecycle errors. Each failure is distinct so callers can
	// tell an expired link from a revoked one from a mistyped one.
	ErrTokenNotFound = errors.New("share token not found")
	ErrTokenExpired  = errors.New("share token expired")
	ErrTokenRevoked  = errors.New("share token revoked")

	// Auth errors (invalid or malformed bearer credential).
	ErrInvalidToken = errors.New("invalid token")
)
