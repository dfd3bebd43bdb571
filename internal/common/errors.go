// Package common defines shared constants and sentinel errors used across
// the ingestion service layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Input errors: a data URL that cannot be decoded, a payload that is
	// not an object, a missing required field.
	ErrMalformedInput = errors.New("malformed input")

	// Upload policy errors (content type not allowed, size over the limit).
	ErrPolicyViolation = errors.New("policy violation")

	// Operation requested from the wrong storage mode.
	ErrStorageMode = errors.New("operation not supported by storage mode")

	// A sent report cannot go back to draft.
	ErrStatusTransition = errors.New("invalid status transition")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
