// Package common defines shared constants and sentinel errors used across
// the token, store and transport layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound       = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrStoreUnavailable = errors.New("store unavailable")

	// Service-level errors.
	ErrorInternal         = errors.New("internal error")
	ErrorUnauthorized     = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token errors.
	ErrInvalidTokenFormat = errors.New("invalid token format")
	ErrEncoding           = errors.New("token encoding error")
	ErrStoredTokenCorrupt = errors.New("stored token is corrupt")

	// Configuration errors.
	ErrInvalidSalt = errors.New("invalid salt encoding")
)
