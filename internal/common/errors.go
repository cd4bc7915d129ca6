// Package common defines shared constants and sentinel errors used across
// the server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrStoreFailure   = errors.New("store failure")

	// Validation errors.
	ErrValidation          = errors.New("validation error")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")

	// Credential store errors.
	ErrDuplicateEmail = errors.New("email already registered")
	ErrAuthFailure    = errors.New("invalid email or password")
	ErrUserNotFound   = errors.New("user not found")

	// Token codec errors.
	ErrBadSignature   = errors.New("token signature is invalid")
	ErrMalformedToken = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token expired")
	ErrWrongTokenType = errors.New("wrong token type")

	// Token lifecycle errors.
	ErrRevokedOrExpired = errors.New("refresh token revoked or expired")
	ErrTokenRevoked     = errors.New("token has been revoked")

	// Chat pipeline errors.
	ErrChatUnavailable = errors.New("chat backend unavailable")
)
