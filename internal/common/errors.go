// Package common defines shared constants, sentinel errors and small helpers
// used across GophDrive packages. Callers should use errors.Is to match the
// sentinel values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Share link errors.
	ErrLinkConsumed = errors.New("link already consumed")
	ErrLinkExpired  = errors.New("link expired")

	// Content errors. CorruptContent covers decryption and backend integrity
	// failures, BackendUnavailable a storage backend that stayed unreachable
	// after bounded retries.
	ErrCorruptContent     = errors.New("corrupt content")
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrAbortedUpload is returned when the client stream ends before the
	// upload completes. It is an expected outcome, not a server fault.
	ErrAbortedUpload = errors.New("upload aborted")

	// ErrInvalidRange marks a Range header that cannot be satisfied.
	ErrInvalidRange = errors.New("invalid range")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// IsAccessDenied reports whether err belongs to the class of errors that must
// be reported to callers as a single generic denial.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrorNotFound) ||
		errors.Is(err, ErrorUnauthorized) ||
		errors.Is(err, ErrLinkConsumed) ||
		errors.Is(err, ErrLinkExpired) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired)
}
