package models

import "time"

// TokenKind distinguishes short-lived capability tokens.
type TokenKind string

const (
	// TokenStream authorizes range requests of one playback session.
	TokenStream TokenKind = "stream"
	// TokenDownload grants its owner temporary download capability.
	TokenDownload TokenKind = "download"
)

// TempToken is a persisted short-lived token. SessionUUID is required for
// stream tokens; FileID optionally narrows a stream token to one file.
type TempToken struct {
	Token       string
	UserID      string
	Kind        TokenKind
	SessionUUID string
	FileID      string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
