package common

const (
	// AccessTokenCookieName carries the principal access token when the
	// Authorization header is absent.
	AccessTokenCookieName = "access-token"

	// StreamTokenCookieName carries the ephemeral video streaming token.
	StreamTokenCookieName = "video-access-token"

	// SessionUUIDHeaderName identifies the playback session a streaming
	// token is bound to.
	SessionUUIDHeaderName = "uuid"

	// LinkTokenBytes is the amount of entropy in share link tokens.
	LinkTokenBytes = 32
)
