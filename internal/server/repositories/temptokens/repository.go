// Package temptokens declares the repository contract for short-lived
// stream and download tokens.
package temptokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// Repository defines operations for issuing, looking up and revoking temporary tokens.
type Repository interface {
	// Create stores a new token.
	Create(ctx context.Context, t *models.TempToken) error

	// Find looks up a token of the given kind. Implementations return
	// common.ErrorNotFound when it is absent; expiry is checked by the caller.
	Find(ctx context.Context, token string, kind models.TokenKind) (*models.TempToken, error)

	// Delete revokes the user's token. Deleting a non-existent token is not an error.
	Delete(ctx context.Context, userID, token string) error

	// DeleteByFile revokes every token scoped to fileID.
	DeleteByFile(ctx context.Context, fileID string) error

	// DeleteExpired purges tokens that expired before now and reports how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
