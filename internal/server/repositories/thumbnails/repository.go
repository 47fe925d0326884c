// Package thumbnails stores metadata of encrypted previews.
package thumbnails

import (
	"context"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, t *models.Thumbnail) error
	// GetByID returns the owner's thumbnail or common.ErrorNotFound.
	GetByID(ctx context.Context, id, ownerID string) (*models.Thumbnail, error)
	// Delete is a no-op for unknown ids.
	Delete(ctx context.Context, id string) error
}
