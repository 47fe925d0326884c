package files

import (
	"context"

	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// RootFolder is the parent id of files placed at the top level.
const RootFolder = "/"

// Repository persists file records. Lookups that find nothing, or find a
// file owned by someone else, return common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, f *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	GetByIDAndOwner(ctx context.Context, id, ownerID string) (*models.File, error)
	// GetPublic returns a file shared under link, consumed or not.
	GetPublic(ctx context.Context, id, link string) (*models.File, error)
	List(ctx context.Context, ownerID string, opts models.ListOptions) ([]*models.File, error)
	Rename(ctx context.Context, id, ownerID, filename string) error
	Move(ctx context.Context, id, ownerID, parentID, parentPath string) error
	SetLink(ctx context.Context, id, ownerID string, linkType models.LinkType, link string) error
	RemoveLink(ctx context.Context, id, ownerID string) error
	// ConsumeOneTimeLink flips an unconsumed one-time link to consumed in a
	// single conditional write and returns the file. It returns
	// common.ErrorNotFound when no unconsumed link matched.
	ConsumeOneTimeLink(ctx context.Context, id, link string) (*models.File, error)
	Delete(ctx context.Context, id, ownerID string) error
}
