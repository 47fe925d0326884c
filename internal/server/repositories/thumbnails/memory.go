package thumbnails

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

type MemoryRepository struct {
	mu    sync.Mutex
	items map[string]models.Thumbnail
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]models.Thumbnail)}
}

func (r *MemoryRepository) Create(_ context.Context, t *models.Thumbnail) error {
	if !t.Locator.Valid() {
		return fmt.Errorf("%w: thumbnail must have exactly one locator", common.ErrorValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[t.ID] = *t
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id, ownerID string) (*models.Thumbnail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.items[id]
	if !ok || t.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.items, id)
	return nil
}
