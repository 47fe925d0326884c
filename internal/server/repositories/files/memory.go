package files

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// MemoryRepository keeps file records in process memory. Every method holds
// one mutex, so ConsumeOneTimeLink is atomic like its SQL counterpart.
type MemoryRepository struct {
	mu    sync.Mutex
	files map[string]*models.File
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{files: make(map[string]*models.File)}
}

func clone(f *models.File) *models.File {
	c := *f
	c.IV = append([]byte(nil), f.IV...)
	return &c
}

func (r *MemoryRepository) Create(_ context.Context, f *models.File) error {
	if !f.Locator.Valid() {
		return fmt.Errorf("%w: file must have exactly one locator", common.ErrorValidation)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[f.ID]; ok {
		return fmt.Errorf("%w: duplicate file id %s", common.ErrorValidation, f.ID)
	}
	r.files[f.ID] = clone(f)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(f), nil
}

func (r *MemoryRepository) GetByIDAndOwner(_ context.Context, id, ownerID string) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.owned(id, ownerID)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(f), nil
}

func (r *MemoryRepository) GetPublic(_ context.Context, id, link string) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok || f.Share.LinkType == models.LinkNone || f.Share.Link != link {
		return nil, common.ErrorNotFound
	}
	return clone(f), nil
}

func (r *MemoryRepository) List(_ context.Context, ownerID string, opts models.ListOptions) ([]*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	parent := opts.ParentID
	if parent == "" && opts.Search == "" {
		parent = RootFolder
	}
	search := strings.ToLower(opts.Search)

	var result []*models.File
	for _, f := range r.files {
		if f.OwnerID != ownerID {
			continue
		}
		if parent != "" && f.ParentID != parent {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(f.Filename), search) {
			continue
		}
		result = append(result, clone(f))
	}

	sort.Slice(result, less(result, opts.Sort))

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

func less(fs []*models.File, order models.SortOrder) func(i, j int) bool {
	return func(i, j int) bool {
		a, b := fs[i], fs[j]
		switch order {
		case models.SortDateAsc:
			if !a.UploadedAt.Equal(b.UploadedAt) {
				return a.UploadedAt.Before(b.UploadedAt)
			}
			return a.ID < b.ID
		case models.SortNameAsc:
			an, bn := strings.ToLower(a.Filename), strings.ToLower(b.Filename)
			if an != bn {
				return an < bn
			}
			return a.ID < b.ID
		case models.SortNameDesc:
			an, bn := strings.ToLower(a.Filename), strings.ToLower(b.Filename)
			if an != bn {
				return an > bn
			}
			return a.ID > b.ID
		default:
			if !a.UploadedAt.Equal(b.UploadedAt) {
				return a.UploadedAt.After(b.UploadedAt)
			}
			return a.ID > b.ID
		}
	}
}

func (r *MemoryRepository) Rename(_ context.Context, id, ownerID, filename string) error {
	return r.update(id, ownerID, func(f *models.File) { f.Filename = filename })
}

func (r *MemoryRepository) Move(_ context.Context, id, ownerID, parentID, parentPath string) error {
	return r.update(id, ownerID, func(f *models.File) {
		f.ParentID = parentID
		f.ParentPath = parentPath
	})
}

func (r *MemoryRepository) SetLink(_ context.Context, id, ownerID string, linkType models.LinkType, link string) error {
	return r.update(id, ownerID, func(f *models.File) {
		f.Share = models.ShareState{LinkType: linkType, Link: link}
	})
}

func (r *MemoryRepository) RemoveLink(_ context.Context, id, ownerID string) error {
	return r.update(id, ownerID, func(f *models.File) { f.Share = models.ShareState{} })
}

func (r *MemoryRepository) ConsumeOneTimeLink(_ context.Context, id, link string) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok || f.Share.LinkType != models.LinkOneTime || f.Share.Link != link || f.Share.Consumed {
		return nil, common.ErrorNotFound
	}
	f.Share.Consumed = true
	return clone(f), nil
}

func (r *MemoryRepository) Delete(_ context.Context, id, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owned(id, ownerID); !ok {
		return common.ErrorNotFound
	}
	delete(r.files, id)
	return nil
}

func (r *MemoryRepository) update(id, ownerID string, fn func(*models.File)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.owned(id, ownerID)
	if !ok {
		return common.ErrorNotFound
	}
	fn(f)
	return nil
}

func (r *MemoryRepository) owned(id, ownerID string) (*models.File, bool) {
	f, ok := r.files[id]
	if !ok || f.OwnerID != ownerID {
		return nil, false
	}
	return f, true
}
