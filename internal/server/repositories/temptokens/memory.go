package temptokens

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

type MemoryRepository struct {
	mu     sync.Mutex
	tokens map[string]models.TempToken
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tokens: make(map[string]models.TempToken)}
}

func (r *MemoryRepository) Create(_ context.Context, t *models.TempToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *t
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	r.tokens[t.Token] = c
	return nil
}

func (r *MemoryRepository) Find(_ context.Context, token string, kind models.TokenKind) (*models.TempToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok || t.Kind != kind {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r *MemoryRepository) Delete(_ context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tokens[token]; ok && t.UserID == userID {
		delete(r.tokens, token)
	}
	return nil
}

func (r *MemoryRepository) DeleteByFile(_ context.Context, fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, t := range r.tokens {
		if t.FileID == fileID {
			delete(r.tokens, k)
		}
	}
	return nil
}

func (r *MemoryRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, t := range r.tokens {
		if t.ExpiresAt.Before(now) {
			delete(r.tokens, k)
			n++
		}
	}
	return n, nil
}
