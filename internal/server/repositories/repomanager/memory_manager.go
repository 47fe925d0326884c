package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/files"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/temptokens"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/thumbnails"
)

// MemoryRepositoryManager serves one shared set of in-memory repositories
// and ignores the DBTX argument. Transactions are not isolated.
type MemoryRepositoryManager struct {
	files      *files.MemoryRepository
	thumbnails *thumbnails.MemoryRepository
	tempTokens *temptokens.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		files:      files.NewMemoryRepository(),
		thumbnails: thumbnails.NewMemoryRepository(),
		tempTokens: temptokens.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *MemoryRepositoryManager) Files(dbx.DBTX) files.Repository { return m.files }

func (m *MemoryRepositoryManager) Thumbnails(dbx.DBTX) thumbnails.Repository { return m.thumbnails }

func (m *MemoryRepositoryManager) TempTokens(dbx.DBTX) temptokens.Repository { return m.tempTokens }
