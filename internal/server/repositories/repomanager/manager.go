package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/files"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/temptokens"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/thumbnails"
)

// RepositoryManager vends repositories bound to a DBTX, so the same service
// code runs against a pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Thumbnails(db dbx.DBTX) thumbnails.Repository
	TempTokens(db dbx.DBTX) temptokens.Repository
}
