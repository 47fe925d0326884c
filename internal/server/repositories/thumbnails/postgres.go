package thumbnails

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.Thumbnail) error {
	if !t.Locator.Valid() {
		return fmt.Errorf("%w: thumbnail must have exactly one locator", common.ErrorValidation)
	}
	query := `
		INSERT INTO thumbnails (id, owner_id, iv, size, file_path, object_key)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.OwnerID, t.IV, t.Size,
		sql.NullString{String: t.Locator.FilePath, Valid: t.Locator.FilePath != ""},
		sql.NullString{String: t.Locator.ObjectKey, Valid: t.Locator.ObjectKey != ""})
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.MapError(err))
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id, ownerID string) (*models.Thumbnail, error) {
	query := `
		SELECT id, owner_id, iv, size, file_path, object_key, created_at
		FROM thumbnails
		WHERE id = $1 AND owner_id = $2
	`
	var (
		t           models.Thumbnail
		fpath, okey sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id, ownerID).
		Scan(&t.ID, &t.OwnerID, &t.IV, &t.Size, &fpath, &okey, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to select thumbnail: %w", dbx.MapError(err))
	}
	t.Locator = models.Locator{FilePath: fpath.String, ObjectKey: okey.String}
	return &t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM thumbnails WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
