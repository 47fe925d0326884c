package files

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

const fileColumns = `id, owner_id, parent_id, parent_path, filename, size, uploaded_at, iv,
	thumbnail_id, is_video, file_path, object_key, link_type, link, link_consumed`

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*models.File, error) {
	var (
		f                          models.File
		thumbID, fpath, okey, link sql.NullString
		linkType                   string
	)
	if err := row.Scan(&f.ID, &f.OwnerID, &f.ParentID, &f.ParentPath, &f.Filename, &f.Size, &f.UploadedAt, &f.IV,
		&thumbID, &f.IsVideo, &fpath, &okey, &linkType, &link, &f.Share.Consumed); err != nil {
		return nil, err
	}
	f.ThumbnailID = thumbID.String
	f.Locator = models.Locator{FilePath: fpath.String, ObjectKey: okey.String}
	f.Share.LinkType = models.LinkType(linkType)
	f.Share.Link = link.String
	return &f, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Create inserts a new file record.
func (r *PostgresRepository) Create(ctx context.Context, f *models.File) error {
	if !f.Locator.Valid() {
		return fmt.Errorf("%w: file must have exactly one locator", common.ErrorValidation)
	}
	query := `
		INSERT INTO files (id, owner_id, parent_id, parent_path, filename, size, uploaded_at, iv,
			thumbnail_id, is_video, file_path, object_key, link_type, link, link_consumed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.OwnerID, f.ParentID, f.ParentPath, f.Filename, f.Size, f.UploadedAt, f.IV,
		nullString(f.ThumbnailID), f.IsVideo, nullString(f.Locator.FilePath), nullString(f.Locator.ObjectKey),
		string(f.Share.LinkType), nullString(f.Share.Link), f.Share.Consumed)
	if err != nil {
		return fmt.Errorf("db error: %w", dbx.MapError(err))
	}
	return nil
}

// GetByID returns the file regardless of owner.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id=$1`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", dbx.MapError(err))
	}
	return f, nil
}

// GetByIDAndOwner returns the file only when ownerID owns it.
func (r *PostgresRepository) GetByIDAndOwner(ctx context.Context, id, ownerID string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id=$1 AND owner_id=$2`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", dbx.MapError(err))
	}
	return f, nil
}

func (r *PostgresRepository) GetPublic(ctx context.Context, id, link string) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id=$1 AND link=$2 AND link_type<>''`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, id, link))
	if err != nil {
		return nil, fmt.Errorf("failed to select shared file: %w", dbx.MapError(err))
	}
	return f, nil
}

// List returns the owner's files filtered and ordered by opts.
func (r *PostgresRepository) List(ctx context.Context, ownerID string, opts models.ListOptions) ([]*models.File, error) {
	query, args := buildListQuery(ownerID, opts)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", dbx.MapError(err))
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func buildListQuery(ownerID string, opts models.ListOptions) (string, []any) {
	var b strings.Builder
	args := []any{ownerID}

	b.WriteString(`SELECT ` + fileColumns + ` FROM files WHERE owner_id=$1`)

	switch {
	case opts.ParentID != "":
		args = append(args, opts.ParentID)
		fmt.Fprintf(&b, " AND parent_id=$%d", len(args))
	case opts.Search == "":
		args = append(args, RootFolder)
		fmt.Fprintf(&b, " AND parent_id=$%d", len(args))
	}

	if opts.Search != "" {
		args = append(args, "%"+escapeLike(opts.Search)+"%")
		fmt.Fprintf(&b, ` AND filename ILIKE $%d ESCAPE '\'`, len(args))
	}

	switch opts.Sort {
	case models.SortDateAsc:
		b.WriteString(" ORDER BY uploaded_at ASC, id ASC")
	case models.SortNameAsc:
		b.WriteString(" ORDER BY lower(filename) ASC, id ASC")
	case models.SortNameDesc:
		b.WriteString(" ORDER BY lower(filename) DESC, id DESC")
	default:
		b.WriteString(" ORDER BY uploaded_at DESC, id DESC")
	}

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Rename changes the display name only.
func (r *PostgresRepository) Rename(ctx context.Context, id, ownerID, filename string) error {
	query := `UPDATE files SET filename=$3 WHERE id=$1 AND owner_id=$2`
	return r.execOne(ctx, "rename", query, id, ownerID, filename)
}

// Move changes the parent fields only.
func (r *PostgresRepository) Move(ctx context.Context, id, ownerID, parentID, parentPath string) error {
	query := `UPDATE files SET parent_id=$3, parent_path=$4 WHERE id=$1 AND owner_id=$2`
	return r.execOne(ctx, "move", query, id, ownerID, parentID, parentPath)
}

// SetLink installs a fresh share link; a one-time link starts unconsumed.
func (r *PostgresRepository) SetLink(ctx context.Context, id, ownerID string, linkType models.LinkType, link string) error {
	query := `UPDATE files SET link_type=$3, link=$4, link_consumed=false WHERE id=$1 AND owner_id=$2`
	return r.execOne(ctx, "set link", query, id, ownerID, string(linkType), link)
}

func (r *PostgresRepository) RemoveLink(ctx context.Context, id, ownerID string) error {
	query := `UPDATE files SET link_type='', link=NULL, link_consumed=false WHERE id=$1 AND owner_id=$2`
	return r.execOne(ctx, "remove link", query, id, ownerID)
}

// ConsumeOneTimeLink is a compare-and-set on link_consumed.
func (r *PostgresRepository) ConsumeOneTimeLink(ctx context.Context, id, link string) (*models.File, error) {
	query := `
		UPDATE files SET link_consumed=true
		WHERE id=$1 AND link_type='one' AND link=$2 AND link_consumed=false
		RETURNING ` + fileColumns
	f, err := scanFile(r.db.QueryRowContext(ctx, query, id, link))
	if err != nil {
		return nil, fmt.Errorf("failed to consume link: %w", dbx.MapError(err))
	}
	return f, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id, ownerID string) error {
	query := `DELETE FROM files WHERE id=$1 AND owner_id=$2`
	return r.execOne(ctx, "delete", query, id, ownerID)
}

// execOne runs an update that must touch exactly one row.
func (r *PostgresRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, dbx.MapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
