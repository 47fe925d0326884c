package temptokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
)

// PostgresRepository implements temporary token storage over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.TempToken) error {
	query := `
		INSERT INTO temp_tokens (token, user_id, kind, session_uuid, file_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	fileID := sql.NullString{String: t.FileID, Valid: t.FileID != ""}
	if _, err := r.db.ExecContext(ctx, query, t.Token, t.UserID, string(t.Kind), t.SessionUUID, fileID, t.ExpiresAt); err != nil {
		return fmt.Errorf("error performing sql request: %w", dbx.MapError(err))
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, token string, kind models.TokenKind) (*models.TempToken, error) {
	query := `
		SELECT token, user_id, kind, session_uuid, file_id, expires_at, created_at
		FROM temp_tokens
		WHERE token = $1 AND kind = $2
	`
	var (
		t      models.TempToken
		k      string
		fileID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, token, string(kind)).
		Scan(&t.Token, &t.UserID, &k, &t.SessionUUID, &fileID, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	t.Kind = models.TokenKind(k)
	t.FileID = fileID.String
	return &t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, token string) error {
	query := `
		DELETE FROM temp_tokens
		WHERE token = $1 AND user_id = $2
	`
	if _, err := r.db.ExecContext(ctx, query, token, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByFile(ctx context.Context, fileID string) error {
	query := `DELETE FROM temp_tokens WHERE file_id = $1`
	if _, err := r.db.ExecContext(ctx, query, fileID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM temp_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
