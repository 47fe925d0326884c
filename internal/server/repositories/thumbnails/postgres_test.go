package thumbnails

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)INSERT INTO thumbnails \(id, owner_id, iv, size, file_path, object_key\)`).
		WithArgs("t1", "u1", []byte("iv"), int64(99), nil, "thumbs/t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.Thumbnail{
		ID: "t1", OwnerID: "u1", IV: []byte("iv"), Size: 99, Locator: models.Locator{ObjectKey: "thumbs/t1"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_NoLocator(t *testing.T) {
	repo, _ := newRepoWithMock(t)

	err := repo.Create(context.Background(), &models.Thumbnail{ID: "t1"})
	assert.ErrorIs(t, err, common.ErrorValidation)
}

func TestGetByID(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "owner_id", "iv", "size", "file_path", "object_key", "created_at"}).
		AddRow("t1", "u1", []byte("iv"), int64(99), "2024/1/1/t1", nil, at)
	mock.ExpectQuery(`FROM thumbnails\s+WHERE id = \$1 AND owner_id = \$2`).
		WithArgs("t1", "u1").
		WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, models.Locator{FilePath: "2024/1/1/t1"}, got.Locator)
	assert.Equal(t, int64(99), got.Size)
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM thumbnails`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "t1", "u1")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDelete_Error(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`DELETE FROM thumbnails WHERE id = \$1`).
		WithArgs("t1").
		WillReturnError(errors.New("db down"))

	err := repo.Delete(context.Background(), "t1")
	assert.ErrorContains(t, err, "db down")
}
