package files

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, r *MemoryRepository, id, owner, name string, at time.Time) {
	t.Helper()
	require.NoError(t, r.Create(context.Background(), &models.File{
		ID: id, OwnerID: owner, ParentID: RootFolder, ParentPath: RootFolder, Filename: name,
		UploadedAt: at, IV: []byte("iv"), Locator: models.Locator{ObjectKey: id},
	}))
}

func TestMemoryRepository_OwnerScoping(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r, "f1", "u1", "a.txt", time.Now())
	ctx := context.Background()

	_, err := r.GetByIDAndOwner(ctx, "f1", "u2")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	assert.ErrorIs(t, r.Rename(ctx, "f1", "u2", "x"), common.ErrorNotFound)
	assert.ErrorIs(t, r.Delete(ctx, "f1", "u2"), common.ErrorNotFound)

	require.NoError(t, r.Rename(ctx, "f1", "u1", "b.txt"))
	got, err := r.GetByID(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "b.txt", got.Filename)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r, "f1", "u1", "a.txt", time.Now())

	got, err := r.GetByID(context.Background(), "f1")
	require.NoError(t, err)
	got.Filename = "mutated"
	got.IV[0] = 'X'

	again, err := r.GetByID(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", again.Filename)
	assert.Equal(t, []byte("iv"), again.IV)
}

func TestMemoryRepository_ListSortAndPage(t *testing.T) {
	r := NewMemoryRepository()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, r, "f1", "u1", "Charlie.txt", base)
	seed(t, r, "f2", "u1", "alpha.txt", base.Add(time.Hour))
	seed(t, r, "f3", "u1", "bravo.txt", base.Add(2*time.Hour))
	seed(t, r, "f4", "u2", "alpha.txt", base)
	ctx := context.Background()

	ids := func(fs []*models.File) []string {
		var out []string
		for _, f := range fs {
			out = append(out, f.ID)
		}
		return out
	}

	got, err := r.List(ctx, "u1", models.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"f3", "f2", "f1"}, ids(got))

	got, err = r.List(ctx, "u1", models.ListOptions{Sort: models.SortNameAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{"f2", "f3", "f1"}, ids(got))

	got, err = r.List(ctx, "u1", models.ListOptions{Sort: models.SortDateAsc, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"f2"}, ids(got))

	got, err = r.List(ctx, "u1", models.ListOptions{Search: "ALPHA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"f2"}, ids(got))

	got, err = r.List(ctx, "u1", models.ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryRepository_MoveAndLinks(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r, "f1", "u1", "a.txt", time.Now())
	ctx := context.Background()

	require.NoError(t, r.Move(ctx, "f1", "u1", "p1", "/docs"))
	got, err := r.List(ctx, "u1", models.ListOptions{ParentID: "p1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/docs", got[0].ParentPath)

	require.NoError(t, r.SetLink(ctx, "f1", "u1", models.LinkPublic, "tok"))
	_, err = r.GetPublic(ctx, "f1", "tok")
	require.NoError(t, err)
	_, err = r.GetPublic(ctx, "f1", "other")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = r.ConsumeOneTimeLink(ctx, "f1", "tok")
	assert.ErrorIs(t, err, common.ErrorNotFound, "public links are not consumable")

	require.NoError(t, r.RemoveLink(ctx, "f1", "u1"))
	_, err = r.GetPublic(ctx, "f1", "tok")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMemoryRepository_ConsumeOneTimeLinkOnce(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r, "f1", "u1", "a.txt", time.Now())
	ctx := context.Background()
	require.NoError(t, r.SetLink(ctx, "f1", "u1", models.LinkOneTime, "tok"))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.ConsumeOneTimeLink(ctx, "f1", "tok"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())

	got, err := r.GetPublic(ctx, "f1", "tok")
	require.NoError(t, err)
	assert.True(t, got.Share.Consumed)
}

func TestMemoryRepository_CreateRejectsDuplicates(t *testing.T) {
	r := NewMemoryRepository()
	seed(t, r, "f1", "u1", "a.txt", time.Now())

	err := r.Create(context.Background(), &models.File{ID: "f1", Locator: models.Locator{FilePath: "p"}})
	assert.ErrorIs(t, err, common.ErrorValidation)

	err = r.Create(context.Background(), &models.File{ID: "f2"})
	assert.ErrorIs(t, err, common.ErrorValidation)
}
