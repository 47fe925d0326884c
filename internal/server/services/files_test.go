package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/thumbnail"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileService_DeleteIsIdempotent(t *testing.T) {
	e := newTestEnv(t, thumbnail.New(64, 0, fakeFrames{}))
	ctx := context.Background()

	f := e.upload(t, alice, "clip.mp4", []byte("video bytes"))
	require.True(t, f.HasThumbnail())
	require.Len(t, e.storedObjects(t), 2)

	session := uuid.NewString()
	token, _, err := e.tokens.IssueStreamToken(ctx, alice, session, f.ID)
	require.NoError(t, err)

	// someone else cannot delete it
	require.NoError(t, e.files.Delete(ctx, bob, f.ID))
	_, err = e.files.GetInfo(ctx, alice, f.ID)
	require.NoError(t, err)

	require.NoError(t, e.files.Delete(ctx, alice, f.ID))
	require.NoError(t, e.files.Delete(ctx, alice, f.ID))
	require.NoError(t, e.files.Delete(ctx, alice, uuid.NewString()))

	assert.Empty(t, e.storedObjects(t))

	_, err = e.files.GetInfo(ctx, alice, f.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = e.rm.Thumbnails(nil).GetByID(ctx, f.ThumbnailID, alice.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = e.tokens.ValidateStreamToken(ctx, token, session, f.ID)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	_, err = e.retrieval.Download(ctx, alice, f.ID, "")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestFileService_RenameAndMove(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	f := e.upload(t, alice, "draft.txt", []byte("text"))

	require.NoError(t, e.files.Rename(ctx, alice, f.ID, " final.txt "))
	require.NoError(t, e.files.Move(ctx, alice, f.ID, "folder-1", "/docs"))

	got, err := e.files.GetInfo(ctx, alice, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "final.txt", got.Filename)
	assert.Equal(t, "folder-1", got.ParentID)
	assert.Equal(t, "/docs", got.ParentPath)
	assert.Equal(t, f.IV, got.IV)
	assert.Equal(t, f.Locator, got.Locator)

	assert.ErrorIs(t, e.files.Rename(ctx, alice, f.ID, ""), common.ErrorValidation)
	assert.ErrorIs(t, e.files.Rename(ctx, alice, f.ID, "a/b"), common.ErrorValidation)
	assert.ErrorIs(t, e.files.Rename(ctx, bob, f.ID, "x"), common.ErrorNotFound)
	assert.ErrorIs(t, e.files.Move(ctx, bob, f.ID, "", ""), common.ErrorNotFound)

	require.NoError(t, e.files.Move(ctx, alice, f.ID, "", ""))
	got, err = e.files.GetInfo(ctx, alice, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "/", got.ParentID)
}

func TestFileService_Lists(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 14; i++ {
		e.uploads.now = func() time.Time { return time.Date(2025, 1, 1, 0, i, 0, 0, time.UTC) }
		name := []string{"Alpha.txt", "beta.txt", "gamma.txt"}[i%3]
		ids = append(ids, e.upload(t, alice, name, []byte{byte(i)}).ID)
	}
	e.upload(t, bob, "alpha-bob.txt", []byte("b"))

	quick, err := e.files.QuickList(ctx, alice)
	require.NoError(t, err)
	require.Len(t, quick, 12)
	assert.Equal(t, ids[13], quick[0].ID)

	page, err := e.files.List(ctx, alice, models.ListOptions{Sort: models.SortDateAsc, Limit: 5, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 5)
	assert.Equal(t, ids[2], page[0].ID)

	byName, err := e.files.List(ctx, alice, models.ListOptions{Sort: models.SortNameDesc})
	require.NoError(t, err)
	require.Len(t, byName, 14)
	assert.Equal(t, "gamma.txt", byName[0].Filename)

	_, err = e.files.List(ctx, alice, models.ListOptions{Limit: -1})
	assert.ErrorIs(t, err, common.ErrorValidation)

	require.NoError(t, e.files.Move(ctx, alice, ids[0], "sub", "/sub"))
	sub, err := e.files.List(ctx, alice, models.ListOptions{ParentID: "sub"})
	require.NoError(t, err)
	require.Len(t, sub, 1)

	suggested, err := e.files.SuggestedList(ctx, alice, "ALPHA")
	require.NoError(t, err)
	assert.Len(t, suggested, 5)
	for _, f := range suggested {
		assert.Equal(t, alice.ID, f.OwnerID)
	}

	none, err := e.files.SuggestedList(ctx, alice, "  ")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileService_PublicInfo(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	f := e.upload(t, alice, "a.txt", []byte("x"))

	link, err := e.tokens.MakeOneTimePublic(ctx, alice, f.ID)
	require.NoError(t, err)

	info, err := e.files.GetPublicInfo(ctx, f.ID, link)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", info.Filename)

	// info does not consume
	c, err := e.retrieval.PublicDownload(ctx, f.ID, link, "")
	require.NoError(t, err)
	_ = c.Body.Close()

	_, err = e.files.GetPublicInfo(ctx, f.ID, link)
	assert.ErrorIs(t, err, common.ErrLinkConsumed)
}

func TestFileService_SendShareEmail(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	f := e.upload(t, alice, "a.txt", []byte("x"))
	link, err := e.tokens.MakePublic(ctx, alice, f.ID)
	require.NoError(t, err)

	require.NoError(t, e.files.SendShareEmail(ctx, alice, f.ID, "Bob <bob@example.com>"))
	require.Len(t, e.notifier.events, 1)
	assert.Equal(t, "bob@example.com", e.notifier.events[0].Contact)
	assert.Equal(t, f.ID, e.notifier.events[0].FileID)
	assert.Equal(t, link, e.notifier.events[0].Link)

	assert.ErrorIs(t, e.files.SendShareEmail(ctx, alice, f.ID, "not an address"), common.ErrorValidation)
	assert.ErrorIs(t, e.files.SendShareEmail(ctx, bob, f.ID, "bob@example.com"), common.ErrorNotFound)
	assert.Len(t, e.notifier.events, 1)
}
