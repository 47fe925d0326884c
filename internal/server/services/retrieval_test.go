package services

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/thumbnail"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrieval_VideoEndToEnd(t *testing.T) {
	e := newTestEnv(t, thumbnail.New(320, 0, fakeFrames{}))
	ctx := context.Background()

	video := randomBytes(10_000_000, 42)
	f := e.upload(t, alice, "holiday.mp4", video)
	assert.True(t, f.HasThumbnail())
	assert.True(t, f.IsVideo)

	session := uuid.NewString()
	token, _, err := e.tokens.IssueStreamToken(ctx, alice, session, f.ID)
	require.NoError(t, err)

	c, err := e.retrieval.StreamVideo(ctx, token, session, f.ID, "bytes=5000000-5499999")
	require.NoError(t, err)
	assert.True(t, c.Range.Partial)
	assert.Equal(t, int64(500_000), c.Range.Length())
	assert.Equal(t, "bytes 5000000-5499999/10000000", c.Range.ContentRange())

	got := readAll(t, c)
	assert.Len(t, got, 500_000)
	assert.True(t, bytes.Equal(video[5_000_000:5_500_000], got))

	_, err = e.retrieval.StreamVideo(ctx, token, uuid.NewString(), f.ID, "bytes=0-1")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRetrieval_RandomRanges(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()

	data := randomBytes(1<<20+7, 9)
	f := e.upload(t, alice, "data.bin", data)
	size := int64(len(data))

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		off := r.Int63n(size)
		n := r.Int63n(size-off) + 1
		c, err := e.retrieval.Download(ctx, alice, f.ID, fmt.Sprintf("bytes=%d-%d", off, off+n-1))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data[off:off+n], readAll(t, c)), "range %d+%d", off, n)
	}

	t.Run("suffix", func(t *testing.T) {
		c, err := e.retrieval.Download(ctx, alice, f.ID, "bytes=-10")
		require.NoError(t, err)
		assert.Equal(t, data[size-10:], readAll(t, c))
	})

	t.Run("open ended", func(t *testing.T) {
		c, err := e.retrieval.Download(ctx, alice, f.ID, "bytes=1048570-")
		require.NoError(t, err)
		assert.Equal(t, data[1048570:], readAll(t, c))
	})

	t.Run("unsatisfiable", func(t *testing.T) {
		_, err := e.retrieval.Download(ctx, alice, f.ID, fmt.Sprintf("bytes=%d-", size))
		assert.ErrorIs(t, err, common.ErrInvalidRange)
	})
}

func TestRetrieval_DenialLooksTheSame(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	f := e.upload(t, alice, "private.txt", []byte("mine"))

	_, errOther := e.retrieval.Download(ctx, bob, f.ID, "")
	_, errMissing := e.retrieval.Download(ctx, bob, uuid.NewString(), "")

	assert.ErrorIs(t, errOther, common.ErrorNotFound)
	assert.ErrorIs(t, errMissing, common.ErrorNotFound)
	assert.Equal(t, errOther.Error(), errMissing.Error())
	assert.True(t, common.IsAccessDenied(errOther))
}

func TestRetrieval_OneTimeIgnoresRange(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	f := e.upload(t, alice, "x.txt", []byte("0123456789"))

	link, err := e.tokens.MakeOneTimePublic(ctx, alice, f.ID)
	require.NoError(t, err)

	c, err := e.retrieval.PublicDownload(ctx, f.ID, link, "bytes=2-3")
	require.NoError(t, err)
	assert.False(t, c.Range.Partial)
	assert.Equal(t, "0123456789", string(readAll(t, c)))

	_, err = e.retrieval.PublicDownload(ctx, f.ID, link, "")
	assert.ErrorIs(t, err, common.ErrLinkConsumed)
}

func TestRetrieval_TruncatedContentIsCorrupt(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	f := e.upload(t, alice, "x.bin", randomBytes(1000, 5))

	path := filepath.Join(e.root, filepath.FromSlash(f.Locator.FilePath))
	require.NoError(t, os.Truncate(path, 500))

	c, err := e.retrieval.Download(ctx, alice, f.ID, "")
	require.NoError(t, err)
	defer c.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(c.Body)
	assert.ErrorIs(t, err, common.ErrCorruptContent)
}

func TestRetrieval_MissingContent(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	f := e.upload(t, alice, "x.bin", []byte("abc"))

	require.NoError(t, os.Remove(filepath.Join(e.root, filepath.FromSlash(f.Locator.FilePath))))

	_, err := e.retrieval.Download(ctx, alice, f.ID, "")
	assert.ErrorIs(t, err, common.ErrCorruptContent)
	assert.False(t, common.IsAccessDenied(err))

	_, err = e.retrieval.Download(ctx, bob, f.ID, "")
	assert.ErrorIs(t, err, common.ErrorNotFound, "foreign callers still see a denial")
}

func TestRetrieval_MissingThumbnailContent(t *testing.T) {
	e := newTestEnv(t, thumbnail.New(32, 0, fakeFrames{}))
	ctx := context.Background()
	f := e.upload(t, alice, "clip.mp4", randomBytes(2048, 9))
	require.True(t, f.HasThumbnail())

	th, err := e.rm.Thumbnails(nil).GetByID(ctx, f.ThumbnailID, alice.ID)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(e.root, filepath.FromSlash(th.Locator.FilePath))))

	_, err = e.retrieval.QuickThumbnail(ctx, alice, f.ID)
	assert.ErrorIs(t, err, common.ErrCorruptContent)
	_, err = e.retrieval.FullThumbnail(ctx, alice, f.ID)
	assert.ErrorIs(t, err, common.ErrCorruptContent)
}

func TestRetrieval_OneTimeLinkSurvivesFailedRead(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	data := randomBytes(3000, 11)
	f := e.upload(t, alice, "once.bin", data)

	link, err := e.tokens.MakeOneTimePublic(ctx, alice, f.ID)
	require.NoError(t, err)

	path := filepath.Join(e.root, filepath.FromSlash(f.Locator.FilePath))
	stored, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	_, err = e.retrieval.PublicDownload(ctx, f.ID, link, "")
	assert.ErrorIs(t, err, common.ErrCorruptContent)

	_, err = e.tokens.ValidatePublic(ctx, f.ID, link)
	require.NoError(t, err, "a failed read must not spend the link")

	require.NoError(t, os.WriteFile(path, stored, 0o600))

	c, err := e.retrieval.PublicDownload(ctx, f.ID, link, "")
	require.NoError(t, err)
	assert.Equal(t, data, readAll(t, c))

	_, err = e.retrieval.PublicDownload(ctx, f.ID, link, "")
	assert.ErrorIs(t, err, common.ErrLinkConsumed)
}

func TestRetrieval_StreamWithoutRangeIsPartial(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	data := randomBytes(5000, 12)
	f := e.upload(t, alice, "movie.mp4", data)

	session := uuid.NewString()
	tok, _, err := e.tokens.IssueStreamToken(ctx, alice, session, f.ID)
	require.NoError(t, err)

	c, err := e.retrieval.StreamVideo(ctx, tok, session, f.ID, "")
	require.NoError(t, err)
	assert.True(t, c.Range.Partial)
	assert.Equal(t, "bytes 0-4999/5000", c.Range.ContentRange())
	assert.Equal(t, data, readAll(t, c))

	empty := e.upload(t, alice, "empty.mp4", nil)
	tok, _, err = e.tokens.IssueStreamToken(ctx, alice, session, empty.ID)
	require.NoError(t, err)
	c, err = e.retrieval.StreamVideo(ctx, tok, session, empty.ID, "")
	require.NoError(t, err)
	assert.False(t, c.Range.Partial)
	assert.Empty(t, readAll(t, c))
}

func TestRetrieval_ForeignLocator(t *testing.T) {
	e := newTestEnv(t, nil)
	ctx := context.Background()
	f := e.upload(t, alice, "x.bin", []byte("abc"))

	// a record written by an object-storage deployment
	rec, err := e.rm.Files(nil).GetByID(ctx, f.ID)
	require.NoError(t, err)
	require.NoError(t, e.rm.Files(nil).Delete(ctx, f.ID, alice.ID))
	rec.Locator.ObjectKey, rec.Locator.FilePath = rec.Locator.FilePath, ""
	require.NoError(t, e.rm.Files(nil).Create(ctx, rec))

	_, err = e.retrieval.Download(ctx, alice, f.ID, "")
	assert.ErrorIs(t, err, common.ErrCorruptContent)
}
