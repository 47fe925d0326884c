package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	bytes.Buffer
	committed, aborted bool
	commitErr          error
}

func (s *fakeSink) Commit() error { s.committed = true; return s.commitErr }
func (s *fakeSink) Abort() error  { s.aborted = true; return nil }

type fakeBackend struct {
	kind      Kind
	sink      *fakeSink
	createErr error
}

func (b *fakeBackend) Kind() Kind     { return b.kind }
func (b *fakeBackend) NewKey() string { return "k" }
func (b *fakeBackend) Create(context.Context, string) (Sink, error) {
	if b.createErr != nil {
		return nil, b.createErr
	}
	return b.sink, nil
}
func (b *fakeBackend) OpenRange(_ context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	data := b.sink.Bytes()
	return io.NopCloser(bytes.NewReader(data[offset : offset+length])), nil
}
func (b *fakeBackend) Delete(context.Context, string) error { return nil }
func (b *fakeBackend) Size(context.Context, string) (int64, error) {
	return int64(b.sink.Len()), nil
}

func TestWithSink_Commits(t *testing.T) {
	b := &fakeBackend{sink: &fakeSink{}}

	err := WithSink(context.Background(), b, "k", func(w io.Writer) error {
		_, err := w.Write([]byte("hello"))
		return err
	})
	require.NoError(t, err)
	assert.True(t, b.sink.committed)
	assert.False(t, b.sink.aborted)
	assert.Equal(t, "hello", b.sink.String())
}

func TestWithSink_AbortsOnError(t *testing.T) {
	b := &fakeBackend{sink: &fakeSink{}}
	boom := errors.New("boom")

	err := WithSink(context.Background(), b, "k", func(w io.Writer) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, b.sink.aborted)
	assert.False(t, b.sink.committed)
}

func TestWithSink_AbortsOnCommitFailure(t *testing.T) {
	boom := errors.New("flush failed")
	b := &fakeBackend{sink: &fakeSink{commitErr: boom}}

	err := WithSink(context.Background(), b, "k", func(w io.Writer) error { return nil })
	assert.ErrorIs(t, err, boom)
	assert.True(t, b.sink.aborted)
}

func TestWithSink_AbortsOnPanic(t *testing.T) {
	b := &fakeBackend{sink: &fakeSink{}}

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic to propagate")
		}
		assert.True(t, b.sink.aborted)
	}()

	_ = WithSink(context.Background(), b, "k", func(w io.Writer) error { panic("kaput") })
}

func TestWithSink_CreateError(t *testing.T) {
	boom := errors.New("no space")
	b := &fakeBackend{createErr: boom}

	err := WithSink(context.Background(), b, "k", func(w io.Writer) error {
		t.Fatal("fn must not run")
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestLocatorFor_KeyFor(t *testing.T) {
	fs := &fakeBackend{kind: KindFilesystem}
	s3 := &fakeBackend{kind: KindS3}

	loc := LocatorFor(KindFilesystem, "2024/1/1/x")
	assert.Equal(t, models.Locator{FilePath: "2024/1/1/x"}, loc)

	key, err := KeyFor(fs, loc)
	require.NoError(t, err)
	assert.Equal(t, "2024/1/1/x", key)

	_, err = KeyFor(s3, loc)
	assert.ErrorIs(t, err, common.ErrCorruptContent)

	key, err = KeyFor(s3, LocatorFor(KindMinIO, "obj"))
	require.NoError(t, err)
	assert.Equal(t, "obj", key)

	_, err = KeyFor(s3, models.Locator{})
	assert.ErrorIs(t, err, common.ErrCorruptContent)
}

func TestSource_OpenRange(t *testing.T) {
	b := &fakeBackend{sink: &fakeSink{}}
	b.sink.WriteString("0123456789")

	rc, err := Source{Backend: b, Key: "k"}.OpenRange(context.Background(), 3, 4)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(got))
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("connection reset"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_Exhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return Transient(errors.New("503"))
	})
	assert.ErrorIs(t, err, common.ErrBackendUnavailable)
	assert.Equal(t, 3, calls, "first try plus two retries")
}

func TestRetry_PermanentNotRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 5, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return common.ErrorNotFound
	})
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, 1, calls)
}

func TestRetryValue_ReturnsValue(t *testing.T) {
	v, err := RetryValue(context.Background(), RetryPolicy{}, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) error {
		return Transient(errors.New("x"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("x")))
	assert.True(t, IsTransient(Transient(errors.New("x"))))
	assert.Nil(t, Transient(nil))
}
