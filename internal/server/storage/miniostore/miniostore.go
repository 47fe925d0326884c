// Package miniostore stores objects in MinIO using the native minio-go client.
package miniostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	KeyPrefix string
	// PartSize of streamed uploads; minio-go picks one when zero.
	PartSize uint64
	Retry    storage.RetryPolicy
}

// objectClient is the part of the SDK the store needs. GetRange returns a
// reader whose request has already been made.
type objectClient interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetRange(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

type sdkClient struct {
	*minio.Client
}

func (c sdkClient) GetRange(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := c.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat forces the request so errors surface here.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return obj, nil
}

var newMinioClient = minio.New

type Store struct {
	client objectClient
	cfg    Config
	now    func() time.Time
}

// New connects to MinIO and makes sure the bucket exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := newMinioClient(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	s := newWithClient(sdkClient{Client: client}, cfg)
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newWithClient(client objectClient, cfg Config) *Store {
	if cfg.Retry == (storage.RetryPolicy{}) {
		cfg.Retry = storage.DefaultRetryPolicy
	}
	return &Store{client: client, cfg: cfg, now: time.Now}
}

func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := storage.RetryValue(ctx, s.cfg.Retry, func(ctx context.Context) (bool, error) {
		ok, err := s.client.BucketExists(ctx, s.cfg.Bucket)
		return ok, mapError(err)
	})
	if err != nil {
		return fmt.Errorf("bucket check failed: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "BucketAlreadyOwnedByYou" {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", mapError(err))
	}
	return nil
}

func (s *Store) Kind() storage.Kind { return storage.KindMinIO }

func (s *Store) NewKey() string {
	d := s.now()
	return fmt.Sprintf("%s%d/%d/%d/%v", s.cfg.KeyPrefix, d.Year(), d.Month(), d.Day(), uuid.New())
}

// Create streams the object through a pipe into PutObject with unknown size.
func (s *Store) Create(ctx context.Context, key string) (storage.Sink, error) {
	uctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	w := &sink{store: s, ctx: ctx, key: key, pw: pw, cancel: cancel, done: make(chan error, 1)}

	go func() {
		_, err := s.client.PutObject(uctx, s.cfg.Bucket, key, pr, -1, minio.PutObjectOptions{
			ContentType: "application/octet-stream",
			PartSize:    s.cfg.PartSize,
		})
		_ = pr.CloseWithError(err)
		w.done <- err
	}()

	return w, nil
}

type sink struct {
	store  *Store
	ctx    context.Context
	key    string
	pw     *io.PipeWriter
	cancel context.CancelFunc
	done   chan error

	once   sync.Once
	result error
}

func (w *sink) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *sink) finish(abort bool) error {
	w.once.Do(func() {
		if abort {
			_ = w.pw.CloseWithError(common.ErrAbortedUpload)
			w.cancel()
		} else {
			_ = w.pw.Close()
		}
		err := <-w.done
		w.cancel()
		if err != nil {
			w.result = fmt.Errorf("failed to put object %s: %w", w.key, mapError(err))
		}
	})
	return w.result
}

func (w *sink) Commit() error { return w.finish(false) }

func (w *sink) Abort() error {
	_ = w.finish(true)
	return w.store.Delete(context.WithoutCancel(w.ctx), w.key)
}

func (s *Store) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if offset < 0 || length < 0 {
		return nil, common.ErrInvalidRange
	}
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	return storage.RetryValue(ctx, s.cfg.Retry, func(ctx context.Context) (io.ReadCloser, error) {
		var opts minio.GetObjectOptions
		if err := opts.SetRange(offset, offset+length-1); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidRange, err)
		}
		rc, err := s.client.GetRange(ctx, s.cfg.Bucket, key, opts)
		if err != nil {
			if isInvalidRange(err) {
				return io.NopCloser(bytes.NewReader(nil)), nil
			}
			return nil, mapError(err)
		}
		return rc, nil
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := storage.Retry(ctx, s.cfg.Retry, func(ctx context.Context) error {
		return mapError(s.client.RemoveObject(ctx, s.cfg.Bucket, key, minio.RemoveObjectOptions{}))
	})
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	return err
}

func (s *Store) Size(ctx context.Context, key string) (int64, error) {
	return storage.RetryValue(ctx, s.cfg.Retry, func(ctx context.Context) (int64, error) {
		info, err := s.client.StatObject(ctx, s.cfg.Bucket, key, minio.StatObjectOptions{})
		if err != nil {
			return 0, mapError(err)
		}
		return info.Size, nil
	})
}
