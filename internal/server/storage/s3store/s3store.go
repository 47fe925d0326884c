// Package s3store stores objects in an S3-compatible bucket via aws-sdk-go-v2.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"github.com/google/uuid"
)

// Client is the subset of *s3.Client the store uses.
type Client interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// KeyPrefix is prepended to generated keys, e.g. "files/".
	KeyPrefix string
	// PartSize of multipart uploads; defaults to the SDK minimum of 5 MiB.
	PartSize int64
	Retry    storage.RetryPolicy
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type Store struct {
	client   Client
	uploader *manager.Uploader
	cfg      Config
	now      func() time.Time
}

// New builds an S3 client from cfg. SDK-level retries are disabled; the
// store applies its own bounded policy.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(1),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client Client, cfg Config) *Store {
	if cfg.PartSize < manager.MinUploadPartSize {
		cfg.PartSize = manager.MinUploadPartSize
	}
	if cfg.Retry == (storage.RetryPolicy{}) {
		cfg.Retry = storage.DefaultRetryPolicy
	}
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = cfg.PartSize
		u.Concurrency = 1
	})
	return &Store{client: client, uploader: uploader, cfg: cfg, now: time.Now}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	err := storage.Retry(ctx, s.cfg.Retry, func(ctx context.Context) error {
		_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)})
		return mapError(err)
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return err
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(s.cfg.Bucket)}
	if s.cfg.Region != "" && s.cfg.Region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.cfg.Region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, in); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, mapError(err))
	}
	return nil
}

func (s *Store) Kind() storage.Kind { return storage.KindS3 }

func (s *Store) NewKey() string {
	d := s.now()
	return fmt.Sprintf("%s%d/%d/%d/%v", s.cfg.KeyPrefix, d.Year(), d.Month(), d.Day(), uuid.New())
}

// Create starts a streaming multipart upload fed through a pipe.
func (s *Store) Create(ctx context.Context, key string) (storage.Sink, error) {
	uctx, cancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	w := &sink{
		store:  s,
		ctx:    ctx,
		key:    key,
		pw:     pw,
		cancel: cancel,
		done:   make(chan error, 1),
	}

	go func() {
		_, err := s.uploader.Upload(uctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.cfg.Bucket),
			Key:         aws.String(key),
			Body:        pr,
			ContentType: aws.String("application/octet-stream"),
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
			w.result = fmt.Errorf("upload %s: %w", w.key, mapError(err))
		}
	})
	return w.result
}

func (w *sink) Commit() error {
	return w.finish(false)
}

// Abort stops the upload and removes the object in case it completed.
func (w *sink) Abort() error {
	_ = w.finish(true)
	return w.store.Delete(context.WithoutCancel(w.ctx), w.key)
}

// OpenRange issues a ranged GetObject. The initial request is retried on
// transient failures; body reads are not.
func (s *Store) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	if offset < 0 || length < 0 {
		return nil, common.ErrInvalidRange
	}
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	return storage.RetryValue(ctx, s.cfg.Retry, func(ctx context.Context) (io.ReadCloser, error) {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)),
		})
		if err != nil {
			if isInvalidRange(err) {
				return io.NopCloser(bytes.NewReader(nil)), nil
			}
			return nil, mapError(err)
		}
		return out.Body, nil
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := storage.Retry(ctx, s.cfg.Retry, func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(key),
		})
		return mapError(err)
	})
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	return err
}

func (s *Store) Size(ctx context.Context, key string) (int64, error) {
	return storage.RetryValue(ctx, s.cfg.Retry, func(ctx context.Context) (int64, error) {
		out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return 0, mapError(err)
		}
		return aws.ToInt64(out.ContentLength), nil
	})
}

func isInvalidRange(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == 416
}

// mapError converts SDK errors into storage sentinels; transient failures
// are marked for retry.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %v", common.ErrorNotFound, err)
		case "SlowDown", "InternalError", "ServiceUnavailable", "RequestTimeout", "Throttling":
			return storage.Transient(err)
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		switch code := respErr.HTTPStatusCode(); {
		case code == 404:
			return fmt.Errorf("%w: %v", common.ErrorNotFound, err)
		case code == 429 || code >= 500:
			return storage.Transient(err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return storage.Transient(err)
	}
	return err
}
