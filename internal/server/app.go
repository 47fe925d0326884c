// Package server wires configuration, storage, metadata and services
// together and runs the HTTP server until the process is signaled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/cryptox"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/filex"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/auth"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/httpapi"
	"github.com/dmitrijs2005/gophdrive/internal/server/notify"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrive/internal/server/services"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage/fsstore"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage/miniostore"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage/s3store"
	"github.com/dmitrijs2005/gophdrive/internal/server/thumbnail"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	server  *httpapi.Server
	tokens  *services.TokenService
	backend storage.Backend
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(logging.Options{
		Driver: c.LogDriver,
		Format: c.LogFormat,
		Level:  c.LogLevel,
		Output: os.Stdout,
	})

	key := cryptox.DeriveMasterKey([]byte(c.EncryptionPassword), []byte(c.EncryptionSalt))
	env, err := cryptox.NewEnvelope(key)
	common.WipeByteArray(key)
	if err != nil {
		return nil, fmt.Errorf("envelope init error: %w", err)
	}

	if c.TempDir != "" {
		dir, err := filex.EnsureDir(c.TempDir)
		if err != nil {
			return nil, fmt.Errorf("temp dir init error: %w", err)
		}
		c.TempDir = dir
	}

	backend, err := newBackend(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	db, rm, err := newRepositoryManager(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	signer := auth.NewSigner([]byte(c.SecretKey), time.Now)
	thumbs := thumbnail.New(c.ThumbnailWidth, c.ThumbnailMaxSource, thumbnail.FFmpegExtractor{Binary: c.FFmpegPath})

	tokens := services.NewTokenService(db, rm, signer, c, logger, time.Now)
	svc := httpapi.Services{
		Uploads:   services.NewUploadService(db, rm, backend, env, thumbs, c, logger),
		Retrieval: services.NewRetrievalService(db, rm, backend, env, tokens, logger),
		Tokens:    tokens,
		Files:     services.NewFileService(db, rm, backend, tokens, notify.NewLogNotifier(logger), logger),
	}

	metrics := httpapi.NewMetrics()
	metrics.RegisterDB(db)

	logger.Info(ctx, "app configured",
		"metadata_store", c.MetadataStore,
		"storage_backend", string(backend.Kind()),
	)

	return &App{
		config:  c,
		logger:  logger,
		db:      db,
		server:  httpapi.NewServer(c.HTTPAddr, logger, svc, signer, metrics),
		tokens:  tokens,
		backend: backend,
	}, nil
}

// newBackend selects the storage driver once, at startup.
func newBackend(ctx context.Context, c *config.Config) (storage.Backend, error) {
	retry := storage.RetryPolicy{
		Attempts:  uint64(max(c.StorageRetryAttempts, 0)),
		BaseDelay: c.StorageRetryBaseDelay,
	}

	switch c.StorageBackend {
	case config.BackendFilesystem:
		return fsstore.New(c.StorageRoot)
	case config.BackendS3:
		s, err := s3store.New(ctx, s3store.Config{
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3BaseEndpoint,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Retry:     retry,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendMinIO:
		host, secure := minioEndpoint(c.S3BaseEndpoint)
		return miniostore.New(ctx, miniostore.Config{
			Endpoint:  host,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			UseSSL:    c.S3UseSSL || secure,
			Region:    c.S3Region,
			Bucket:    c.S3Bucket,
			Retry:     retry,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

// minioEndpoint reduces a base URL to the host:port form minio-go expects.
func minioEndpoint(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/"), false
	}
	return u.Host, u.Scheme == "https"
}

// newRepositoryManager returns a nil db for the memory store.
func newRepositoryManager(ctx context.Context, c *config.Config) (*sql.DB, repomanager.RepositoryManager, error) {
	switch c.MetadataStore {
	case config.MetadataMemory:
		return nil, repomanager.NewMemoryRepositoryManager(), nil
	case config.MetadataPostgres:
		db, err := dbx.Open(ctx, "pgx", c.DatabaseDSN, dbx.PoolConfig{})
		if err != nil {
			return nil, nil, err
		}
		rm := repomanager.NewPostgresRepositoryManager()
		if err := rm.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return db, rm, nil
	default:
		return nil, nil, fmt.Errorf("unknown metadata store %q", c.MetadataStore)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// purgeTokens removes expired temporary tokens every interval until ctx ends.
func (app *App) purgeTokens(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.tokens.PurgeExpired(ctx); err != nil {
				app.logger.Error(ctx, "token purge failed", "error", err)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.purgeTokens(ctx, app.config.TokenPurgeInterval)
	}()

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(context.Background(), "close failed", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) Close() error {
	if app.db != nil {
		return app.db.Close()
	}
	return nil
}
