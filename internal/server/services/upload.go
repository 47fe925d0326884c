package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/cryptox"
	"github.com/dmitrijs2005/gophdrive/internal/dbx"
	"github.com/dmitrijs2005/gophdrive/internal/filex"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/files"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"github.com/dmitrijs2005/gophdrive/internal/server/thumbnail"
	"github.com/google/uuid"
)

// UploadState is a step of the upload pipeline.
type UploadState int

const (
	StateReceiving UploadState = iota
	StateEncrypting
	StatePersisting
	StateCommitted
	StateAborted
)

func (s UploadState) String() string {
	switch s {
	case StateReceiving:
		return "receiving"
	case StateEncrypting:
		return "encrypting"
	case StatePersisting:
		return "persisting"
	case StateCommitted:
		return "committed"
	default:
		return "aborted"
	}
}

// UploadRequest carries one file being uploaded. Body is read once, to EOF.
type UploadRequest struct {
	Filename   string
	ParentID   string
	ParentPath string
	Body       io.Reader
}

// Thumbnailer derives previews; *thumbnail.Generator implements it.
type Thumbnailer interface {
	Generate(ctx context.Context, kind thumbnail.Kind, spoolPath string) ([]byte, error)
	MaxSource() int64
}

// UploadService encrypts incoming streams into the chunk store and
// publishes the file record only once the content is persisted.
type UploadService struct {
	db                   *sql.DB
	repomanager          repomanager.RepositoryManager
	backend              storage.Backend
	envelope             *cryptox.Envelope
	thumbs               Thumbnailer
	tempDir              string
	requireVerifiedEmail bool
	logger               logging.Logger
	now                  func() time.Time
}

// NewUploadService wires the pipeline. thumbs may be nil to disable previews.
func NewUploadService(db *sql.DB, m repomanager.RepositoryManager, backend storage.Backend, env *cryptox.Envelope, thumbs Thumbnailer, cfg *config.Config, logger logging.Logger) *UploadService {
	return &UploadService{
		db:                   db,
		repomanager:          m,
		backend:              backend,
		envelope:             env,
		thumbs:               thumbs,
		tempDir:              cfg.TempDir,
		requireVerifiedEmail: cfg.RequireVerifiedEmail,
		logger:               logger.With("module", "upload"),
		now:                  time.Now,
	}
}

// upload tracks one run of the pipeline.
type upload struct {
	svc   *UploadService
	log   logging.Logger
	state UploadState
	kind  thumbnail.Kind
	iv    []byte
	key   string
	size  int64
	spool *spoolWriter
	thumb *models.Thumbnail
	thkey string
}

func (u *upload) to(ctx context.Context, s UploadState) {
	u.state = s
	u.log.Debug(ctx, "upload state", "state", s.String())
}

// Upload runs Receiving -> Encrypting -> Persisting -> Committed. Any failure
// moves to Aborted, which removes what was written and creates no record.
// A client that stops sending mid-body yields common.ErrAbortedUpload.
func (s *UploadService) Upload(ctx context.Context, p models.Principal, req UploadRequest) (*models.File, error) {
	if s.requireVerifiedEmail && !p.EmailVerified {
		return nil, common.ErrorUnauthorized
	}
	name := strings.TrimSpace(req.Filename)
	if name == "" || strings.ContainsAny(name, "/\\") {
		return nil, fmt.Errorf("%w: invalid filename", common.ErrorValidation)
	}
	if req.ParentID == "" {
		req.ParentID = files.RootFolder
	}

	iv, err := cryptox.NewIV()
	if err != nil {
		return nil, common.ErrorInternal
	}

	u := &upload{
		svc:  s,
		kind: thumbnail.KindFromName(name),
		iv:   iv,
		key:  s.backend.NewKey(),
	}
	u.log = s.logger.With("key", u.key)
	u.to(ctx, StateReceiving)

	if s.thumbs != nil && u.kind != thumbnail.KindOther {
		f, cleanup, err := filex.Spool(s.tempDir, "upload-*")
		if err != nil {
			u.log.Warn(ctx, "no spool, skipping preview", "error", err)
		} else {
			defer cleanup()
			u.spool = &spoolWriter{f: f, limit: s.thumbs.MaxSource()}
		}
	}

	if err := u.persist(ctx, req.Body); err != nil {
		u.to(ctx, StateAborted)
		return nil, err
	}

	u.derivePreview(ctx)

	file := &models.File{
		ID:         uuid.NewString(),
		OwnerID:    p.ID,
		ParentID:   req.ParentID,
		ParentPath: req.ParentPath,
		Filename:   name,
		Size:       u.size,
		UploadedAt: s.now().UTC(),
		IV:         u.iv,
		IsVideo:    u.kind == thumbnail.KindVideo,
		Locator:    storage.LocatorFor(s.backend.Kind(), u.key),
	}
	if u.thumb != nil {
		u.thumb.OwnerID = p.ID
		file.ThumbnailID = u.thumb.ID
	}

	if err := u.publish(ctx, file); err != nil {
		u.to(ctx, StateAborted)
		return nil, err
	}

	u.to(ctx, StateCommitted)
	u.log.Info(ctx, "upload committed", "file_id", file.ID, "size", file.Size, "thumbnail", file.HasThumbnail())
	return file, nil
}

// persist streams the body through the envelope into a new object and
// checks the stored size.
func (u *upload) persist(ctx context.Context, body io.Reader) error {
	s := u.svc
	src := &countingReader{r: body}

	var in io.Reader = src
	if u.spool != nil {
		in = io.TeeReader(src, u.spool)
	}

	u.to(ctx, StateEncrypting)
	err := storage.WithSink(ctx, s.backend, u.key, func(w io.Writer) error {
		enc, err := s.envelope.EncryptWriter(w, u.iv)
		if err != nil {
			return err
		}
		if _, err := io.Copy(enc, &ctxReader{ctx: ctx, r: in}); err != nil {
			if src.err != nil || ctx.Err() != nil {
				return fmt.Errorf("%w: %v", common.ErrAbortedUpload, err)
			}
			return err
		}
		u.to(ctx, StatePersisting)
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrAbortedUpload) {
			u.log.Warn(ctx, "upload aborted by client", "received", src.n, "error", err)
		} else {
			u.log.Error(ctx, "upload failed", "received", src.n, "error", err)
		}
		return err
	}

	stored, err := s.backend.Size(ctx, u.key)
	if err != nil || stored != src.n {
		_ = s.backend.Delete(context.WithoutCancel(ctx), u.key)
		u.log.Error(ctx, "stored size mismatch", "want", src.n, "got", stored, "error", err)
		if errors.Is(err, common.ErrBackendUnavailable) {
			return err
		}
		return fmt.Errorf("%w: stored %d of %d bytes", common.ErrCorruptContent, stored, src.n)
	}

	u.size = src.n
	return nil
}

// derivePreview generates and stores an encrypted thumbnail. Failures are
// logged and leave the file without one.
func (u *upload) derivePreview(ctx context.Context) {
	if u.spool == nil || u.spool.skipped {
		return
	}
	s := u.svc

	data, err := s.thumbs.Generate(ctx, u.kind, u.spool.f.Name())
	if err != nil {
		u.log.Warn(ctx, "preview not generated", "kind", u.kind.String(), "error", err)
		return
	}

	iv, err := cryptox.NewIV()
	if err != nil {
		return
	}
	key := s.backend.NewKey()

	err = storage.WithSink(ctx, s.backend, key, func(w io.Writer) error {
		enc, err := s.envelope.EncryptWriter(w, iv)
		if err != nil {
			return err
		}
		_, err = enc.Write(data)
		return err
	})
	if err != nil {
		u.log.Warn(ctx, "preview not stored", "error", err)
		return
	}

	u.thkey = key
	u.thumb = &models.Thumbnail{
		ID:        uuid.NewString(),
		IV:        iv,
		Size:      int64(len(data)),
		Locator:   storage.LocatorFor(s.backend.Kind(), key),
		CreatedAt: s.now().UTC(),
	}
}

// publish creates the records. Content is removed when that fails.
func (u *upload) publish(ctx context.Context, file *models.File) error {
	s := u.svc

	err := dbx.InTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		if u.thumb != nil {
			if err := s.repomanager.Thumbnails(tx).Create(ctx, u.thumb); err != nil {
				return fmt.Errorf("error creating thumbnail: %w", err)
			}
		}
		if err := s.repomanager.Files(tx).Create(ctx, file); err != nil {
			return fmt.Errorf("error creating file: %w", err)
		}
		return nil
	})
	if err == nil {
		return nil
	}

	u.log.Error(ctx, "publish failed, removing content", "error", err)
	cctx := context.WithoutCancel(ctx)
	_ = s.backend.Delete(cctx, u.key)
	if u.thumb != nil {
		_ = s.backend.Delete(cctx, u.thkey)
		// in-memory stores have no rollback
		_ = s.repomanager.Thumbnails(s.db).Delete(cctx, u.thumb.ID)
	}
	return err
}

// countingReader remembers how much was read and whether the source failed.
type countingReader struct {
	r   io.Reader
	n   int64
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if err != nil && err != io.EOF {
		c.err = err
	}
	return n, err
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// spoolWriter copies plaintext to a temp file for preview generation. It
// never fails the upload: past limit, or after a write error, it stops
// writing and marks the preview skipped.
type spoolWriter struct {
	f       *os.File
	limit   int64
	n       int64
	skipped bool
}

func (s *spoolWriter) Write(p []byte) (int, error) {
	if s.skipped {
		return len(p), nil
	}
	if s.limit > 0 && s.n+int64(len(p)) > s.limit {
		s.skipped = true
		return len(p), nil
	}
	n, err := s.f.Write(p)
	s.n += int64(n)
	if err != nil {
		s.skipped = true
	}
	return len(p), nil
}
