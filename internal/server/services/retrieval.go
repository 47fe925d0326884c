package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/cryptox"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/rangex"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
	"github.com/dmitrijs2005/gophdrive/internal/server/thumbnail"
)

// Content is decrypted data ready to be sent. Body yields exactly
// Range.Length() bytes and must be closed.
type Content struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
	Range       rangex.Range
}

const thumbnailContentType = "image/jpeg"

// RetrievalService serves stored files by decrypting backend byte ranges on
// demand. Every entry point authorizes first; denials are reported with the
// same errors whether the file exists or not.
type RetrievalService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	backend     storage.Backend
	envelope    *cryptox.Envelope
	tokens      *TokenService
	logger      logging.Logger
}

func NewRetrievalService(db *sql.DB, m repomanager.RepositoryManager, backend storage.Backend, env *cryptox.Envelope, tokens *TokenService, logger logging.Logger) *RetrievalService {
	return &RetrievalService{
		db:          db,
		repomanager: m,
		backend:     backend,
		envelope:    env,
		tokens:      tokens,
		logger:      logger.With("module", "retrieval"),
	}
}

// Download returns the principal's file, or the part of it named by
// rangeHeader.
func (s *RetrievalService) Download(ctx context.Context, p models.Principal, fileID, rangeHeader string) (*Content, error) {
	f, err := s.repomanager.Files(s.db).GetByIDAndOwner(ctx, fileID, p.ID)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, f, rangeHeader)
}

// DownloadWithToken is Download authorized by a download token.
func (s *RetrievalService) DownloadWithToken(ctx context.Context, token, fileID, rangeHeader string) (*Content, error) {
	userID, err := s.tokens.ValidateDownloadToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.Download(ctx, models.Principal{ID: userID}, fileID, rangeHeader)
}

// StreamVideo serves a range of a file to a playback session holding a
// stream token. Seeking decrypts only the requested window. Without a
// Range header the stream starts at the first byte and is still answered
// as partial content.
func (s *RetrievalService) StreamVideo(ctx context.Context, token, sessionUUID, fileID, rangeHeader string) (*Content, error) {
	userID, err := s.tokens.ValidateStreamToken(ctx, token, sessionUUID, fileID)
	if err != nil {
		return nil, err
	}

	f, err := s.repomanager.Files(s.db).GetByIDAndOwner(ctx, fileID, userID)
	if err != nil {
		return nil, err
	}
	if rangeHeader == "" && f.Size > 0 {
		rangeHeader = "bytes=0-"
	}
	return s.open(ctx, f, rangeHeader)
}

// PublicDownload serves a shared file. A one-time link always returns the
// whole file and is spent only once its content has been opened, so a
// failed read leaves it usable.
func (s *RetrievalService) PublicDownload(ctx context.Context, fileID, link, rangeHeader string) (*Content, error) {
	f, err := s.tokens.ValidatePublic(ctx, fileID, link)
	if err != nil {
		return nil, err
	}
	if f.Share.LinkType != models.LinkOneTime {
		return s.open(ctx, f, rangeHeader)
	}

	c, err := s.open(ctx, f, "")
	if err != nil {
		return nil, err
	}
	if _, err := s.tokens.ConsumeOneTime(ctx, fileID, link); err != nil {
		_ = c.Body.Close()
		return nil, err
	}
	return c, nil
}

// QuickThumbnail returns the whole decrypted preview in memory.
func (s *RetrievalService) QuickThumbnail(ctx context.Context, p models.Principal, fileID string) ([]byte, error) {
	f, err := s.previewable(ctx, p, fileID)
	if err != nil {
		return nil, err
	}
	th, key, err := s.thumbnailOf(ctx, f)
	if err != nil {
		return nil, err
	}

	rc, err := s.backend.OpenRange(ctx, key, 0, th.Size)
	if err != nil {
		return nil, s.missing(ctx, "thumbnail", th.ID, err)
	}
	defer rc.Close()

	ct, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if int64(len(ct)) != th.Size {
		s.logger.Error(ctx, "thumbnail truncated", "thumbnail_id", th.ID, "got", len(ct), "want", th.Size)
		return nil, fmt.Errorf("%w: thumbnail %s has %d of %d bytes", common.ErrCorruptContent, th.ID, len(ct), th.Size)
	}
	return s.envelope.DecryptBytes(ct, th.IV)
}

// FullThumbnail streams the full-resolution view. For images that is the
// original picture; videos have only their poster frame.
func (s *RetrievalService) FullThumbnail(ctx context.Context, p models.Principal, fileID string) (*Content, error) {
	f, err := s.previewable(ctx, p, fileID)
	if err != nil {
		return nil, err
	}

	if thumbnail.KindFromName(f.Filename) == thumbnail.KindImage {
		c, err := s.open(ctx, f, "")
		if err != nil {
			return nil, err
		}
		c.ContentType = mime.TypeByExtension(path.Ext(f.Filename))
		return c, nil
	}

	th, key, err := s.thumbnailOf(ctx, f)
	if err != nil {
		return nil, err
	}

	rng, _ := rangex.Parse("", th.Size)
	body, err := s.envelope.DecryptRange(ctx, storage.Source{Backend: s.backend, Key: key}, th.IV, 0, th.Size)
	if err != nil {
		return nil, s.missing(ctx, "thumbnail", th.ID, err)
	}
	return &Content{Body: body, Filename: th.ID + ".jpg", ContentType: thumbnailContentType, Range: rng}, nil
}

// QuickContent wraps an in-memory preview as Content.
func QuickContent(data []byte, filename string) *Content {
	rng, _ := rangex.Parse("", int64(len(data)))
	return &Content{
		Body:        io.NopCloser(bytes.NewReader(data)),
		Filename:    filename,
		ContentType: thumbnailContentType,
		Range:       rng,
	}
}

// --- helpers below ---

// previewable returns the principal's file when it has a preview.
func (s *RetrievalService) previewable(ctx context.Context, p models.Principal, fileID string) (*models.File, error) {
	f, err := s.repomanager.Files(s.db).GetByIDAndOwner(ctx, fileID, p.ID)
	if err != nil {
		return nil, err
	}
	if !f.HasThumbnail() {
		return nil, common.ErrorNotFound
	}
	return f, nil
}

func (s *RetrievalService) thumbnailOf(ctx context.Context, f *models.File) (*models.Thumbnail, string, error) {
	th, err := s.repomanager.Thumbnails(s.db).GetByID(ctx, f.ThumbnailID, f.OwnerID)
	if err != nil {
		return nil, "", err
	}
	key, err := storage.KeyFor(s.backend, th.Locator)
	if err != nil {
		return nil, "", err
	}
	return th, key, nil
}

// missing reports an object absent from the backend although an authorized
// record points at it. That is an integrity failure, not a denial.
func (s *RetrievalService) missing(ctx context.Context, what, id string, err error) error {
	if !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	s.logger.Error(ctx, "stored content missing", "object", what, "id", id, "error", err)
	return fmt.Errorf("%w: %s %s has no stored content: %v", common.ErrCorruptContent, what, id, err)
}

// open resolves rangeHeader against the file and starts decrypting.
func (s *RetrievalService) open(ctx context.Context, f *models.File, rangeHeader string) (*Content, error) {
	rng, err := rangex.Parse(rangeHeader, f.Size)
	if err != nil {
		return nil, err
	}

	key, err := storage.KeyFor(s.backend, f.Locator)
	if err != nil {
		return nil, err
	}

	body, err := s.envelope.DecryptRange(ctx, storage.Source{Backend: s.backend, Key: key}, f.IV, rng.Start, rng.Length())
	if err != nil {
		return nil, s.missing(ctx, "file", f.ID, err)
	}

	return &Content{Body: body, Filename: f.Filename, Range: rng}, nil
}
