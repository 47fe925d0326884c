package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/notify"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/files"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrive/internal/server/storage"
)

const (
	quickListSize     = 12
	suggestedListSize = 10
	maxListLimit      = 200
)

// FileService covers metadata operations on stored files.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	backend     storage.Backend
	tokens      *TokenService
	notifier    notify.Notifier
	logger      logging.Logger
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, backend storage.Backend, tokens *TokenService, n notify.Notifier, logger logging.Logger) *FileService {
	return &FileService{
		db:          db,
		repomanager: m,
		backend:     backend,
		tokens:      tokens,
		notifier:    n,
		logger:      logger.With("module", "files"),
	}
}

func (s *FileService) GetInfo(ctx context.Context, p models.Principal, fileID string) (*models.File, error) {
	return s.repomanager.Files(s.db).GetByIDAndOwner(ctx, fileID, p.ID)
}

// GetPublicInfo describes a shared file without consuming its link.
func (s *FileService) GetPublicInfo(ctx context.Context, fileID, link string) (*models.File, error) {
	return s.tokens.ValidatePublic(ctx, fileID, link)
}

// QuickList returns the most recent uploads of the root folder.
func (s *FileService) QuickList(ctx context.Context, p models.Principal) ([]*models.File, error) {
	return s.repomanager.Files(s.db).List(ctx, p.ID, models.ListOptions{
		ParentID: files.RootFolder,
		Sort:     models.SortDateDesc,
		Limit:    quickListSize,
	})
}

func (s *FileService) List(ctx context.Context, p models.Principal, opts models.ListOptions) ([]*models.File, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", common.ErrorValidation)
	}
	if opts.Limit == 0 || opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	opts.Sort = models.ParseSortOrder(string(opts.Sort))
	return s.repomanager.Files(s.db).List(ctx, p.ID, opts)
}

// SuggestedList searches file names across all folders.
func (s *FileService) SuggestedList(ctx context.Context, p models.Principal, search string) ([]*models.File, error) {
	search = strings.TrimSpace(search)
	if search == "" {
		return nil, nil
	}
	return s.repomanager.Files(s.db).List(ctx, p.ID, models.ListOptions{
		Search: search,
		Sort:   models.SortNameAsc,
		Limit:  suggestedListSize,
	})
}

func (s *FileService) Rename(ctx context.Context, p models.Principal, fileID, filename string) error {
	filename = strings.TrimSpace(filename)
	if filename == "" || strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: invalid filename", common.ErrorValidation)
	}
	return s.repomanager.Files(s.db).Rename(ctx, fileID, p.ID, filename)
}

// Move changes the parent fields; the folder tree itself is not interpreted.
func (s *FileService) Move(ctx context.Context, p models.Principal, fileID, parentID, parentPath string) error {
	if parentID == "" {
		parentID = files.RootFolder
	}
	return s.repomanager.Files(s.db).Move(ctx, fileID, p.ID, parentID, parentPath)
}

// Delete removes backend content, the thumbnail, all temporary tokens of
// the file and finally its record. Deleting an unknown or already deleted
// file succeeds.
func (s *FileService) Delete(ctx context.Context, p models.Principal, fileID string) error {
	f, err := s.repomanager.Files(s.db).GetByIDAndOwner(ctx, fileID, p.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}

	if key, err := storage.KeyFor(s.backend, f.Locator); err == nil {
		if err := s.backend.Delete(ctx, key); err != nil {
			return fmt.Errorf("error deleting content: %w", err)
		}
	} else {
		s.logger.Warn(ctx, "file has foreign locator, content left in place", "file_id", f.ID, "error", err)
	}

	if f.HasThumbnail() {
		if err := s.deleteThumbnail(ctx, f); err != nil {
			return err
		}
	}

	if err := s.repomanager.TempTokens(s.db).DeleteByFile(ctx, f.ID); err != nil {
		return fmt.Errorf("error deleting tokens: %w", err)
	}

	if err := s.repomanager.Files(s.db).Delete(ctx, f.ID, p.ID); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("error deleting file: %w", err)
	}

	s.logger.Info(ctx, "file deleted", "file_id", f.ID)
	return nil
}

func (s *FileService) deleteThumbnail(ctx context.Context, f *models.File) error {
	repo := s.repomanager.Thumbnails(s.db)

	th, err := repo.GetByID(ctx, f.ThumbnailID, f.OwnerID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}
	if key, err := storage.KeyFor(s.backend, th.Locator); err == nil {
		if err := s.backend.Delete(ctx, key); err != nil {
			return fmt.Errorf("error deleting thumbnail content: %w", err)
		}
	}
	return repo.Delete(ctx, th.ID)
}

// SendShareEmail emits a share-created event for contact. Delivery is done
// by the notification component.
func (s *FileService) SendShareEmail(ctx context.Context, p models.Principal, fileID, contact string) error {
	addr, err := mail.ParseAddress(contact)
	if err != nil {
		return fmt.Errorf("%w: contact: %v", common.ErrorValidation, err)
	}

	f, err := s.repomanager.Files(s.db).GetByIDAndOwner(ctx, fileID, p.ID)
	if err != nil {
		return err
	}

	event := notify.ShareEvent{FileID: f.ID, OwnerID: p.ID, Contact: addr.Address}
	if f.Share.LinkType == models.LinkPublic {
		event.Link = f.Share.Link
	}
	return s.notifier.ShareCreated(ctx, event)
}
