package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/auth"
	"github.com/dmitrijs2005/gophdrive/internal/server/config"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// TokenService is the access token manager: public and one-time share links
// stored on the file record, plus short-lived stream and download tokens.
// Stream and download tokens are signed JWTs that are also persisted, so
// they can be revoked before they expire.
type TokenService struct {
	db                            *sql.DB
	repomanager                   repomanager.RepositoryManager
	signer                        *auth.Signer
	streamTokenValidityDuration   time.Duration
	downloadTokenValidityDuration time.Duration
	logger                        logging.Logger
	now                           func() time.Time
}

// NewTokenService constructs a TokenService. now may be nil.
func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, signer *auth.Signer, cfg *config.Config, logger logging.Logger, now func() time.Time) *TokenService {
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		db:                            db,
		repomanager:                   m,
		signer:                        signer,
		streamTokenValidityDuration:   cfg.StreamTokenValidityDuration,
		downloadTokenValidityDuration: cfg.DownloadTokenValidityDuration,
		logger:                        logger.With("module", "tokens"),
		now:                           now,
	}
}

// MakePublic installs a persistent public link and returns its token.
func (s *TokenService) MakePublic(ctx context.Context, p models.Principal, fileID string) (string, error) {
	return s.setLink(ctx, p, fileID, models.LinkPublic)
}

// MakeOneTimePublic installs a link valid for exactly one retrieval.
func (s *TokenService) MakeOneTimePublic(ctx context.Context, p models.Principal, fileID string) (string, error) {
	return s.setLink(ctx, p, fileID, models.LinkOneTime)
}

func (s *TokenService) setLink(ctx context.Context, p models.Principal, fileID string, linkType models.LinkType) (string, error) {
	link, err := common.MakeRandURLToken(common.LinkTokenBytes)
	if err != nil {
		return "", fmt.Errorf("error generating link: %w", err)
	}
	if err := s.repomanager.Files(s.db).SetLink(ctx, fileID, p.ID, linkType, link); err != nil {
		return "", err
	}
	s.logger.Info(ctx, "link created", "file_id", fileID, "link_type", string(linkType))
	return link, nil
}

// RemoveLink revokes any share link of the file.
func (s *TokenService) RemoveLink(ctx context.Context, p models.Principal, fileID string) error {
	return s.repomanager.Files(s.db).RemoveLink(ctx, fileID, p.ID)
}

// ValidatePublic resolves a shared file without consuming a one-time link.
// A consumed one-time link fails with common.ErrLinkConsumed.
func (s *TokenService) ValidatePublic(ctx context.Context, fileID, link string) (*models.File, error) {
	if link == "" {
		return nil, common.ErrorNotFound
	}
	f, err := s.repomanager.Files(s.db).GetPublic(ctx, fileID, link)
	if err != nil {
		return nil, err
	}
	if f.Share.LinkType == models.LinkOneTime && f.Share.Consumed {
		return nil, common.ErrLinkConsumed
	}
	return f, nil
}

// ConsumeOneTime marks a one-time link consumed and returns the file. The
// flip is a single conditional write, so of several concurrent callers
// exactly one wins; the others get common.ErrLinkConsumed.
func (s *TokenService) ConsumeOneTime(ctx context.Context, fileID, link string) (*models.File, error) {
	repo := s.repomanager.Files(s.db)

	f, err := repo.ConsumeOneTimeLink(ctx, fileID, link)
	if err == nil {
		s.logger.Info(ctx, "one-time link consumed", "file_id", fileID)
		return f, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	// Lost the race, or the link never matched.
	g, gerr := repo.GetPublic(ctx, fileID, link)
	if gerr == nil && g.Share.LinkType == models.LinkOneTime && g.Share.Consumed {
		return nil, common.ErrLinkConsumed
	}
	return nil, common.ErrorNotFound
}

// IssueStreamToken grants a playback session access to the principal's
// files. A non-empty fileID narrows the grant to that file.
func (s *TokenService) IssueStreamToken(ctx context.Context, p models.Principal, sessionUUID, fileID string) (string, time.Time, error) {
	if _, err := uuid.Parse(sessionUUID); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: session uuid: %v", common.ErrorValidation, err)
	}
	if fileID != "" {
		if _, err := s.repomanager.Files(s.db).GetByIDAndOwner(ctx, fileID, p.ID); err != nil {
			return "", time.Time{}, err
		}
	}
	return s.issue(ctx, models.TokenStream, p.ID, sessionUUID, fileID, s.streamTokenValidityDuration)
}

// ValidateStreamToken checks a stream token presented with sessionUUID for
// fileID and returns the owner it was issued to. A token bound to another
// session is rejected.
func (s *TokenService) ValidateStreamToken(ctx context.Context, token, sessionUUID, fileID string) (string, error) {
	claims, err := s.signer.ParseScopedToken(token, models.TokenStream)
	if err != nil {
		return "", err
	}
	if sessionUUID == "" || claims.SessionUUID != sessionUUID {
		return "", common.ErrorUnauthorized
	}

	rec, err := s.find(ctx, token, models.TokenStream)
	if err != nil {
		return "", err
	}
	if rec.SessionUUID != sessionUUID || rec.UserID != claims.UserID {
		return "", common.ErrorUnauthorized
	}
	if rec.FileID != "" && rec.FileID != fileID {
		return "", common.ErrorUnauthorized
	}
	return rec.UserID, nil
}

// RemoveStreamToken ends a playback session early. Unknown tokens are
// ignored; a token bound to another session is not removed.
func (s *TokenService) RemoveStreamToken(ctx context.Context, token, sessionUUID string) error {
	repo := s.repomanager.TempTokens(s.db)
	rec, err := repo.Find(ctx, token, models.TokenStream)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}
	if rec.SessionUUID != sessionUUID {
		return common.ErrorUnauthorized
	}
	return repo.Delete(ctx, rec.UserID, token)
}

// IssueDownloadToken grants the principal temporary download capability.
func (s *TokenService) IssueDownloadToken(ctx context.Context, p models.Principal) (string, time.Time, error) {
	return s.issue(ctx, models.TokenDownload, p.ID, "", "", s.downloadTokenValidityDuration)
}

// ValidateDownloadToken returns the principal a download token was issued to.
func (s *TokenService) ValidateDownloadToken(ctx context.Context, token string) (string, error) {
	claims, err := s.signer.ParseScopedToken(token, models.TokenDownload)
	if err != nil {
		return "", err
	}
	rec, err := s.find(ctx, token, models.TokenDownload)
	if err != nil {
		return "", err
	}
	if rec.UserID != claims.UserID {
		return "", common.ErrorUnauthorized
	}
	return rec.UserID, nil
}

// RemoveTempToken revokes one of the principal's stream or download tokens.
func (s *TokenService) RemoveTempToken(ctx context.Context, p models.Principal, token string) error {
	return s.repomanager.TempTokens(s.db).Delete(ctx, p.ID, token)
}

// PurgeExpired removes expired temporary tokens.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repomanager.TempTokens(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug(ctx, "expired tokens purged", "count", n)
	}
	return n, nil
}

// --- helpers below ---

func (s *TokenService) issue(ctx context.Context, kind models.TokenKind, userID, sessionUUID, fileID string, validity time.Duration) (string, time.Time, error) {
	token, expires, err := s.signer.ScopedToken(kind, userID, sessionUUID, validity)
	if err != nil {
		return "", time.Time{}, common.ErrorInternal
	}

	rec := &models.TempToken{
		Token:       token,
		UserID:      userID,
		Kind:        kind,
		SessionUUID: sessionUUID,
		FileID:      fileID,
		ExpiresAt:   expires,
		CreatedAt:   s.now(),
	}
	if err := s.repomanager.TempTokens(s.db).Create(ctx, rec); err != nil {
		return "", time.Time{}, fmt.Errorf("error storing %s token: %w", kind, err)
	}
	return token, expires, nil
}

// find loads a persisted token. A missing row means the token was revoked.
func (s *TokenService) find(ctx context.Context, token string, kind models.TokenKind) (*models.TempToken, error) {
	rec, err := s.repomanager.TempTokens(s.db).Find(ctx, token, kind)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	if !s.now().Before(rec.ExpiresAt) {
		return nil, common.ErrTokenExpired
	}
	return rec, nil
}
