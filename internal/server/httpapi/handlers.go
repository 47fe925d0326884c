package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/services"
	"github.com/go-chi/chi/v5"
)

const (
	filePartName  = "file"
	maxFieldBytes = 4 << 10
	maxJSONBody   = 64 << 10
)

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type linkResponse struct {
	Link string `json:"link"`
}

type renameRequest struct {
	Filename string `json:"filename"`
}

type moveRequest struct {
	ParentID   string `json:"parent_id"`
	ParentPath string `json:"parent_path"`
}

type shareEmailRequest struct {
	Contact string `json:"contact"`
}

// handleUpload streams the file part straight into the upload pipeline.
// Form fields must precede the file part.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {

	ctx := r.Context()
	p, _ := principalFrom(ctx)

	mr, err := r.MultipartReader()
	if err != nil {
		s.writeError(ctx, w, fmt.Errorf("%w: %v", common.ErrorValidation, err))
		return
	}

	var req services.UploadRequest
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeError(ctx, w, fmt.Errorf("%w: missing %q part", common.ErrorValidation, filePartName))
			return
		}
		if err != nil {
			s.writeError(ctx, w, fmt.Errorf("%w: %v", common.ErrAbortedUpload, err))
			return
		}

		if part.FormName() == filePartName {
			if req.Filename == "" {
				req.Filename = part.FileName()
			}
			req.Body = part
			break
		}

		v, err := readField(part)
		if err != nil {
			s.writeError(ctx, w, err)
			return
		}
		switch part.FormName() {
		case "filename":
			req.Filename = v
		case "parent_id":
			req.ParentID = v
		case "parent_path":
			req.ParentPath = v
		}
	}

	f, err := s.svc.Uploads.Upload(ctx, p, req)
	if err != nil {
		if errors.Is(err, common.ErrAbortedUpload) {
			s.metrics.uploadResult("aborted")
		} else {
			s.metrics.uploadResult("failed")
		}
		s.writeError(ctx, w, err)
		return
	}

	s.metrics.uploadResult("committed")
	s.logger.Info(ctx, "file uploaded", "file_id", f.ID, "size", f.Size)
	writeJSON(w, http.StatusCreated, toDTO(f, true))
}

func readField(part *multipart.Part) (string, error) {
	defer part.Close()
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrAbortedUpload, err)
	}
	if len(b) > maxFieldBytes {
		return "", fmt.Errorf("%w: field %q too long", common.ErrorValidation, part.FormName())
	}
	return string(b), nil
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	f, err := s.svc.Files.GetInfo(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(f, true))
}

func (s *Server) handlePublicInfo(w http.ResponseWriter, r *http.Request) {
	f, err := s.svc.Files.GetPublicInfo(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "link"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(f, false))
}

func (s *Server) handleQuickList(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	files, err := s.svc.Files.QuickList(r.Context(), p)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(files))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {

	ctx := r.Context()
	p, _ := principalFrom(ctx)
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"))
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	offset, err := intParam(q.Get("offset"))
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	files, err := s.svc.Files.List(ctx, p, models.ListOptions{
		ParentID: q.Get("parent"),
		Search:   q.Get("search"),
		Sort:     models.ParseSortOrder(q.Get("sort")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(files))
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", common.ErrorValidation, v)
	}
	return n, nil
}

func (s *Server) handleSuggestedList(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	files, err := s.svc.Files.SuggestedList(r.Context(), p, r.URL.Query().Get("search"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTOs(files))
}

func (s *Server) handleQuickThumbnail(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	id := chi.URLParam(r, "id")
	data, err := s.svc.Retrieval.QuickThumbnail(r.Context(), p, id)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeContent(w, r, services.QuickContent(data, id+".jpg"), "thumbnail")
}

func (s *Server) handleFullThumbnail(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	c, err := s.svc.Retrieval.FullThumbnail(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeContent(w, r, c, "thumbnail")
}

// handleDownload accepts either an access token or a download token in
// the tempToken query parameter.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	rangeHeader := r.Header.Get("Range")

	var (
		c   *services.Content
		err error
	)
	if p, ok := principalFrom(ctx); ok {
		c, err = s.svc.Retrieval.Download(ctx, p, id, rangeHeader)
	} else if tok := r.URL.Query().Get("tempToken"); tok != "" {
		c, err = s.svc.Retrieval.DownloadWithToken(ctx, tok, id, rangeHeader)
	} else {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}
	s.writeContent(w, r, c, "download")
}

func (s *Server) handlePublicDownload(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Retrieval.PublicDownload(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "link"), r.Header.Get("Range"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeContent(w, r, c, "public")
}

// streamCredentials reads the stream token from its cookie or the token
// query parameter, and the session UUID from its header or query parameter.
func streamCredentials(r *http.Request) (token, sessionUUID string) {
	if c, err := r.Cookie(common.StreamTokenCookieName); err == nil {
		token = c.Value
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	sessionUUID = r.Header.Get(common.SessionUUIDHeaderName)
	if sessionUUID == "" {
		sessionUUID = r.URL.Query().Get(common.SessionUUIDHeaderName)
	}
	return token, sessionUUID
}

func (s *Server) handleStreamVideo(w http.ResponseWriter, r *http.Request) {
	token, sessionUUID := streamCredentials(r)
	c, err := s.svc.Retrieval.StreamVideo(r.Context(), token, sessionUUID, chi.URLParam(r, "id"), r.Header.Get("Range"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	s.writeContent(w, r, c, "stream")
}

func (s *Server) handleStreamToken(w http.ResponseWriter, r *http.Request) {

	ctx := r.Context()
	p, _ := principalFrom(ctx)
	_, sessionUUID := streamCredentials(r)

	tok, expires, err := s.svc.Tokens.IssueStreamToken(ctx, p, sessionUUID, r.URL.Query().Get("file_id"))
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     common.StreamTokenCookieName,
		Value:    tok,
		Path:     "/file-service",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok, ExpiresAt: expires})
}

func (s *Server) handleRemoveStreamToken(w http.ResponseWriter, r *http.Request) {
	token, sessionUUID := streamCredentials(r)
	if token != "" {
		if err := s.svc.Tokens.RemoveStreamToken(r.Context(), token, sessionUUID); err != nil {
			s.writeError(r.Context(), w, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:   common.StreamTokenCookieName,
		Path:   "/file-service",
		MaxAge: -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDownloadToken(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	tok, expires, err := s.svc.Tokens.IssueDownloadToken(r.Context(), p)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok, ExpiresAt: expires})
}

func (s *Server) handleRemoveTempToken(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	tok := r.URL.Query().Get("token")
	if tok == "" {
		s.writeError(r.Context(), w, fmt.Errorf("%w: token is required", common.ErrorValidation))
		return
	}
	if err := s.svc.Tokens.RemoveTempToken(r.Context(), p, tok); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrorValidation, err)
	}
	return nil
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if err := s.svc.Files.Rename(r.Context(), p, chi.URLParam(r, "id"), req.Filename); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if err := s.svc.Files.Move(r.Context(), p, chi.URLParam(r, "id"), req.ParentID, req.ParentPath); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	if err := s.svc.Files.Delete(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMakePublic(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	link, err := s.svc.Tokens.MakePublic(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, linkResponse{Link: link})
}

func (s *Server) handleMakeOneTime(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	link, err := s.svc.Tokens.MakeOneTimePublic(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, linkResponse{Link: link})
}

func (s *Server) handleRemoveLink(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	if err := s.svc.Tokens.RemoveLink(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendShareEmail(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	var req shareEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if err := s.svc.Files.SendShareEmail(r.Context(), p, chi.URLParam(r, "id"), req.Contact); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
