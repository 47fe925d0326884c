package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/common"
	"github.com/dmitrijs2005/gophdrive/internal/rangex"
	"github.com/dmitrijs2005/gophdrive/internal/server/models"
	"github.com/dmitrijs2005/gophdrive/internal/server/services"
)

const copyBufferSize = 32 << 10

type fileDTO struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	Size         int64     `json:"size"`
	ParentID     string    `json:"parent_id"`
	ParentPath   string    `json:"parent_path"`
	UploadedAt   time.Time `json:"uploaded_at"`
	HasThumbnail bool      `json:"has_thumbnail"`
	IsVideo      bool      `json:"is_video"`
	LinkType     string    `json:"link_type,omitempty"`
	Link         string    `json:"link,omitempty"`
}

// toDTO hides the link unless owner is set.
func toDTO(f *models.File, owner bool) fileDTO {
	d := fileDTO{
		ID:           f.ID,
		Filename:     f.Filename,
		Size:         f.Size,
		ParentID:     f.ParentID,
		ParentPath:   f.ParentPath,
		UploadedAt:   f.UploadedAt,
		HasThumbnail: f.HasThumbnail(),
		IsVideo:      f.IsVideo,
	}
	if owner {
		d.LinkType = string(f.Share.LinkType)
		d.Link = f.Share.Link
	}
	return d
}

func toDTOs(files []*models.File) []fileDTO {
	out := make([]fileDTO, 0, len(files))
	for _, f := range files {
		out = append(out, toDTO(f, true))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps service errors onto responses. Denials collapse into one
// 404 so a caller cannot tell a foreign file from a missing one.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {

	var rerr *rangex.Error

	switch {
	case common.IsAccessDenied(err):
		writeJSONError(w, http.StatusNotFound, "not found")
	case errors.As(err, &rerr):
		w.Header().Set("Content-Range", rangex.Unsatisfied(rerr.Size))
		writeJSONError(w, http.StatusRequestedRangeNotSatisfiable, "requested range not satisfiable")
	case errors.Is(err, common.ErrInvalidRange):
		writeJSONError(w, http.StatusRequestedRangeNotSatisfiable, "requested range not satisfiable")
	case errors.Is(err, common.ErrorValidation):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrAbortedUpload):
		s.logger.Warn(ctx, "upload aborted by client", "error", err)
		w.Header().Set("Connection", "close")
		writeJSONError(w, http.StatusBadRequest, "upload aborted")
	case errors.Is(err, context.Canceled):
		s.logger.Debug(ctx, "request canceled", "error", err)
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeContent streams c to the client, flushing after every buffer. A
// failure after the status line is written aborts the connection so the
// client never mistakes a truncated body for a complete one.
func (s *Server) writeContent(w http.ResponseWriter, r *http.Request, c *services.Content, kind string) {
	defer c.Body.Close()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType(c))
	h.Set("Content-Length", strconv.FormatInt(c.Range.Length(), 10))
	if c.Filename != "" {
		if cd := mime.FormatMediaType("attachment", map[string]string{"filename": c.Filename}); cd != "" {
			h.Set("Content-Disposition", cd)
		}
	}

	status := http.StatusOK
	if c.Range.Partial {
		status = http.StatusPartialContent
		h.Set("Content-Range", c.Range.ContentRange())
	}
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}

	n, err := flushCopy(w, c.Body)
	s.metrics.served(kind, n)
	if err != nil {
		s.logger.Error(r.Context(), "stream interrupted", "error", err, "written", n, "expected", c.Range.Length())
		panic(http.ErrAbortHandler)
	}
}

func contentType(c *services.Content) string {
	if c.ContentType != "" {
		return c.ContentType
	}
	if t := mime.TypeByExtension(filepath.Ext(c.Filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func flushCopy(w http.ResponseWriter, src io.Reader) (int64, error) {
	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)

	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return written, ferr
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
