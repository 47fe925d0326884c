package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(s.metrics.instrument)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/file-service", func(r chi.Router) {
		// capability-authorized routes
		r.Get("/public/download/{id}/{link}", s.handlePublicDownload)
		r.Get("/public/info/{id}/{link}", s.handlePublicInfo)
		r.Get("/stream-video/{id}", s.handleStreamVideo)
		r.Delete("/stream-video-token", s.handleRemoveStreamToken)

		// either a principal or a download token
		r.With(s.optionalAuth).Get("/download/{id}", s.handleDownload)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Post("/upload", s.handleUpload)
			r.Get("/info/{id}", s.handleInfo)
			r.Get("/quick-list", s.handleQuickList)
			r.Get("/list", s.handleList)
			r.Get("/suggested-list", s.handleSuggestedList)
			r.Get("/thumbnail/{id}", s.handleQuickThumbnail)
			r.Get("/full-thumbnail/{id}", s.handleFullThumbnail)
			r.Patch("/rename/{id}", s.handleRename)
			r.Patch("/move/{id}", s.handleMove)
			r.Delete("/remove/{id}", s.handleDelete)
			r.Patch("/make-public/{id}", s.handleMakePublic)
			r.Patch("/make-one/{id}", s.handleMakeOneTime)
			r.Delete("/remove-link/{id}", s.handleRemoveLink)
			r.Post("/send-share-email/{id}", s.handleSendShareEmail)
			r.Get("/download-token", s.handleDownloadToken)
			r.Get("/stream-video-token", s.handleStreamToken)
			r.Delete("/remove-temp-token", s.handleRemoveTempToken)
		})
	})

	return r
}
