// Package httpapi exposes the file services over HTTP using chi.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophdrive/internal/logging"
	"github.com/dmitrijs2005/gophdrive/internal/server/auth"
	"github.com/dmitrijs2005/gophdrive/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

// Services groups the business services the handlers call.
type Services struct {
	Uploads   *services.UploadService
	Retrieval *services.RetrievalService
	Tokens    *services.TokenService
	Files     *services.FileService
}

type Server struct {
	address string
	svc     Services
	signer  *auth.Signer
	metrics *Metrics
	logger  logging.Logger
}

func NewServer(a string, l logging.Logger, svc Services, signer *auth.Signer, m *Metrics) *Server {
	if m == nil {
		m = NewMetrics()
	}
	return &Server{
		address: a,
		svc:     svc,
		signer:  signer,
		metrics: m,
		logger:  l.With("module", "http_server"),
	}
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Error(sctx, "graceful shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
