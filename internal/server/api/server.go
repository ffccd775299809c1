// Package api is the HTTP surface of the auth service: login, refresh,
// revoke, validate, and session listing over JSON.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ashid-platform/auth-service/internal/audit"
	"github.com/ashid-platform/auth-service/internal/logging"
	"github.com/ashid-platform/auth-service/internal/server/config"
	"github.com/ashid-platform/auth-service/internal/server/lifecycle"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	config *config.Config
	log    logging.Logger
	tokens *lifecycle.Coordinator
	audit  audit.Recorder
}

func NewServer(cfg *config.Config, log logging.Logger, tokens *lifecycle.Coordinator, recorder audit.Recorder) *Server {
	return &Server{
		config: cfg,
		log:    log,
		tokens: tokens,
		audit:  recorder,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /auth/token", s.Login())
	mux.Handle("POST /auth/refresh", s.Refresh())
	mux.Handle("POST /auth/revoke", s.Revoke())
	mux.Handle("GET /auth/validate", s.ValidateToken())
	mux.Handle("GET /auth/sessions", s.AuthMiddleware()(s.Sessions()))
	mux.Handle("GET /health", s.Health())

	return mux
}

// Start serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.config.HTTPAddr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "starting http server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info(ctx, "http server stopped")
	return nil
}
