// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/chikitsa-cloud/chikitsa-go/internal/frameworks/service"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/config"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/deps"
	"github.com/chikitsa-cloud/chikitsa-go/internal/platform/logutil"
)

var ErrMissingSharedDeps = errors.New("shared deps not initialized: call deps.SetDeps() before server.New()")

// Server wraps the HTTP server and its mounted services.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	services   []service.Service

	// mountedServices is in mount order; Shutdown closes them in reverse.
	mountedServices []service.Service
}

// New creates a Server that mounts services in the given order. Nil entries
// are skipped. Returns ErrMissingSharedDeps if deps.SetDeps has not run.
func New(cfg *config.Config, logger *slog.Logger, services []service.Service) (*Server, error) {
	logger = logutil.NoopIfNil(logger)

	if deps.GetDeps() == nil {
		return nil, ErrMissingSharedDeps
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		services: services,
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on cfg.ListenAddr and blocks until the server is shut down.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("starting server", "addr", l.Addr().String(), "mode", s.cfg.Mode)
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server and all mounted services.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	httpErr := s.httpServer.Shutdown(ctx)

	var closeErrs []error
	for i := len(s.mountedServices) - 1; i >= 0; i-- {
		svc := s.mountedServices[i]
		if err := svc.Close(); err != nil {
			s.logger.Warn("service close error", "service", svc.Prefix(), "error", err)
			closeErrs = append(closeErrs, err)
			continue
		}
		s.logger.Debug("service closed", "service", svc.Prefix())
	}

	return errors.Join(append([]error{httpErr}, closeErrs...)...)
}
