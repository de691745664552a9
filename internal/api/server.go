// Package api serves the comparison session over HTTP: live state, per-note
// statuses, the final result, a server-sent event stream and Prometheus
// metrics.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/notematch/internal/events"
	"github.com/tphakala/notematch/internal/logger"
	"github.com/tphakala/notematch/internal/observability"
	"github.com/tphakala/notematch/internal/session"
)

// Server timeouts.
const (
	ReadTimeout     = 10 * time.Second
	IdleTimeout     = 60 * time.Second
	ShutdownTimeout = 5 * time.Second
)

// Session is the part of session.Session the API needs.
type Session interface {
	Snapshot() session.Snapshot
	Cancel()
	Subscribe(fn func(events.Event)) func()
}

// Server is the HTTP API server.
type Server struct {
	echo      *echo.Echo
	session   Session
	results   *ResultStore
	metrics   *observability.Metrics
	log       logger.Logger
	heartbeat time.Duration
	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithResults serves finished results from store under /api/v1/results.
func WithResults(store *ResultStore) ServerOption {
	return func(s *Server) { s.results = store }
}

// WithMetrics serves m under /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithLogger replaces the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// WithHeartbeat sets the event stream heartbeat interval.
func WithHeartbeat(d time.Duration) ServerOption {
	return func(s *Server) { s.heartbeat = d }
}

// GetLogger returns the api package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// New creates a server for sess with all routes registered.
func New(sess Session, opts ...ServerOption) *Server {
	s := &Server{
		session:   sess,
		log:       GetLogger(),
		heartbeat: 30 * time.Second,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = ReadTimeout
	s.echo.Server.IdleTimeout = IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestLogger(s.log))
	s.echo.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))
}

// Run serves on listen until ctx is cancelled and then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	s.echo.Listener = ln

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP API starting", logger.String("address", ln.Addr().String()))
		errCh <- s.echo.Start("")
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP API shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	s.log.Info("HTTP API stopped")
	return nil
}
