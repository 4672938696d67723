package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/docrag/cache"
)

const statusPath = "/submit/status/"

// ErrBackendRequired is returned when no backend is provided.
var ErrBackendRequired = errors.New("backend required")

// Server serves the HTTP API.
type Server struct {
	engine      *gin.Engine
	http        *http.Server
	cache       cache.Cache
	cacheTTL    time.Duration
	development bool
	logger      *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithResponseCache caches terminal GET responses in c for ttl.
func WithResponseCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Server) error {
		s.cache = c
		s.cacheTTL = ttl
		return nil
	}
}

// WithDevelopment includes internal error detail in 500 responses.
func WithDevelopment(enabled bool) Option {
	return func(s *Server) error {
		s.development = enabled
		return nil
	}
}

// NewServer builds the router for backend.
func NewServer(backend Backend, opts ...Option) (*Server, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	s := &Server{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "api")

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.logger))

	h := &Handler{backend: backend, development: s.development, logger: s.logger}
	engine.GET("/health", h.health)
	engine.POST("/submit", h.submit)
	engine.POST("/query", h.query)

	status := engine.Group(statusPath)
	if s.cache != nil {
		status.Use(responseCache(s.cache, s.cacheTTL, s.logger))
	}
	status.GET(":jobId", h.status)

	s.engine = engine
	s.http = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String())
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
