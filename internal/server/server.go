package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"gorm.io/gorm"

	"larder/internal/catalog"
	"larder/internal/handlers"
	applog "larder/internal/log"
	"larder/internal/schema"
	"larder/internal/storage"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
)

// Config captures the runtime configuration for the HTTP server.
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	AllowedOrigins    []string

	Database    *gorm.DB
	Constraints schema.Source
	Storage     storage.ObjectStorage
	Images      catalog.ImageFetcher
	Pagination  handlers.Pagination
}

// Server wraps an http.Server and exposes helpers for bootstrapping a
// production-ready web service.
type Server struct {
	config     Config
	httpServer *http.Server
}

// New builds a new Server using the provided configuration.
func New(cfg Config) (*Server, error) {
	applog.Debug(context.Background(), "initializing server",
		"addr", cfg.Addr,
		"allowedOrigins", cfg.AllowedOrigins,
	)

	if cfg.Database == nil {
		return nil, errors.New("server: database is required")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		applog.Debug(context.Background(), "read header timeout not provided, using default")
		cfg.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		applog.Debug(context.Background(), "shutdown timeout not provided, using default")
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	service, err := catalog.NewService(cfg.Database, cfg.Constraints, cfg.Images, cfg.Storage)
	if err != nil {
		return nil, err
	}
	handlers.Configure(service, cfg.Pagination)

	applog.Debug(context.Background(), "handler dependencies configured")

	handler := withCORS(cfg.AllowedOrigins, withMiddleware(newRouter()))

	applog.Debug(context.Background(), "http handler chain prepared")

	return &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
	}, nil
}

// Start begins serving HTTP traffic using the underlying http.Server.
func (s *Server) Start() error {
	applog.Debug(context.Background(), "server starting listener", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server with a timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	applog.Debug(ctx, "server initiating graceful shutdown")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured HTTP handler, enabling integration tests.
func (s *Server) Handler() http.Handler {
	applog.Debug(context.Background(), "server handler requested")
	return s.httpServer.Handler
}
