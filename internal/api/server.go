package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/catchsync/internal/api/middleware"
	"github.com/tphakala/catchsync/internal/catalog"
	"github.com/tphakala/catchsync/internal/catch"
	"github.com/tphakala/catchsync/internal/catchsync"
	"github.com/tphakala/catchsync/internal/conf"
	"github.com/tphakala/catchsync/internal/feed"
	"github.com/tphakala/catchsync/internal/identity"
	"github.com/tphakala/catchsync/internal/logger"
)

const imagesPrefix = "/api/v1/images/"

// Catalog is the set of user actions the API exposes.
type Catalog interface {
	Capture(ctx context.Context, req catalog.CaptureRequest) (catch.LocalCatch, error)
	Relabel(ctx context.Context, localID, label string) error
	DeleteRow(ctx context.Context, key catch.RowKey) error
	UploadOne(ctx context.Context, localID string) (catchsync.Result, error)
	Collection(ctx context.Context) (catalog.Collection, error)
	Feed(ctx context.Context) (feed.Snapshot, error)
	Refresh(ctx context.Context) (feed.Snapshot, error)
}

// SyncStatus reports and drives the sync engine.
type SyncStatus interface {
	Status() catchsync.Status
	LastResult() (catchsync.Result, bool)
	LastSync() time.Time
	TriggerSync(ctx context.Context, uid string) (catchsync.Result, bool)
}

// ImageServer serves stored catch photos.
type ImageServer interface {
	Serve(c echo.Context, relPath string) error
	Dir() string
}

// Server is the local HTTP API server.
type Server struct {
	echo   *echo.Echo
	config *Config
	log    logger.Logger

	catalog  Catalog
	sync     SyncStatus
	identity identity.Resolver
	images   ImageServer
	metrics  http.Handler

	wg        sync.WaitGroup
	startTime time.Time
	now       func() time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithImages serves stored photos under /api/v1/images.
func WithImages(images ImageServer) ServerOption {
	return func(s *Server) { s.images = images }
}

// WithMetricsHandler serves h at /metrics when metrics are enabled.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithConfig overrides the configuration derived from settings.
func WithConfig(cfg *Config) ServerOption {
	return func(s *Server) { s.config = cfg }
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, cat Catalog, st SyncStatus, id identity.Resolver, opts ...ServerOption) (*Server, error) {
	s := &Server{
		config:    ConfigFromSettings(settings),
		log:       GetLogger(),
		catalog:   cat,
		sync:      st,
		identity:  id,
		startTime: time.Now(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleHTTPError

	s.echo.Server.ReadTimeout = s.config.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.WriteTimeout
	s.echo.Server.IdleTimeout = s.config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized",
		logger.String("listen", s.config.Listen),
		logger.Bool("metrics", s.config.MetricsEnabled && s.metrics != nil))
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		return c.Path() == "/metrics" || c.Path() == "/health"
	}))

	s.echo.Use(mw.NewCORS(mw.SecurityConfig{AllowedOrigins: s.config.AllowedOrigins}))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders())
	s.echo.Use(mw.NoStore(imagesPrefix))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	if s.config.MetricsEnabled && s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/catches", s.listCatches)
	v1.POST("/catches", s.captureCatch)
	v1.PATCH("/catches/local/:id", s.relabelCatch)
	v1.POST("/catches/local/:id/upload", s.uploadCatch)
	v1.DELETE("/catches/:key", s.deleteCatch)
	v1.GET("/sync", s.syncStatus)
	v1.POST("/sync", s.triggerSync)
	v1.GET("/collection", s.collection)
	if s.images != nil {
		v1.GET("/images/*", s.serveImage)
	}
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      s.now().Format(time.RFC3339),
	})
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start begins serving on the configured address in a background goroutine
// and returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Listen, err)
	}
	s.echo.Listener = ln

	s.wg.Go(func() {
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", logger.Error(err))
		}
	})
	s.log.Info("HTTP server started", logger.String("address", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.echo.Listener != nil {
		return s.echo.Listener.Addr().String()
	}
	return s.config.Listen
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.wg.Wait()
	s.log.Info("server shutdown complete")
	return nil
}
