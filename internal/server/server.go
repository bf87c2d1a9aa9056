// Package server wires the HTTP layer together: Echo, middleware, the JSON
// API controller and its backing stores.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/inkwell-review/inkwell/internal/api"
	"github.com/inkwell-review/inkwell/internal/bake"
	"github.com/inkwell-review/inkwell/internal/conf"
	"github.com/inkwell-review/inkwell/internal/datastore"
	"github.com/inkwell-review/inkwell/internal/logging"
	"github.com/inkwell-review/inkwell/internal/objstore"
	"github.com/inkwell-review/inkwell/internal/observability"
)

// Server encapsulates the Echo server and the services behind it.
type Server struct {
	Echo     *echo.Echo
	DS       datastore.Interface
	Blobs    objstore.Interface
	Baker    *bake.Engine
	Settings *conf.Settings
	Metrics  *observability.Metrics
	API      *api.Controller

	webLogger      *slog.Logger
	webLoggerClose func() error
}

// New builds a fully wired server from settings. The datastore is opened and
// migrated, the object store connected and the bake engine initialized before
// any route is registered.
func New(ctx context.Context, settings *conf.Settings) (*Server, error) {
	configureDefaultSettings(settings)

	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return nil, fmt.Errorf("failed to open datastore: %w", err)
	}

	blobs, err := openObjectStore(ctx, settings)
	if err != nil {
		_ = ds.Close()
		return nil, err
	}

	baker, err := bake.New(&settings.Bake, logging.ForService("bake"))
	if err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("failed to initialize bake engine: %w", err)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	s := &Server{
		Echo:     echo.New(),
		DS:       ds,
		Blobs:    blobs,
		Baker:    baker,
		Settings: settings,
		Metrics:  metrics,
	}

	s.Echo.HideBanner = true
	s.Echo.IPExtractor = echo.ExtractIPFromXFFHeader()

	s.initLogger()
	s.configureMiddleware()

	s.API, err = api.New(s.Echo, ds, blobs, baker, settings, log.Default(), metrics)
	if err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("failed to initialize API: %w", err)
	}

	return s, nil
}

// openObjectStore selects the blob backend from settings. The memory backend
// is for development and tests only; data does not survive a restart.
func openObjectStore(ctx context.Context, settings *conf.Settings) (objstore.Interface, error) {
	switch settings.Storage.Backend {
	case "minio":
		store, err := objstore.NewMinioStore(ctx, &settings.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to object store: %w", err)
		}
		return store, nil
	case "memory":
		return objstore.NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", settings.Storage.Backend)
	}
}

// Start begins listening and serving HTTP requests.
func (s *Server) Start() {
	errChan := make(chan error)

	go func() {
		if err := s.Echo.Start(s.Settings.WebServer.Address); err != nil {
			errChan <- err
		}
	}()

	go handleServerError(errChan)

	fmt.Printf("HTTP server started on %s\n", s.Settings.WebServer.Address)
}

// Shutdown stops the HTTP server and releases the resources behind it.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)

	if s.API != nil {
		s.API.Shutdown()
	}
	if s.webLoggerClose != nil {
		if closeErr := s.webLoggerClose(); closeErr != nil {
			log.Printf("Error closing web log file: %v", closeErr)
		}
	}
	if dbErr := s.DS.Close(); dbErr != nil && err == nil {
		err = dbErr
	}
	return err
}

// configureMiddleware sets up middleware for the server.
func (s *Server) configureMiddleware() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		// Document bytes are already compressed and the proxy's range
		// replies must keep their exact Content-Length.
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Path(), "/proxy")
		},
	}))
	s.Echo.Use(s.requestMetricsMiddleware)
}

// requestMetricsMiddleware records per-request counters and latency, and
// mirrors requests into the structured web log.
func (s *Server) requestMetricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		elapsed := time.Since(start)

		status := c.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
		}

		if s.Metrics != nil {
			s.Metrics.HTTP.RecordRequest(c.Request().Method, c.Path(), status, elapsed.Seconds())
		}
		if s.webLogger != nil {
			s.webLogger.Info("request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"duration_ms", elapsed.Milliseconds(),
				"ip", c.RealIP(),
			)
		}
		return err
	}
}

// configureDefaultSettings sets default values for server settings.
func configureDefaultSettings(settings *conf.Settings) {
	if settings.WebServer.Address == "" {
		settings.WebServer.Address = ":8080"
	}
	if settings.Storage.Backend == "" {
		settings.Storage.Backend = "memory"
	}
}

// handleServerError listens for server errors and handles them.
func handleServerError(errChan chan error) {
	for err := range errChan {
		log.Printf("Server error: %v", err)
	}
}

// initLogger initializes the structured web request logger.
func (s *Server) initLogger() {
	if !s.Settings.WebServer.Log.Enabled {
		return
	}

	webLogger, closeFunc, err := logging.NewFileLogger("logs/web.log", "web", slog.LevelInfo)
	if err != nil {
		log.Printf("Warning: failed to initialize web structured logger: %v", err)
		return
	}
	s.webLogger = webLogger
	s.webLoggerClose = closeFunc

	// Rely on the middleware log, not Echo's own.
	s.Echo.Logger.SetOutput(io.Discard)
	s.Echo.Logger.SetLevel(99)
}
