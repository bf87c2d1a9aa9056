// Package api implements the JSON API for the review service: annotation
// set management, baking, the range-serving document proxy and project file
// administration.
package api

import (
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/inkwell-review/inkwell/internal/annotation"
	"github.com/inkwell-review/inkwell/internal/bake"
	"github.com/inkwell-review/inkwell/internal/conf"
	"github.com/inkwell-review/inkwell/internal/datastore"
	"github.com/inkwell-review/inkwell/internal/logging"
	"github.com/inkwell-review/inkwell/internal/objstore"
	"github.com/inkwell-review/inkwell/internal/observability"
)

// Size cache TTLs for the proxy. Missing objects are cached briefly so a
// just-uploaded baked rendition becomes visible quickly.
const (
	sizeCacheTTL         = 5 * time.Minute
	sizeCacheNegativeTTL = 10 * time.Second
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	DS       datastore.Interface
	ObjStore objstore.Interface
	Store    *annotation.Store
	Baker    *bake.Engine
	Settings *conf.Settings

	logger         *log.Logger
	sizeCache      *cache.Cache   // object sizes for the proxy
	bakeSem        chan struct{}  // bounds concurrent bake operations
	metrics        *observability.Metrics
	apiLogger      *slog.Logger
	apiLevelVar    *slog.LevelVar
	apiLoggerClose func() error
}

// New creates the API controller and registers all routes on the given Echo
// instance.
func New(e *echo.Echo, ds datastore.Interface, blobs objstore.Interface,
	baker *bake.Engine, settings *conf.Settings, logger *log.Logger,
	metrics *observability.Metrics) (*Controller, error) {
	return NewWithOptions(e, ds, blobs, baker, settings, logger, metrics, true)
}

// NewWithOptions creates a new API controller with optional route
// initialization. Set initializeRoutes to false in tests that register
// handlers directly.
func NewWithOptions(e *echo.Echo, ds datastore.Interface, blobs objstore.Interface,
	baker *bake.Engine, settings *conf.Settings, logger *log.Logger,
	metrics *observability.Metrics, initializeRoutes bool) (*Controller, error) {

	if logger == nil {
		logger = log.Default()
	}

	workers := settings.Bake.Workers
	if workers < 1 {
		workers = 1
	}

	c := &Controller{
		Echo:      e,
		Group:     e.Group("/api/v1"),
		DS:        ds,
		ObjStore:  blobs,
		Store:     annotation.NewStore(blobs),
		Baker:     baker,
		Settings:  settings,
		logger:    logger,
		sizeCache: cache.New(sizeCacheTTL, 2*sizeCacheTTL),
		bakeSem:   make(chan struct{}, workers),
		metrics:   metrics,
	}

	// Structured logger for API requests.
	initialLevel := slog.LevelInfo
	if settings.WebServer.Debug {
		initialLevel = slog.LevelDebug
	}
	c.apiLevelVar = new(slog.LevelVar)
	c.apiLevelVar.Set(initialLevel)

	apiLogger, closeFunc, err := logging.NewFileLogger("logs/web.log", "api", c.apiLevelVar)
	if err != nil {
		logger.Printf("Warning: failed to initialize API structured logger: %v", err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: c.apiLevelVar})
		c.apiLogger = slog.New(fbHandler).With("service", "api")
		c.apiLoggerClose = func() error { return nil }
	} else {
		c.apiLogger = apiLogger
		c.apiLoggerClose = closeFunc
	}

	if initializeRoutes {
		c.initRoutes()
	}

	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	return c, nil
}

// initRoutes registers all API endpoints.
func (c *Controller) initRoutes() {
	// Health check endpoint - publicly accessible
	c.Group.GET("/health", c.HealthCheck)

	c.initReviewRoutes()
	c.initFileRoutes()
}

func (c *Controller) initReviewRoutes() {
	g := c.Group.Group("/reviews", c.requireUser)
	g.GET("/files/:id/annotations", c.GetAnnotations)
	g.POST("/files/:id/annotations", c.SaveAnnotations)
	g.POST("/files/:id/annotations/add", c.AddAnnotation)
	g.POST("/files/:id/bake", c.BakeDocument)
	g.GET("/files/:id/proxy", c.ProxyDocument)
	g.GET("/files/:id/view-url", c.GetViewURL)
}

func (c *Controller) initFileRoutes() {
	g := c.Group.Group("/projects/:projectID/files", c.requireUser)
	g.POST("", c.UploadFile)
	g.GET("", c.ListFiles)
	g.DELETE("/:id", c.DeleteFile)
}

// HealthCheck handles the API health check endpoint.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if c.Settings != nil && c.Settings.WebServer.Debug {
		response["environment"] = "development"
	} else {
		response["environment"] = "production"
	}

	dbStatus := "connected"
	if _, err := c.DS.ListFileAssets(0); err != nil {
		dbStatus = "disconnected"
		response["database_error"] = err.Error()
	}
	response["database_status"] = dbStatus

	return ctx.JSON(http.StatusOK, response)
}

// Shutdown performs cleanup of the resources used by the API controller.
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			c.logger.Printf("Error closing API log file: %v", err)
		}
	}
	if c.sizeCache != nil {
		c.sizeCache.Flush()
	}
}

// ErrorResponse is the envelope for all API error payloads.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	correlationID := generateCorrelationID()

	var errorStr string
	if err != nil {
		errorStr = err.Error()
	} else {
		errorStr = message
	}

	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	}
}

// generateCorrelationID creates a unique identifier for error tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError constructs and returns an appropriate error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	ip := ctx.RealIP()
	c.logger.Printf("API Error [%s] from %s: %s: %v", errorResp.CorrelationID, ip, message, err)

	if c.apiLogger != nil {
		var errorStr string
		if err != nil {
			errorStr = err.Error()
		} else {
			errorStr = message
		}
		c.apiLogger.Error("API Error",
			"correlation_id", errorResp.CorrelationID,
			"message", message,
			"error", errorStr,
			"code", code,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ip,
		)
	}

	if c.metrics != nil {
		c.metrics.HTTP.RecordRequestError(ctx.Request().Method, ctx.Path(), errorType(code))
	}

	return ctx.JSON(code, errorResp)
}

func errorType(code int) string {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return "auth"
	case code == http.StatusNotFound:
		return "not_found"
	case code >= 400 && code < 500:
		return "validation"
	default:
		return "system"
	}
}

// Debug logs debug messages when debug mode is enabled.
func (c *Controller) Debug(format string, v ...any) {
	if c.Settings.WebServer.Debug {
		msg := fmt.Sprintf(format, v...)
		c.logger.Printf("[DEBUG] %s", msg)
		if c.apiLogger != nil {
			c.apiLogger.Debug(msg)
		}
	}
}

// logAPIRequest is a helper to log API requests with common context fields.
func (c *Controller) logAPIRequest(ctx echo.Context, level slog.Level, msg string, args ...any) {
	if c.apiLogger == nil {
		return
	}

	baseAttrs := []any{
		"path", ctx.Request().URL.Path,
		"ip", ctx.RealIP(),
	}
	baseAttrs = append(baseAttrs, args...)

	switch level {
	case slog.LevelDebug:
		c.apiLogger.Debug(msg, baseAttrs...)
	case slog.LevelInfo:
		c.apiLogger.Info(msg, baseAttrs...)
	case slog.LevelWarn:
		c.apiLogger.Warn(msg, baseAttrs...)
	case slog.LevelError:
		c.apiLogger.Error(msg, baseAttrs...)
	default:
		c.apiLogger.Log(ctx.Request().Context(), level, msg, baseAttrs...)
	}
}
