// Package http assembles the gin engine and the HTTP server of the
// ContactScope API.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/internal/interfaces/http/handlers"
	"github.com/turtacn/ContactScope/internal/interfaces/http/middleware"
	"github.com/turtacn/ContactScope/pkg/errors"
)

// RouterConfig holds everything NewRouter mounts. Nil handlers are skipped.
type RouterConfig struct {
	Mode string

	AnalysisHandler *handlers.AnalysisHandler
	HealthHandler   *handlers.HealthHandler

	Logger        logging.Logger
	SlowThreshold time.Duration

	// Recorder receives per-route request metrics; MetricsHandler serves them
	// on MetricsPath.
	Recorder       middleware.HTTPRecorder
	MetricsHandler http.Handler
	MetricsPath    string

	CORS      *middleware.CORSConfig
	RateLimit middleware.RateLimitConfig
}

// NewRouter builds the route tree. Global order is recovery, request id,
// logging, metrics, CORS. Only /api/v1 is rate limited.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := gin.New()
	r.Use(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.RequestLogging(logger, middleware.LoggingConfig{
			SkipPaths:     []string{"/healthz", "/readyz", metricsPath},
			SlowThreshold: cfg.SlowThreshold,
		}),
	)
	if cfg.Recorder != nil {
		r.Use(middleware.Metrics(cfg.Recorder))
	}
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}
	if cfg.MetricsHandler != nil {
		r.GET(metricsPath, gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group("/api/v1", middleware.RateLimit(cfg.RateLimit))
	if cfg.AnalysisHandler != nil {
		cfg.AnalysisHandler.RegisterRoutes(api)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{
			Code:      errors.CodeNotFound,
			Message:   "route not found",
			RequestID: middleware.GetRequestID(c),
		})
	})
	return r
}
