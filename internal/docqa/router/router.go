// Package router provides docqa service routing.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/pkg/infra/middleware"
	corsopts "github.com/kart-io/docqa/pkg/options/cors"
)

// Config controls the middleware chain.
type Config struct {
	// Mode is the gin mode (debug, release, test).
	Mode string
	// RequestTimeout bounds /upload and /ask.
	RequestTimeout time.Duration
	// MaxUploadSize bounds the /upload body.
	MaxUploadSize int64
	// Tracing enables the otelgin middleware.
	Tracing bool
	// CORS configures cross-origin headers; nil or disabled skips the middleware.
	CORS *corsopts.Options
}

// New builds the gin engine with all docqa routes registered.
func New(h *handler.DocQAHandler, cfg Config) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(), middleware.RequestID())
	if cfg.CORS != nil && cfg.CORS.Enabled {
		r.Use(middleware.CORSWithOptions(cfg.CORS))
	}
	if cfg.Tracing {
		r.Use(otelgin.Middleware(handler.ServiceName))
	}
	r.Use(middleware.Logger(middleware.DefaultSkipPaths...))

	Register(r, h, cfg)
	return r
}

// Register registers the docqa routes on r.
func Register(r gin.IRouter, h *handler.DocQAHandler, cfg Config) {
	logger.Info("Registering docqa routes...")

	r.GET("/", h.Health)
	r.GET("/status", h.Status)
	r.GET("/metrics", h.Metrics)

	timeout := middleware.Timeout(cfg.RequestTimeout)
	r.POST("/upload", middleware.BodyLimit(cfg.MaxUploadSize), timeout, h.Upload)
	r.POST("/ask", timeout, h.Ask)

	if e, ok := r.(*gin.Engine); ok {
		e.NoRoute(func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "Not found"})
		})
	}

	logger.Info("HTTP routes registered")
}
