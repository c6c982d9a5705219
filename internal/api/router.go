// Package api exposes the fact-check flow over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"statement-analyzer/internal/common/logger"
	analyzestatement "statement-analyzer/internal/workers/fact-check/analyze-statement"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const RequestIDHeader = "X-Request-ID"

// Analyzer runs one statement analysis.
type Analyzer interface {
	Execute(ctx context.Context, input *analyzestatement.Input) (*analyzestatement.Output, error)
}

type Options struct {
	Analyzer       Analyzer
	Logger         logger.Logger
	ServiceName    string
	AllowedOrigins []string
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter builds the gin engine with CORS, tracing, request ids, access
// logging, metrics and the routes registered.
func NewRouter(opts Options) *gin.Engine {
	if opts.ServiceName == "" {
		opts.ServiceName = "statement-analyzer"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(opts.AllowedOrigins))
	r.Use(otelgin.Middleware(opts.ServiceName))
	r.Use(requestID())
	r.Use(accessLog(opts.Logger))
	r.Use(requestMetrics())

	h := &handlers{analyzer: opts.Analyzer, logger: opts.Logger, ready: opts.Ready}

	r.POST("/analyze", h.analyze)
	r.GET("/health", h.health)
	r.GET("/ready", h.readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody("NOT_FOUND", "route not found"))
	})
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
