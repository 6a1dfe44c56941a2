// Package httpapi wires the HTTP transport (Gin) to the relay: the Telegram
// webhook, the health probe, Prometheus metrics and the optional Swagger UI.
// It centralizes cross-cutting concerns such as tracing, correlation IDs,
// redacted access logs, panic recovery, CORS, security headers and the
// per-IP guard in front of the webhook.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/tbourn/go-relay-bot/docs" // swagger spec
	"github.com/tbourn/go-relay-bot/internal/config"
	"github.com/tbourn/go-relay-bot/internal/http/handlers"
	"github.com/tbourn/go-relay-bot/internal/http/middleware"
)

// MaxUpdateBytes caps webhook bodies. Telegram updates are a few KiB.
const MaxUpdateBytes = 1 << 20

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: access log without tokens or the webhook secret
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. CORS and security headers
//
// The webhook additionally gets the body limit and the per-IP rate limiter.
func RegisterRoutes(r *gin.Engine, wh *handlers.WebhookHandler, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		Secrets: []string{cfg.BotToken, cfg.WebhookSecret},
	}))
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics())

	corsCfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", wh.Health)
	// Compression is left to the gzip middleware.
	metrics := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{DisableCompression: true})
	r.GET("/metrics", gzip.Gzip(gzip.DefaultCompression), gin.WrapH(metrics))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	r.POST("/webhook", limitBody(MaxUpdateBytes), rl.Handler(), wh.Webhook)
}

// limitBody caps the request body at maxBytes; reads past it fail with
// *http.MaxBytesError.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
