package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/killallgit/annotation-api/api/annotations"
	"github.com/killallgit/annotation-api/api/auth"
	"github.com/killallgit/annotation-api/api/health"
	"github.com/killallgit/annotation-api/api/jobs"
	"github.com/killallgit/annotation-api/api/labels"
	"github.com/killallgit/annotation-api/api/media"
	"github.com/killallgit/annotation-api/api/projects"
	"github.com/killallgit/annotation-api/api/reports"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/api/users"
	"github.com/killallgit/annotation-api/api/version"
	_ "github.com/killallgit/annotation-api/docs/swagger"
	"github.com/killallgit/annotation-api/pkg/config"
	apperrors "github.com/killallgit/annotation-api/pkg/errors"
)

const uploadPath = "/api/v1/media/upload"

// multipart framing on top of the file itself
const multipartOverhead = 1 << 20

// RegisterRoutes registers all API routes
func RegisterRoutes(engine *gin.Engine, deps *types.Dependencies, limiters *RateLimiters, info version.Info) {
	cfg := deps.Config

	// Swagger documentation
	engine.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/docs/index.html")
	})
	engine.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if cfg.Monitoring.MetricsEnabled && deps.Metrics != nil {
		engine.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	engine.NoRoute(NotFoundHandler())

	v1 := engine.Group("/api/v1")
	v1.Use(RequestSizeLimitFor(1<<20, map[string]int64{
		uploadPath: cfg.Upload.MaxSize + multipartOverhead,
	}))

	// Public routes
	health.RegisterRoutes(v1, deps)
	version.RegisterRoutes(v1, info)

	authHandler := auth.NewHandler(deps.Auth, deps.UserService)
	requireAuth := authHandler.AuthMiddleware()

	authGroup := v1.Group("/auth")
	authGroup.Use(rateLimit(cfg.RateLimiting, limiters, "auth"))
	auth.RegisterRoutes(authGroup, authHandler, requireAuth)

	// Everything below needs a bearer token
	protected := v1.Group("")
	protected.Use(requireAuth, rateLimit(cfg.RateLimiting, limiters, "default"))

	users.RegisterRoutes(protected.Group("/users"), deps)

	projectGroup := protected.Group("/projects")
	projects.RegisterRoutes(projectGroup, deps)
	labels.RegisterProjectRoutes(projectGroup, deps)
	reports.RegisterProjectRoutes(projectGroup, deps)

	labels.RegisterRoutes(protected.Group("/labels"), deps)
	media.RegisterRoutes(protected.Group("/media"), deps, rateLimit(cfg.RateLimiting, limiters, "upload"))
	annotations.RegisterRoutes(protected.Group("/annotations"), deps)
	reports.RegisterMaintenanceRoutes(protected.Group("/maintenance"), deps)
	jobs.RegisterRoutes(protected.Group("/jobs"), deps)
}

// rateLimit returns the limiter for a named endpoint class, falling back to
// the default class when the name has no configured rate
func rateLimit(cfg config.RateLimitConfig, limiters *RateLimiters, name string) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	rps, ok := cfg.Endpoints[name]
	if !ok {
		rps = cfg.Endpoints["default"]
	}
	return limiters.PerClient(name, rps, cfg.Burst)
}

// NotFoundHandler handles 404 errors
func NotFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		types.SendError(c, apperrors.New(apperrors.ErrCodeNotFound, "The requested endpoint was not found").
			WithDetail("path", c.Request.URL.Path))
	}
}
