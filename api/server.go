package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/killallgit/annotation-api/api/types"
	"github.com/killallgit/annotation-api/api/version"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Server represents the HTTP server
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	limiters   *RateLimiters
	logger     *zap.Logger
	info       version.Info

	// Dependencies for handlers
	dependencies *types.Dependencies
}

// NewServer creates a new HTTP server from the server settings in deps.Config
func NewServer(deps *types.Dependencies, info version.Info, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.MaxMultipartMemory = 8 << 20

	sc := deps.Config.Server
	return &Server{
		engine:       engine,
		limiters:     NewRateLimiters(),
		logger:       logger,
		info:         info,
		dependencies: deps,
		httpServer: &http.Server{
			Addr:           fmt.Sprintf("%s:%d", sc.Host, sc.Port),
			Handler:        engine,
			ReadTimeout:    sc.ReadTimeout,
			WriteTimeout:   sc.WriteTimeout,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: sc.MaxHeaderBytes,
		},
	}
}

// Engine returns the Gin engine for testing
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Initialize sets up middleware and routes
func (s *Server) Initialize() error {
	if s.dependencies == nil || s.dependencies.Config == nil {
		return fmt.Errorf("server dependencies not configured")
	}
	s.setupMiddleware()
	RegisterRoutes(s.engine, s.dependencies, s.limiters, s.info)
	return nil
}

// setupMiddleware configures global middleware
func (s *Server) setupMiddleware() {
	cfg := s.dependencies.Config

	s.engine.Use(ginzap.RecoveryWithZap(s.logger, true))

	if cfg.Security.EnableRequestID {
		s.engine.Use(RequestID())
	}

	s.engine.Use(ginzap.GinzapWithConfig(s.logger, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{cfg.Monitoring.MetricsPath},
		Context: func(c *gin.Context) []zapcore.Field {
			var fields []zapcore.Field
			if v := c.GetString(types.RequestIDKey); v != "" {
				fields = append(fields, zap.String("request_id", v))
			}
			if identity, ok := types.CurrentIdentity(c); ok {
				fields = append(fields, zap.Uint("user_id", identity.UserID))
			}
			return fields
		},
	}))

	if cfg.Security.EnableCORS {
		s.engine.Use(CORS(cfg.Security))
	}

	if s.dependencies.Metrics != nil {
		s.engine.Use(Metrics(s.dependencies.Metrics))
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiters.Stop()
	return s.httpServer.Shutdown(ctx)
}
