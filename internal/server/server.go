package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/calai-cam/backend/config"
	"github.com/calai-cam/backend/internal/api"
	"github.com/calai-cam/backend/internal/cache"
	"github.com/calai-cam/backend/internal/middleware"
	"github.com/calai-cam/backend/internal/service"
)

// Server wires the HTTP surface to the services. It owns the notifier's
// lifecycle: shutting the server down ends every live stream.
type Server struct {
	router   *gin.Engine
	http     *http.Server
	notifier *service.Notifier
}

// New assembles the server. rdb and storage may be nil; the affected
// features (rate limiting, summary cache, image storage) degrade
// gracefully.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, storage *config.S3Config) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	notifier := service.NewNotifier()
	logService := service.NewFoodLogService(db, cache.New(rdb))
	analysisService := service.NewAnalysisService(cfg, logService, notifier, storage)
	authService := service.NewAuthService(db, cfg.JWTSecret)

	var rateLimit gin.HandlerFunc
	if rdb != nil {
		rateLimit = middleware.NewAnalysisRateLimiter(rdb).Middleware()
	}

	root := router.Group("/api")
	api.NewWebhookHandler(analysisService).RegisterRoutes(root, rateLimit)
	api.NewSSEHandler(notifier).RegisterRoutes(root)
	api.NewFoodLogHandler(logService).RegisterRoutes(root)
	api.NewAuthHandler(authService).RegisterRoutes(root)
	api.NewPlaceholderHandler().RegisterRoutes(root)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &Server{
		router:   router,
		notifier: notifier,
		http: &http.Server{
			Addr:    net.JoinHostPort(cfg.ServerHost, cfg.ServerPort),
			Handler: router,
		},
	}
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown closes every live stream and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.notifier.Close()
	return s.http.Shutdown(ctx)
}
