// Package http exposes the credential core over HTTP with gin.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/credcore/internal/application"
	"github.com/turtacn/credcore/internal/application/service"
	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/infrastructure/monitoring"
	"github.com/turtacn/credcore/internal/interfaces/http/handlers"
	"github.com/turtacn/credcore/internal/interfaces/http/middleware"
	"github.com/turtacn/credcore/pkg/logger"
)

// Router HTTP 路由器
type Router struct {
	engine        *gin.Engine
	config        config.ServerConfig
	logger        logger.Logger
	healthHandler *handlers.HealthHandler
	authHandler   *handlers.AuthHandler
	jwksHandler   *handlers.JWKSHandler
	authService   service.AuthAppService
	publisher     *application.JWKSPublisher
	metrics       *monitoring.Metrics
	gatherer      prometheus.Gatherer
	server        *http.Server
}

// NewRouter 创建路由器
func NewRouter(
	cfg config.ServerConfig,
	log logger.Logger,
	authService service.AuthAppService,
	publisher *application.JWKSPublisher,
	health *handlers.HealthHandler,
	metrics *monitoring.Metrics,
	gatherer prometheus.Gatherer,
) *Router {
	gin.SetMode(cfg.Mode)

	r := &Router{
		engine:        gin.New(),
		config:        cfg,
		logger:        log.WithComponent("http"),
		healthHandler: health,
		authHandler:   handlers.NewAuthHandler(authService),
		jwksHandler:   handlers.NewJWKSHandler(publisher, log),
		authService:   authService,
		publisher:     publisher,
		metrics:       metrics,
		gatherer:      gatherer,
	}
	r.setupRoutes()
	return r
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Observability(r.metrics))

	r.engine.GET("/health", r.healthHandler.HealthCheck)
	r.engine.GET("/live", r.healthHandler.LivenessCheck)
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	r.engine.GET("/.well-known/jwks.json", middleware.ETagCache(r.publisher.CacheTTL), r.jwksHandler.GetJWKS)

	auth := r.engine.Group("/auth")
	{
		auth.POST("/login", r.authHandler.Login)
		auth.POST("/refresh", r.authHandler.Refresh)
		auth.POST("/logout", r.authHandler.Logout)
		auth.GET("/userinfo", middleware.RequireAccessToken(r.authService), r.authHandler.UserInfo)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})
}

// Handler returns the gin engine.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Run serves until ctx is done, then shuts down within the configured timeout.
func (r *Router) Run(ctx context.Context) error {
	r.server = &http.Server{
		Addr:           r.config.Addr(),
		Handler:        r.engine,
		ReadTimeout:    r.config.ReadTimeout,
		WriteTimeout:   r.config.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info(ctx, "starting HTTP server", logger.String("address", r.server.Addr))
		if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	r.logger.Info(ctx, "shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.config.ShutdownTimeout)
	defer cancel()
	if err := r.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
