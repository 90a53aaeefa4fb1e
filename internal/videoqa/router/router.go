// Package router provides video QA service routing.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/videoqa/internal/videoqa/handler"
	"github.com/kart-io/videoqa/pkg/infra/middleware"
	authopts "github.com/kart-io/videoqa/pkg/options/auth"
)

// Config carries the policies applied to the routes.
type Config struct {
	Auth *authopts.Options
	// Limiter throttles the chat routes. Nil disables throttling.
	Limiter middleware.RateLimiter
}

// Register installs the middleware chain and the video QA routes on engine.
func Register(engine *gin.Engine, h *handler.VideoQAHandler, cfg Config) {
	logger.Info("Registering video QA routes...")

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Tracing(),
		middleware.Logger(),
		middleware.BearerAuth(cfg.Auth),
	)

	engine.GET("/", h.Welcome)
	engine.GET("/health", h.Health)
	engine.GET("/metrics", h.Metrics)

	// 限流只作用于问答路由
	chat := engine.Group("/chat")
	chat.Use(middleware.RateLimit(middleware.RateLimitConfig{Limiter: cfg.Limiter}))
	{
		chat.POST("", h.Chat)
		chat.POST("/stream", h.ChatStream)
	}

	v1 := engine.Group("/v1")
	{
		v1.GET("/stats", h.Stats)
	}

	logger.Info("HTTP routes registered")
}
