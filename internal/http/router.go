package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/agenda_os/backend/internal/config"
	"github.com/agenda_os/backend/internal/http/handlers"
	"github.com/agenda_os/backend/internal/http/middleware"

	_ "github.com/agenda_os/backend/docs"
)

func Router(cfg config.Config, h *handlers.Handler, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.AdminKeyHeader, middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", h.Healthz)

	limiter := middleware.NewSenderRateLimiter(cfg.SenderRatePerMin, cfg.SenderRateBurst, logger)
	webhook := r.Group("/webhook")
	webhook.Use(middleware.WebhookKey(cfg.WebhookKey), limiter.RateLimit(h.SenderKey))
	{
		webhook.POST("/messages", h.Webhook)
	}

	admin := r.Group("/api")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.GET("/sessions/:sender", h.SessionGet)
		admin.DELETE("/sessions/:sender", h.SessionDelete)
		admin.POST("/slots/check", h.CheckSlot)
		admin.GET("/orders/:id/suggestion", h.Suggestion)
		admin.GET("/policies", h.PoliciesGet)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
