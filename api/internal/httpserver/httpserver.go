// Package httpserver is the HTTP surface of the bot: health, metrics and the Telegram webhook.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthChecker is satisfied by the inference sidecar client.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type Options struct {
	Log *zap.Logger
	// Health is optional; without it /healthz only reports that the process is up.
	Health HealthChecker
	// WebhookSecret is the last path segment of /webhook/:secret. Empty disables the route.
	WebhookSecret string
	OnUpdate      func(tgbotapi.Update)
}

func New(opts Options) *gin.Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(accessLog(log))

	router.GET("/healthz", healthz(opts.Health))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if opts.WebhookSecret != "" && opts.OnUpdate != nil {
		router.POST("/webhook/:secret", webhook(opts.WebhookSecret, opts.OnUpdate, log))
	}
	return router
}

func healthz(hc HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hc != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := hc.Health(ctx); err != nil {
				c.String(http.StatusServiceUnavailable, "inference: not ok\n%s", err.Error())
				return
			}
		}
		c.String(http.StatusOK, "ok")
	}
}

func webhook(secret string, onUpdate func(tgbotapi.Update), log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Param("secret") != secret {
			c.Status(http.StatusNotFound)
			return
		}
		var upd tgbotapi.Update
		if err := c.ShouldBindJSON(&upd); err != nil {
			log.Warn("bad webhook payload", zap.Error(err))
			c.Status(http.StatusBadRequest)
			return
		}
		onUpdate(upd)
		c.Status(http.StatusOK)
	}
}

func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// путь вебхука содержит секрет, поэтому пишем шаблон маршрута
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
