package handlers

import (
	"context"
	"net/http"
	"time"

	"rpsserver/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Health は PostgreSQL と Redis への疎通を確認します。
func Health(c *gin.Context, players PlayerStore, sessions *session.Store, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, p := range map[string]pinger{"postgres": players, "redis": sessions} {
		if err := p.Ping(ctx); err != nil {
			logger.Warn("Health check failed", zap.String("component", name), zap.Error(err))
			body[name] = "unavailable"
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "ok"
	}
	c.JSON(status, body)
}
