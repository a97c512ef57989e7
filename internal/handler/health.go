package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readyTimeout = 2 * time.Second

// health is the liveness probe.
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ready reports 503 when the store, or a configured cache, is unreachable.
func (h *Handler) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	db := "ok"
	if err := h.svc.Ping(ctx); err != nil {
		h.logger.Printf("readiness: store: %v", err)
		db, status, code = "down", "degraded", http.StatusServiceUnavailable
	}
	cache := "disabled"
	if h.cacheHealthy != nil {
		cache = "ok"
		if !h.cacheHealthy(ctx) {
			cache, status, code = "down", "degraded", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{"status": status, "db": db, "cache": cache})
}
