package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerHealthRoutes registers liveness and Prometheus endpoints.
func registerHealthRoutes(r *gin.Engine, h *handlers) {
	r.GET("/healthz", h.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (h *handlers) handleHealth(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
