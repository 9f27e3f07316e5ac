package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func registerAdminRoutes(r *gin.Engine, h *handlers) {
	g := r.Group("/api/admin")
	g.POST("/websites/invalidate", h.handleInvalidateWebsites)
}

// handleInvalidateWebsites drops the cached site registry after it was edited.
func (h *handlers) handleInvalidateWebsites(c *gin.Context) {
	h.sites.Invalidate()
	c.Status(http.StatusNoContent)
}
