package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"linker_index/internal/citation"
	"linker_index/internal/models"
	"linker_index/internal/webpages"
)

// registerWebPageRoutes registers the linker report and lookup endpoints.
func registerWebPageRoutes(r *gin.Engine, h *handlers) {
	g := r.Group("/api")
	g.POST("/linker-track", h.handleLinkerTrack)
	g.GET("/webpages", h.handleWebPagesForRef)
}

type LinkerTrackResponse struct {
	Status models.IngestResult `json:"status"`
}

func (h *handlers) handleLinkerTrack(c *gin.Context) {
	var update models.LinkerUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.index.Ingest(c.Request.Context(), update)
	if errors.Is(err, webpages.ErrMissingURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("linker report failed", zap.String("url", update.URL), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record webpage"})
		return
	}

	c.JSON(http.StatusOK, LinkerTrackResponse{Status: result})
}

func (h *handlers) handleWebPagesForRef(c *gin.Context) {
	ref := c.Query("ref")
	if ref == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ref is required"})
		return
	}

	pages, err := h.index.Resolve(c.Request.Context(), ref)
	if errors.Is(err, citation.ErrInvalidRef) || errors.Is(err, citation.ErrNoStructure) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("webpage lookup failed", zap.String("ref", ref), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load webpages"})
		return
	}

	c.JSON(http.StatusOK, pages)
}
