// videos.go handles the creator-facing queue and series controls.
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/autoshorts-api/internal/database"
	"github.com/Shimizu-Technology/autoshorts-api/internal/middleware"
	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
)

// UploadQueue lists the caller's videos that are waiting to be published.
// GET /api/v1/videos/queue
func (h *Handler) UploadQueue(c *gin.Context) {
	entries, err := h.DB.ListUploadQueue(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		log.Printf("❌ Failed to list upload queue: %v", err)
		respondError(c, http.StatusInternalServerError, "database_error", "Failed to load upload queue")
		return
	}
	if entries == nil {
		entries = []models.UploadQueueEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"videos": entries, "count": len(entries)})
}

// PauseSeries stops a series from producing videos.
// POST /api/v1/series/:id/pause
func (h *Handler) PauseSeries(c *gin.Context) {
	h.setSeriesStatus(c, models.SeriesPaused)
}

// ResumeSeries makes a paused series active again.
// POST /api/v1/series/:id/resume
func (h *Handler) ResumeSeries(c *gin.Context) {
	h.setSeriesStatus(c, models.SeriesActive)
}

func (h *Handler) setSeriesStatus(c *gin.Context, status models.SeriesStatus) {
	series, err := h.DB.SetSeriesStatus(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), status)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(c, http.StatusNotFound, "not_found", "Series not found")
			return
		}
		log.Printf("❌ Failed to set series %s to %s: %v", c.Param("id"), status, err)
		respondError(c, http.StatusInternalServerError, "database_error", "Failed to update series")
		return
	}
	log.Printf("🎬 Series %s is now %s", series.ID, series.Status)
	c.JSON(http.StatusOK, series)
}
