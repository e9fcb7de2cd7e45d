// functions.go handles the pipeline trigger endpoints under /api/v1/functions.
//
// The tick endpoints (process-series, poll-renders, auto-publish) do the same
// work as the cron jobs and return the per-item report. They are safe to call
// while a cron tick is running: every row transition is guarded. A tick whose
// credentials are missing answers 503 without touching any row.
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/autoshorts-api/internal/database"
	"github.com/Shimizu-Technology/autoshorts-api/internal/middleware"
	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/poller"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/render"
)

// ProcessSeries runs one scheduler tick.
// POST /api/v1/functions/process-series
func (h *Handler) ProcessSeries(c *gin.Context) {
	if !h.Scheduler.IsConfigured() {
		respondError(c, http.StatusServiceUnavailable, "not_configured", "Content generation or video rendering is not configured")
		return
	}
	report, err := h.Scheduler.RunOnce(c.Request.Context())
	if err != nil {
		log.Printf("❌ process-series failed: %v", err)
		respondError(c, http.StatusInternalServerError, "scheduler_error", "Failed to process series")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

// PollRenders checks every in-flight render once.
// POST /api/v1/functions/poll-renders
func (h *Handler) PollRenders(c *gin.Context) {
	if !h.Poller.IsConfigured() {
		respondError(c, http.StatusServiceUnavailable, "not_configured", "Video rendering is not configured")
		return
	}
	report, err := h.Poller.PollPending(c.Request.Context())
	if err != nil {
		log.Printf("❌ poll-renders failed: %v", err)
		respondError(c, http.StatusInternalServerError, "poller_error", "Failed to poll renders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

// AutoPublish runs one publish sweep.
// POST /api/v1/functions/auto-publish
func (h *Handler) AutoPublish(c *gin.Context) {
	if !h.OAuth.IsConfigured() {
		respondError(c, http.StatusServiceUnavailable, "not_configured", "YouTube publishing is not configured")
		return
	}
	report, err := h.Sweeper.RunOnce(c.Request.Context())
	if err != nil {
		log.Printf("❌ auto-publish failed: %v", err)
		respondError(c, http.StatusInternalServerError, "sweeper_error", "Failed to run auto-publish")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

// CheckVideoStatus polls the renderer for one video and records the result.
// POST /api/v1/functions/check-video-status
//
// Request body:
//
//	{"project_id": "<render job handle>", "video_id": "<uuid>"}
func (h *Handler) CheckVideoStatus(c *gin.Context) {
	var req models.CheckVideoStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "project_id and video_id are required")
		return
	}

	ctx := c.Request.Context()
	if !middleware.IsService(c) && !h.ownsVideo(c, req.VideoID) {
		return
	}

	outcome, err := h.Poller.PollStatus(ctx, req.ProjectID, req.VideoID)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrNotFound):
		respondError(c, http.StatusNotFound, "not_found", "Video not found")
		return
	case errors.Is(err, poller.ErrNoJobHandle), errors.Is(err, poller.ErrJobMismatch):
		respondError(c, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case errors.Is(err, render.ErrNotConfigured):
		respondError(c, http.StatusServiceUnavailable, "not_configured", "Video rendering is not configured")
		return
	default:
		log.Printf("⚠️  check-video-status for %s: %v", req.VideoID, err)
		respondError(c, http.StatusBadGateway, "render_status_unavailable", "Could not reach the render service, try again shortly")
		return
	}

	c.JSON(http.StatusOK, statusResponse(outcome))
}

func statusResponse(o *poller.Outcome) models.CheckVideoStatusResponse {
	resp := models.CheckVideoStatusResponse{Success: true, Status: o.Status, QueuePosition: o.QueuePosition}
	v := o.Video
	switch o.Status {
	case models.VideoGenerating:
		resp.Message = "Video is still rendering"
	case models.VideoFailed:
		if v != nil && v.ErrorMessage != nil {
			resp.Message = *v.ErrorMessage
		}
	default:
		if v != nil {
			resp.VideoURL = v.VideoURL
			resp.ThumbnailURL = v.ThumbnailURL
			resp.Duration = v.DurationSecs
		}
	}
	return resp
}

// ownsVideo writes a 404 and returns false unless the caller owns videoID.
// Someone else's video is reported as missing, not forbidden.
func (h *Handler) ownsVideo(c *gin.Context, videoID string) bool {
	video, err := h.DB.GetVideo(c.Request.Context(), videoID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.Printf("❌ Failed to load video %s: %v", videoID, err)
			respondError(c, http.StatusInternalServerError, "database_error", "Failed to load video")
			return false
		}
		respondError(c, http.StatusNotFound, "not_found", "Video not found")
		return false
	}
	if video.UserID != middleware.GetUserID(c) {
		respondError(c, http.StatusNotFound, "not_found", "Video not found")
		return false
	}
	return true
}

// CheckLimits reports how many videos the caller may still create today.
// GET /api/v1/functions/check-limits
func (h *Handler) CheckLimits(c *gin.Context) {
	decision, err := h.Quota.CanCreateVideo(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(c, http.StatusNotFound, "not_found", "Profile not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "database_error", "Failed to check limits")
		return
	}

	c.JSON(http.StatusOK, models.LimitsResponse{
		CanCreate:          decision.Allowed,
		VideosCreatedToday: decision.Used,
		DailyLimit:         decision.Limit,
		SubscriptionTier:   decision.Tier,
		RemainingVideos:    decision.Remaining,
	})
}
