// generate.go handles the one-off creation endpoints: a single video from a
// finished script, and the content drafts the dashboard edits before that.
package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/autoshorts-api/internal/database"
	"github.com/Shimizu-Technology/autoshorts-api/internal/middleware"
	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/content"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/render"
)

// GenerateVideo starts a render for one script, counted against the owner's
// daily quota. The counter only stays bumped if the render was submitted.
// POST /api/v1/functions/generate-video
//
// Request body:
//
//	{"script": "...", "title": "...", "visual_style": "anime",
//	 "voice_persona": "...", "series_id": "<uuid>", "aspect_ratio": "9:16",
//	 "duration": 8}
//
// Service-key callers act for a creator and must also send "user_id".
func (h *Handler) GenerateVideo(c *gin.Context) {
	var req models.GenerateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "script and title are required")
		return
	}

	userID := middleware.GetUserID(c)
	if middleware.IsService(c) {
		if req.UserID == "" {
			respondError(c, http.StatusBadRequest, "invalid_request", "user_id is required with the service key")
			return
		}
		userID = req.UserID
	}

	if h.Renderer == nil || !h.Renderer.IsConfigured() {
		respondError(c, http.StatusServiceUnavailable, "not_configured", "Video rendering is not configured")
		return
	}

	ctx := c.Request.Context()
	if req.SeriesID != nil && *req.SeriesID == "" {
		req.SeriesID = nil
	}
	if req.SeriesID != nil && !h.ownsSeries(c, *req.SeriesID, userID) {
		return
	}

	decision, release, err := h.Quota.Reserve(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(c, http.StatusNotFound, "not_found", "Profile not found")
			return
		}
		log.Printf("❌ Quota reserve failed for user %s: %v", userID, err)
		respondError(c, http.StatusInternalServerError, "database_error", "Failed to check limits")
		return
	}
	if !decision.Allowed {
		respondError(c, http.StatusForbidden, "daily_limit_reached",
			fmt.Sprintf("Daily limit of %d videos reached for the %s tier", decision.Limit, decision.Tier))
		return
	}

	sub, err := h.Renderer.Submit(ctx, render.SubmitRequest{
		UserID:       userID,
		SeriesID:     req.SeriesID,
		Title:        req.Title,
		Description:  req.Description,
		Hashtags:     req.Hashtags,
		Script:       req.Script,
		VisualStyle:  req.VisualStyle,
		VoicePersona: req.VoicePersona,
		AspectRatio:  req.AspectRatio,
		DurationSecs: req.Duration,
	})
	if err != nil {
		release()
		if errors.Is(err, render.ErrNotConfigured) {
			respondError(c, http.StatusServiceUnavailable, "not_configured", "Video rendering is not configured")
			return
		}
		log.Printf("❌ generate-video for user %s: %v", userID, err)
		respondError(c, http.StatusBadGateway, "render_submit_failed", "Could not start the render, try again shortly")
		return
	}

	log.Printf("🎬 Video %s started for user %s (job %s)", sub.VideoID, userID, sub.JobHandle)
	c.JSON(http.StatusOK, models.GenerateVideoResponse{
		Success:   true,
		VideoID:   sub.VideoID,
		ProjectID: sub.JobHandle,
		Message:   "Video generation started",
	})
}

// ownsSeries writes a 404 and returns false unless userID owns seriesID.
func (h *Handler) ownsSeries(c *gin.Context, seriesID, userID string) bool {
	s, err := h.DB.GetSeries(c.Request.Context(), seriesID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Printf("❌ Failed to load series %s: %v", seriesID, err)
		respondError(c, http.StatusInternalServerError, "database_error", "Failed to load series")
		return false
	}
	if err != nil || s.UserID != userID {
		respondError(c, http.StatusNotFound, "not_found", "Series not found")
		return false
	}
	return true
}

// GenerateScript drafts a bare voiceover for one topic.
// POST /api/v1/functions/generate-script
//
// Request body:
//
//	{"topic": "...", "template": "hook_fact|pov_reveal|comparison|countdown"}
func (h *Handler) GenerateScript(c *gin.Context) {
	var req models.GenerateScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "topic is required")
		return
	}
	if h.Content == nil || !h.Content.IsConfigured() {
		respondContentError(c, content.ErrNotConfigured)
		return
	}

	script, err := h.Content.GenerateScript(c.Request.Context(), content.ScriptRequest{
		Topic:    req.Topic,
		Template: req.Template,
	})
	if err != nil {
		respondContentError(c, err)
		return
	}
	c.JSON(http.StatusOK, script)
}

// GenerateTrendingContent drafts a title, description, hashtags and script.
// POST /api/v1/functions/generate-trending-content
//
// Request body:
//
//	{"topic": "...", "visual_style": "...", "voice_persona": "...",
//	 "language": "en", "platforms": ["youtube"]}
func (h *Handler) GenerateTrendingContent(c *gin.Context) {
	var req models.GenerateContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "topic is required")
		return
	}
	if h.Content == nil || !h.Content.IsConfigured() {
		respondContentError(c, content.ErrNotConfigured)
		return
	}

	res, err := h.Content.Generate(c.Request.Context(), content.Request{
		Topic:        req.Topic,
		VisualStyle:  req.VisualStyle,
		VoicePersona: req.VoicePersona,
		Language:     req.Language,
		Platforms:    req.Platforms,
	})
	if err != nil {
		respondContentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "content": res})
}

func respondContentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, content.ErrNotConfigured):
		respondError(c, http.StatusServiceUnavailable, "not_configured", "Content generation is not configured")
	case errors.Is(err, content.ErrRateLimited):
		respondError(c, http.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Please try again later.")
	case errors.Is(err, content.ErrCreditsExhausted):
		respondError(c, http.StatusPaymentRequired, "credits_exhausted", "Usage limit reached. Please add credits.")
	default:
		log.Printf("❌ Content generation failed: %v", err)
		respondError(c, http.StatusBadGateway, "content_error", "Content generation failed, try again shortly")
	}
}
