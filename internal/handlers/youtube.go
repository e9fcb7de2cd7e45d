// youtube.go handles the channel connection and manual publishing endpoints.
package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/autoshorts-api/internal/middleware"
	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/oauth"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/publisher"
)

// Actions accepted by the youtube-auth function.
const (
	actionGetAuthURL   = "get-auth-url"
	actionExchangeCode = "exchange-code"
	actionDisconnect   = "disconnect"
)

const reconnectMessage = "YouTube token expired. Please reconnect your channel."

// YouTubeUpload publishes one of the caller's ready videos now.
// POST /api/v1/functions/youtube-upload
//
// Request body:
//
//	{"video_id": "<uuid>", "title": "...", "description": "...",
//	 "tags": ["..."], "privacy_status": "public|unlisted|private"}
//
// Everything but video_id is optional and overrides the stored metadata for
// this upload only.
func (h *Handler) YouTubeUpload(c *gin.Context) {
	var req models.PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "video_id is required")
		return
	}
	if !h.ownsVideo(c, req.VideoID) {
		return
	}

	res, err := h.Publisher.PublishWith(c.Request.Context(), req.VideoID, publisher.Overrides{
		Title:         req.Title,
		Description:   req.Description,
		Tags:          req.Tags,
		PrivacyStatus: req.PrivacyStatus,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, models.PublishResponse{
			Success:        true,
			YouTubeVideoID: res.PublishedID,
			YouTubeURL:     res.URL,
		})
	case errors.Is(err, publisher.ErrPreconditionFailed), errors.Is(err, publisher.ErrInvalidOverride):
		c.JSON(http.StatusBadRequest, models.PublishResponse{Reason: res.Reason})
	case errors.Is(err, publisher.ErrAlreadyPublishing):
		c.JSON(http.StatusConflict, models.PublishResponse{Reason: "Video is already being published"})
	case errors.Is(err, oauth.ErrAccountDisconnected):
		c.JSON(http.StatusUnauthorized, models.PublishResponse{Reason: reconnectMessage})
	case errors.Is(err, oauth.ErrNotConfigured):
		respondError(c, http.StatusServiceUnavailable, "not_configured", "YouTube publishing is not configured")
	default:
		reason := err.Error()
		if res != nil && res.Reason != "" {
			reason = res.Reason
		}
		log.Printf("❌ youtube-upload for %s: %v", req.VideoID, err)
		c.JSON(http.StatusBadGateway, models.PublishResponse{Reason: reason})
	}
}

// YouTubeAuth runs one step of the channel connect flow.
// POST /api/v1/functions/youtube-auth
//
// Request body, one of:
//
//	{"action": "get-auth-url", "redirect_uri": "..."}
//	{"action": "exchange-code", "code": "...", "state": "...", "redirect_uri": "..."}
//	{"action": "disconnect"}
func (h *Handler) YouTubeAuth(c *gin.Context) {
	var req models.YouTubeAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "action is required")
		return
	}
	userID := middleware.GetUserID(c)
	ctx := c.Request.Context()

	if req.Action != actionDisconnect && !h.OAuth.IsConfigured() {
		respondError(c, http.StatusServiceUnavailable, "not_configured", "YouTube OAuth is not configured")
		return
	}

	switch req.Action {
	case actionGetAuthURL:
		authURL, err := h.OAuth.AuthorizationURL(userID, req.RedirectURI)
		if err != nil {
			log.Printf("❌ Failed to build auth URL: %v", err)
			respondError(c, http.StatusInternalServerError, "oauth_error", "Failed to start YouTube authorization")
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": authURL})

	case actionExchangeCode:
		if req.Code == "" || req.State == "" {
			respondError(c, http.StatusBadRequest, "invalid_request", "code and state are required")
			return
		}
		stateUser, err := h.OAuth.ParseState(req.State)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid_state", "Authorization expired or was tampered with, please try again")
			return
		}
		if stateUser != userID {
			respondError(c, http.StatusForbidden, "forbidden", "Authorization was started by a different account")
			return
		}
		conn, err := h.OAuth.ExchangeCode(ctx, req.Code, req.State, req.RedirectURI)
		if err != nil {
			log.Printf("❌ YouTube code exchange for %s failed: %v", userID, err)
			respondError(c, http.StatusBadGateway, "oauth_error", "Failed to connect YouTube channel")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"channel_id":   conn.ChannelID,
			"channel_name": conn.ChannelName,
		})

	case actionDisconnect:
		if err := h.OAuth.Disconnect(ctx, userID); err != nil {
			log.Printf("❌ YouTube disconnect for %s failed: %v", userID, err)
			respondError(c, http.StatusInternalServerError, "database_error", "Failed to disconnect YouTube channel")
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})

	default:
		respondError(c, http.StatusBadRequest, "invalid_action", "action must be get-auth-url, exchange-code or disconnect")
	}
}
