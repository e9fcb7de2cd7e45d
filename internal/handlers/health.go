// Package handlers contains HTTP handler functions for the API.
//
// Go Pattern: Handlers in Gin receive a *gin.Context which provides:
// - Request data (params, query, body, headers)
// - Response methods (JSON, String, Status)
// - Middleware data (c.Get/c.Set)
//
// We group related handlers into a struct (Handler) that holds shared
// dependencies. Every dependency is an interface so tests can swap in fakes.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/content"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/oauth"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/poller"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/publisher"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/quota"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/render"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/scheduler"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/sweeper"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/worker"
)

// Store is the part of the database the handlers read and write directly.
type Store interface {
	HealthCheck(ctx context.Context) error
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	GetSeries(ctx context.Context, id string) (*models.Series, error)
	ListUploadQueue(ctx context.Context, userID string) ([]models.UploadQueueEntry, error)
	SetSeriesStatus(ctx context.Context, id, userID string, status models.SeriesStatus) (*models.Series, error)
}

// SeriesRunner runs one scheduler tick.
type SeriesRunner interface {
	IsConfigured() bool
	RunOnce(ctx context.Context) (*scheduler.Report, error)
}

// RenderPoller checks render jobs.
type RenderPoller interface {
	IsConfigured() bool
	PollStatus(ctx context.Context, jobHandle, videoID string) (*poller.Outcome, error)
	PollPending(ctx context.Context) (*poller.Report, error)
}

// PublishSweeper runs one auto-publish pass.
type PublishSweeper interface {
	RunOnce(ctx context.Context) (*sweeper.Report, error)
}

// VideoPublisher uploads a single video.
type VideoPublisher interface {
	PublishWith(ctx context.Context, videoID string, o publisher.Overrides) (*publisher.Result, error)
}

// YouTubeAuth runs the channel connect flow.
type YouTubeAuth interface {
	IsConfigured() bool
	AuthorizationURL(userID, redirectURI string) (string, error)
	ParseState(state string) (string, error)
	ExchangeCode(ctx context.Context, code, state, redirectURI string) (*oauth.Connection, error)
	Disconnect(ctx context.Context, userID string) error
}

// QuotaChecker reports and reserves a creator's videos for today.
type QuotaChecker interface {
	CanCreateVideo(ctx context.Context, userID string) (quota.Decision, error)
	Reserve(ctx context.Context, userID string) (quota.Decision, func(), error)
}

// ContentWriter drafts scripts and video metadata.
type ContentWriter interface {
	IsConfigured() bool
	Generate(ctx context.Context, req content.Request) (*content.Result, error)
	GenerateScript(ctx context.Context, req content.ScriptRequest) (*content.Script, error)
}

// VideoRenderer starts a render for a finished script.
type VideoRenderer interface {
	IsConfigured() bool
	Submit(ctx context.Context, req render.SubmitRequest) (*render.Submission, error)
}

// Services are the pipeline components the function endpoints trigger.
type Services struct {
	Scheduler SeriesRunner
	Poller    RenderPoller
	Sweeper   PublishSweeper
	Publisher VideoPublisher
	OAuth     YouTubeAuth
	Quota     QuotaChecker
	Content   ContentWriter
	Renderer  VideoRenderer
}

// Handler holds shared dependencies for all HTTP handlers.
// Go Pattern: Dependency injection via struct fields. Instead of global
// variables or service locators, we pass dependencies explicitly.
type Handler struct {
	DB      Store
	Worker  *worker.Pool
	Version string
	Services
}

// NewHandler creates a new handler with all dependencies.
func NewHandler(db Store, wp *worker.Pool, version string, svc Services) *Handler {
	return &Handler{
		DB:       db,
		Worker:   wp,
		Version:  version,
		Services: svc,
	}
}

// HealthCheck returns the API health status.
// GET /api/v1/health
func (h *Handler) HealthCheck(c *gin.Context) {
	// Check database connectivity
	dbStatus := "healthy"
	if err := h.DB.HealthCheck(c.Request.Context()); err != nil {
		dbStatus = "unhealthy: " + err.Error()
	}

	c.JSON(http.StatusOK, models.HealthResponse{
		Status:   "ok",
		Version:  h.Version,
		Database: dbStatus,
		Workers:  h.Worker.WorkerCount(),
	})
}

// respondError writes the standard error body.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Error:   code,
		Message: message,
		Code:    status,
	})
}
