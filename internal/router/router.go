// Package router sets up all HTTP routes for the API.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/Shimizu-Technology/autoshorts-api/internal/handlers"
	"github.com/Shimizu-Technology/autoshorts-api/internal/middleware"
)

// Options carries the auth and CORS settings the routes need.
type Options struct {
	JWTSecret      string
	ServiceKey     string
	RateLimit      int // requests per hour per creator
	AllowedOrigins []string
}

// Setup creates and configures the Gin router with all routes.
func Setup(h *handlers.Handler, opts Options) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.CORS(opts.AllowedOrigins))

	rateLimiter := middleware.NewRateLimiter(opts.RateLimit)

	// --- Public Routes (no auth required) ---
	r.GET("/api/v1/health", h.HealthCheck)
	r.GET("/api/docs", h.ServeSwaggerUI)
	r.GET("/api/docs/openapi.yaml", h.ServeOpenAPISpec)

	// --- Trigger functions (service key only) ---
	service := r.Group("/api/v1/functions")
	service.Use(middleware.ServiceAuth(opts.ServiceKey))
	{
		service.POST("/process-series", h.ProcessSeries)
		service.POST("/poll-renders", h.PollRenders)
		service.POST("/auto-publish", h.AutoPublish)
	}

	// Called both by the dashboard and by operators or automations.
	either := []gin.HandlerFunc{
		middleware.UserOrService(opts.JWTSecret, opts.ServiceKey),
		rateLimiter.RateLimit(),
	}
	r.POST("/api/v1/functions/check-video-status", append(either, h.CheckVideoStatus)...)
	r.POST("/api/v1/functions/generate-video", append(either, h.GenerateVideo)...)

	// --- Creator routes (user bearer token) ---
	user := r.Group("/api/v1")
	user.Use(middleware.UserAuth(opts.JWTSecret))
	user.Use(rateLimiter.RateLimit())
	{
		user.POST("/functions/youtube-upload", h.YouTubeUpload)
		user.POST("/functions/youtube-auth", h.YouTubeAuth)
		user.GET("/functions/check-limits", h.CheckLimits)
		user.POST("/functions/generate-script", h.GenerateScript)
		user.POST("/functions/generate-trending-content", h.GenerateTrendingContent)

		user.GET("/videos/queue", h.UploadQueue)
		user.POST("/series/:id/pause", h.PauseSeries)
		user.POST("/series/:id/resume", h.ResumeSeries)
	}

	return r
}
