// Package models defines the data structures used throughout the application.
//
// Go Pattern: Models are plain structs with JSON tags for serialization.
// The database package handles persistence; the `db` tags map struct fields
// to columns for sqlx. Nullable columns are pointers.
package models

import (
	"time"

	"github.com/lib/pq"
)

// SubscriptionTier is the plan a creator is on. It decides the daily video quota.
type SubscriptionTier string

const (
	TierStarter SubscriptionTier = "starter"
	TierPro     SubscriptionTier = "pro"
	TierAgency  SubscriptionTier = "agency"
)

// PostingFrequency controls how often a series produces a new video.
type PostingFrequency string

const (
	FrequencyHourly      PostingFrequency = "hourly"
	FrequencyDaily       PostingFrequency = "daily"
	FrequencyTwiceDaily  PostingFrequency = "twice_daily"
	FrequencyWeekly      PostingFrequency = "weekly"
	FrequencyThreeWeekly PostingFrequency = "three_weekly"
)

// Valid reports whether f is one of the known frequencies.
func (f PostingFrequency) Valid() bool {
	switch f {
	case FrequencyHourly, FrequencyDaily, FrequencyTwiceDaily, FrequencyWeekly, FrequencyThreeWeekly:
		return true
	}
	return false
}

// SeriesStatus is the lifecycle state of a series.
type SeriesStatus string

const (
	SeriesActive    SeriesStatus = "active"
	SeriesPaused    SeriesStatus = "paused"
	SeriesCompleted SeriesStatus = "completed"
)

// VideoStatus represents where a video is in the render → publish pipeline.
// Go Pattern: Go has no enums; a named string type with constants is the idiom.
type VideoStatus string

const (
	VideoQueued     VideoStatus = "queued"
	VideoGenerating VideoStatus = "generating"
	VideoProcessing VideoStatus = "processing"
	VideoReady      VideoStatus = "ready"
	VideoScheduled  VideoStatus = "scheduled"
	VideoPublishing VideoStatus = "publishing"
	VideoPublished  VideoStatus = "published"
	VideoFailed     VideoStatus = "failed"
)

// Terminal reports whether no further render or publish transitions apply.
func (s VideoStatus) Terminal() bool {
	return s == VideoPublished || s == VideoFailed
}

// Series is a recurring content configuration owned by a user.
type Series struct {
	ID                   string           `json:"id" db:"id"`
	UserID               string           `json:"user_id" db:"user_id"`
	Name                 string           `json:"name" db:"name"`
	Description          *string          `json:"description,omitempty" db:"description"`
	Topic                string           `json:"topic" db:"topic"`
	VisualStyle          string           `json:"visual_style" db:"visual_style"`
	VoicePersona         string           `json:"voice_persona" db:"voice_persona"`
	Language             string           `json:"language" db:"language"`
	AspectRatio          string           `json:"aspect_ratio" db:"aspect_ratio"`
	DurationPreference   int              `json:"duration_preference" db:"duration_preference"`
	PostingFrequency     PostingFrequency `json:"posting_frequency" db:"posting_frequency"`
	PostingTime          string           `json:"posting_time" db:"posting_time"` // "HH:MM", UTC
	Platforms            pq.StringArray   `json:"platforms" db:"platforms"`
	Status               SeriesStatus     `json:"status" db:"status"`
	VideosCreated        int              `json:"videos_created" db:"videos_created"`
	NextVideoAt          *time.Time       `json:"next_video_at,omitempty" db:"next_video_at"`
	LastVideoGeneratedAt *time.Time       `json:"last_video_generated_at,omitempty" db:"last_video_generated_at"`
	ClaimedBy            *string          `json:"-" db:"claimed_by"`
	ClaimedUntil         *time.Time       `json:"-" db:"claimed_until"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at" db:"updated_at"`
}

// Video is one produced (or in-production) short.
type Video struct {
	ID             string         `json:"id" db:"id"`
	UserID         string         `json:"user_id" db:"user_id"`
	SeriesID       *string        `json:"series_id,omitempty" db:"series_id"`
	ScriptID       *string        `json:"script_id,omitempty" db:"script_id"`
	Title          string         `json:"title" db:"title"`
	Description    string         `json:"description" db:"description"`
	Hashtags       pq.StringArray `json:"hashtags" db:"hashtags"`
	VisualStyle    string         `json:"visual_style" db:"visual_style"`
	Status         VideoStatus    `json:"status" db:"status"`
	JobHandle      *string        `json:"job_handle,omitempty" db:"job_handle"`
	YouTubeVideoID *string        `json:"youtube_video_id,omitempty" db:"youtube_video_id"`
	VideoURL       *string        `json:"video_url,omitempty" db:"video_url"`
	ThumbnailURL   *string        `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	DurationSecs   *int           `json:"duration_seconds,omitempty" db:"duration_seconds"`
	ErrorMessage   *string        `json:"error_message,omitempty" db:"error_message"`
	RetryCount     int            `json:"retry_count" db:"retry_count"`
	ScheduledAt    *time.Time     `json:"scheduled_at,omitempty" db:"scheduled_at"`
	PublishedAt    *time.Time     `json:"published_at,omitempty" db:"published_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// Profile holds a creator's quota counters and YouTube connection.
// Tokens are stored sealed when a token encryption key is configured.
type Profile struct {
	ID                     string           `json:"id" db:"id"`
	DisplayName            *string          `json:"display_name,omitempty" db:"display_name"`
	Email                  *string          `json:"email,omitempty" db:"email"`
	SubscriptionTier       SubscriptionTier `json:"subscription_tier" db:"subscription_tier"`
	VideosCreatedToday     int              `json:"videos_created_today" db:"videos_created_today"`
	LastVideoDate          *time.Time       `json:"last_video_date,omitempty" db:"last_video_date"`
	ManualApprovalRequired bool             `json:"manual_approval_required" db:"manual_approval_required"`
	YouTubeConnected       bool             `json:"youtube_connected" db:"youtube_connected"`
	YouTubeAccessToken     *string          `json:"-" db:"youtube_access_token"`
	YouTubeRefreshToken    *string          `json:"-" db:"youtube_refresh_token"`
	YouTubeTokenExpiresAt  *time.Time       `json:"youtube_token_expires_at,omitempty" db:"youtube_token_expires_at"`
	YouTubeChannelID       *string          `json:"youtube_channel_id,omitempty" db:"youtube_channel_id"`
	YouTubeChannelName     *string          `json:"youtube_channel_name,omitempty" db:"youtube_channel_name"`
	CreatedAt              time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at" db:"updated_at"`
}

// YouTubeConnection is what gets persisted after a successful code exchange.
type YouTubeConnection struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	ChannelID    string
	ChannelName  string
}

// SeriesRun is the bookkeeping written after a series produced a video.
type SeriesRun struct {
	SeriesID    string
	UserID      string
	LeaseOwner  string
	NextVideoAt time.Time
	GeneratedAt time.Time
	Day         time.Time // UTC calendar date the video counts against
}

// RenderOutput is what a finished render job produced.
type RenderOutput struct {
	VideoURL     string
	ThumbnailURL string
	DurationSecs int
}

// PublishCandidate is a ready video joined with the series fields the
// sweeper needs to regenerate metadata.
type PublishCandidate struct {
	Video
	SeriesTopic        string `db:"series_topic"`
	SeriesVisualStyle  string `db:"series_visual_style"`
	SeriesVoicePersona string `db:"series_voice_persona"`
	SeriesLanguage     string `db:"series_language"`
}

// UploadQueueEntry is a read-only view of a video waiting to be published.
type UploadQueueEntry struct {
	VideoID     string      `json:"video_id" db:"video_id"`
	Title       string      `json:"title" db:"title"`
	Status      VideoStatus `json:"status" db:"status"`
	ScheduledAt *time.Time  `json:"scheduled_at,omitempty" db:"scheduled_at"`
	Attempts    int         `json:"attempts" db:"attempts"`
	LastError   *string     `json:"last_error,omitempty" db:"last_error"`
}

// --- Request/Response DTOs ---

// CheckVideoStatusRequest is the body of the check-video-status function.
type CheckVideoStatusRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
	VideoID   string `json:"video_id" binding:"required"`
}

// CheckVideoStatusResponse mirrors the render state back to the caller.
type CheckVideoStatusResponse struct {
	Success       bool        `json:"success"`
	Status        VideoStatus `json:"status"`
	VideoURL      *string     `json:"video_url,omitempty"`
	ThumbnailURL  *string     `json:"thumbnail_url,omitempty"`
	Duration      *int        `json:"duration,omitempty"`
	Message       string      `json:"message,omitempty"`
	QueuePosition *int        `json:"queue_position,omitempty"`
}

// LimitsResponse is returned by check-limits.
type LimitsResponse struct {
	CanCreate          bool             `json:"canCreate"`
	VideosCreatedToday int              `json:"videosCreatedToday"`
	DailyLimit         int              `json:"dailyLimit"`
	SubscriptionTier   SubscriptionTier `json:"subscriptionTier"`
	RemainingVideos    int              `json:"remainingVideos"`
}

// PublishRequest is the body of the youtube-upload function.
// Empty overrides keep the stored metadata.
type PublishRequest struct {
	VideoID       string   `json:"video_id" binding:"required"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	PrivacyStatus string   `json:"privacy_status"`
}

// PublishResponse reports the outcome of a single publish.
type PublishResponse struct {
	Success        bool   `json:"success"`
	YouTubeVideoID string `json:"youtube_video_id,omitempty"`
	YouTubeURL     string `json:"youtube_url,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// GenerateVideoRequest is the body of the generate-video function.
// UserID is only read from service-key callers.
type GenerateVideoRequest struct {
	Script       string   `json:"script" binding:"required"`
	Title        string   `json:"title" binding:"required"`
	Description  string   `json:"description"`
	Hashtags     []string `json:"hashtags"`
	VisualStyle  string   `json:"visual_style"`
	VoicePersona string   `json:"voice_persona"`
	SeriesID     *string  `json:"series_id"`
	UserID       string   `json:"user_id"`
	AspectRatio  string   `json:"aspect_ratio"`
	Duration     int      `json:"duration" binding:"omitempty,min=1,max=60"`
}

// GenerateVideoResponse identifies the video and render job that were started.
type GenerateVideoResponse struct {
	Success   bool   `json:"success"`
	VideoID   string `json:"video_id"`
	ProjectID string `json:"project_id"`
	Message   string `json:"message"`
}

// GenerateScriptRequest is the body of the generate-script function.
type GenerateScriptRequest struct {
	Topic    string `json:"topic" binding:"required"`
	Template string `json:"template"`
}

// GenerateContentRequest is the body of the generate-trending-content function.
type GenerateContentRequest struct {
	Topic        string   `json:"topic" binding:"required"`
	VisualStyle  string   `json:"visual_style"`
	VoicePersona string   `json:"voice_persona"`
	Language     string   `json:"language"`
	Platforms    []string `json:"platforms"`
}

// YouTubeAuthRequest is the body of the youtube-auth function.
type YouTubeAuthRequest struct {
	Action      string `json:"action" binding:"required"`
	Code        string `json:"code"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
}

// ErrorResponse is a standard error format for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	Workers  int    `json:"workers"`
}
