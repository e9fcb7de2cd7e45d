package render

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/lib/pq"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
)

// VideoStore is the part of the database the submitter writes to.
type VideoStore interface {
	CreateVideo(ctx context.Context, v *models.Video) error
}

// SubmitRequest is everything needed to start a render for one video.
type SubmitRequest struct {
	UserID       string
	SeriesID     *string
	Title        string
	Description  string
	Hashtags     []string
	Script       string
	VisualStyle  string
	VoicePersona string
	AspectRatio  string
	DurationSecs int
}

// Submission identifies the created video and its render job.
type Submission struct {
	VideoID   string
	JobHandle string
}

// Submitter starts render jobs and records the resulting videos.
type Submitter struct {
	provider Provider
	styles   *StyleCatalog
	store    VideoStore
}

// NewSubmitter wires a provider, style catalog and store together.
func NewSubmitter(provider Provider, styles *StyleCatalog, store VideoStore) *Submitter {
	return &Submitter{provider: provider, styles: styles, store: store}
}

// IsConfigured reports whether the provider can take jobs.
func (s *Submitter) IsConfigured() bool {
	return IsConfigured(s.provider)
}

// BuildPrompt combines the script with the style's prompt modifier.
func (s *Submitter) BuildPrompt(script, style, voice string) string {
	prompt := strings.TrimRight(strings.TrimSpace(script), ".") + ". " + s.styles.Prompt(style)
	if voice != "" {
		prompt += ". Narration voice: " + voice
	}
	return prompt
}

// Submit sends the job to the provider and inserts the video in 'generating'.
// Nothing is written if the provider rejects the job.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	if strings.TrimSpace(req.Script) == "" {
		return nil, fmt.Errorf("cannot render an empty script")
	}

	job := Job{
		Prompt:      s.BuildPrompt(req.Script, req.VisualStyle, req.VoicePersona),
		AspectRatio: req.AspectRatio,
		Duration:    req.DurationSecs,
		Resolution:  DefaultResolution,
	}
	if job.AspectRatio == "" {
		job.AspectRatio = DefaultAspectRatio
	}
	if job.Duration <= 0 {
		job.Duration = DefaultDuration
	}

	handle, err := s.provider.Submit(ctx, job)
	if err != nil {
		return nil, err
	}

	duration := job.Duration
	video := &models.Video{
		UserID:       req.UserID,
		SeriesID:     req.SeriesID,
		Title:        req.Title,
		Description:  req.Description,
		Hashtags:     pq.StringArray(req.Hashtags),
		VisualStyle:  req.VisualStyle,
		Status:       models.VideoGenerating,
		JobHandle:    &handle,
		DurationSecs: &duration,
	}
	if err := s.store.CreateVideo(ctx, video); err != nil {
		// The job is already running at the provider; log the handle so it can be traced.
		log.Printf("❌ Render job %s submitted but video record failed: %v", handle, err)
		return nil, fmt.Errorf("failed to record video: %w", err)
	}

	return &Submission{VideoID: video.ID, JobHandle: handle}, nil
}
