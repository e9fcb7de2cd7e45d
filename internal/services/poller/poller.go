// Package poller advances videos whose render job is still running.
//
// A video in 'generating' moves to 'ready' or 'failed' exactly once. Every
// write is conditional on the row still being 'generating', so polling the
// same job twice (or from two instances) is harmless: the second caller sees
// a terminal status and returns it without touching anything.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/notify"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/render"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/worker"
)

var (
	// ErrNoJobHandle means the video was never submitted to a renderer.
	ErrNoJobHandle = errors.New("video has no render job handle")
	// ErrJobMismatch means the caller named a render job other than the video's.
	ErrJobMismatch = errors.New("project_id does not belong to this video")
)

// Store is the part of the database the poller uses.
type Store interface {
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	ListGeneratingVideos(ctx context.Context, limit int) ([]models.Video, error)
	MarkVideoReady(ctx context.Context, id string, out models.RenderOutput, scheduledAt time.Time) (bool, error)
	MarkRenderFailed(ctx context.Context, id, message string) (bool, error)
}

// Config tunes the poller.
type Config struct {
	Timeout       time.Duration // generating longer than this is failed; 0 disables
	PublishJitter time.Duration // ready videos get scheduled_at = now + [0, jitter)
	BatchSize     int
}

// Outcome is the state of a video after one poll.
type Outcome struct {
	Status        models.VideoStatus
	QueuePosition *int
	Video         *models.Video
	Changed       bool
}

// Poller checks render jobs and records their results.
type Poller struct {
	provider render.Provider
	store    Store
	pool     *worker.Pool
	notifier notify.Notifier
	cfg      Config
	now      func() time.Time
	jitter   func(max time.Duration) time.Duration
}

// New creates a poller.
func New(provider render.Provider, store Store, pool *worker.Pool, notifier notify.Notifier, cfg Config) *Poller {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Poller{
		provider: provider,
		store:    store,
		pool:     pool,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		jitter:   randomJitter,
	}
}

// IsConfigured reports whether the render provider has credentials.
func (p *Poller) IsConfigured() bool {
	return render.IsConfigured(p.provider)
}

// SetClock overrides the time source.
func (p *Poller) SetClock(now func() time.Time) {
	p.now = now
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// PollStatus checks one video's render job. The stored handle is always the
// one queried; jobHandle, when given, must match it.
func (p *Poller) PollStatus(ctx context.Context, jobHandle, videoID string) (*Outcome, error) {
	video, err := p.store.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	stored := ""
	if video.JobHandle != nil {
		stored = *video.JobHandle
	}
	if jobHandle != "" && stored != "" && jobHandle != stored {
		return nil, ErrJobMismatch
	}
	if video.Status != models.VideoGenerating {
		return &Outcome{Status: video.Status, Video: video}, nil
	}
	if stored == "" {
		return nil, ErrNoJobHandle
	}
	jobHandle = stored

	now := p.now()
	timedOut := p.cfg.Timeout > 0 && now.Sub(video.CreatedAt) > p.cfg.Timeout

	st, err := p.provider.Status(ctx, jobHandle)
	if err != nil {
		if timedOut {
			return p.fail(ctx, video, fmt.Sprintf("Render timed out after %s", p.cfg.Timeout))
		}
		return nil, fmt.Errorf("render status unavailable: %w", err)
	}

	switch st.State {
	case models.VideoReady:
		return p.ready(ctx, video, st, now)
	case models.VideoFailed:
		return p.fail(ctx, video, st.Error)
	default:
		if timedOut {
			return p.fail(ctx, video, fmt.Sprintf("Render timed out after %s", p.cfg.Timeout))
		}
		return &Outcome{Status: models.VideoGenerating, QueuePosition: st.QueuePosition, Video: video}, nil
	}
}

func (p *Poller) ready(ctx context.Context, video *models.Video, st *render.Status, now time.Time) (*Outcome, error) {
	if st.Output == nil {
		return p.fail(ctx, video, "Render completed without output")
	}
	scheduledAt := now.Add(p.jitter(p.cfg.PublishJitter))

	changed, err := p.store.MarkVideoReady(ctx, video.ID, *st.Output, scheduledAt)
	if err != nil {
		return nil, err
	}
	if !changed {
		return p.current(ctx, video.ID)
	}

	video.Status = models.VideoReady
	video.VideoURL = &st.Output.VideoURL
	if st.Output.ThumbnailURL != "" {
		video.ThumbnailURL = &st.Output.ThumbnailURL
	}
	video.DurationSecs = &st.Output.DurationSecs
	video.ScheduledAt = &scheduledAt

	log.Printf("✅ Render finished for video %s (publish at %s)", video.ID, scheduledAt.Format(time.RFC3339))
	p.notifier.Notify(ctx, notify.EventVideoReady, videoEvent(video))
	return &Outcome{Status: models.VideoReady, Video: video, Changed: true}, nil
}

func (p *Poller) fail(ctx context.Context, video *models.Video, message string) (*Outcome, error) {
	changed, err := p.store.MarkRenderFailed(ctx, video.ID, message)
	if err != nil {
		return nil, err
	}
	if !changed {
		return p.current(ctx, video.ID)
	}

	video.Status = models.VideoFailed
	video.ErrorMessage = &message

	log.Printf("❌ Render failed for video %s: %s", video.ID, message)
	p.notifier.Notify(ctx, notify.EventVideoFailed, videoEvent(video))
	return &Outcome{Status: models.VideoFailed, Video: video, Changed: true}, nil
}

// current re-reads a video another caller moved first.
func (p *Poller) current(ctx context.Context, id string) (*Outcome, error) {
	video, err := p.store.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Outcome{Status: video.Status, Video: video}, nil
}

// Result is one video's line in a Report.
type Result struct {
	VideoID string             `json:"video_id"`
	Status  models.VideoStatus `json:"status,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// Report summarizes a PollPending run.
type Report struct {
	Checked int      `json:"checked"`
	Ready   int      `json:"ready"`
	Failed  int      `json:"failed"`
	Pending int      `json:"pending"`
	Errors  int      `json:"errors"`
	Results []Result `json:"results"`
}

// PollPending checks every in-flight render once.
func (p *Poller) PollPending(ctx context.Context) (*Report, error) {
	videos, err := p.store.ListGeneratingVideos(ctx, p.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	report := &Report{Results: make([]Result, 0, len(videos))}
	var mu sync.Mutex

	worker.Each(ctx, p.pool, videos, func(ctx context.Context, v models.Video) {
		res := Result{VideoID: v.ID}
		handle := ""
		if v.JobHandle != nil {
			handle = *v.JobHandle
		}

		out, err := p.PollStatus(ctx, handle, v.ID)

		mu.Lock()
		defer mu.Unlock()
		report.Checked++
		if err != nil {
			res.Error = err.Error()
			report.Errors++
			log.Printf("⚠️  Poll failed for video %s: %v", v.ID, err)
		} else {
			res.Status = out.Status
			switch out.Status {
			case models.VideoReady:
				report.Ready++
			case models.VideoFailed:
				report.Failed++
			default:
				report.Pending++
			}
		}
		report.Results = append(report.Results, res)
	})

	log.Printf("📊 Render poll: checked=%d ready=%d failed=%d pending=%d errors=%d",
		report.Checked, report.Ready, report.Failed, report.Pending, report.Errors)
	return report, nil
}

func videoEvent(v *models.Video) notify.VideoEvent {
	ev := notify.VideoEvent{VideoID: v.ID, UserID: v.UserID, Status: string(v.Status)}
	if v.SeriesID != nil {
		ev.SeriesID = *v.SeriesID
	}
	if v.ErrorMessage != nil {
		ev.Error = *v.ErrorMessage
	}
	return ev
}
