// Package scheduler produces a new video for every active series that is due.
//
// One tick: list due series, then for each (in parallel, bounded):
// claim a lease → check quota → generate content → submit render → advance
// the schedule and bump the owner's daily counter. Any failure before the
// submission leaves next_video_at untouched, so the series is retried on the
// next tick. A failure in one series never affects another.
//
// Parallelism is per owner, not per series. One owner's due series run one
// after another so each quota check sees the counter the previous series
// bumped; otherwise two series could both read "0 of 1 used".
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/content"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/quota"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/render"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/worker"
)

// Store is the part of the database the scheduler uses.
type Store interface {
	ListDueSeries(ctx context.Context, now time.Time) ([]models.Series, error)
	ClaimSeries(ctx context.Context, id, owner string, now, until time.Time) (bool, error)
	ReleaseSeries(ctx context.Context, id, owner string) error
	CompleteSeriesRun(ctx context.Context, run models.SeriesRun) error
}

// QuotaChecker gates video creation per owner.
type QuotaChecker interface {
	CanCreateVideo(ctx context.Context, userID string) (quota.Decision, error)
}

// ContentGenerator writes the script and metadata.
type ContentGenerator interface {
	Generate(ctx context.Context, req content.Request) (*content.Result, error)
}

// RenderSubmitter starts the render and records the video.
type RenderSubmitter interface {
	Submit(ctx context.Context, req render.SubmitRequest) (*render.Submission, error)
}

// Outcome of processing one series.
const (
	OutcomeCreated = "created"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// ReasonDailyLimit is reported when the owner's quota is used up.
const ReasonDailyLimit = "daily_limit_reached"

// ReasonClaimed is reported when another run holds the series.
const ReasonClaimed = "claimed_by_another_run"

// Result is one series' line in a Report.
type Result struct {
	SeriesID    string     `json:"series_id"`
	SeriesName  string     `json:"series_name"`
	Outcome     string     `json:"outcome"`
	VideoID     string     `json:"video_id,omitempty"`
	ProjectID   string     `json:"project_id,omitempty"`
	Title       string     `json:"title,omitempty"`
	NextVideoAt *time.Time `json:"next_video_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Report summarizes one tick.
type Report struct {
	Processed int      `json:"processed"`
	Created   int      `json:"created"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"results"`
}

// Config tunes the scheduler.
type Config struct {
	LeaseTTL time.Duration
}

// Scheduler runs the series pipeline.
type Scheduler struct {
	store     Store
	quota     QuotaChecker
	generator ContentGenerator
	submitter RenderSubmitter
	pool      *worker.Pool
	cfg       Config
	now       func() time.Time

	runMu sync.Mutex // one tick at a time per process (cron and HTTP trigger)
}

// New creates a scheduler.
func New(store Store, q QuotaChecker, gen ContentGenerator, sub RenderSubmitter, pool *worker.Pool, cfg Config) *Scheduler {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 15 * time.Minute
	}
	return &Scheduler{
		store:     store,
		quota:     q,
		generator: gen,
		submitter: sub,
		pool:      pool,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

type configurable interface {
	IsConfigured() bool
}

// IsConfigured reports whether both the generator and the submitter have
// credentials. Without them every due series would be claimed only to fail.
func (s *Scheduler) IsConfigured() bool {
	for _, dep := range []interface{}{s.generator, s.submitter} {
		if dep == nil {
			return false
		}
		if c, ok := dep.(configurable); ok && !c.IsConfigured() {
			return false
		}
	}
	return true
}

// RunOnce processes every due series once.
func (s *Scheduler) RunOnce(ctx context.Context) (*Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	due, err := s.store.ListDueSeries(ctx, s.now())
	if err != nil {
		return nil, err
	}
	log.Printf("🗓️  Scheduler: %d series due", len(due))

	report := &Report{Results: make([]Result, 0, len(due))}
	var mu sync.Mutex

	worker.Each(ctx, s.pool, groupByOwner(due), func(ctx context.Context, owned []models.Series) {
		for _, series := range owned {
			if ctx.Err() != nil {
				return
			}
			res := s.processSeries(ctx, series)

			mu.Lock()
			report.Processed++
			switch res.Outcome {
			case OutcomeCreated:
				report.Created++
			case OutcomeSkipped:
				report.Skipped++
			default:
				report.Failed++
			}
			report.Results = append(report.Results, res)
			mu.Unlock()
		}
	})

	log.Printf("📊 Scheduler: processed=%d created=%d skipped=%d failed=%d",
		report.Processed, report.Created, report.Skipped, report.Failed)
	return report, nil
}

func (s *Scheduler) processSeries(ctx context.Context, series models.Series) Result {
	res := Result{SeriesID: series.ID, SeriesName: series.Name}
	fail := func(err error) Result {
		log.Printf("❌ Series %s (%s): %v", series.ID, series.Name, err)
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		return res
	}

	if _, _, err := ParsePostingTime(series.PostingTime); err != nil {
		return fail(err)
	}
	if !series.PostingFrequency.Valid() {
		return fail(fmt.Errorf("unknown posting frequency %q", series.PostingFrequency))
	}

	owner := uuid.NewString()
	now := s.now()
	claimed, err := s.store.ClaimSeries(ctx, series.ID, owner, now, now.Add(s.cfg.LeaseTTL))
	if err != nil {
		return fail(err)
	}
	if !claimed {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonClaimed
		return res
	}

	completed := false
	defer func() {
		if completed {
			return
		}
		// Release with a fresh context so a cancelled tick still frees the row.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.ReleaseSeries(rctx, series.ID, owner); err != nil {
			log.Printf("⚠️  Failed to release series %s: %v", series.ID, err)
		}
	}()

	decision, err := s.quota.CanCreateVideo(ctx, series.UserID)
	if err != nil {
		return fail(err)
	}
	if !decision.Allowed {
		log.Printf("⏭️  Series %s skipped: owner at daily limit (%d/%d)", series.ID, decision.Used, decision.Limit)
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonDailyLimit
		return res
	}

	generated, err := s.generator.Generate(ctx, content.Request{
		Topic:        series.Topic,
		VisualStyle:  series.VisualStyle,
		VoicePersona: series.VoicePersona,
		Language:     series.Language,
		Platforms:    series.Platforms,
	})
	if err != nil {
		return fail(fmt.Errorf("content generation: %w", err))
	}

	seriesID := series.ID
	sub, err := s.submitter.Submit(ctx, render.SubmitRequest{
		UserID:       series.UserID,
		SeriesID:     &seriesID,
		Title:        generated.Title,
		Description:  generated.FullDescription(),
		Hashtags:     generated.Hashtags,
		Script:       generated.Script,
		VisualStyle:  series.VisualStyle,
		VoicePersona: series.VoicePersona,
		AspectRatio:  series.AspectRatio,
		DurationSecs: series.DurationPreference,
	})
	if err != nil {
		return fail(fmt.Errorf("render submission: %w", err))
	}
	res.VideoID = sub.VideoID
	res.ProjectID = sub.JobHandle
	res.Title = generated.Title

	finished := s.now()
	next, err := NextVideoAt(series.PostingFrequency, series.PostingTime, finished)
	if err != nil {
		return fail(err)
	}

	err = s.store.CompleteSeriesRun(ctx, models.SeriesRun{
		SeriesID:    series.ID,
		UserID:      series.UserID,
		LeaseOwner:  owner,
		NextVideoAt: next,
		GeneratedAt: finished,
		Day:         finished,
	})
	if err != nil {
		// The video exists; the series will run again next tick.
		return fail(fmt.Errorf("video %s created but schedule not advanced: %w", sub.VideoID, err))
	}
	completed = true

	log.Printf("✅ Series %s: video %s queued, next run %s", series.ID, sub.VideoID, next.Format(time.RFC3339))
	res.Outcome = OutcomeCreated
	res.NextVideoAt = &next
	return res
}

// groupByOwner splits due series into one batch per user, keeping the
// listing order inside each batch.
func groupByOwner(due []models.Series) [][]models.Series {
	index := make(map[string]int)
	var groups [][]models.Series
	for _, sr := range due {
		i, ok := index[sr.UserID]
		if !ok {
			i = len(groups)
			index[sr.UserID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], sr)
	}
	return groups
}
