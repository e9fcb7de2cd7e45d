// Package sweeper publishes ready series videos whose publish time has come.
package sweeper

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/content"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/oauth"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/publisher"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/worker"
)

// Messages stored on videos the sweeper gives up on. They are shown to the creator.
const (
	MsgNotConnected = "YouTube channel not connected. Connect your channel in Settings to auto-publish."
	MsgTokenExpired = "YouTube token expired. Please reconnect your channel."
	// MsgPublishInterrupted is stored on videos whose publish never reported back.
	MsgPublishInterrupted = "Publishing was interrupted before it was confirmed. Check your YouTube channel for this video before uploading it again."
)

// Outcome of handling one candidate.
const (
	OutcomePublished = "published"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// ReasonManualApproval is reported for creators who approve each upload themselves.
const ReasonManualApproval = "manual_approval_required"

// Store is the part of the database the sweeper uses.
type Store interface {
	ListPublishCandidates(ctx context.Context, now time.Time, limit int) ([]models.PublishCandidate, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	MarkVideoFailed(ctx context.Context, id, message string) error
	UpdateVideoMetadata(ctx context.Context, id, title, description string, hashtags []string) error
	ReapStalePublishing(ctx context.Context, cutoff time.Time, message string) ([]string, error)
}

// Tokens checks that the owner can still be authorized.
type Tokens interface {
	GetValidAccessToken(ctx context.Context, userID string) (string, error)
}

// ContentGenerator rewrites metadata just before publishing.
type ContentGenerator interface {
	Generate(ctx context.Context, req content.Request) (*content.Result, error)
}

// Publisher uploads one video.
type Publisher interface {
	Publish(ctx context.Context, videoID string) (*publisher.Result, error)
}

// Config tunes the sweeper.
type Config struct {
	RefreshMetadata bool
	BatchSize       int
	PublishLease    time.Duration // a 'publishing' claim older than this is failed
}

// Result is one video's line in a Report.
type Result struct {
	VideoID        string `json:"video_id"`
	Title          string `json:"title"`
	Outcome        string `json:"outcome"`
	YouTubeVideoID string `json:"youtube_video_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Report summarizes one sweep.
type Report struct {
	Reaped    []string `json:"reaped,omitempty"`
	Processed int      `json:"processed"`
	Published int      `json:"published"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"results"`
}

// Sweeper runs the auto-publish pass.
type Sweeper struct {
	store     Store
	tokens    Tokens
	generator ContentGenerator
	publisher Publisher
	pool      *worker.Pool
	cfg       Config
	now       func() time.Time
}

// New creates a sweeper. generator may be nil to always keep stored metadata.
func New(store Store, tokens Tokens, gen ContentGenerator, pub Publisher, pool *worker.Pool, cfg Config) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PublishLease <= 0 {
		cfg.PublishLease = time.Hour
	}
	return &Sweeper{
		store:     store,
		tokens:    tokens,
		generator: gen,
		publisher: pub,
		pool:      pool,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// RunOnce fails abandoned publish claims, then publishes every due candidate once.
func (s *Sweeper) RunOnce(ctx context.Context) (*Report, error) {
	now := s.now()
	reaped, err := s.store.ReapStalePublishing(ctx, now.Add(-s.cfg.PublishLease), MsgPublishInterrupted)
	if err != nil {
		// Not fatal: publishing due videos matters more than the cleanup.
		log.Printf("⚠️  Sweeper: %v", err)
	}
	for _, id := range reaped {
		log.Printf("🧹 Video %s was stuck publishing, marked failed", id)
	}

	candidates, err := s.store.ListPublishCandidates(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	log.Printf("📬 Sweeper: %d videos due for publishing", len(candidates))

	report := &Report{Reaped: reaped, Results: make([]Result, 0, len(candidates))}
	var mu sync.Mutex

	worker.Each(ctx, s.pool, candidates, func(ctx context.Context, c models.PublishCandidate) {
		res := s.handle(ctx, c)

		mu.Lock()
		defer mu.Unlock()
		report.Processed++
		switch res.Outcome {
		case OutcomePublished:
			report.Published++
		case OutcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
		report.Results = append(report.Results, res)
	})

	log.Printf("📊 Sweeper: processed=%d published=%d skipped=%d failed=%d",
		report.Processed, report.Published, report.Skipped, report.Failed)
	return report, nil
}

func (s *Sweeper) handle(ctx context.Context, c models.PublishCandidate) Result {
	res := Result{VideoID: c.ID, Title: c.Title}
	fail := func(msg string) Result {
		res.Outcome = OutcomeFailed
		res.Error = msg
		return res
	}
	giveUp := func(msg string) Result {
		log.Printf("❌ Video %s: %s", c.ID, msg)
		if err := s.store.MarkVideoFailed(ctx, c.ID, msg); err != nil {
			log.Printf("⚠️  Failed to mark video %s failed: %v", c.ID, err)
		}
		return fail(msg)
	}

	profile, err := s.store.GetProfile(ctx, c.UserID)
	if err != nil {
		return fail(err.Error())
	}
	if !profile.YouTubeConnected {
		return giveUp(MsgNotConnected)
	}
	if profile.ManualApprovalRequired {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonManualApproval
		return res
	}

	if _, err := s.tokens.GetValidAccessToken(ctx, c.UserID); err != nil {
		if errors.Is(err, oauth.ErrAccountDisconnected) {
			return giveUp(MsgTokenExpired)
		}
		// Transient; the video stays ready for the next sweep.
		log.Printf("⚠️  Token check for video %s failed: %v", c.ID, err)
		return fail(err.Error())
	}

	if s.cfg.RefreshMetadata && s.generator != nil {
		s.refreshMetadata(ctx, &c)
		res.Title = c.Title
	}

	published, err := s.publisher.Publish(ctx, c.ID)
	if err != nil {
		if errors.Is(err, publisher.ErrAlreadyPublishing) {
			res.Outcome = OutcomeSkipped
			res.Reason = err.Error()
			return res
		}
		if errors.Is(err, oauth.ErrAccountDisconnected) {
			return giveUp(MsgTokenExpired)
		}
		return fail(err.Error())
	}

	res.Outcome = OutcomePublished
	res.YouTubeVideoID = published.PublishedID
	return res
}

func (s *Sweeper) refreshMetadata(ctx context.Context, c *models.PublishCandidate) {
	generated, err := s.generator.Generate(ctx, content.Request{
		Topic:        c.SeriesTopic,
		VisualStyle:  c.SeriesVisualStyle,
		VoicePersona: c.SeriesVoicePersona,
		Language:     c.SeriesLanguage,
		Platforms:    []string{"youtube"},
	})
	if err != nil {
		log.Printf("⚠️  Metadata refresh for video %s failed, keeping stored metadata: %v", c.ID, err)
		return
	}

	description := generated.FullDescription()
	if err := s.store.UpdateVideoMetadata(ctx, c.ID, generated.Title, description, generated.Hashtags); err != nil {
		log.Printf("⚠️  Could not save refreshed metadata for video %s: %v", c.ID, err)
		return
	}
	c.Title = generated.Title
	c.Description = description
	c.Hashtags = generated.Hashtags
}
