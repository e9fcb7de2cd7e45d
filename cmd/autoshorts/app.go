package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Shimizu-Technology/autoshorts-api/internal/config"
	"github.com/Shimizu-Technology/autoshorts-api/internal/database"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/content"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/notify"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/oauth"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/poller"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/publisher"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/quota"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/render"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/scheduler"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/sweeper"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/ticklock"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/tokenbox"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/worker"
)

// app is the wired pipeline shared by serve and run.
type app struct {
	db        *database.DB
	pool      *worker.Pool
	notifier  *notify.Service
	locker    ticklock.Locker
	quota     *quota.Tracker
	oauth     *oauth.Manager
	content   *content.Generator
	submitter *render.Submitter
	scheduler *scheduler.Scheduler
	poller    *poller.Poller
	publisher *publisher.Publisher
	sweeper   *sweeper.Sweeper

	closers []func()
}

// buildApp connects to the database and wires every component.
func buildApp(cfg *config.Config) (*app, error) {
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Println("✅ Database connected")

	a := &app{db: db, pool: worker.NewPool(cfg.WorkerCount)}
	a.closers = append(a.closers, func() { db.Close() })

	box, err := tokenbox.New(cfg.TokenEncryptionKey)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_KEY: %w", err)
	}
	if box.Enabled() {
		log.Println("✅ OAuth tokens encrypted at rest")
	} else {
		log.Println("⚠️  TOKEN_ENCRYPTION_KEY not set, OAuth tokens stored unencrypted")
	}

	styles, err := render.LoadStyleCatalog(cfg.StyleCatalogPath)
	if err != nil {
		a.close()
		return nil, err
	}

	a.locker = ticklock.NewLocal()
	if cfg.RedisURL != "" {
		rl, err := ticklock.NewRedis(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rl.Ping(ctx); err != nil {
			log.Printf("⚠️  Redis unreachable (%v), tick locks are process-local", err)
			rl.Close()
		} else {
			a.locker = rl
			a.closers = append(a.closers, func() { rl.Close() })
			log.Println("✅ Redis tick locks enabled")
		}
	}

	a.notifier = notify.New(cfg.NotifyWebhookURL, cfg.NotifyWebhookSecret)
	a.closers = append(a.closers, a.notifier.Shutdown)
	if a.notifier.Enabled() {
		log.Println("✅ Event notifications enabled")
	}

	a.content = content.New(content.Config{
		APIKey:  cfg.ContentAPIKey,
		BaseURL: cfg.ContentBaseURL,
		Model:   cfg.ContentModel,
	})
	if !a.content.IsConfigured() {
		log.Println("⚠️  CONTENT_API_KEY not set, content generation disabled")
	}

	provider := render.NewFal(render.FalConfig{
		Key:       cfg.FalKey,
		BaseURL:   cfg.FalBaseURL,
		ModelPath: cfg.FalModelPath,
	})
	a.submitter = render.NewSubmitter(provider, styles, db)
	if !a.submitter.IsConfigured() {
		log.Println("⚠️  FAL_KEY not set, video rendering disabled")
	}

	a.quota = quota.NewTracker(db)
	a.oauth = oauth.NewManager(oauth.Config{
		ClientID:     cfg.YouTubeClientID,
		ClientSecret: cfg.YouTubeClientSecret,
		RedirectURL:  cfg.YouTubeRedirectURL,
		StateKey:     cfg.StateKey,
		APIBaseURL:   cfg.YouTubeAPIBaseURL,
	}, db, box)
	if !a.oauth.IsConfigured() {
		log.Println("⚠️  YOUTUBE_CLIENT_ID/SECRET not set, publishing disabled")
	}

	a.scheduler = scheduler.New(db, a.quota, a.content, a.submitter, a.pool, scheduler.Config{
		LeaseTTL: cfg.SeriesLeaseTTL,
	})
	a.poller = poller.New(provider, db, a.pool, a.notifier, poller.Config{
		Timeout:       cfg.RenderPollTimeout,
		PublishJitter: cfg.PublishJitter,
	})
	a.publisher = publisher.New(db, a.oauth, a.notifier, publisher.Config{
		UploadURL:     cfg.YouTubeUploadURL,
		PrivacyStatus: cfg.YouTubePrivacy,
		CategoryID:    cfg.YouTubeCategoryID,
		MaxVideoBytes: cfg.MaxVideoBytes,
	})
	a.sweeper = sweeper.New(db, a.oauth, a.content, a.publisher, a.pool, sweeper.Config{
		RefreshMetadata: cfg.RefreshMetadataOnPublish,
		PublishLease:    cfg.PublishLeaseTTL,
	})

	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
