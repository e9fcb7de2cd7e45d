package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shimizu-Technology/autoshorts-api/internal/handlers"
	"github.com/Shimizu-Technology/autoshorts-api/internal/router"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/cronjobs"
)

var (
	serveMigrate bool
	serveCron    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic ticks",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Printf("🚀 AutoShorts API %s starting...", Version)
		log.Printf("📋 Config loaded: port=%s, workers=%d, gin_mode=%s", cfg.Port, cfg.WorkerCount, cfg.GinMode)

		a, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		if serveMigrate {
			if err := a.db.RunMigrations(cfg.MigrationsPath); err != nil {
				return err
			}
		}

		var jobs *cronjobs.Runner
		if serveCron {
			jobs = cronjobs.New(a.locker, cfg.TickTimeout)
			for _, job := range a.jobs() {
				if err := jobs.Add(job); err != nil {
					return err
				}
			}
			jobs.Start(true)
		} else {
			log.Println("⚠️  Cron disabled; ticks only run via the function endpoints or `autoshorts run`")
		}

		h := handlers.NewHandler(a.db, a.pool, Version, handlers.Services{
			Scheduler: a.scheduler,
			Poller:    a.poller,
			Sweeper:   a.sweeper,
			Publisher: a.publisher,
			OAuth:     a.oauth,
			Quota:     a.quota,
			Content:   a.content,
			Renderer:  a.submitter,
		})
		r := router.Setup(h, router.Options{
			JWTSecret:      cfg.JWTSecret,
			ServiceKey:     cfg.ServiceKey,
			RateLimit:      cfg.DefaultRateLimit,
			AllowedOrigins: cfg.AllowedOrigins,
		})

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: cfg.TickTimeout + 30*time.Second, // trigger functions run a whole tick
			IdleTimeout:  60 * time.Second,
		}

		serverErr := make(chan error, 1)
		go func() {
			log.Printf("🌐 Server listening on http://localhost:%s", cfg.Port)
			log.Printf("📖 Health check: http://localhost:%s/api/v1/health", cfg.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()

		// Graceful shutdown
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			log.Printf("🛑 Received signal %v, shutting down gracefully...", sig)
		case err := <-serverErr:
			log.Printf("❌ Server failed: %v", err)
		}

		if jobs != nil {
			jobs.Stop()
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("⚠️  Server forced to shutdown: %v", err)
		}

		log.Println("👋 Server stopped. Goodbye!")
		return nil
	},
}

// jobs lists the periodic ticks with their schedules.
func (a *app) jobs() []cronjobs.Job {
	return []cronjobs.Job{
		{Name: "scheduler", Spec: cfg.SchedulerCron, Configured: a.scheduler.IsConfigured, Run: func(ctx context.Context) error {
			_, err := a.scheduler.RunOnce(ctx)
			return err
		}},
		{Name: "poller", Spec: cfg.PollerCron, Configured: a.poller.IsConfigured, Run: func(ctx context.Context) error {
			_, err := a.poller.PollPending(ctx)
			return err
		}},
		{Name: "sweeper", Spec: cfg.SweeperCron, Configured: a.oauth.IsConfigured, Run: func(ctx context.Context) error {
			_, err := a.sweeper.RunOnce(ctx)
			return err
		}},
	}
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "apply pending migrations on startup")
	serveCmd.Flags().BoolVar(&serveCron, "cron", true, "run the scheduler, poller and sweeper ticks in-process")
	rootCmd.AddCommand(serveCmd)
}
