// Package cronjobs drives the periodic ticks (scheduler, poller, sweeper)
// inside the serve process.
//
// Go Pattern: robfig/cron owns the timing; every entry is wrapped in
// SkipIfStillRunning so a slow tick is never stacked. Across instances a
// ticklock.Locker makes sure only one process runs a given tick.
package cronjobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Shimizu-Technology/autoshorts-api/internal/services/ticklock"
)

// Job is one periodic tick.
type Job struct {
	Name       string
	Spec       string // cron expression or "@every 5m"
	Run        func(ctx context.Context) error
	Configured func() bool // nil means always runnable
}

// Enabled reports whether the job's dependencies are configured.
func (j Job) Enabled() bool {
	return j.Configured == nil || j.Configured()
}

// Runner schedules jobs and runs each under a deadline and a tick lock.
type Runner struct {
	cron    *cron.Cron
	locker  ticklock.Locker
	timeout time.Duration
	jobs    []Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a runner. A nil locker falls back to an in-process lock.
func New(locker ticklock.Locker, timeout time.Duration) *Runner {
	if locker == nil {
		locker = ticklock.NewLocal()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger))),
		locker:  locker,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers a job. A job that is not Enabled is left out with a warning.
func (r *Runner) Add(job Job) error {
	if !job.Enabled() {
		log.Printf("⚠️  %s job not scheduled: its credentials are not configured", job.Name)
		return nil
	}
	id, err := r.cron.AddFunc(job.Spec, func() { r.runJob(r.ctx, job) })
	if err != nil {
		return fmt.Errorf("failed to schedule %s (%q): %w", job.Name, job.Spec, err)
	}
	r.jobs = append(r.jobs, job)
	log.Printf("⏰ Scheduled %s job (id %d, %s)", job.Name, id, job.Spec)
	return nil
}

// Start begins the schedule. With runNow every job also runs once right away.
func (r *Runner) Start(runNow bool) {
	r.cron.Start()
	if !runNow {
		return
	}
	for _, job := range r.jobs {
		r.wg.Add(1)
		go func(job Job) {
			defer r.wg.Done()
			r.runJob(r.ctx, job)
		}(job)
	}
}

// Stop cancels running ticks and waits for them to return.
func (r *Runner) Stop() {
	log.Println("⏳ Stopping cron jobs...")
	r.cancel()
	<-r.cron.Stop().Done()
	r.wg.Wait()
	log.Println("✅ Cron jobs stopped")
}

// runJob runs one tick if no other run holds its lock.
func (r *Runner) runJob(parent context.Context, job Job) {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	release, ok, err := r.locker.Acquire(ctx, job.Name, r.timeout)
	if err != nil {
		log.Printf("⚠️  %s tick: lock unavailable: %v", job.Name, err)
		return
	}
	if !ok {
		log.Printf("⏭️  %s tick already running elsewhere, skipping", job.Name)
		return
	}
	defer release()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Printf("❌ %s tick failed after %v: %v", job.Name, time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("✅ %s tick finished in %v", job.Name, time.Since(start).Round(time.Millisecond))
}
