package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/render"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/worker"
)

// memStore is an in-memory Store that counts writes.
type memStore struct {
	mu        sync.Mutex
	videos    map[string]*models.Video
	mutations int
}

func newMemStore(videos ...models.Video) *memStore {
	s := &memStore{videos: map[string]*models.Video{}}
	for i := range videos {
		v := videos[i]
		s.videos[v.ID] = &v
	}
	return s
}

func (s *memStore) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *v
	return &cp, nil
}

func (s *memStore) ListGeneratingVideos(ctx context.Context, limit int) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Video
	for _, v := range s.videos {
		if v.Status == models.VideoGenerating && v.JobHandle != nil {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (s *memStore) MarkVideoReady(ctx context.Context, id string, o models.RenderOutput, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.videos[id]
	if v.Status != models.VideoGenerating {
		return false, nil
	}
	s.mutations++
	v.Status = models.VideoReady
	v.VideoURL = &o.VideoURL
	v.ScheduledAt = &at
	return true, nil
}

func (s *memStore) MarkRenderFailed(ctx context.Context, id, msg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.videos[id]
	if v.Status != models.VideoGenerating {
		return false, nil
	}
	s.mutations++
	v.Status = models.VideoFailed
	v.ErrorMessage = &msg
	return true, nil
}

type stubProvider struct {
	mu     sync.Mutex
	status *render.Status
	err    error
	calls  int
	handle string // last handle queried
}

func (p *stubProvider) Submit(ctx context.Context, job render.Job) (string, error) {
	return "", errors.New("not used")
}

func (p *stubProvider) Status(ctx context.Context, handle string) (*render.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.handle = handle
	return p.status, p.err
}

var now = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func generating(id string, age time.Duration) models.Video {
	handle := "job-" + id
	return models.Video{ID: id, UserID: "u1", Status: models.VideoGenerating, JobHandle: &handle, CreatedAt: now.Add(-age)}
}

func newPoller(p render.Provider, s Store, cfg Config) *Poller {
	pl := New(p, s, worker.NewPool(2), nil, cfg)
	pl.SetClock(func() time.Time { return now })
	return pl
}

func TestPollStatusTransitions(t *testing.T) {
	readyStatus := &render.Status{
		State:  models.VideoReady,
		Output: &models.RenderOutput{VideoURL: "https://cdn/v.mp4", DurationSecs: 8},
	}

	tests := []struct {
		name          string
		status        *render.Status
		providerErr   error
		age           time.Duration
		want          models.VideoStatus
		wantMutations int
		wantErr       bool
	}{
		{name: "in flight", status: &render.Status{State: models.VideoGenerating}, age: time.Minute, want: models.VideoGenerating},
		{name: "completed", status: readyStatus, age: time.Minute, want: models.VideoReady, wantMutations: 1},
		{name: "provider failure", status: &render.Status{State: models.VideoFailed, Error: "boom"}, age: time.Minute, want: models.VideoFailed, wantMutations: 1},
		{name: "transient error leaves state", providerErr: errors.New("502"), age: time.Minute, wantErr: true},
		{name: "in flight past timeout", status: &render.Status{State: models.VideoGenerating}, age: time.Hour, want: models.VideoFailed, wantMutations: 1},
		{name: "transient error past timeout", providerErr: errors.New("502"), age: time.Hour, want: models.VideoFailed, wantMutations: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(generating("v1", tt.age))
			p := newPoller(&stubProvider{status: tt.status, err: tt.providerErr}, store, Config{Timeout: 30 * time.Minute, PublishJitter: 30 * time.Minute})

			out, err := p.PollStatus(context.Background(), "", "v1")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if out.Status != tt.want {
					t.Errorf("Status = %q, want %q", out.Status, tt.want)
				}
			}
			if store.mutations != tt.wantMutations {
				t.Errorf("mutations = %d, want %d", store.mutations, tt.wantMutations)
			}
		})
	}
}

func TestPollStatusSchedulesWithinJitter(t *testing.T) {
	store := newMemStore(generating("v1", time.Minute))
	provider := &stubProvider{status: &render.Status{State: models.VideoReady, Output: &models.RenderOutput{VideoURL: "u"}}}
	p := newPoller(provider, store, Config{PublishJitter: 30 * time.Minute})

	if _, err := p.PollStatus(context.Background(), "", "v1"); err != nil {
		t.Fatalf("PollStatus: %v", err)
	}
	at := store.videos["v1"].ScheduledAt
	if at == nil || at.Before(now) || !at.Before(now.Add(30*time.Minute)) {
		t.Errorf("scheduled_at = %v, want within [now, now+30m)", at)
	}
}

func TestPollStatusIdempotentOnTerminal(t *testing.T) {
	for _, status := range []models.VideoStatus{models.VideoReady, models.VideoFailed, models.VideoPublished, models.VideoPublishing} {
		t.Run(string(status), func(t *testing.T) {
			v := generating("v1", time.Minute)
			v.Status = status
			store := newMemStore(v)
			provider := &stubProvider{status: &render.Status{State: models.VideoFailed, Error: "late"}}
			p := newPoller(provider, store, Config{})

			for i := 0; i < 3; i++ {
				out, err := p.PollStatus(context.Background(), "job-v1", "v1")
				if err != nil {
					t.Fatalf("PollStatus: %v", err)
				}
				if out.Status != status {
					t.Errorf("Status = %q, want unchanged %q", out.Status, status)
				}
			}
			if store.mutations != 0 {
				t.Errorf("mutations = %d, want 0", store.mutations)
			}
			if provider.calls != 0 {
				t.Errorf("provider called %d times for a settled video", provider.calls)
			}
		})
	}
}

func TestPollStatusUsesStoredHandle(t *testing.T) {
	tests := []struct {
		name       string
		video      models.Video
		callerJob  string
		wantErr    error
		wantCalled bool
	}{
		{name: "no handle given", video: generating("v1", time.Minute), wantCalled: true},
		{name: "matching handle", video: generating("v1", time.Minute), callerJob: "job-v1", wantCalled: true},
		{name: "other job", video: generating("v1", time.Minute), callerJob: "job-v2", wantErr: ErrJobMismatch},
		{name: "other job on a settled video", video: func() models.Video {
			v := generating("v1", time.Minute)
			v.Status = models.VideoReady
			return v
		}(), callerJob: "job-v2", wantErr: ErrJobMismatch},
		{name: "never submitted", video: models.Video{ID: "v1", Status: models.VideoGenerating, CreatedAt: now}, callerJob: "job-v1", wantErr: ErrNoJobHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &stubProvider{status: &render.Status{State: models.VideoGenerating}}
			p := newPoller(provider, newMemStore(tt.video), Config{})

			_, err := p.PollStatus(context.Background(), tt.callerJob, "v1")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if called := provider.calls > 0; called != tt.wantCalled {
				t.Fatalf("provider called = %v, want %v", called, tt.wantCalled)
			}
			if tt.wantCalled && provider.handle != "job-v1" {
				t.Errorf("queried handle %q, want the stored job-v1", provider.handle)
			}
		})
	}
}

func TestPollerIsConfigured(t *testing.T) {
	if !newPoller(&stubProvider{}, newMemStore(), Config{}).IsConfigured() {
		t.Error("provider without credentials check should count as configured")
	}
	if newPoller(render.NewFal(render.FalConfig{}), newMemStore(), Config{}).IsConfigured() {
		t.Error("fal without a key reported configured")
	}
}

func TestPollStatusSecondCallNoMutation(t *testing.T) {
	store := newMemStore(generating("v1", time.Minute))
	provider := &stubProvider{status: &render.Status{State: models.VideoReady, Output: &models.RenderOutput{VideoURL: "u"}}}
	p := newPoller(provider, store, Config{})

	first, _ := p.PollStatus(context.Background(), "", "v1")
	second, _ := p.PollStatus(context.Background(), "", "v1")
	if first.Status != models.VideoReady || second.Status != models.VideoReady {
		t.Errorf("statuses = %q, %q", first.Status, second.Status)
	}
	if store.mutations != 1 {
		t.Errorf("mutations = %d, want exactly 1", store.mutations)
	}
}

func TestPollPending(t *testing.T) {
	store := newMemStore(generating("a", time.Minute), generating("b", time.Minute))
	provider := &stubProvider{status: &render.Status{State: models.VideoReady, Output: &models.RenderOutput{VideoURL: "u"}}}
	p := newPoller(provider, store, Config{})

	report, err := p.PollPending(context.Background())
	if err != nil {
		t.Fatalf("PollPending: %v", err)
	}
	if report.Checked != 2 || report.Ready != 2 {
		t.Errorf("report = %+v", report)
	}
}
