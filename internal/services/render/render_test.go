package render

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/retry"
)

func TestFalState(t *testing.T) {
	tests := []struct {
		native string
		want   models.VideoStatus
	}{
		{"IN_QUEUE", models.VideoGenerating},
		{"IN_PROGRESS", models.VideoGenerating},
		{"COMPLETED", models.VideoReady},
		{"completed", models.VideoReady},
		{"FAILED", models.VideoFailed},
		{"ERROR", models.VideoFailed},
		{"SOMETHING_NEW", models.VideoGenerating},
		{"", models.VideoGenerating},
	}
	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			if got := FalState(tt.native); got != tt.want {
				t.Errorf("FalState(%q) = %q, want %q", tt.native, got, tt.want)
			}
		})
	}
}

func TestStyleCatalog(t *testing.T) {
	c, err := LoadStyleCatalog("")
	if err != nil {
		t.Fatalf("LoadStyleCatalog: %v", err)
	}
	if len(c.Names()) != 11 {
		t.Errorf("built-in catalog has %d styles, want 11", len(c.Names()))
	}
	if got := c.Prompt("anime"); !strings.Contains(got, "anime style") {
		t.Errorf("Prompt(anime) = %q", got)
	}
	if got, want := c.Prompt("unknown_style"), c.Prompt("realistic"); got != want {
		t.Errorf("unknown style should fall back to realistic, got %q", got)
	}

	if _, err := ParseStyleCatalog([]byte("default: missing\nstyles:\n  a: b\n")); err == nil {
		t.Error("expected error for a default that is not defined")
	}
}

var fastRetry = retry.Policy{Delays: []time.Duration{0, time.Millisecond, time.Millisecond}}

func TestFalSubmit(t *testing.T) {
	var got Job
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/fal-ai/sora-2/text-to-video" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Key fal-secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"request_id":"req-123"}`)
	}))
	defer srv.Close()

	p := NewFal(FalConfig{Key: "fal-secret", BaseURL: srv.URL, ModelPath: "fal-ai/sora-2/text-to-video", Retry: fastRetry})
	handle, err := p.Submit(context.Background(), Job{Prompt: "p", AspectRatio: "9:16", Duration: 8, Resolution: "720p"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if handle != "req-123" {
		t.Errorf("handle = %q", handle)
	}
	if got.Resolution != "720p" || got.Duration != 8 {
		t.Errorf("job sent = %+v", got)
	}
}

func TestFalStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		result     string
		wantState  models.VideoStatus
		wantURL    string
		wantDur    int
		wantErrMsg string
	}{
		{name: "queued", status: `{"status":"IN_QUEUE","queue_position":3}`, wantState: models.VideoGenerating},
		{
			name:      "completed",
			status:    `{"status":"COMPLETED"}`,
			result:    `{"video":{"url":"https://cdn/v.mp4","duration":7.6},"thumbnail":{"url":"https://cdn/t.jpg"}}`,
			wantState: models.VideoReady,
			wantURL:   "https://cdn/v.mp4",
			wantDur:   8,
		},
		{name: "failed with default message", status: `{"status":"FAILED"}`, wantState: models.VideoFailed, wantErrMsg: "Video rendering failed"},
		{name: "failed with provider message", status: `{"status":"FAILED","error":"content policy"}`, wantState: models.VideoFailed, wantErrMsg: "content policy"},
		{name: "completed without url", status: `{"status":"COMPLETED"}`, result: `{"video":{}}`, wantState: models.VideoFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if strings.HasSuffix(r.URL.Path, "/status") {
					io.WriteString(w, tt.status)
					return
				}
				io.WriteString(w, tt.result)
			}))
			defer srv.Close()

			p := NewFal(FalConfig{Key: "k", BaseURL: srv.URL, ModelPath: "m", Retry: fastRetry})
			st, err := p.Status(context.Background(), "req-1")
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if st.State != tt.wantState {
				t.Fatalf("State = %q, want %q", st.State, tt.wantState)
			}
			if tt.wantURL != "" && (st.Output == nil || st.Output.VideoURL != tt.wantURL || st.Output.DurationSecs != tt.wantDur) {
				t.Errorf("Output = %+v", st.Output)
			}
			if tt.wantErrMsg != "" && st.Error != tt.wantErrMsg {
				t.Errorf("Error = %q, want %q", st.Error, tt.wantErrMsg)
			}
			if tt.name == "queued" && (st.QueuePosition == nil || *st.QueuePosition != 3) {
				t.Errorf("QueuePosition = %v", st.QueuePosition)
			}
		})
	}
}

func TestFalStatusTransportError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewFal(FalConfig{Key: "k", BaseURL: srv.URL, ModelPath: "m", Retry: fastRetry})
	if _, err := p.Status(context.Background(), "req-1"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (bounded retry)", calls)
	}
}

type fakeProvider struct {
	handle string
	err    error
	job    Job
}

func (f *fakeProvider) Submit(ctx context.Context, job Job) (string, error) {
	f.job = job
	return f.handle, f.err
}

func (f *fakeProvider) Status(ctx context.Context, handle string) (*Status, error) {
	return nil, errors.New("not used")
}

type fakeVideoStore struct {
	created []*models.Video
}

func (f *fakeVideoStore) CreateVideo(ctx context.Context, v *models.Video) error {
	v.ID = "video-1"
	f.created = append(f.created, v)
	return nil
}

func TestSubmitterSubmit(t *testing.T) {
	styles, _ := LoadStyleCatalog("")
	provider := &fakeProvider{handle: "req-9"}
	store := &fakeVideoStore{}
	s := NewSubmitter(provider, styles, store)

	seriesID := "series-1"
	sub, err := s.Submit(context.Background(), SubmitRequest{
		UserID:      "user-1",
		SeriesID:    &seriesID,
		Title:       "Title",
		Script:      "A short script.",
		VisualStyle: "anime",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.VideoID != "video-1" || sub.JobHandle != "req-9" {
		t.Errorf("submission = %+v", sub)
	}
	if provider.job.AspectRatio != DefaultAspectRatio || provider.job.Duration != DefaultDuration {
		t.Errorf("defaults not applied: %+v", provider.job)
	}
	if !strings.HasPrefix(provider.job.Prompt, "A short script. anime style") {
		t.Errorf("Prompt = %q", provider.job.Prompt)
	}
	if len(store.created) != 1 || store.created[0].Status != models.VideoGenerating {
		t.Fatalf("expected one generating video, got %+v", store.created)
	}
}

func TestSubmitterProviderFailureWritesNothing(t *testing.T) {
	styles, _ := LoadStyleCatalog("")
	store := &fakeVideoStore{}
	s := NewSubmitter(&fakeProvider{err: errors.New("quota exceeded")}, styles, store)

	if _, err := s.Submit(context.Background(), SubmitRequest{UserID: "u", Script: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if len(store.created) != 0 {
		t.Errorf("created %d videos, want 0", len(store.created))
	}
}

func TestIsConfigured(t *testing.T) {
	styles, _ := LoadStyleCatalog("")
	tests := []struct {
		name     string
		provider Provider
		want     bool
	}{
		{"fal with key", NewFal(FalConfig{Key: "k"}), true},
		{"fal without key", NewFal(FalConfig{}), false},
		{"provider without the method", &fakeProvider{}, true},
		{"no provider", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConfigured(tt.provider); got != tt.want {
				t.Errorf("IsConfigured = %v, want %v", got, tt.want)
			}
			if got := NewSubmitter(tt.provider, styles, &fakeVideoStore{}).IsConfigured(); got != tt.want {
				t.Errorf("Submitter.IsConfigured = %v, want %v", got, tt.want)
			}
		})
	}
}
