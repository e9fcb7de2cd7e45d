package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/retry"
)

// FalConfig configures the fal.ai queue client.
type FalConfig struct {
	Key        string
	BaseURL    string // e.g. https://queue.fal.run
	ModelPath  string // e.g. fal-ai/sora-2/text-to-video
	HTTPClient *http.Client
	Retry      retry.Policy // applied to status and result reads
}

// FalProvider talks to the fal.ai queue API.
type FalProvider struct {
	cfg    FalConfig
	client *http.Client
}

// NewFal creates a fal.ai provider.
func NewFal(cfg FalConfig) *FalProvider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if len(cfg.Retry.Delays) == 0 {
		cfg.Retry = retry.Default
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.ModelPath = strings.Trim(cfg.ModelPath, "/")
	return &FalProvider{cfg: cfg, client: client}
}

// IsConfigured reports whether a fal.ai key is set.
func (p *FalProvider) IsConfigured() bool {
	return p.cfg.Key != ""
}

// FalState maps a fal.ai queue status onto the video lifecycle.
// Unknown statuses are treated as still in flight.
func FalState(native string) models.VideoStatus {
	switch strings.ToUpper(native) {
	case "IN_QUEUE", "IN_PROGRESS":
		return models.VideoGenerating
	case "COMPLETED":
		return models.VideoReady
	case "FAILED", "ERROR", "CANCELLED":
		return models.VideoFailed
	default:
		return models.VideoGenerating
	}
}

type falSubmitResponse struct {
	RequestID string `json:"request_id"`
}

type falStatusResponse struct {
	Status        string `json:"status"`
	QueuePosition *int   `json:"queue_position"`
	Error         string `json:"error"`
}

type falResultResponse struct {
	Video struct {
		URL      string  `json:"url"`
		Duration float64 `json:"duration"`
	} `json:"video"`
	Thumbnail struct {
		URL string `json:"url"`
	} `json:"thumbnail"`
}

// Submit queues a render job.
func (p *FalProvider) Submit(ctx context.Context, job Job) (string, error) {
	if p.cfg.Key == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal render job: %w", err)
	}

	var out falSubmitResponse
	url := fmt.Sprintf("%s/%s", p.cfg.BaseURL, p.cfg.ModelPath)
	if err := p.do(ctx, http.MethodPost, url, body, &out); err != nil {
		return "", fmt.Errorf("render submission failed: %w", err)
	}
	if out.RequestID == "" {
		return "", fmt.Errorf("render submission returned no request_id")
	}

	log.Printf("🎬 Render job submitted: %s", out.RequestID)
	return out.RequestID, nil
}

// Status checks a job and, once it completed, fetches its output.
func (p *FalProvider) Status(ctx context.Context, handle string) (*Status, error) {
	if p.cfg.Key == "" {
		return nil, ErrNotConfigured
	}

	var st falStatusResponse
	statusURL := fmt.Sprintf("%s/%s/requests/%s/status", p.cfg.BaseURL, p.cfg.ModelPath, handle)
	err := retry.Do(ctx, p.cfg.Retry, func(ctx context.Context) error {
		return p.do(ctx, http.MethodGet, statusURL, nil, &st)
	})
	if err != nil {
		return nil, fmt.Errorf("render status check failed: %w", err)
	}

	out := &Status{
		State:         FalState(st.Status),
		Native:        st.Status,
		QueuePosition: st.QueuePosition,
	}

	switch out.State {
	case models.VideoFailed:
		out.Error = st.Error
		if out.Error == "" {
			out.Error = "Video rendering failed"
		}
	case models.VideoReady:
		res, err := p.result(ctx, handle)
		if err != nil {
			out.State = models.VideoFailed
			out.Error = "Failed to fetch render result: " + err.Error()
			return out, nil
		}
		out.Output = res
	}
	return out, nil
}

func (p *FalProvider) result(ctx context.Context, handle string) (*models.RenderOutput, error) {
	var res falResultResponse
	resultURL := fmt.Sprintf("%s/%s/requests/%s", p.cfg.BaseURL, p.cfg.ModelPath, handle)
	err := retry.Do(ctx, p.cfg.Retry, func(ctx context.Context) error {
		return p.do(ctx, http.MethodGet, resultURL, nil, &res)
	})
	if err != nil {
		return nil, err
	}
	if res.Video.URL == "" {
		return nil, fmt.Errorf("result has no video url")
	}
	return &models.RenderOutput{
		VideoURL:     res.Video.URL,
		ThumbnailURL: res.Thumbnail.URL,
		DurationSecs: int(math.Round(res.Video.Duration)),
	}, nil
}

// httpStatusError is returned for non-2xx responses. 4xx other than 429 are
// not worth retrying.
type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

func (p *FalProvider) do(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Key "+p.cfg.Key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &httpStatusError{code: resp.StatusCode, body: truncate(string(data), 200)}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(statusErr)
		}
		return statusErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
