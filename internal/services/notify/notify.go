// Package notify sends signed webhook notifications when a video changes
// state (ready, published, failed).
//
// Delivery is fire-and-forget: the pipeline never waits on a notification and
// never fails because one could not be delivered.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// Event names a video lifecycle change.
type Event string

const (
	EventVideoReady     Event = "video.ready"
	EventVideoPublished Event = "video.published"
	EventVideoFailed    Event = "video.failed"
)

// Notifier is implemented by anything that can announce an event.
type Notifier interface {
	Notify(ctx context.Context, event Event, data interface{})
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event, interface{}) {}

// VideoEvent is the data carried by every video event.
type VideoEvent struct {
	VideoID        string `json:"video_id"`
	UserID         string `json:"user_id,omitempty"`
	SeriesID       string `json:"series_id,omitempty"`
	Status         string `json:"status"`
	YouTubeVideoID string `json:"youtube_video_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Event     Event       `json:"event"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Service posts events to a single configured URL.
type Service struct {
	url        string
	secret     string
	client     *http.Client
	delays     []time.Duration
	shutdownCh chan struct{}
	wg         sync.WaitGroup

	mu     sync.Mutex // orders wg.Add against Shutdown's wg.Wait
	closed bool
}

// New creates a webhook notifier. An empty url disables delivery.
func New(url, secret string) *Service {
	return &Service{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		delays:     []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second},
		shutdownCh: make(chan struct{}),
	}
}

// Enabled reports whether a URL is configured.
func (s *Service) Enabled() bool {
	return s.url != ""
}

// Shutdown stops pending retries and waits for in-flight deliveries.
// Events notified after Shutdown has begun are dropped.
func (s *Service) Shutdown() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.shutdownCh)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// SignPayload creates an HMAC-SHA256 signature for a payload.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notify queues an event for delivery.
func (s *Service) Notify(_ context.Context, event Event, data interface{}) {
	if !s.Enabled() {
		return
	}

	body, err := json.Marshal(Payload{Event: event, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		log.Printf("⚠️  Failed to marshal %s notification: %v", event, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.Printf("⚠️  Notification %s dropped, shutting down", event)
		return
	}
	s.wg.Add(1)
	go s.deliverWithRetry(event, body)
}

func (s *Service) deliverWithRetry(event Event, body []byte) {
	defer s.wg.Done()

	// The request context is gone by the time retries run.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var lastErr string
	for attempt, delay := range s.delays {
		if attempt > 0 {
			select {
			case <-s.shutdownCh:
				log.Printf("⚠️  Notification %s aborted due to shutdown", event)
				return
			case <-ctx.Done():
				log.Printf("⚠️  Notification %s timed out", event)
				return
			case <-time.After(delay):
			}
		}

		status, err := s.deliver(ctx, body)
		if err == nil && status >= 200 && status < 300 {
			log.Printf("✅ Notification delivered: %s (attempt %d)", event, attempt+1)
			return
		}
		if err != nil {
			lastErr = err.Error()
		} else {
			lastErr = fmt.Sprintf("HTTP %d", status)
		}
		log.Printf("⚠️  Notification failed (attempt %d/%d): %s: %s", attempt+1, len(s.delays), event, lastErr)
	}

	log.Printf("❌ Notification failed permanently: %s: %s", event, lastErr)
}

func (s *Service) deliver(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "AutoShorts-Webhook/1.0")
	if s.secret != "" {
		req.Header.Set("X-Webhook-Signature", SignPayload(body, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
