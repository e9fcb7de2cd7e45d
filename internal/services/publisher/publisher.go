// Package publisher uploads a ready video to YouTube.
//
// Go Pattern: The upload speaks the resumable protocol directly over
// net/http (init POST, then one PUT of the bytes) so that a 401 on the
// init call can be answered with exactly one forced token refresh. The
// metadata body is the youtube/v3 Video type, so field names and JSON
// encoding match the Data API client.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/youtube/v3"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/notify"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/retry"
)

var (
	// ErrPreconditionFailed means the video is not publishable. Nothing was changed.
	ErrPreconditionFailed = errors.New("video not publishable")
	// ErrAlreadyPublishing means another run won the ready → publishing transition.
	ErrAlreadyPublishing = errors.New("video already being published")
	// ErrInvalidOverride means an upload override was rejected before anything changed.
	ErrInvalidOverride = errors.New("invalid upload override")
)

const (
	maxTitleRunes       = 100
	maxDescriptionRunes = 5000
	shortsCategory      = "22"
)

// baseTags are attached to every upload ahead of the video's own hashtags.
var baseTags = []string{"shorts", "viral", "trending"}

// Store is the part of the database the publisher uses.
type Store interface {
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	ClaimVideoForPublish(ctx context.Context, id string) (bool, error)
	MarkVideoPublished(ctx context.Context, id, publishID string, publishedAt time.Time) error
	MarkVideoFailed(ctx context.Context, id, message string) error
}

// Tokens supplies the owner's access token.
type Tokens interface {
	GetValidAccessToken(ctx context.Context, userID string) (string, error)
	ForceRefresh(ctx context.Context, userID string) (string, error)
}

// Config holds the upload settings.
type Config struct {
	UploadURL     string
	PrivacyStatus string
	CategoryID    string
	MaxVideoBytes int64
	HTTPClient    *http.Client
	RecordRetry   retry.Policy // attempts to record a finished upload
}

// Result reports the outcome of one publish.
type Result struct {
	Success     bool   `json:"success"`
	PublishedID string `json:"youtube_video_id,omitempty"`
	URL         string `json:"youtube_url,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Overrides replace the stored metadata for one upload. Empty fields keep
// the video's own values. The stored row is not changed.
type Overrides struct {
	Title         string
	Description   string
	Tags          []string
	PrivacyStatus string
}

var privacyStatuses = map[string]bool{"public": true, "unlisted": true, "private": true}

// Publisher moves videos from ready to published.
type Publisher struct {
	store    Store
	tokens   Tokens
	notifier notify.Notifier
	cfg      Config
	client   *http.Client
	now      func() time.Time
}

// New creates a publisher.
func New(store Store, tokens Tokens, notifier notify.Notifier, cfg Config) *Publisher {
	if cfg.UploadURL == "" {
		cfg.UploadURL = "https://www.googleapis.com/upload/youtube/v3/videos"
	}
	if cfg.PrivacyStatus == "" {
		cfg.PrivacyStatus = "public"
	}
	if cfg.CategoryID == "" {
		cfg.CategoryID = shortsCategory
	}
	if cfg.MaxVideoBytes <= 0 {
		cfg.MaxVideoBytes = 256 << 20
	}
	if len(cfg.RecordRetry.Delays) == 0 {
		cfg.RecordRetry = retry.Default
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Publisher{store: store, tokens: tokens, notifier: notifier, cfg: cfg, client: client, now: time.Now}
}

// Publish uploads one video with its stored metadata.
func (p *Publisher) Publish(ctx context.Context, videoID string) (*Result, error) {
	return p.PublishWith(ctx, videoID, Overrides{})
}

// PublishWith uploads one video. Precondition, override and token errors
// leave the video untouched; any failure after the video was claimed marks
// it failed.
func (p *Publisher) PublishWith(ctx context.Context, videoID string, o Overrides) (*Result, error) {
	privacy := p.cfg.PrivacyStatus
	if o.PrivacyStatus != "" {
		if !privacyStatuses[o.PrivacyStatus] {
			reason := fmt.Sprintf("privacy_status must be public, unlisted or private, got %q", o.PrivacyStatus)
			return &Result{Reason: reason}, fmt.Errorf("%w: %s", ErrInvalidOverride, reason)
		}
		privacy = o.PrivacyStatus
	}

	video, err := p.store.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if reason := notPublishable(video); reason != "" {
		return &Result{Reason: reason}, fmt.Errorf("%w: %s", ErrPreconditionFailed, reason)
	}
	meta, err := json.Marshal(Metadata(o.apply(video), privacy, p.cfg.CategoryID))
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	token, err := p.tokens.GetValidAccessToken(ctx, video.UserID)
	if err != nil {
		return &Result{Reason: err.Error()}, err
	}

	claimed, err := p.store.ClaimVideoForPublish(ctx, video.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return &Result{Reason: "video is already being published"}, ErrAlreadyPublishing
	}

	log.Printf("📤 Publishing video %s (%q)", video.ID, video.Title)

	publishID, err := p.upload(ctx, video, token, meta)
	if err != nil {
		msg := err.Error()
		log.Printf("❌ Publish failed for video %s: %s", video.ID, msg)
		// Record the failure even when the caller's context is gone.
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if merr := p.store.MarkVideoFailed(mctx, video.ID, msg); merr != nil {
			log.Printf("⚠️  Failed to mark video %s failed: %v", video.ID, merr)
		}
		p.notifier.Notify(ctx, notify.EventVideoFailed, notify.VideoEvent{
			VideoID: video.ID, UserID: video.UserID, Status: string(models.VideoFailed), Error: msg,
		})
		return &Result{Reason: msg}, err
	}

	// The upload exists now. Recording it must survive a cancelled caller,
	// otherwise the row stays 'publishing' until the sweeper reaps it.
	publishedAt := p.now()
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	err = retry.Do(rctx, p.cfg.RecordRetry, func(ctx context.Context) error {
		return p.store.MarkVideoPublished(ctx, video.ID, publishID, publishedAt)
	})
	if err != nil {
		log.Printf("❌ Video %s uploaded as %s but not recorded: %v", video.ID, publishID, err)
		return &Result{PublishedID: publishID, URL: WatchURL(publishID), Reason: "uploaded but not recorded"},
			fmt.Errorf("video uploaded as %s but not recorded: %w", publishID, err)
	}

	log.Printf("✅ Video %s published as %s", video.ID, publishID)
	p.notifier.Notify(ctx, notify.EventVideoPublished, notify.VideoEvent{
		VideoID: video.ID, UserID: video.UserID, Status: string(models.VideoPublished), YouTubeVideoID: publishID,
	})
	return &Result{Success: true, PublishedID: publishID, URL: WatchURL(publishID)}, nil
}

// WatchURL is the public link for a published video.
func WatchURL(id string) string {
	return "https://www.youtube.com/shorts/" + id
}

func notPublishable(v *models.Video) string {
	switch {
	case v.YouTubeVideoID != nil && *v.YouTubeVideoID != "":
		return "video is already published"
	case v.Status != models.VideoReady:
		return fmt.Sprintf("video status is %s, not ready", v.Status)
	case v.VideoURL == nil || *v.VideoURL == "":
		return "video has no file URL"
	}
	return ""
}

// apply returns a copy of v carrying the overridden metadata.
func (o Overrides) apply(v *models.Video) *models.Video {
	out := *v
	if t := strings.TrimSpace(o.Title); t != "" {
		out.Title = t
	}
	if d := strings.TrimSpace(o.Description); d != "" {
		out.Description = d
	}
	if len(o.Tags) > 0 {
		out.Hashtags = o.Tags
	}
	return &out
}

func (p *Publisher) upload(ctx context.Context, video *models.Video, token string, meta []byte) (string, error) {
	data, err := p.download(ctx, *video.VideoURL)
	if err != nil {
		return "", err
	}

	resp, err := p.initiate(ctx, token, meta, len(data))
	if err != nil {
		return "", err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		log.Printf("🔁 Upload init for video %s got 401, refreshing token once", video.ID)
		token, err = p.tokens.ForceRefresh(ctx, video.UserID)
		if err != nil {
			return "", err
		}
		resp, err = p.initiate(ctx, token, meta, len(data))
		if err != nil {
			return "", err
		}
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("YouTube upload failed: %d %s", resp.StatusCode, snippet(resp.Body))
	}

	session := resp.Header.Get("Location")
	if session == "" {
		return "", fmt.Errorf("YouTube upload failed: no upload session returned")
	}
	return p.putBytes(ctx, session, token, data)
}

func (p *Publisher) download(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid video URL: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video download failed: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxVideoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("video download failed: %w", err)
	}
	if int64(len(data)) > p.cfg.MaxVideoBytes {
		return nil, fmt.Errorf("video exceeds %d MB upload limit", p.cfg.MaxVideoBytes>>20)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("video download failed: empty file")
	}
	return data, nil
}

func (p *Publisher) initiate(ctx context.Context, token string, meta []byte, size int) (*http.Response, error) {
	u, err := url.Parse(p.cfg.UploadURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upload URL: %w", err)
	}
	q := u.Query()
	q.Set("uploadType", "resumable")
	q.Set("part", "snippet,status")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(meta))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", strconv.Itoa(size))
	req.Header.Set("X-Upload-Content-Type", "video/mp4")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("YouTube upload failed: %w", err)
	}
	return resp, nil
}

func (p *Publisher) putBytes(ctx context.Context, session, token string, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "video/mp4")
	req.ContentLength = int64(len(data))

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Video upload failed: %w", err)
	}
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("Video upload failed: %d %s", resp.StatusCode, snippet(resp.Body))
	}

	var created youtube.Video
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("Video upload failed: unreadable response: %w", err)
	}
	if created.Id == "" {
		return "", fmt.Errorf("Video upload failed: response has no video id")
	}
	return created.Id, nil
}

// Metadata builds the snippet and status sent with the upload.
func Metadata(v *models.Video, privacy, category string) *youtube.Video {
	tags := append([]string(nil), baseTags...)
	for _, h := range v.Hashtags {
		if tag := strings.TrimPrefix(strings.TrimSpace(h), "#"); tag != "" {
			tags = append(tags, tag)
		}
	}

	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       truncateRunes(v.Title, maxTitleRunes),
			Description: truncateRunes(v.Description, maxDescriptionRunes),
			Tags:        tags,
			CategoryId:  category,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           privacy,
			SelfDeclaredMadeForKids: false,
			// false is the zero value and would be dropped without this.
			ForceSendFields: []string{"SelfDeclaredMadeForKids"},
		},
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 300))
	return strings.TrimSpace(string(b))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
}
