// Package oauth manages each creator's YouTube authorization.
//
// Go Pattern: The manager wraps golang.org/x/oauth2 for the grant flows and
// keeps the persistence behind a small Store interface. Tokens are sealed
// with a tokenbox before they touch the database.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/retry"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/tokenbox"
)

// ErrAccountDisconnected means the creator has to connect their channel again.
var ErrAccountDisconnected = errors.New("youtube account disconnected")

// ErrNotConfigured means no OAuth client credentials were provided.
var ErrNotConfigured = errors.New("youtube oauth not configured")

// refreshWindow is how close to expiry a stored token is still used.
const refreshWindow = 5 * time.Minute

// Store is the part of the database the manager uses.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpdateYouTubeTokens(ctx context.Context, userID, accessToken string, expiresAt time.Time, refreshToken *string) error
	SaveYouTubeConnection(ctx context.Context, userID string, conn models.YouTubeConnection) error
	ClearYouTubeConnection(ctx context.Context, userID string) error
}

// Config holds the OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	StateKey     string
	// Endpoint defaults to Google's.
	Endpoint oauth2.Endpoint
	// APIBaseURL overrides the YouTube Data API root used for the channel lookup.
	APIBaseURL string
	HTTPClient *http.Client
}

// Manager hands out valid access tokens and runs the connect flow.
type Manager struct {
	conf       *oauth2.Config
	store      Store
	box        *tokenbox.Box
	stateKey   []byte
	apiBaseURL string
	client     *http.Client
	now        func() time.Time
}

// NewManager creates a token manager. box may be nil to store tokens as-is.
func NewManager(cfg Config, store Store, box *tokenbox.Box) *Manager {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if box == nil {
		box, _ = tokenbox.New("")
	}

	return &Manager{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
		},
		store:      store,
		box:        box,
		stateKey:   []byte(cfg.StateKey),
		apiBaseURL: cfg.APIBaseURL,
		client:     client,
		now:        time.Now,
	}
}

// SetClock overrides the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// IsConfigured reports whether client credentials are present.
func (m *Manager) IsConfigured() bool {
	return m.conf.ClientID != "" && m.conf.ClientSecret != ""
}

// GetValidAccessToken returns a token that stays valid for at least five
// minutes, refreshing and persisting a new one when needed.
func (m *Manager) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	p, err := m.store.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if !p.YouTubeConnected || p.YouTubeRefreshToken == nil {
		return "", ErrAccountDisconnected
	}

	if p.YouTubeAccessToken != nil && p.YouTubeTokenExpiresAt != nil &&
		p.YouTubeTokenExpiresAt.After(m.now().Add(refreshWindow)) {
		token, err := m.box.Open(*p.YouTubeAccessToken)
		if err == nil && token != "" {
			return token, nil
		}
		log.Printf("⚠️  Stored access token for %s unreadable, refreshing: %v", userID, err)
	}

	return m.refresh(ctx, userID, p)
}

// ForceRefresh refreshes regardless of the stored expiry. Used after the
// platform rejected a token that looked valid.
func (m *Manager) ForceRefresh(ctx context.Context, userID string) (string, error) {
	p, err := m.store.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if !p.YouTubeConnected || p.YouTubeRefreshToken == nil {
		return "", ErrAccountDisconnected
	}
	return m.refresh(ctx, userID, p)
}

func (m *Manager) refresh(ctx context.Context, userID string, p *models.Profile) (string, error) {
	if !m.IsConfigured() {
		return "", ErrNotConfigured
	}
	refreshToken, err := m.box.Open(*p.YouTubeRefreshToken)
	if err != nil || refreshToken == "" {
		return "", ErrAccountDisconnected
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)

	var tok *oauth2.Token
	err = retry.Do(ctx, retry.Default, func(ctx context.Context) error {
		// An empty access token forces the source to hit the token endpoint.
		t, err := m.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			var re *oauth2.RetrieveError
			if errors.As(err, &re) {
				return retry.Permanent(err)
			}
			return err
		}
		tok = t
		return nil
	})
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			log.Printf("🔌 Refresh token for %s rejected (%s), account disconnected", userID, re.ErrorCode)
			return "", ErrAccountDisconnected
		}
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = m.now().Add(time.Hour)
	}

	sealedAccess, err := m.box.Seal(tok.AccessToken)
	if err != nil {
		return "", err
	}
	var rotated *string
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		sealed, err := m.box.Seal(tok.RefreshToken)
		if err != nil {
			return "", err
		}
		rotated = &sealed
	}

	if err := m.store.UpdateYouTubeTokens(ctx, userID, sealedAccess, expiresAt, rotated); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	log.Printf("🔑 Refreshed YouTube token for %s (expires %s)", userID, expiresAt.Format(time.RFC3339))
	return tok.AccessToken, nil
}

// Disconnect clears every token and channel field.
func (m *Manager) Disconnect(ctx context.Context, userID string) error {
	if err := m.store.ClearYouTubeConnection(ctx, userID); err != nil {
		return err
	}
	log.Printf("🔌 YouTube disconnected for %s", userID)
	return nil
}

// Connection is what a successful code exchange reports back.
type Connection struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
}

// ExchangeCode trades an authorization code for tokens, looks up the
// creator's channel and marks the profile connected.
func (m *Manager) ExchangeCode(ctx context.Context, code, state, redirectURI string) (*Connection, error) {
	if !m.IsConfigured() {
		return nil, ErrNotConfigured
	}
	userID, err := m.ParseState(state)
	if err != nil {
		return nil, err
	}

	conf := *m.conf
	if redirectURI != "" {
		conf.RedirectURL = redirectURI
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange failed: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("code exchange returned no refresh token")
	}

	channelID, channelName, err := m.lookupChannel(ctx, tok)
	if err != nil {
		return nil, err
	}

	sealedAccess, err := m.box.Seal(tok.AccessToken)
	if err != nil {
		return nil, err
	}
	sealedRefresh, err := m.box.Seal(tok.RefreshToken)
	if err != nil {
		return nil, err
	}
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = m.now().Add(time.Hour)
	}

	err = m.store.SaveYouTubeConnection(ctx, userID, models.YouTubeConnection{
		AccessToken:  sealedAccess,
		RefreshToken: sealedRefresh,
		ExpiresAt:    expiresAt,
		ChannelID:    channelID,
		ChannelName:  channelName,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("📺 YouTube channel %q connected for %s", channelName, userID)
	return &Connection{ChannelID: channelID, ChannelName: channelName}, nil
}

func (m *Manager) lookupChannel(ctx context.Context, tok *oauth2.Token) (string, string, error) {
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))),
	}
	if m.apiBaseURL != "" {
		opts = append(opts, option.WithEndpoint(m.apiBaseURL))
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return "", "", fmt.Errorf("failed to create youtube client: %w", err)
	}
	resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("channel lookup failed: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", "", fmt.Errorf("no YouTube channel found for this account")
	}

	ch := resp.Items[0]
	name := ""
	if ch.Snippet != nil {
		name = ch.Snippet.Title
	}
	return ch.Id, name, nil
}
