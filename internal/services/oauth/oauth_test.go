package oauth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/Shimizu-Technology/autoshorts-api/internal/models"
	"github.com/Shimizu-Technology/autoshorts-api/internal/services/tokenbox"
)

type memStore struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
	updates  int
}

func (s *memStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) UpdateYouTubeTokens(ctx context.Context, userID, accessToken string, expiresAt time.Time, refreshToken *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[userID]
	p.YouTubeAccessToken = &accessToken
	p.YouTubeTokenExpiresAt = &expiresAt
	if refreshToken != nil {
		p.YouTubeRefreshToken = refreshToken
	}
	s.updates++
	return nil
}

func (s *memStore) SaveYouTubeConnection(ctx context.Context, userID string, conn models.YouTubeConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		p = &models.Profile{ID: userID}
		s.profiles[userID] = p
	}
	p.YouTubeConnected = true
	p.YouTubeAccessToken = &conn.AccessToken
	p.YouTubeRefreshToken = &conn.RefreshToken
	p.YouTubeTokenExpiresAt = &conn.ExpiresAt
	p.YouTubeChannelID = &conn.ChannelID
	p.YouTubeChannelName = &conn.ChannelName
	return nil
}

func (s *memStore) ClearYouTubeConnection(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[userID]
	p.YouTubeConnected = false
	p.YouTubeAccessToken = nil
	p.YouTubeRefreshToken = nil
	p.YouTubeTokenExpiresAt = nil
	p.YouTubeChannelID = nil
	p.YouTubeChannelName = nil
	return nil
}

func strPtr(s string) *string { return &s }

func connected(id, access, refresh string, expiresIn time.Duration) *models.Profile {
	exp := time.Now().Add(expiresIn)
	return &models.Profile{
		ID:                    id,
		YouTubeConnected:      true,
		YouTubeAccessToken:    strPtr(access),
		YouTubeRefreshToken:   strPtr(refresh),
		YouTubeTokenExpiresAt: &exp,
	}
}

// fakeGoogle serves the token endpoint and the channels list.
type fakeGoogle struct {
	*httptest.Server
	tokenCalls atomic.Int32
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	g := &fakeGoogle{}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/token":
			g.tokenCalls.Add(1)
			_ = r.ParseForm()
			switch {
			case r.Form.Get("grant_type") == "refresh_token" && r.Form.Get("refresh_token") == "good-refresh":
				_, _ = w.Write([]byte(`{"access_token":"fresh-access","token_type":"Bearer","expires_in":3600}`))
			case r.Form.Get("grant_type") == "authorization_code" && r.Form.Get("code") == "auth-code":
				_, _ = w.Write([]byte(`{"access_token":"first-access","refresh_token":"first-refresh","token_type":"Bearer","expires_in":3600}`))
			default:
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
			}
		case strings.HasSuffix(r.URL.Path, "/channels"):
			if r.Header.Get("Authorization") != "Bearer first-access" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"items":[{"id":"UC123","snippet":{"title":"Cat Facts Daily"}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(g.Close)
	return g
}

func newTestManager(g *fakeGoogle, store Store, box *tokenbox.Box) *Manager {
	return NewManager(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/callback",
		StateKey:     "state-secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   g.URL + "/auth",
			TokenURL:  g.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		APIBaseURL: g.URL + "/",
		HTTPClient: g.Client(),
	}, store, box)
}

func TestGetValidAccessToken(t *testing.T) {
	tests := []struct {
		name        string
		profile     *models.Profile
		want        string
		wantErr     error
		wantRefresh bool
	}{
		{
			name:        "expires in two minutes refreshes",
			profile:     connected("u1", "stale-access", "good-refresh", 2*time.Minute),
			want:        "fresh-access",
			wantRefresh: true,
		},
		{
			name:    "expires in ten minutes uses stored token",
			profile: connected("u1", "stored-access", "good-refresh", 10*time.Minute),
			want:    "stored-access",
		},
		{
			name:        "already expired refreshes",
			profile:     connected("u1", "old", "good-refresh", -time.Hour),
			want:        "fresh-access",
			wantRefresh: true,
		},
		{
			name:        "revoked refresh token",
			profile:     connected("u1", "old", "revoked-refresh", -time.Hour),
			wantErr:     ErrAccountDisconnected,
			wantRefresh: true,
		},
		{
			name:    "not connected",
			profile: &models.Profile{ID: "u1"},
			wantErr: ErrAccountDisconnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newFakeGoogle(t)
			store := &memStore{profiles: map[string]*models.Profile{"u1": tt.profile}}
			m := newTestManager(g, store, nil)

			got, err := m.GetValidAccessToken(context.Background(), "u1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
			if refreshed := g.tokenCalls.Load() > 0; refreshed != tt.wantRefresh {
				t.Errorf("refreshed = %v, want %v", refreshed, tt.wantRefresh)
			}
		})
	}
}

func TestRefreshPersistsToken(t *testing.T) {
	g := newFakeGoogle(t)
	store := &memStore{profiles: map[string]*models.Profile{
		"u1": connected("u1", "stale-access", "good-refresh", time.Minute),
	}}
	m := newTestManager(g, store, nil)

	if _, err := m.GetValidAccessToken(context.Background(), "u1"); err != nil {
		t.Fatalf("GetValidAccessToken: %v", err)
	}

	p := store.profiles["u1"]
	if *p.YouTubeAccessToken != "fresh-access" {
		t.Errorf("stored access token = %q", *p.YouTubeAccessToken)
	}
	if *p.YouTubeRefreshToken != "good-refresh" {
		t.Errorf("refresh token changed to %q", *p.YouTubeRefreshToken)
	}
	if until := time.Until(*p.YouTubeTokenExpiresAt); until < 50*time.Minute || until > 61*time.Minute {
		t.Errorf("stored expiry %s from now, want about an hour", until)
	}

	// A second call within the window must not hit the token endpoint again.
	calls := g.tokenCalls.Load()
	if _, err := m.GetValidAccessToken(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if g.tokenCalls.Load() != calls {
		t.Error("token refreshed twice")
	}
}

func TestForceRefreshIgnoresExpiry(t *testing.T) {
	g := newFakeGoogle(t)
	store := &memStore{profiles: map[string]*models.Profile{
		"u1": connected("u1", "rejected-access", "good-refresh", time.Hour),
	}}
	m := newTestManager(g, store, nil)

	got, err := m.ForceRefresh(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ForceRefresh: %v", err)
	}
	if got != "fresh-access" || g.tokenCalls.Load() != 1 {
		t.Errorf("token = %q after %d calls", got, g.tokenCalls.Load())
	}
}

func TestSealedTokens(t *testing.T) {
	box, err := tokenbox.New(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	if err != nil {
		t.Fatal(err)
	}
	sealedRefresh, _ := box.Seal("good-refresh")

	g := newFakeGoogle(t)
	store := &memStore{profiles: map[string]*models.Profile{
		"u1": connected("u1", "", sealedRefresh, 0),
	}}
	m := newTestManager(g, store, box)

	got, err := m.GetValidAccessToken(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetValidAccessToken: %v", err)
	}
	if got != "fresh-access" {
		t.Errorf("token = %q", got)
	}
	if stored := *store.profiles["u1"].YouTubeAccessToken; stored == "fresh-access" {
		t.Error("access token persisted in plaintext")
	}
}

func TestStateRoundTrip(t *testing.T) {
	g := newFakeGoogle(t)
	m := newTestManager(g, &memStore{}, nil)
	now := time.Now()
	m.SetClock(func() time.Time { return now })

	authURL, err := m.AuthorizationURL("user-42", "")
	if err != nil {
		t.Fatalf("AuthorizationURL: %v", err)
	}
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("access_type") != "offline" || q.Get("prompt") != "consent" {
		t.Errorf("consent parameters missing: %s", u.RawQuery)
	}
	if !strings.Contains(q.Get("scope"), "youtube.upload") || !strings.Contains(q.Get("scope"), "youtube.readonly") {
		t.Errorf("scope = %q", q.Get("scope"))
	}

	state := q.Get("state")
	userID, err := m.ParseState(state)
	if err != nil || userID != "user-42" {
		t.Fatalf("ParseState = %q, %v", userID, err)
	}

	t.Run("expired", func(t *testing.T) {
		m.SetClock(func() time.Time { return now.Add(11 * time.Minute) })
		defer m.SetClock(func() time.Time { return now })
		if _, err := m.ParseState(state); !errors.Is(err, ErrInvalidState) {
			t.Errorf("err = %v, want ErrInvalidState", err)
		}
	})

	t.Run("other key", func(t *testing.T) {
		other := NewManager(Config{ClientID: "c", ClientSecret: "s", StateKey: "different"}, &memStore{}, nil)
		if _, err := other.ParseState(state); !errors.Is(err, ErrInvalidState) {
			t.Errorf("err = %v, want ErrInvalidState", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := m.ParseState("not-a-token"); !errors.Is(err, ErrInvalidState) {
			t.Errorf("err = %v, want ErrInvalidState", err)
		}
	})
}

func TestExchangeCode(t *testing.T) {
	g := newFakeGoogle(t)
	store := &memStore{profiles: map[string]*models.Profile{"u1": {ID: "u1"}}}
	m := newTestManager(g, store, nil)

	authURL, _ := m.AuthorizationURL("u1", "")
	u, _ := url.Parse(authURL)

	conn, err := m.ExchangeCode(context.Background(), "auth-code", u.Query().Get("state"), "")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if conn.ChannelID != "UC123" || conn.ChannelName != "Cat Facts Daily" {
		t.Errorf("connection = %+v", conn)
	}

	p := store.profiles["u1"]
	if !p.YouTubeConnected || *p.YouTubeRefreshToken != "first-refresh" || *p.YouTubeChannelID != "UC123" {
		t.Errorf("profile not connected: %+v", p)
	}

	if err := m.Disconnect(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if p.YouTubeConnected || p.YouTubeRefreshToken != nil {
		t.Error("disconnect left token fields behind")
	}
}

func TestExchangeCodeRejectsBadState(t *testing.T) {
	g := newFakeGoogle(t)
	m := newTestManager(g, &memStore{profiles: map[string]*models.Profile{}}, nil)

	_, err := m.ExchangeCode(context.Background(), "auth-code", "forged", "")
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
	if g.tokenCalls.Load() != 0 {
		t.Error("code exchanged despite invalid state")
	}
}

func TestNotConfigured(t *testing.T) {
	m := NewManager(Config{}, &memStore{}, nil)
	if _, err := m.AuthorizationURL("u1", ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v", err)
	}
}
