// auth_test.go: unit tests for the service key and bearer token middleware.
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestHashAPIKey verifies that hashing is deterministic and produces
// the expected SHA-256 output.
func TestHashAPIKey(t *testing.T) {
	t.Run("known value", func(t *testing.T) {
		// SHA-256 of "abc"
		want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
		if got := HashAPIKey("abc"); got != want {
			t.Errorf("HashAPIKey(abc) = %q, want %q", got, want)
		}
	})

	t.Run("different inputs different outputs", func(t *testing.T) {
		if HashAPIKey("key_one") == HashAPIKey("key_two") {
			t.Error("HashAPIKey produced same hash for different inputs")
		}
	})
}

// serve runs a single request through mw and reports status plus what the
// handler saw.
func serve(mw gin.HandlerFunc, headers map[string]string) (int, string, bool) {
	var userID string
	var service bool
	r := gin.New()
	r.GET("/", mw, func(c *gin.Context) {
		userID = GetUserID(c)
		service = IsService(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code, userID, service
}

func TestServiceAuth(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		headers map[string]string
		want    int
	}{
		{"header key", "svc-secret", map[string]string{"X-Service-Key": "svc-secret"}, http.StatusOK},
		{"bearer key", "svc-secret", map[string]string{"Authorization": "Bearer svc-secret"}, http.StatusOK},
		{"wrong key", "svc-secret", map[string]string{"X-Service-Key": "nope"}, http.StatusUnauthorized},
		{"missing key", "svc-secret", nil, http.StatusUnauthorized},
		{"unconfigured rejects everything", "", map[string]string{"X-Service-Key": ""}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, service := serve(ServiceAuth(tt.key), tt.headers)
			if code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
			if code == http.StatusOK && !service {
				t.Error("service flag not set")
			}
		})
	}
}

func TestUserAuth(t *testing.T) {
	const secret = "jwt-secret"
	valid, _ := GenerateJWT("user-1", "a@example.com", secret, time.Hour)
	expired, _ := GenerateJWT("user-1", "a@example.com", secret, -time.Hour)
	forged, _ := GenerateJWT("user-1", "a@example.com", "other-secret", time.Hour)

	tests := []struct {
		name     string
		header   string
		want     int
		wantUser string
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, "user-1"},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + forged, http.StatusUnauthorized, ""},
		{"no bearer prefix", valid, http.StatusUnauthorized, ""},
		{"missing header", "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, user, _ := serve(UserAuth(secret), map[string]string{"Authorization": tt.header})
			if code != tt.want || user != tt.wantUser {
				t.Errorf("got (%d, %q), want (%d, %q)", code, user, tt.want, tt.wantUser)
			}
		})
	}
}

func TestUserOrService(t *testing.T) {
	const secret = "jwt-secret"
	token, _ := GenerateJWT("user-9", "", secret, time.Hour)
	mw := UserOrService(secret, "svc-secret")

	code, user, service := serve(mw, map[string]string{"Authorization": "Bearer " + token})
	if code != http.StatusOK || user != "user-9" || service {
		t.Errorf("user call: (%d, %q, %v)", code, user, service)
	}

	code, user, service = serve(mw, map[string]string{"X-Service-Key": "svc-secret"})
	if code != http.StatusOK || user != "" || !service {
		t.Errorf("service call: (%d, %q, %v)", code, user, service)
	}

	if code, _, _ = serve(mw, map[string]string{"Authorization": "Bearer junk"}); code != http.StatusUnauthorized {
		t.Errorf("junk call: %d", code)
	}
}

func TestRateLimit(t *testing.T) {
	const secret = "jwt-secret"
	token, _ := GenerateJWT("user-1", "", secret, time.Hour)
	rl := NewRateLimiter(2)

	r := gin.New()
	r.GET("/", UserAuth(secret), rl.RateLimit(), func(c *gin.Context) { c.Status(http.StatusOK) })

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(2)
	now := time.Date(2025, 6, 11, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _, _ := rl.take("user-1"); !ok {
			t.Fatalf("take %d rejected", i)
		}
	}

	ok, remaining, wait := rl.take("user-1")
	if ok || remaining != 0 {
		t.Fatalf("empty bucket: ok=%v remaining=%d", ok, remaining)
	}
	if wait.Round(time.Second) != 30*time.Minute {
		t.Errorf("wait = %v, want 30m", wait)
	}

	if ok, _, _ := rl.take("user-2"); !ok {
		t.Error("other users have their own bucket")
	}

	now = now.Add(31 * time.Minute)
	if ok, _, _ := rl.take("user-1"); !ok {
		t.Error("one token should have refilled after 31m")
	}
}
