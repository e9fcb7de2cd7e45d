package oauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// stateTTL bounds how long a consent screen may stay open.
const stateTTL = 10 * time.Minute

const stateAudience = "youtube-connect"

// ErrInvalidState is returned for forged, expired or malformed state values.
var ErrInvalidState = errors.New("invalid oauth state")

type stateClaims struct {
	jwt.RegisteredClaims
}

// AuthorizationURL builds the consent URL. The state parameter is a signed
// token naming the user, so the callback needs no server-side session.
func (m *Manager) AuthorizationURL(userID, redirectURI string) (string, error) {
	if !m.IsConfigured() {
		return "", ErrNotConfigured
	}
	now := m.now()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.stateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}

	conf := *m.conf
	if redirectURI != "" {
		conf.RedirectURL = redirectURI
	}
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// ParseState verifies a state value and returns the user it was issued to.
func (m *Manager) ParseState(state string) (string, error) {
	token, err := jwt.ParseWithClaims(state, &stateClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.stateKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateAudience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	claims, ok := token.Claims.(*stateClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidState
	}
	return claims.Subject, nil
}
