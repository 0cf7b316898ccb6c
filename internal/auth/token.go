package auth

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoToken = errors.New("no access token")

// HeaderProvider yields the headers that authenticate a single request.
// An empty header means the request goes out anonymous.
type HeaderProvider interface {
	AuthHeader() http.Header
}

// TokenStore holds the current access token. It never refreshes it;
// an expired token is simply not sent.
type TokenStore struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

func NewTokenStore(token string) *TokenStore {
	return &TokenStore{token: strings.TrimSpace(token), now: time.Now}
}

// LoadTokenStore prefers the inline token and falls back to reading tokenFile.
func LoadTokenStore(token, tokenFile string) (*TokenStore, error) {
	if token != "" || tokenFile == "" {
		return NewTokenStore(token), nil
	}

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	return NewTokenStore(string(data)), nil
}

func (s *TokenStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
}

func (s *TokenStore) Clear() {
	s.Set("")
}

// Token returns the stored token if it is present and not expired.
func (s *TokenStore) Token() (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == "" {
		return "", ErrNoToken
	}

	exp, err := expiresAt(token)
	if err != nil {
		// opaque tokens are passed through as-is
		return token, nil
	}
	if exp != nil && !s.now().Before(*exp) {
		return "", fmt.Errorf("access token expired at %s", exp.Format(time.RFC3339))
	}
	return token, nil
}

func (s *TokenStore) AuthHeader() http.Header {
	h := make(http.Header)
	token, err := s.Token()
	if err != nil {
		return h
	}
	h.Set("Authorization", "Bearer "+token)
	return h
}

// expiresAt reads the exp claim without verifying the signature;
// the server is the one that verifies.
func expiresAt(token string) (*time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, err
	}
	if exp == nil {
		return nil, nil
	}
	return &exp.Time, nil
}
