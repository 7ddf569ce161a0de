// Package client is the consumer side of the entitlement API: an explicit
// login session, point reads, checkout, and a watcher that keeps a local
// copy of the caller's entitlement current.
package client

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// ErrSessionInvalidated is returned by every call made after Invalidate.
var ErrSessionInvalidated = errors.New("session invalidated")

// Session holds the caller's token from login until logout.
type Session struct {
	baseURL *url.URL

	mu      sync.RWMutex
	token   string
	invalid bool
}

// NewSession starts a session against the API at baseURL.
func NewSession(baseURL, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("token is required")
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	return &Session{baseURL: u, token: token}, nil
}

// Token returns the bearer token, or ErrSessionInvalidated after logout.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.invalid {
		return "", ErrSessionInvalidated
	}
	return s.token, nil
}

// Refresh swaps in a renewed token.
func (s *Session) Refresh(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.invalid {
		return ErrSessionInvalidated
	}
	s.token = strings.TrimSpace(token)
	return nil
}

// Invalidate ends the session. Watchers built on it stop at their next call.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalid = true
	s.token = ""
}

// Valid reports whether Invalidate has not been called.
func (s *Session) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.invalid
}

func (s *Session) endpoint(path string) string {
	u := *s.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}
