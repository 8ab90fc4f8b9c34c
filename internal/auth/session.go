package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrNoSession is returned by Token before a session has been established.
var ErrNoSession = errors.New("no session token")

// SessionTokenProvider holds the bearer token obtained by a virtual user's
// login. Until a token is set, requests go out unauthenticated, which is what
// the register and login calls need.
type SessionTokenProvider struct {
	mu    sync.RWMutex
	token string
}

// NewSessionTokenProvider creates a provider with no session.
func NewSessionTokenProvider() *SessionTokenProvider {
	return &SessionTokenProvider{}
}

// SetToken stores the session token.
func (p *SessionTokenProvider) SetToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
}

// Token returns the session token or ErrNoSession.
func (p *SessionTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == "" {
		return "", ErrNoSession
	}
	return p.token, nil
}

// InjectHeader sets the Authorization header when a session exists.
func (p *SessionTokenProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	return nil
}

// Close drops the session token.
func (p *SessionTokenProvider) Close() error {
	p.SetToken("")
	return nil
}
