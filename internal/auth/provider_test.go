package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
)

var _ Provider = (*SessionTokenProvider)(nil)

func TestSessionTokenProviderWithoutSession(t *testing.T) {
	provider := NewSessionTokenProvider()

	if _, err := provider.Token(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Token() error = %v, want ErrNoSession", err)
	}

	req := httptest.NewRequest("POST", "http://example.com/api/auth/login", nil)
	if err := provider.InjectHeader(context.Background(), req); err != nil {
		t.Fatalf("InjectHeader() error = %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization header = %q, want empty", got)
	}
}

func TestSessionTokenProvider(t *testing.T) {
	provider := NewSessionTokenProvider()
	provider.SetToken("session-token")

	gotToken, err := provider.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if gotToken != "session-token" {
		t.Errorf("Token() = %q, want %q", gotToken, "session-token")
	}

	req := httptest.NewRequest("GET", "http://example.com/api/feed", nil)
	if err := provider.InjectHeader(context.Background(), req); err != nil {
		t.Fatalf("InjectHeader() error = %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer session-token" {
		t.Errorf("Authorization header = %q, want %q", got, "Bearer session-token")
	}

	if err := provider.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := provider.Token(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Errorf("Token() after Close error = %v, want ErrNoSession", err)
	}
}

func TestSessionTokenProviderConcurrentAccess(t *testing.T) {
	provider := NewSessionTokenProvider()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			provider.SetToken("token")
		}()
		go func() {
			defer wg.Done()
			req := httptest.NewRequest("GET", "http://example.com", nil)
			if err := provider.InjectHeader(context.Background(), req); err != nil {
				t.Errorf("InjectHeader() error = %v", err)
			}
		}()
	}
	wg.Wait()
}
