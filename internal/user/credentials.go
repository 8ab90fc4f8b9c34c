package user

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// CredentialSource supplies credentials for newly provisioned users.
type CredentialSource interface {
	Next() (Credentials, error)
}

// Generator produces unique credentials from monotonic ULIDs, so two users
// created in the same millisecond still receive distinct emails.
type Generator struct {
	Domain   string
	Password string

	mu      sync.Mutex
	entropy io.Reader
}

// NewGenerator creates a generator for the given email domain and shared password.
func NewGenerator(domain, password string) *Generator {
	return &Generator{
		Domain:   domain,
		Password: password,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// Next returns a fresh set of credentials.
func (g *Generator) Next() (Credentials, error) {
	g.mu.Lock()
	if g.entropy == nil {
		g.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	id, err := ulid.New(ulid.Timestamp(time.Now()), g.entropy)
	g.mu.Unlock()
	if err != nil {
		return Credentials{}, fmt.Errorf("generate credentials: %w", err)
	}

	suffix := strings.ToLower(id.String())
	domain := g.Domain
	if domain == "" {
		domain = "example.com"
	}
	return Credentials{
		Email:    fmt.Sprintf("test.user.%s@%s", suffix, domain),
		Password: g.Password,
		Username: "swarm_user_" + suffix,
	}, nil
}
