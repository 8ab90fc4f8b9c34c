// Package feeder loads seed accounts from CSV or JSON files and hands them out
// to virtual users in round-robin order.
package feeder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/torosent/swarmfire/internal/user"
)

// Record represents a single row of data with named fields.
type Record map[string]string

// Feeder provides records from a dataset with deterministic round-robin selection.
// Implementations must be safe for concurrent use.
type Feeder interface {
	// Next returns the next record, wrapping to the first after the last.
	Next(ctx context.Context) (Record, error)

	// Close releases any resources held by the feeder.
	Close() error

	// Len returns the total number of records in the dataset.
	Len() int
}

// Field names recognised in seed account files.
const (
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldUsername = "username"
)

// ErrEmpty is returned when a feeder holds no records.
var ErrEmpty = errors.New("feeder has no records")

// Open loads the file at path with the feeder for kind ("csv" or "json").
func Open(path, kind string) (Feeder, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "csv":
		return NewCSVFeeder(path)
	case "json":
		return NewJSONFeeder(path)
	default:
		return nil, fmt.Errorf("unsupported feeder type %q", kind)
	}
}

// cycle is the round-robin cursor shared by the file feeders.
type cycle struct {
	mu      sync.Mutex
	records []Record
	index   int
}

func (c *cycle) next(ctx context.Context) (Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.records) == 0 {
		return nil, ErrEmpty
	}
	record := c.records[c.index]
	c.index = (c.index + 1) % len(c.records)
	return record, nil
}

// Accounts adapts a Feeder into a credential source for virtual users.
// Records without a username get one derived from the email's local part.
type Accounts struct {
	feeder Feeder
}

var _ user.CredentialSource = (*Accounts)(nil)

// NewAccounts wraps f. Records missing an email or password are reported by Next.
func NewAccounts(f Feeder) (*Accounts, error) {
	if f == nil {
		return nil, errors.New("feeder is required")
	}
	if f.Len() == 0 {
		return nil, ErrEmpty
	}
	return &Accounts{feeder: f}, nil
}

// Next returns the credentials of the next seed account.
func (a *Accounts) Next() (user.Credentials, error) {
	rec, err := a.feeder.Next(context.Background())
	if err != nil {
		return user.Credentials{}, fmt.Errorf("next seed account: %w", err)
	}
	return credentialsFrom(rec)
}

// Len reports how many distinct seed accounts are available.
func (a *Accounts) Len() int { return a.feeder.Len() }

// Close releases the underlying feeder.
func (a *Accounts) Close() error { return a.feeder.Close() }

func credentialsFrom(rec Record) (user.Credentials, error) {
	creds := user.Credentials{
		Email:    strings.TrimSpace(rec[FieldEmail]),
		Password: rec[FieldPassword],
		Username: strings.TrimSpace(rec[FieldUsername]),
	}
	if creds.Email == "" || creds.Password == "" {
		return user.Credentials{}, fmt.Errorf("seed account needs %q and %q fields", FieldEmail, FieldPassword)
	}
	if creds.Username == "" {
		creds.Username, _, _ = strings.Cut(creds.Email, "@")
	}
	return creds, nil
}
