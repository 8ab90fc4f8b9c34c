package catalog

import (
	"context"
	"math/rand"

	"go.uber.org/zap"

	"github.com/torosent/swarmfire/internal/httpclient"
	"github.com/torosent/swarmfire/internal/metrics"
	"github.com/torosent/swarmfire/internal/registry"
	"github.com/torosent/swarmfire/internal/user"
)

// API is the subset of the HTTP client tasks depend on.
type API interface {
	Do(ctx context.Context, req httpclient.Request) (*httpclient.Response, error)
}

// Session bundles everything a task handler may touch. All fields except
// Registry and Recorder are owned by a single agent.
type Session struct {
	User     *user.VirtualUser
	API      API
	Registry *registry.Registry
	Rand     *rand.Rand
	Recorder metrics.Recorder
	Logger   *zap.Logger
}

// Skip records a skipped outcome for a task that had nothing to do.
func (s *Session) Skip(method, label string) {
	if s.Recorder == nil {
		return
	}
	s.Recorder.Record(metrics.Outcome{Label: label, Method: method, Skipped: true})
}

func (s *Session) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
