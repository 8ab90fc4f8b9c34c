package runner

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/swarmfire/internal/agent"
	"github.com/torosent/swarmfire/internal/metrics"
	"github.com/torosent/swarmfire/internal/threshold"
	"github.com/torosent/swarmfire/internal/user"
)

// Agent is one simulated user driven to a terminal state by the runner.
type Agent interface {
	Run(ctx context.Context) user.State
}

// Spawn carries what a Factory must wire into a new agent.
type Spawn struct {
	ID   int
	Stop *agent.Signal
	// OnTransition must be installed on the agent so the runner can track
	// how many users are in each lifecycle state.
	OnTransition func(id int, from, to user.State)
}

// Factory builds the agent for one spawn slot.
type Factory func(s Spawn) (Agent, error)

// StatsSource supplies the outcome statistics abort thresholds are checked against.
type StatsSource func() metrics.Stats

// StateGauge receives agent-per-state counts, e.g. a Prometheus gauge.
type StateGauge interface {
	SetAgents(state string, n int)
}

// Options configure the Runner.
type Options struct {
	Users     int           // number of agents to spawn
	SpawnRate float64       // agents started per second (0 means all at once)
	Duration  time.Duration // overall time limit (0 means until cancelled)
	Factory   Factory       // agent constructor (required)

	AbortThresholds   []threshold.Threshold // raise the stop flag when any fails
	ThresholdInterval time.Duration         // how often abort thresholds are evaluated
	MinSamples        int64                 // outcomes required before abort thresholds apply
	Stats             StatsSource

	Gauge          StateGauge
	Logger         *zap.Logger
	LimiterFactory func(perSecond float64) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Users < 0 {
		o.Users = 0
	}
	if o.SpawnRate < 0 {
		o.SpawnRate = 0
	}
	if o.Duration < 0 {
		o.Duration = 0
	}
	if o.ThresholdInterval <= 0 {
		o.ThresholdInterval = time.Second
	}
	if o.MinSamples < 0 {
		o.MinSamples = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(perSecond float64) *rate.Limiter {
			if perSecond <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}
