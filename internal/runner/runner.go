package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/swarmfire/internal/agent"
	"github.com/torosent/swarmfire/internal/threshold"
	"github.com/torosent/swarmfire/internal/user"
)

// Stop reasons reported in Result.
const (
	ReasonDuration    = "duration elapsed"
	ReasonInterrupted = "interrupted"
	ReasonThreshold   = "abort threshold failed"
	ReasonStopped     = "stopped"
	ReasonCompleted   = "all agents finished"
)

const numStates = int(user.StateFailed) + 1

// Result captures execution summary.
type Result struct {
	Configured int
	Started    int64
	Failed     int64
	Stopped    int64
	StopReason string
	Aborted    []threshold.Result
	Duration   time.Duration
}

// Runner spawns agents at the configured rate and owns the run-wide stop flag.
type Runner struct {
	opt     Options
	stop    *agent.Signal
	counts  [numStates]atomic.Int64
	gaugeMu sync.Mutex

	abortMu sync.Mutex
	aborted []threshold.Result
}

// New creates a runner. The stop flag is live immediately, so Stop may be
// called before Run.
func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt, stop: agent.NewSignal()}
}

// Stop raises the global stop flag. Agents finish their current step and exit.
func (r *Runner) Stop() { r.stop.Stop(ReasonStopped) }

// Signal exposes the run-wide stop flag.
func (r *Runner) Signal() *agent.Signal { return r.stop }

// Counts returns how many agents are currently in each lifecycle state.
func (r *Runner) Counts() map[user.State]int {
	out := make(map[user.State]int, len(user.States))
	for _, s := range user.States {
		out[s] = int(r.counts[s].Load())
	}
	return out
}

// Run spawns Users agents and blocks until every started agent has reached a
// terminal state.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	logger := r.opt.Logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var watchers sync.WaitGroup
	watchers.Add(1)
	go func() {
		defer watchers.Done()
		r.watchStop(ctx)
	}()
	if len(r.opt.AbortThresholds) > 0 && r.opt.Stats != nil {
		watchers.Add(1)
		go func() {
			defer watchers.Done()
			r.watchThresholds(ctx)
		}()
	}

	// spawnCtx ends with the stop flag so a pending limiter wait is released.
	spawnCtx, spawnCancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-r.stop.Done():
			spawnCancel()
		case <-spawnCtx.Done():
		}
	}()

	limiter := r.opt.LimiterFactory(r.opt.SpawnRate)
	var started, failed, stopped atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.opt.Users; i++ {
		if r.stop.Stopped() {
			break
		}
		if err := limiter.Wait(spawnCtx); err != nil {
			break
		}
		if r.stop.Stopped() {
			break
		}

		a, err := r.opt.Factory(Spawn{ID: i, Stop: r.stop, OnTransition: r.transition})
		if err != nil {
			logger.Error("failed to create agent", zap.Int("agent", i), zap.Error(err))
			failed.Add(1)
			continue
		}

		r.track(user.StateInit, 1)
		started.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch a.Run(ctx) {
			case user.StateFailed:
				failed.Add(1)
			case user.StateStopped:
				stopped.Add(1)
			}
		}()
	}
	logger.Debug("spawn complete", zap.Int64("started", started.Load()))

	wg.Wait()
	spawnCancel()

	r.stop.Stop(ReasonCompleted)
	cancel()
	watchers.Wait()

	r.abortMu.Lock()
	aborted := r.aborted
	r.abortMu.Unlock()

	return Result{
		Configured: r.opt.Users,
		Started:    started.Load(),
		Failed:     failed.Load(),
		Stopped:    stopped.Load(),
		StopReason: r.stop.Reason(),
		Aborted:    aborted,
		Duration:   time.Since(start),
	}
}

// watchStop raises the stop flag when the duration elapses or ctx ends.
func (r *Runner) watchStop(ctx context.Context) {
	var deadline <-chan time.Time
	if r.opt.Duration > 0 {
		timer := time.NewTimer(r.opt.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-deadline:
		r.opt.Logger.Info("run duration elapsed, stopping agents")
		r.stop.Stop(ReasonDuration)
	case <-ctx.Done():
		r.stop.Stop(ReasonInterrupted)
	case <-r.stop.Done():
	}
}

// watchThresholds evaluates abort thresholds periodically once enough
// outcomes exist and raises the stop flag on the first failure.
func (r *Runner) watchThresholds(ctx context.Context) {
	evaluator := threshold.NewEvaluator(r.opt.AbortThresholds)
	ticker := time.NewTicker(r.opt.ThresholdInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop.Done():
			return
		case <-ticker.C:
			stats := r.opt.Stats()
			if stats.Total < r.opt.MinSamples {
				continue
			}
			failures := threshold.Failures(evaluator.Evaluate(stats))
			if len(failures) == 0 {
				continue
			}
			r.abortMu.Lock()
			r.aborted = failures
			r.abortMu.Unlock()
			for _, f := range failures {
				r.opt.Logger.Warn("abort threshold failed", zap.String("threshold", f.Threshold.Raw), zap.Float64("actual", f.Actual))
			}
			r.stop.Stop(ReasonThreshold)
			return
		}
	}
}

func (r *Runner) transition(_ int, from, to user.State) {
	r.track(from, -1)
	r.track(to, 1)
}

func (r *Runner) track(s user.State, delta int64) {
	if int(s) < 0 || int(s) >= len(r.counts) {
		return
	}
	if r.opt.Gauge == nil {
		r.counts[s].Add(delta)
		return
	}
	r.gaugeMu.Lock()
	defer r.gaugeMu.Unlock()
	r.opt.Gauge.SetAgents(s.String(), int(r.counts[s].Add(delta)))
}
