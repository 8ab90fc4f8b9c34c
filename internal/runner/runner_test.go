package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/swarmfire/internal/metrics"
	"github.com/torosent/swarmfire/internal/runner"
	"github.com/torosent/swarmfire/internal/threshold"
	"github.com/torosent/swarmfire/internal/user"
)

// fakeAgent walks INIT -> ACTIVE and waits for the stop flag, or fails
// right away when fail is set.
type fakeAgent struct {
	spawn runner.Spawn
	fail  bool
	runs  *int64
}

func (f *fakeAgent) Run(ctx context.Context) user.State {
	if f.runs != nil {
		atomic.AddInt64(f.runs, 1)
	}
	move := func(from, to user.State) {
		if f.spawn.OnTransition != nil {
			f.spawn.OnTransition(f.spawn.ID, from, to)
		}
	}
	move(user.StateInit, user.StateProvisioning)
	move(user.StateProvisioning, user.StateAuthenticating)
	if f.fail {
		move(user.StateAuthenticating, user.StateFailed)
		return user.StateFailed
	}
	move(user.StateAuthenticating, user.StateProfiling)
	move(user.StateProfiling, user.StateActive)
	select {
	case <-f.spawn.Stop.Done():
	case <-ctx.Done():
	}
	move(user.StateActive, user.StateStopped)
	return user.StateStopped
}

func factory(runs *int64, fail func(id int) bool) runner.Factory {
	return func(s runner.Spawn) (runner.Agent, error) {
		return &fakeAgent{spawn: s, runs: runs, fail: fail != nil && fail(s.ID)}, nil
	}
}

type gaugeRecorder struct {
	mu     sync.Mutex
	values map[string]int
}

func (g *gaugeRecorder) SetAgents(state string, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.values == nil {
		g.values = make(map[string]int)
	}
	g.values[state] = n
}

func TestRunnerStopsAfterDuration(t *testing.T) {
	var runs int64
	gauge := &gaugeRecorder{}
	r := runner.New(runner.Options{
		Users:    8,
		Duration: 50 * time.Millisecond,
		Factory:  factory(&runs, nil),
		Gauge:    gauge,
	})

	start := time.Now()
	res := r.Run(context.Background())
	elapsed := time.Since(start)

	if elapsed < 50*time.Millisecond || elapsed > 2*time.Second {
		t.Fatalf("duration enforcement off: %s", elapsed)
	}
	if res.StopReason != runner.ReasonDuration {
		t.Errorf("StopReason = %q, want %q", res.StopReason, runner.ReasonDuration)
	}
	if res.Configured != 8 || res.Started != 8 || res.Stopped != 8 || res.Failed != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if runs != 8 {
		t.Errorf("agents run = %d, want 8", runs)
	}
	if got := r.Counts()[user.StateStopped]; got != 8 {
		t.Errorf("stopped count = %d, want 8", got)
	}
	if got := r.Counts()[user.StateActive]; got != 0 {
		t.Errorf("active count = %d, want 0", got)
	}
	if gauge.values["STOPPED"] != 8 {
		t.Errorf("gauge STOPPED = %d, want 8", gauge.values["STOPPED"])
	}
}

func TestFailedAgentsDoNotStopRun(t *testing.T) {
	r := runner.New(runner.Options{
		Users:    6,
		Duration: 80 * time.Millisecond,
		Factory:  factory(nil, func(id int) bool { return id%2 == 0 }),
	})

	res := r.Run(context.Background())
	if res.Failed != 3 || res.Stopped != 3 {
		t.Fatalf("failed=%d stopped=%d, want 3/3", res.Failed, res.Stopped)
	}
	if res.StopReason != runner.ReasonDuration {
		t.Errorf("StopReason = %q, want duration; a failed agent must not stop the run", res.StopReason)
	}
	if got := r.Counts()[user.StateFailed]; got != 3 {
		t.Errorf("failed count = %d, want 3", got)
	}
}

func TestRunEndsWhenAllAgentsFinish(t *testing.T) {
	r := runner.New(runner.Options{
		Users:   4,
		Factory: factory(nil, func(int) bool { return true }),
	})

	done := make(chan runner.Result, 1)
	go func() { done <- r.Run(context.Background()) }()

	select {
	case res := <-done:
		if res.StopReason != runner.ReasonCompleted {
			t.Errorf("StopReason = %q, want %q", res.StopReason, runner.ReasonCompleted)
		}
		if res.Failed != 4 {
			t.Errorf("Failed = %d, want 4", res.Failed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not end after every agent failed")
	}
}

func TestStopBeforeRunSpawnsNothing(t *testing.T) {
	var runs int64
	r := runner.New(runner.Options{Users: 5, Factory: factory(&runs, nil)})
	r.Stop()

	res := r.Run(context.Background())
	if res.Started != 0 || runs != 0 {
		t.Fatalf("started=%d runs=%d, want none", res.Started, runs)
	}
	if res.StopReason != runner.ReasonStopped {
		t.Errorf("StopReason = %q", res.StopReason)
	}
}

func TestContextCancelInterrupts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := runner.New(runner.Options{Users: 3, Factory: factory(nil, nil)})

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	res := r.Run(ctx)
	if res.StopReason != runner.ReasonInterrupted {
		t.Errorf("StopReason = %q, want %q", res.StopReason, runner.ReasonInterrupted)
	}
	if res.Stopped != 3 {
		t.Errorf("Stopped = %d, want 3", res.Stopped)
	}
}

func TestSpawnRateRampsUp(t *testing.T) {
	var runs int64
	r := runner.New(runner.Options{
		Users:     5,
		SpawnRate: 50,
		Duration:  2 * time.Second,
		Factory:   factory(&runs, nil),
	})

	go func() {
		time.Sleep(30 * time.Millisecond)
		if n := atomic.LoadInt64(&runs); n >= 5 {
			t.Errorf("all %d agents spawned within 30ms at 50/s", n)
		}
		time.Sleep(200 * time.Millisecond)
		r.Stop()
	}()

	res := r.Run(context.Background())
	if res.Started != 5 {
		t.Errorf("Started = %d, want 5", res.Started)
	}
}

func TestStopDuringRampUpHaltsSpawning(t *testing.T) {
	var runs int64
	r := runner.New(runner.Options{
		Users:          100,
		SpawnRate:      10,
		Factory:        factory(&runs, nil),
		LimiterFactory: func(perSecond float64) *rate.Limiter { return rate.NewLimiter(rate.Limit(perSecond), 1) },
	})
	go func() {
		time.Sleep(150 * time.Millisecond)
		r.Stop()
	}()

	res := r.Run(context.Background())
	if res.Started >= 10 {
		t.Fatalf("Started = %d; spawning should halt when stopped", res.Started)
	}
}

func TestFactoryErrorCountsAsFailed(t *testing.T) {
	r := runner.New(runner.Options{
		Users: 3,
		Factory: func(s runner.Spawn) (runner.Agent, error) {
			if s.ID == 1 {
				return nil, errors.New("no client")
			}
			return &fakeAgent{spawn: s, fail: true}, nil
		},
	})
	res := r.Run(context.Background())
	if res.Started != 2 || res.Failed != 3 {
		t.Errorf("started=%d failed=%d, want 2/3", res.Started, res.Failed)
	}
}

func TestAbortThresholdStopsRun(t *testing.T) {
	th, err := threshold.Parse("http_req_failed:rate < 0.1")
	if err != nil {
		t.Fatal(err)
	}

	var calls int64
	stats := func() metrics.Stats {
		n := atomic.AddInt64(&calls, 1)
		// Below MinSamples on the first tick, failing afterwards.
		return metrics.Stats{Total: n * 50, Failures: n * 25}
	}

	r := runner.New(runner.Options{
		Users:             2,
		Duration:          5 * time.Second,
		Factory:           factory(nil, nil),
		AbortThresholds:   []threshold.Threshold{th},
		ThresholdInterval: 10 * time.Millisecond,
		MinSamples:        100,
		Stats:             stats,
	})

	res := r.Run(context.Background())
	if res.StopReason != runner.ReasonThreshold {
		t.Fatalf("StopReason = %q, want %q", res.StopReason, runner.ReasonThreshold)
	}
	if len(res.Aborted) != 1 || res.Aborted[0].Pass {
		t.Errorf("Aborted = %+v", res.Aborted)
	}
	if atomic.LoadInt64(&calls) < 2 {
		t.Errorf("thresholds evaluated %d times, want at least 2", calls)
	}
	if res.Duration > 2*time.Second {
		t.Errorf("abort took %s", res.Duration)
	}
}
