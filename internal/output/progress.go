package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/swarmfire/internal/metrics"
	"github.com/torosent/swarmfire/internal/user"
)

// AgentCounts reports how many agents are in each lifecycle state.
type AgentCounts func() map[user.State]int

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	agents    AgentCounts
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
// agents may be nil.
func NewProgressReporter(collector *metrics.Collector, agents AgentCounts, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		agents:    agents,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		return
	}
	p.ticker.Stop()
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	stats := p.collector.Stats(p.collector.Elapsed())
	line := ""
	if p.agents != nil {
		counts := p.agents()
		line = fmt.Sprintf("Users: %d active, %d failed | ", counts[user.StateActive], counts[user.StateFailed])
	}
	line += fmt.Sprintf("Requests: %d | Successes: %d | Failures: %d | Skipped: %d | RPS: %.1f",
		stats.Total, stats.Successes, stats.Failures, stats.Skipped, stats.RequestsPerSec)
	if keys := routesByVolume(stats); len(keys) > 0 && stats.Total > 0 {
		route := stats.Routes[keys[0]]
		share := (float64(route.Total) / float64(stats.Total)) * 100
		line += fmt.Sprintf(" | Top Route: %s (%.0f%%, P99 %.1fms)", keys[0], share, route.P99LatencyMs)
	}
	return line
}
