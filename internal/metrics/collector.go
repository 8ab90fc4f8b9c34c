package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// Track latencies from 1µs up to 60s with 3 significant figures.
	histLowest  = 1
	histHighest = 60_000_000
	histSigFigs = 3
)

// Collector aggregates outcomes globally and per route in a thread-safe manner.
type Collector struct {
	mu     sync.Mutex
	total  *bucket
	routes map[string]*bucket
	start  time.Time
}

// Stats represents aggregated metrics for the whole run.
type Stats struct {
	Total          int64         `json:"total" yaml:"total"`
	Successes      int64         `json:"successes" yaml:"successes"`
	Failures       int64         `json:"failures" yaml:"failures"`
	Skipped        int64         `json:"skipped" yaml:"skipped"`
	MinLatency     time.Duration `json:"-" yaml:"-"`
	MaxLatency     time.Duration `json:"-" yaml:"-"`
	MeanLatency    time.Duration `json:"-" yaml:"-"`
	P50Latency     time.Duration `json:"-" yaml:"-"`
	P90Latency     time.Duration `json:"-" yaml:"-"`
	P95Latency     time.Duration `json:"-" yaml:"-"`
	P99Latency     time.Duration `json:"-" yaml:"-"`
	Duration       time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms" yaml:"duration_ms"`

	StatusBuckets map[string]int        `json:"status_buckets,omitempty" yaml:"status_buckets,omitempty"`
	Routes        map[string]RouteStats `json:"routes,omitempty" yaml:"routes,omitempty"`
}

// RouteStats holds the same aggregates for a single route label.
type RouteStats struct {
	Method         string        `json:"method,omitempty" yaml:"method,omitempty"`
	Label          string        `json:"label" yaml:"label"`
	Total          int64         `json:"total" yaml:"total"`
	Successes      int64         `json:"successes" yaml:"successes"`
	Failures       int64         `json:"failures" yaml:"failures"`
	Skipped        int64         `json:"skipped" yaml:"skipped"`
	MinLatency     time.Duration `json:"-" yaml:"-"`
	MaxLatency     time.Duration `json:"-" yaml:"-"`
	MeanLatency    time.Duration `json:"-" yaml:"-"`
	P50Latency     time.Duration `json:"-" yaml:"-"`
	P90Latency     time.Duration `json:"-" yaml:"-"`
	P95Latency     time.Duration `json:"-" yaml:"-"`
	P99Latency     time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`
	MinLatencyMs   float64       `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs   float64       `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs  float64       `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs   float64       `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs   float64       `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs   float64       `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs   float64       `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	StatusBuckets  map[string]int `json:"status_buckets,omitempty" yaml:"status_buckets,omitempty"`
}

// NewCollector creates an empty collector. The run clock starts now; call
// Start to reset it when the run actually begins.
func NewCollector() *Collector {
	return &Collector{
		total:  newBucket("", ""),
		routes: make(map[string]*bucket),
		start:  time.Now(),
	}
}

// Start marks the beginning of the run for rate calculations.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

// Elapsed returns the time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// Record adds a single outcome.
func (c *Collector) Record(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total.record(o)

	key := o.Key()
	route, ok := c.routes[key]
	if !ok {
		route = newBucket(o.Method, o.Label)
		c.routes[key] = route
	}
	route.record(o)
}

// Stats computes aggregated statistics. elapsed is used for rates.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	rs := c.total.snapshot(elapsed)
	stats := Stats{
		Total:          rs.Total,
		Successes:      rs.Successes,
		Failures:       rs.Failures,
		Skipped:        rs.Skipped,
		MinLatency:     rs.MinLatency,
		MaxLatency:     rs.MaxLatency,
		MeanLatency:    rs.MeanLatency,
		P50Latency:     rs.P50Latency,
		P90Latency:     rs.P90Latency,
		P95Latency:     rs.P95Latency,
		P99Latency:     rs.P99Latency,
		RequestsPerSec: rs.RequestsPerSec,
		MinLatencyMs:   rs.MinLatencyMs,
		MaxLatencyMs:   rs.MaxLatencyMs,
		MeanLatencyMs:  rs.MeanLatencyMs,
		P50LatencyMs:   rs.P50LatencyMs,
		P90LatencyMs:   rs.P90LatencyMs,
		P95LatencyMs:   rs.P95LatencyMs,
		P99LatencyMs:   rs.P99LatencyMs,
		StatusBuckets:  rs.StatusBuckets,
		Duration:       elapsed,
		DurationMs:     toMs(elapsed),
	}

	if len(c.routes) > 0 {
		stats.Routes = make(map[string]RouteStats, len(c.routes))
		for key, b := range c.routes {
			stats.Routes[key] = b.snapshot(elapsed)
		}
	}
	return stats
}

type bucket struct {
	method     string
	label      string
	hist       *hdrhistogram.Histogram
	successes  int64
	failures   int64
	skipped    int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
	status     map[string]int64
}

func newBucket(method, label string) *bucket {
	return &bucket{
		method: method,
		label:  label,
		hist:   hdrhistogram.New(histLowest, histHighest, histSigFigs),
		status: make(map[string]int64),
	}
}

func (b *bucket) record(o Outcome) {
	if o.Skipped {
		b.skipped++
		return
	}

	latency := o.Latency
	if latency > 0 {
		us := latency.Microseconds()
		if us < b.hist.LowestTrackableValue() {
			us = b.hist.LowestTrackableValue()
		}
		if us > b.hist.HighestTrackableValue() {
			us = b.hist.HighestTrackableValue()
		}
		_ = b.hist.RecordValue(us)
	}
	b.sumLatency += latency
	if b.successes+b.failures == 0 || latency < b.minLatency {
		b.minLatency = latency
	}
	if latency > b.maxLatency {
		b.maxLatency = latency
	}

	if o.Success {
		b.successes++
		return
	}
	b.failures++
	b.status[StatusLabel(o)]++
}

func (b *bucket) snapshot(elapsed time.Duration) RouteStats {
	total := b.successes + b.failures
	rs := RouteStats{
		Method:     b.method,
		Label:      b.label,
		Total:      total,
		Successes:  b.successes,
		Failures:   b.failures,
		Skipped:    b.skipped,
		MinLatency: b.minLatency,
		MaxLatency: b.maxLatency,
	}
	if total > 0 {
		rs.MeanLatency = time.Duration(int64(b.sumLatency) / total)
	}
	if b.hist.TotalCount() > 0 {
		rs.P50Latency = time.Duration(b.hist.ValueAtQuantile(50)) * time.Microsecond
		rs.P90Latency = time.Duration(b.hist.ValueAtQuantile(90)) * time.Microsecond
		rs.P95Latency = time.Duration(b.hist.ValueAtQuantile(95)) * time.Microsecond
		rs.P99Latency = time.Duration(b.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	if elapsed > 0 && total > 0 {
		rs.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	rs.MinLatencyMs = toMs(rs.MinLatency)
	rs.MaxLatencyMs = toMs(rs.MaxLatency)
	rs.MeanLatencyMs = toMs(rs.MeanLatency)
	rs.P50LatencyMs = toMs(rs.P50Latency)
	rs.P90LatencyMs = toMs(rs.P90Latency)
	rs.P95LatencyMs = toMs(rs.P95Latency)
	rs.P99LatencyMs = toMs(rs.P99Latency)

	if len(b.status) > 0 {
		rs.StatusBuckets = make(map[string]int, len(b.status))
		for k, v := range b.status {
			rs.StatusBuckets[k] = int(v)
		}
	}
	return rs
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
