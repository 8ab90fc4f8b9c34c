package metrics

import (
	"sync"
	"time"
)

// Outcome is the result of one task execution or lifecycle call.
type Outcome struct {
	// Label is the normalized route (e.g. "/api/profile/[userId]") or task name.
	Label string
	// Method is the HTTP method; it is empty for outcomes that never reached the wire.
	Method     string
	Latency    time.Duration
	Success    bool
	StatusCode int
	// ErrorKind names the failure when no status code is available (transport errors).
	ErrorKind string
	// Skipped marks a task that had nothing to do and made no network call.
	Skipped bool
}

// Key returns the aggregation key used by the collector.
func (o Outcome) Key() string {
	if o.Method == "" {
		return o.Label
	}
	return o.Method + " " + o.Label
}

// Recorder consumes outcomes. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(o Outcome)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(o Outcome)

// Record calls f(o).
func (f RecorderFunc) Record(o Outcome) { f(o) }

type teeRecorder struct {
	recorders []Recorder
}

// Tee fans every outcome out to all non-nil recorders in order.
func Tee(recorders ...Recorder) Recorder {
	filtered := make([]Recorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &teeRecorder{recorders: filtered}
}

func (t *teeRecorder) Record(o Outcome) {
	for _, r := range t.recorders {
		r.Record(o)
	}
}

// Buffer is a Recorder that keeps every outcome in memory. Intended for tests.
type Buffer struct {
	mu       sync.Mutex
	outcomes []Outcome
}

// Record appends o.
func (b *Buffer) Record(o Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcomes = append(b.outcomes, o)
}

// Outcomes returns a copy of the recorded outcomes.
func (b *Buffer) Outcomes() []Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Outcome(nil), b.outcomes...)
}

// Labels returns the labels of the recorded outcomes in order.
func (b *Buffer) Labels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	labels := make([]string, len(b.outcomes))
	for i, o := range b.outcomes {
		labels[i] = o.Label
	}
	return labels
}
