package threshold

import (
	"strings"
	"testing"

	"github.com/torosent/swarmfire/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "run-wide p95 latency",
			input: "http_req_duration:p95 < 500",
			want: Threshold{
				Metric:    MetricDuration,
				Aggregate: "p95",
				Operator:  "<",
				Value:     500,
				Raw:       "http_req_duration:p95 < 500",
			},
		},
		{
			name:  "route scoped failure count",
			input: "http_req_failed{POST /api/friends (add)}:count <= 10",
			want: Threshold{
				Metric:    MetricFailed,
				Route:     "POST /api/friends (add)",
				Aggregate: "count",
				Operator:  "<=",
				Value:     10,
				Raw:       "http_req_failed{POST /api/friends (add)}:count <= 10",
			},
		},
		{
			name:  "skipped rate",
			input: "  task_skipped:rate < 0.5 ",
			want: Threshold{
				Metric:    MetricSkipped,
				Aggregate: "rate",
				Operator:  "<",
				Value:     0.5,
				Raw:       "task_skipped:rate < 0.5",
			},
		},
		{
			name:  "requests rate without spaces",
			input: "http_requests:rate>100",
			want: Threshold{
				Metric:    MetricRequests,
				Aggregate: "rate",
				Operator:  ">",
				Value:     100,
				Raw:       "http_requests:rate>100",
			},
		},
		{name: "empty", input: "", wantError: true},
		{name: "missing aggregate", input: "http_req_duration < 500", wantError: true},
		{name: "unknown metric", input: "cpu_usage:avg < 50", wantError: true},
		{name: "unknown aggregate", input: "http_req_duration:p42 < 50", wantError: true},
		{name: "bad operator", input: "http_req_duration:p95 != 50", wantError: true},
		{name: "route without method", input: "http_req_duration{/api/feed}:p95 < 50", wantError: true},
		{name: "bad value", input: "http_req_duration:p95 < 1.2.3", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("Parse() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}
			if got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	got, err := ParseMultiple(nil)
	if err != nil || got != nil {
		t.Fatalf("ParseMultiple(nil) = %v, %v", got, err)
	}

	got, err = ParseMultiple([]string{"http_req_duration:p99 < 1000", "http_req_failed:rate < 0.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d thresholds, want 2", len(got))
	}

	_, err = ParseMultiple([]string{"http_req_duration:p99 < 1000", "nope"})
	if err == nil || !strings.Contains(err.Error(), "threshold[1]") {
		t.Fatalf("expected indexed error, got %v", err)
	}
}

func sampleStats() metrics.Stats {
	return metrics.Stats{
		Total:          1000,
		Successes:      980,
		Failures:       20,
		Skipped:        250,
		MinLatencyMs:   10,
		MaxLatencyMs:   500,
		MeanLatencyMs:  100,
		P50LatencyMs:   80,
		P90LatencyMs:   200,
		P95LatencyMs:   300,
		P99LatencyMs:   400,
		RequestsPerSec: 100,
		Routes: map[string]metrics.RouteStats{
			"GET /api/feed": {
				Method:        "GET",
				Label:         "/api/feed",
				Total:         400,
				Successes:     400,
				P95LatencyMs:  900,
				MeanLatencyMs: 150,
			},
			"POST /api/friends (add)": {
				Method:    "POST",
				Label:     "/api/friends (add)",
				Total:     50,
				Successes: 30,
				Failures:  20,
				Skipped:   150,
			},
		},
	}
}

func TestEvaluator(t *testing.T) {
	stats := sampleStats()

	tests := []struct {
		name       string
		thresholds []string
		wantPass   []bool
	}{
		{
			name:       "run-wide thresholds",
			thresholds: []string{"http_req_duration:p95 < 500", "http_req_failed:rate < 0.05", "http_requests:rate > 50"},
			wantPass:   []bool{true, true, true},
		},
		{
			name:       "some fail",
			thresholds: []string{"http_req_duration:p99 < 300", "http_req_failed:rate < 0.01", "http_requests:count > 900"},
			wantPass:   []bool{false, false, true},
		},
		{
			name:       "route scoped latency",
			thresholds: []string{"http_req_duration{GET /api/feed}:p95 < 500", "http_req_duration{GET /api/feed}:avg < 200"},
			wantPass:   []bool{false, true},
		},
		{
			name:       "route scoped failures",
			thresholds: []string{"http_req_failed{POST /api/friends (add)}:rate < 0.5", "http_req_failed{POST /api/friends (add)}:count == 20"},
			wantPass:   []bool{true, true},
		},
		{
			name:       "skipped share",
			thresholds: []string{"task_skipped:rate <= 0.2", "task_skipped{POST /api/friends (add)}:rate > 0.7"},
			wantPass:   []bool{true, true},
		},
		{
			name:       "unknown route fails",
			thresholds: []string{"http_req_duration{GET /api/missing}:p95 < 500"},
			wantPass:   []bool{false},
		},
		{
			name:       "latency aggregate on count metric fails",
			thresholds: []string{"http_requests:p95 < 10"},
			wantPass:   []bool{false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thresholds, err := ParseMultiple(tt.thresholds)
			if err != nil {
				t.Fatalf("ParseMultiple() error = %v", err)
			}
			results := NewEvaluator(thresholds).Evaluate(stats)
			if len(results) != len(tt.wantPass) {
				t.Fatalf("got %d results, want %d", len(results), len(tt.wantPass))
			}
			for i, r := range results {
				if r.Pass != tt.wantPass[i] {
					t.Errorf("threshold %q: pass = %v, want %v (%s)", tt.thresholds[i], r.Pass, tt.wantPass[i], r.Message)
				}
			}
		})
	}
}

func TestAllPassAndFailures(t *testing.T) {
	results := []Result{{Pass: true}, {Pass: false, Message: "x"}, {Pass: true}}
	if AllPass(results) {
		t.Error("AllPass() = true with a failing result")
	}
	if f := Failures(results); len(f) != 1 || f[0].Message != "x" {
		t.Errorf("Failures() = %+v", f)
	}
	if !AllPass(nil) {
		t.Error("AllPass(nil) should be true")
	}
}

func TestEmptyEvaluator(t *testing.T) {
	var e *Evaluator
	if e.Len() != 0 {
		t.Error("nil evaluator should be empty")
	}
	if got := NewEvaluator(nil).Evaluate(sampleStats()); got != nil {
		t.Errorf("Evaluate() = %v, want nil", got)
	}
}

func TestRateWithNoSamples(t *testing.T) {
	th, err := Parse("http_req_failed:rate < 0.1")
	if err != nil {
		t.Fatal(err)
	}
	r := NewEvaluator([]Threshold{th}).Evaluate(metrics.Stats{})
	if !r[0].Pass || r[0].Actual != 0 {
		t.Errorf("empty stats should yield a passing zero rate, got %+v", r[0])
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		actual   float64
		op       string
		expected float64
		want     bool
	}{
		{1, "<", 2, true},
		{2, "<", 2, false},
		{2, "<=", 2, true},
		{3, ">", 2, true},
		{2, ">=", 2, true},
		{0.1 + 0.2, "==", 0.3, true},
		{1, "!", 1, false},
	}
	for _, tt := range tests {
		if got := compareValues(tt.actual, tt.op, tt.expected); got != tt.want {
			t.Errorf("compareValues(%v %s %v) = %v, want %v", tt.actual, tt.op, tt.expected, got, tt.want)
		}
	}
}
