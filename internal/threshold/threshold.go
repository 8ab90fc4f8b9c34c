package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/swarmfire/internal/metrics"
)

// Supported metrics.
const (
	MetricDuration = "http_req_duration"
	MetricFailed   = "http_req_failed"
	MetricRequests = "http_requests"
	MetricSkipped  = "task_skipped"
)

// Threshold represents a performance assertion that can pass or fail.
// Route, when set, scopes the assertion to one "METHOD label" route.
type Threshold struct {
	Metric    string
	Route     string
	Aggregate string
	Operator  string
	Value     float64
	Raw       string
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Len reports how many thresholds the evaluator checks.
func (e *Evaluator) Len() int {
	if e == nil {
		return 0
	}
	return len(e.thresholds)
}

// Evaluate checks all thresholds against the provided stats.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if e.Len() == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, stats))
	}
	return results
}

// AllPass reports whether every result passed.
func AllPass(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

// Failures returns the results that did not pass.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Pass {
			failed = append(failed, r)
		}
	}
	return failed
}

func evaluateOne(t Threshold, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{
			Threshold: t,
			Message:   fmt.Sprintf("✗ %s: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+)(?:\{([^}]+)\})?:([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
//   - "http_req_duration:p95 < 500"                    (latency in ms, whole run)
//   - "http_req_duration{GET /api/feed}:p99 < 800"     (latency in ms, one route)
//   - "http_req_failed:rate < 0.01"                    (failure rate as decimal)
//   - "http_req_failed{POST /api/friends (add)}:count < 10"
//   - "http_requests:rate > 100"                       (requests per second)
//   - "task_skipped:rate < 0.5"                        (skipped share of all outcomes)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric[{route}]:aggregate operator value, e.g., 'http_req_duration:p95 < 500')", s)
	}

	metric := matches[1]
	route := strings.TrimSpace(matches[2])
	aggregate := matches[3]
	operator := matches[4]

	value, err := strconv.ParseFloat(matches[5], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", matches[5], err)
	}
	if !isValidMetric(metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(validMetrics, ", "))
	}
	if !isValidAggregate(aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: %s)", aggregate, strings.Join(validAggregates, ", "))
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}
	if route != "" && !strings.Contains(route, " ") {
		return Threshold{}, fmt.Errorf("invalid route %q: expected \"METHOD label\"", route)
	}

	return Threshold{
		Metric:    metric,
		Route:     route,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}
	return result, nil
}

var (
	validMetrics    = []string{MetricDuration, MetricFailed, MetricRequests, MetricSkipped}
	validAggregates = []string{"p50", "p90", "p95", "p99", "avg", "min", "max", "rate", "count"}
)

func isValidMetric(metric string) bool {
	for _, v := range validMetrics {
		if metric == v {
			return true
		}
	}
	return false
}

func isValidAggregate(aggregate string) bool {
	for _, v := range validAggregates {
		if aggregate == v {
			return true
		}
	}
	return false
}

func isValidOperator(operator string) bool {
	switch operator {
	case "<", "<=", ">", ">=", "==":
		return true
	}
	return false
}

// view is the slice of stats a threshold reads, either run-wide or one route.
type view struct {
	total, failures, skipped               int64
	p50, p90, p95, p99, mean, minMs, maxMs float64
	rps                                    float64
}

func selectView(t Threshold, stats metrics.Stats) (view, error) {
	if t.Route == "" {
		return view{
			total: stats.Total, failures: stats.Failures, skipped: stats.Skipped,
			p50: stats.P50LatencyMs, p90: stats.P90LatencyMs, p95: stats.P95LatencyMs, p99: stats.P99LatencyMs,
			mean: stats.MeanLatencyMs, minMs: stats.MinLatencyMs, maxMs: stats.MaxLatencyMs,
			rps: stats.RequestsPerSec,
		}, nil
	}
	rs, ok := stats.Routes[t.Route]
	if !ok {
		return view{}, fmt.Errorf("no samples for route %q", t.Route)
	}
	return view{
		total: rs.Total, failures: rs.Failures, skipped: rs.Skipped,
		p50: rs.P50LatencyMs, p90: rs.P90LatencyMs, p95: rs.P95LatencyMs, p99: rs.P99LatencyMs,
		mean: rs.MeanLatencyMs, minMs: rs.MinLatencyMs, maxMs: rs.MaxLatencyMs,
		rps: rs.RequestsPerSec,
	}, nil
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	v, err := selectView(t, stats)
	if err != nil {
		return 0, err
	}
	switch t.Metric {
	case MetricDuration:
		return latencyValue(t.Aggregate, v)
	case MetricFailed:
		return countOrRate(t, v.failures, v.total)
	case MetricRequests:
		switch t.Aggregate {
		case "count":
			return float64(v.total), nil
		case "rate":
			return v.rps, nil
		}
	case MetricSkipped:
		return countOrRate(t, v.skipped, v.total+v.skipped)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
	return 0, fmt.Errorf("unsupported aggregate %q for %s (use 'count' or 'rate')", t.Aggregate, t.Metric)
}

func latencyValue(aggregate string, v view) (float64, error) {
	switch aggregate {
	case "p50":
		return v.p50, nil
	case "p90":
		return v.p90, nil
	case "p95":
		return v.p95, nil
	case "p99":
		return v.p99, nil
	case "avg":
		return v.mean, nil
	case "min":
		return v.minMs, nil
	case "max":
		return v.maxMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s", aggregate, MetricDuration)
	}
}

func countOrRate(t Threshold, n, of int64) (float64, error) {
	switch t.Aggregate {
	case "count":
		return float64(n), nil
	case "rate":
		if of == 0 {
			return 0, nil
		}
		return float64(n) / float64(of), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s (use 'count' or 'rate')", t.Aggregate, t.Metric)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
