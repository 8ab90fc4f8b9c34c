package metrics_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/torosent/swarmfire/internal/metrics"
)

func ok(label string, latency time.Duration) metrics.Outcome {
	return metrics.Outcome{Label: label, Method: "GET", Latency: latency, Success: true, StatusCode: 200}
}

func TestCollectorLatencyStats(t *testing.T) {
	c := metrics.NewCollector()

	// Record deterministic latencies.
	for _, ms := range []int{10, 20, 30, 40, 50} {
		c.Record(ok("/api/feed", time.Duration(ms)*time.Millisecond))
	}

	stats := c.Stats(0)

	if stats.Total != 5 {
		t.Errorf("expected total 5, got %d", stats.Total)
	}
	if stats.Successes != 5 {
		t.Errorf("expected successes 5, got %d", stats.Successes)
	}
	if stats.Failures != 0 {
		t.Errorf("expected failures 0, got %d", stats.Failures)
	}
	if stats.MinLatency != 10*time.Millisecond {
		t.Errorf("expected min 10ms, got %s", stats.MinLatency)
	}
	if stats.MaxLatency != 50*time.Millisecond {
		t.Errorf("expected max 50ms, got %s", stats.MaxLatency)
	}
	if stats.MeanLatency != 30*time.Millisecond {
		t.Errorf("expected mean 30ms, got %s", stats.MeanLatency)
	}
}

func TestPercentilesCalculations(t *testing.T) {
	c := metrics.NewCollector()

	// 100 samples: 1ms, 2ms, ..., 100ms.
	for i := 1; i <= 100; i++ {
		c.Record(ok("/api/feed", time.Duration(i)*time.Millisecond))
	}

	stats := c.Stats(0)

	if stats.P50Latency < 49*time.Millisecond || stats.P50Latency > 51*time.Millisecond {
		t.Errorf("expected P50 ~50ms, got %s", stats.P50Latency)
	}
	if stats.P90Latency < 89*time.Millisecond || stats.P90Latency > 91*time.Millisecond {
		t.Errorf("expected P90 ~90ms, got %s", stats.P90Latency)
	}
	if stats.P95Latency < 94*time.Millisecond || stats.P95Latency > 96*time.Millisecond {
		t.Errorf("expected P95 ~95ms, got %s", stats.P95Latency)
	}
	if stats.P99Latency < 98*time.Millisecond || stats.P99Latency > 101*time.Millisecond {
		t.Errorf("expected P99 ~99ms, got %s", stats.P99Latency)
	}
}

func TestCollectorPerRouteStats(t *testing.T) {
	c := metrics.NewCollector()

	c.Record(ok("/api/posts/me", 10*time.Millisecond))
	c.Record(metrics.Outcome{Label: "/api/posts/me", Method: "POST", Latency: 20 * time.Millisecond, Success: true, StatusCode: 201})
	c.Record(metrics.Outcome{Label: "/api/posts/me", Method: "POST", Latency: 30 * time.Millisecond, StatusCode: 500})

	stats := c.Stats(time.Second)

	get, found := stats.Routes["GET /api/posts/me"]
	if !found {
		t.Fatalf("missing GET route, have %v", stats.Routes)
	}
	if get.Total != 1 || get.Successes != 1 {
		t.Errorf("GET route = %+v", get)
	}

	post, found := stats.Routes["POST /api/posts/me"]
	if !found {
		t.Fatalf("missing POST route, have %v", stats.Routes)
	}
	if post.Total != 2 || post.Successes != 1 || post.Failures != 1 {
		t.Errorf("POST route = %+v", post)
	}
	if post.StatusBuckets["500"] != 1 {
		t.Errorf("expected 500 bucket on POST route, got %v", post.StatusBuckets)
	}
	if post.Method != "POST" || post.Label != "/api/posts/me" {
		t.Errorf("unexpected route identity %q %q", post.Method, post.Label)
	}
	if stats.StatusBuckets["500"] != 1 {
		t.Errorf("expected global 500 bucket, got %v", stats.StatusBuckets)
	}
}

func TestSkippedOutcomesExcludedFromLatency(t *testing.T) {
	c := metrics.NewCollector()

	c.Record(metrics.Outcome{Label: "/api/friends (add)", Skipped: true})
	c.Record(metrics.Outcome{Label: "/api/friends (add)", Skipped: true})
	c.Record(metrics.Outcome{Label: "/api/friends (add)", Method: "POST", Latency: 40 * time.Millisecond, Success: true, StatusCode: 201})

	stats := c.Stats(time.Second)

	if stats.Skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", stats.Skipped)
	}
	if stats.Total != 1 {
		t.Errorf("skipped outcomes must not count toward total, got %d", stats.Total)
	}
	if stats.MinLatency != 40*time.Millisecond {
		t.Errorf("skipped outcomes must not affect latency, min=%s", stats.MinLatency)
	}
	skipped := stats.Routes["/api/friends (add)"]
	if skipped.Skipped != 2 || skipped.Total != 0 {
		t.Errorf("unexpected skip route %+v", skipped)
	}
}

func TestTransportFailuresBucketByErrorKind(t *testing.T) {
	c := metrics.NewCollector()
	c.Record(metrics.Outcome{Label: "/api/feed", Method: "GET", Latency: time.Millisecond, ErrorKind: "URL_ERROR"})
	c.Record(metrics.Outcome{Label: "/api/feed", Method: "GET", Latency: time.Millisecond})

	stats := c.Stats(0)
	if stats.StatusBuckets["URL_ERROR"] != 1 {
		t.Errorf("expected URL_ERROR bucket, got %v", stats.StatusBuckets)
	}
	if stats.StatusBuckets["UNKNOWN"] != 1 {
		t.Errorf("expected UNKNOWN bucket, got %v", stats.StatusBuckets)
	}
}

func TestJSONReportSchema(t *testing.T) {
	c := metrics.NewCollector()
	c.Record(ok("/api/feed", 15*time.Millisecond))
	c.Record(metrics.Outcome{Label: "/api/feed", Method: "GET", Latency: 25 * time.Millisecond, StatusCode: 503})

	elapsed := 150 * time.Millisecond
	stats := c.Stats(elapsed)
	if stats.Duration != elapsed {
		t.Fatalf("expected Duration %s got %s", elapsed, stats.Duration)
	}
	if stats.RequestsPerSec == 0 {
		t.Fatalf("expected non-zero RequestsPerSec")
	}

	data, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("failed to marshal stats: %v", err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, key := range []string{"total", "skipped", "p95_latency_ms", "duration_ms", "status_buckets", "routes"} {
		if _, exists := parsed[key]; !exists {
			t.Errorf("missing %q in JSON output", key)
		}
	}
}

func TestCollectorConcurrentRecord(t *testing.T) {
	c := metrics.NewCollector()
	const workers, perWorker = 8, 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c.Record(ok("/api/feed", time.Millisecond))
			}
		}()
	}
	wg.Wait()

	stats := c.Stats(time.Second)
	if stats.Total != workers*perWorker {
		t.Errorf("expected %d total, got %d", workers*perWorker, stats.Total)
	}
}

func TestTeeFansOut(t *testing.T) {
	var a, b metrics.Buffer
	r := metrics.Tee(&a, nil, &b)
	r.Record(ok("/api/feed", time.Millisecond))

	if len(a.Outcomes()) != 1 || len(b.Outcomes()) != 1 {
		t.Fatalf("expected outcome in both buffers, got %d and %d", len(a.Outcomes()), len(b.Outcomes()))
	}
	if single := metrics.Tee(nil, &a); single != metrics.Recorder(&a) {
		t.Errorf("single recorder should be returned unwrapped")
	}
}
