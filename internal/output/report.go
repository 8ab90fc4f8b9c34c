// Package output renders the end-of-run summary and the live progress line.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/swarmfire/internal/metrics"
	"github.com/torosent/swarmfire/internal/runner"
	"github.com/torosent/swarmfire/internal/threshold"
	"github.com/torosent/swarmfire/internal/user"
)

// Report is everything known at the end of a run.
type Report struct {
	Stats      metrics.Stats
	Run        runner.Result
	Agents     map[user.State]int
	Thresholds []threshold.Result
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	stats := r.Stats
	fmt.Fprintln(w, "\n--- Swarm Results ---")
	fmt.Fprintf(w, "Users:             %d configured, %d started\n", r.Run.Configured, r.Run.Started)
	fmt.Fprintf(w, "Agents:            %d stopped, %d failed\n", r.Run.Stopped, r.Run.Failed)
	if r.Run.StopReason != "" {
		fmt.Fprintf(w, "Stop Reason:       %s\n", r.Run.StopReason)
	}
	fmt.Fprintf(w, "Duration:          %s\n", r.Run.Duration.Round(time.Millisecond))

	fmt.Fprintln(w, "\nRequests:")
	fmt.Fprintf(w, "  Total:           %d\n", stats.Total)
	fmt.Fprintf(w, "  Successful:      %d\n", stats.Successes)
	fmt.Fprintf(w, "  Failed:          %d\n", stats.Failures)
	fmt.Fprintf(w, "  Skipped Tasks:   %d\n", stats.Skipped)
	fmt.Fprintf(w, "  Requests/sec:    %.2f\n", stats.RequestsPerSec)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	if len(r.Agents) > 0 {
		fmt.Fprintln(w, "\nAgent States:")
		for _, s := range user.States {
			if n := r.Agents[s]; n > 0 {
				fmt.Fprintf(w, "  %-15s  %d\n", s.String()+":", n)
			}
		}
	}

	if len(stats.StatusBuckets) > 0 {
		fmt.Fprintln(w, "\nFailure Buckets:")
		writeStatusBuckets(w, map[string]map[string]int{"": stats.StatusBuckets}, "  ")
	}

	if len(stats.Routes) > 0 {
		fmt.Fprintln(w, "\nRoute Breakdown:")
		for _, key := range routesByVolume(stats) {
			route := stats.Routes[key]
			outcomes := route.Total + route.Skipped
			share := 0.0
			if all := stats.Total + stats.Skipped; all > 0 {
				share = (float64(outcomes) / float64(all)) * 100
			}
			fmt.Fprintf(
				w,
				"  - %s: total=%d (%.1f%%), successes=%d, failures=%d, skipped=%d, rps=%.2f, p95=%s, p99=%s\n",
				key,
				route.Total,
				share,
				route.Successes,
				route.Failures,
				route.Skipped,
				route.RequestsPerSec,
				route.P95Latency,
				route.P99Latency,
			)
			if len(route.StatusBuckets) > 0 {
				fmt.Fprintln(w, "    Failure Buckets:")
				writeStatusBuckets(w, map[string]map[string]int{"": route.StatusBuckets}, "      ")
			}
		}
	}

	if len(r.Run.Aborted) > 0 {
		fmt.Fprintln(w, "\nAbort Thresholds:")
		for _, res := range r.Run.Aborted {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
	}

	if len(r.Thresholds) > 0 {
		passed := len(r.Thresholds) - len(threshold.Failures(r.Thresholds))
		fmt.Fprintf(w, "\nThresholds: %d/%d passed\n", passed, len(r.Thresholds))
		for _, res := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newDocument(r))
}

// PrintYAMLReport outputs a YAML-formatted report with the same schema as JSON.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(newDocument(r)); err != nil {
		return err
	}
	return enc.Close()
}

type document struct {
	Run        runSummary        `json:"run" yaml:"run"`
	Agents     map[string]int    `json:"agents,omitempty" yaml:"agents,omitempty"`
	Metrics    metrics.Stats     `json:"metrics" yaml:"metrics"`
	Thresholds *thresholdSummary `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

type runSummary struct {
	Users      int             `json:"users" yaml:"users"`
	Started    int64           `json:"started" yaml:"started"`
	Failed     int64           `json:"failed" yaml:"failed"`
	Stopped    int64           `json:"stopped" yaml:"stopped"`
	StopReason string          `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
	DurationMs float64         `json:"duration_ms" yaml:"duration_ms"`
	Aborted    []thresholdItem `json:"aborted_by,omitempty" yaml:"aborted_by,omitempty"`
}

type thresholdSummary struct {
	Total   int             `json:"total" yaml:"total"`
	Passed  int             `json:"passed" yaml:"passed"`
	Failed  int             `json:"failed" yaml:"failed"`
	Results []thresholdItem `json:"results" yaml:"results"`
}

type thresholdItem struct {
	Threshold string  `json:"threshold" yaml:"threshold"`
	Metric    string  `json:"metric" yaml:"metric"`
	Route     string  `json:"route,omitempty" yaml:"route,omitempty"`
	Aggregate string  `json:"aggregate" yaml:"aggregate"`
	Operator  string  `json:"operator" yaml:"operator"`
	Expected  float64 `json:"expected" yaml:"expected"`
	Actual    float64 `json:"actual" yaml:"actual"`
	Pass      bool    `json:"pass" yaml:"pass"`
}

func newDocument(r Report) document {
	doc := document{
		Run: runSummary{
			Users:      r.Run.Configured,
			Started:    r.Run.Started,
			Failed:     r.Run.Failed,
			Stopped:    r.Run.Stopped,
			StopReason: r.Run.StopReason,
			DurationMs: float64(r.Run.Duration) / float64(time.Millisecond),
			Aborted:    thresholdItems(r.Run.Aborted),
		},
		Metrics: r.Stats,
	}
	if len(r.Agents) > 0 {
		doc.Agents = make(map[string]int, len(r.Agents))
		for s, n := range r.Agents {
			doc.Agents[s.String()] = n
		}
	}
	if len(r.Thresholds) > 0 {
		failed := len(threshold.Failures(r.Thresholds))
		doc.Thresholds = &thresholdSummary{
			Total:   len(r.Thresholds),
			Passed:  len(r.Thresholds) - failed,
			Failed:  failed,
			Results: thresholdItems(r.Thresholds),
		}
	}
	return doc
}

func thresholdItems(results []threshold.Result) []thresholdItem {
	if len(results) == 0 {
		return nil
	}
	items := make([]thresholdItem, len(results))
	for i, res := range results {
		items[i] = thresholdItem{
			Threshold: res.Threshold.Raw,
			Metric:    res.Threshold.Metric,
			Route:     res.Threshold.Route,
			Aggregate: res.Threshold.Aggregate,
			Operator:  res.Threshold.Operator,
			Expected:  res.Threshold.Value,
			Actual:    res.Actual,
			Pass:      res.Pass,
		}
	}
	return items
}

// routesByVolume orders route keys by outcome count, busiest first.
func routesByVolume(stats metrics.Stats) []string {
	keys := make([]string, 0, len(stats.Routes))
	for key := range stats.Routes {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := stats.Routes[keys[i]], stats.Routes[keys[j]]
		if a.Total+a.Skipped == b.Total+b.Skipped {
			return keys[i] < keys[j]
		}
		return a.Total+a.Skipped > b.Total+b.Skipped
	})
	return keys
}

func writeStatusBuckets(w io.Writer, buckets map[string]map[string]int, indent string) {
	rows := metrics.FlattenStatusBuckets(buckets)
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		label := row.Code
		if row.Route != "" {
			label = row.Route + " " + row.Code
		}
		fmt.Fprintf(w, "%s%s: %d\n", indent, strings.TrimSpace(label), row.Count)
	}
}
