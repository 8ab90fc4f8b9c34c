// Package metrics records task outcomes and aggregates them for reporting.
//
// Every task execution or lifecycle call produces one [Outcome]. Outcomes are
// consumed through the [Recorder] interface; the central [Collector] keeps
// global and per-route latency histograms:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//
//	collector.Record(metrics.Outcome{
//		Label:      metrics.RouteLabel("GET", "/api/profile/4f0c6a2e-9d1b-4c1e-8b52-3f7c1d2e9a10"),
//		Method:     "GET",
//		Latency:    12 * time.Millisecond,
//		Success:    true,
//		StatusCode: 200,
//	})
//
//	stats := collector.Stats(collector.Elapsed())
//
// # Route labels
//
// Parameterized paths are collapsed with [NormalizeRoute] so that requests for
// different users aggregate under one label such as "/api/profile/[userId]".
//
// # Skipped outcomes
//
// A task that had nothing to do (no friend candidate, empty relation set)
// records a skipped outcome. Skips are counted per route but never contribute
// to totals, success rates or latency percentiles.
//
// # Prometheus
//
// [Exporter] is a Recorder that mirrors outcomes into Prometheus counters and
// histograms served by [Exporter.Handler]. Combine recorders with [Tee].
package metrics
