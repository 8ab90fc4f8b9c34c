// Package runner drives a swarm of virtual users.
//
// A Runner spawns Options.Users agents through a Factory, paced by a
// golang.org/x/time/rate limiter at Options.SpawnRate agents per second
// (0 starts them all at once). Every agent shares one stop flag, an
// [agent.Signal]. It is raised by:
//   - the run duration elapsing
//   - cancellation of the context passed to Run (SIGINT/SIGTERM in the CLI)
//   - an explicit call to Stop
//   - the abort-threshold watcher, once Options.MinSamples outcomes exist
//
// A single agent failing never raises it. Run returns when every spawned
// agent has reached a terminal state.
//
//	r := runner.New(runner.Options{
//		Users:     50,
//		SpawnRate: 5,
//		Duration:  time.Minute,
//		Factory:   buildAgent,
//	})
//	res := r.Run(ctx)
//
// Counts reports how many agents are in each lifecycle state and can feed a
// dashboard or a Prometheus gauge through Options.Gauge.
package runner
