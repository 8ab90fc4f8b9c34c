package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/swarmfire/internal/agent"
	"github.com/torosent/swarmfire/internal/auth"
	"github.com/torosent/swarmfire/internal/catalog"
	"github.com/torosent/swarmfire/internal/config"
	"github.com/torosent/swarmfire/internal/dashboard"
	"github.com/torosent/swarmfire/internal/feeder"
	"github.com/torosent/swarmfire/internal/httpclient"
	"github.com/torosent/swarmfire/internal/metrics"
	"github.com/torosent/swarmfire/internal/output"
	"github.com/torosent/swarmfire/internal/registry"
	"github.com/torosent/swarmfire/internal/runner"
	"github.com/torosent/swarmfire/internal/threshold"
	"github.com/torosent/swarmfire/internal/tracing"
	"github.com/torosent/swarmfire/internal/user"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func run(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cat, err := catalog.Lookup(cfg.Catalog, cfg.Weights)
	if err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}
	aborts, err := threshold.ParseMultiple(cfg.AbortThresholds)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	if cfg.Dashboard {
		// The dashboard owns the terminal.
		logger = zap.NewNop()
	}
	defer func() { _ = logger.Sync() }()

	runID := ulid.Make().String()
	logger = logger.With(zap.String("run", runID))

	tp, err := tracing.Init(ctx, cfg.Tracing, attribute.String("swarmfire.run_id", runID))
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	creds, err := credentialSource(cfg)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	recorder := metrics.Recorder(collector)
	var exporter *metrics.Exporter
	if cfg.MetricsAddr != "" {
		exporter = metrics.NewExporter()
		recorder = metrics.Tee(collector, exporter)
	}

	api, err := httpclient.NewAPI(httpclient.Options{
		BaseURL:     cfg.TargetURL,
		Client:      httpclient.NewClient(cfg.Timeout, cfg.Insecure),
		Recorder:    recorder,
		Retry:       httpclient.NewRetryPolicy(cfg.Retries),
		Tracer:      tp.Tracer(),
		Propagate:   tp.ShouldPropagate(),
		Logger:      logger,
		LogFailures: cfg.LogErrors,
	})
	if err != nil {
		return err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	reg := registry.New()

	factory := func(s runner.Spawn) (runner.Agent, error) {
		tokens := auth.NewSessionTokenProvider()
		a, err := agent.New(agent.Options{
			ID:           s.ID,
			API:          api.WithAuth(tokens),
			Tokens:       tokens,
			Credentials:  creds,
			Registry:     reg,
			Catalog:      cat,
			Recorder:     recorder,
			Stop:         s.Stop,
			ThinkMin:     cfg.ThinkMin,
			ThinkMax:     cfg.ThinkMax,
			Bio:          cfg.Bio,
			Rand:         rand.New(rand.NewSource(seed + int64(s.ID))),
			Logger:       logger,
			Tracer:       tp.Tracer(),
			OnTransition: s.OnTransition,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	}

	opts := runner.Options{
		Users:             cfg.Users,
		SpawnRate:         cfg.SpawnRate,
		Duration:          cfg.Duration,
		Factory:           factory,
		AbortThresholds:   aborts,
		ThresholdInterval: cfg.ThresholdInterval,
		MinSamples:        int64(cfg.MinSamples),
		Stats:             func() metrics.Stats { return collector.Stats(collector.Elapsed()) },
		Logger:            logger,
	}
	if exporter != nil {
		opts.Gauge = exporter
	}
	r := runner.New(opts)

	logger.Info("starting swarm",
		zap.String("target", cfg.TargetURL),
		zap.Int("users", cfg.Users),
		zap.Float64("spawn_rate", cfg.SpawnRate),
		zap.Duration("duration", cfg.Duration),
		zap.String("catalog", cat.Name()),
		zap.Int64("seed", seed),
	)

	stopUI, err := startUI(cfg, collector, r, stdout)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if exporter != nil {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: exporter.Handler(), ReadHeaderTimeout: shutdownTimeout}
		g.Go(func() error {
			logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	var result runner.Result
	collector.Start()
	g.Go(func() error {
		defer cancel()
		result = r.Run(gctx)
		return nil
	})
	groupErr := g.Wait()
	stopUI()

	stats := collector.Stats(result.Duration)
	results := threshold.NewEvaluator(thresholds).Evaluate(stats)
	report := output.Report{
		Stats:      stats,
		Run:        result,
		Agents:     r.Counts(),
		Thresholds: results,
	}

	switch {
	case cfg.JSONOutput:
		err = output.PrintJSONReport(stdout, report)
	case cfg.YAMLOutput:
		err = output.PrintYAMLReport(stdout, report)
	default:
		output.PrintReport(stdout, report)
	}
	if err != nil {
		return err
	}
	if groupErr != nil {
		return groupErr
	}

	logger.Info("swarm finished",
		zap.String("reason", result.StopReason),
		zap.Int64("started", result.Started),
		zap.Int64("failed", result.Failed),
		zap.Int64("requests", stats.Total),
	)
	return runError(result, results)
}

// runError turns a finished run into the process outcome.
func runError(result runner.Result, thresholds []threshold.Result) error {
	if len(result.Aborted) > 0 {
		return fmt.Errorf("run aborted: %d abort threshold(s) failed", len(result.Aborted))
	}
	if failed := threshold.Failures(thresholds); len(failed) > 0 {
		return fmt.Errorf("%d of %d threshold(s) failed", len(failed), len(thresholds))
	}
	if result.Started > 0 && result.Failed == result.Started {
		return fmt.Errorf("all %d agents failed", result.Failed)
	}
	return nil
}

func credentialSource(cfg *config.Config) (user.CredentialSource, error) {
	if !cfg.Feeder.Enabled() {
		return user.NewGenerator(cfg.EmailDomain, cfg.Password), nil
	}
	f, err := feeder.Open(cfg.Feeder.Path, cfg.Feeder.Type)
	if err != nil {
		return nil, fmt.Errorf("load seed accounts: %w", err)
	}
	return feeder.NewAccounts(f)
}

// startUI starts the dashboard or progress line and returns the function that
// stops it.
func startUI(cfg *config.Config, collector *metrics.Collector, r *runner.Runner, stdout io.Writer) (func(), error) {
	if cfg.Dashboard {
		dash, err := dashboard.New(collector, r.Counts, dashboard.RunConfig{
			TargetURL:  cfg.TargetURL,
			Users:      cfg.Users,
			SpawnRate:  cfg.SpawnRate,
			Duration:   cfg.Duration,
			ThinkMin:   cfg.ThinkMin,
			ThinkMax:   cfg.ThinkMax,
			Catalog:    cfg.Catalog,
			Timeout:    cfg.Timeout,
			Retries:    cfg.Retries,
			ConfigFile: cfg.ConfigFile,
		}, r.Stop)
		if err != nil {
			return nil, err
		}
		dash.Start()
		return dash.Stop, nil
	}
	if cfg.JSONOutput || cfg.YAMLOutput {
		return func() {}, nil
	}
	progress := output.NewProgressReporter(collector, r.Counts, progressInterval, stdout)
	progress.Start()
	return func() {
		progress.Stop()
		fmt.Fprintln(stdout)
	}, nil
}
