package config

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.StringP("target", "H", "", "Base URL of the API under test")

	// Swarm flags
	flags.IntP("users", "u", DefaultUsers, "Number of virtual users")
	flags.Float64P("spawn-rate", "r", 0, "Users started per second (0 starts all at once)")
	flags.DurationP("duration", "d", 0, "How long to run (e.g. 30s, 5m; 0 runs until interrupted)")
	flags.Duration("think-min", DefaultThinkMin, "Minimum pause between a user's tasks")
	flags.Duration("think-max", DefaultThinkMax, "Maximum pause between a user's tasks")
	flags.Int64("seed", 0, "Seed for task selection and think time (0 picks a random seed)")

	// Client flags
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.Bool("insecure", false, "Skip TLS certificate verification")
	flags.Int("retries", 0, "Retries per request on network errors, 429 and 5xx")

	// Scenario flags
	flags.String("catalog", DefaultCatalog, "Task catalog: 'social' or 'basic'")
	flags.StringToInt("weight", nil, "Override a task weight, e.g. post_status=5 (0 disables the task)")
	flags.String("password", DefaultPassword, "Password for generated users")
	flags.String("email-domain", DefaultEmailDomain, "Email domain for generated users")
	flags.String("bio", DefaultBio, "Bio sent on profile creation")
	flags.String("feeder-path", "", "CSV or JSON file of seed accounts (email,password[,username])")
	flags.String("feeder-type", "", "Type of feeder file: 'csv' or 'json'")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted report")
	flags.Bool("yaml-output", false, "Emit YAML formatted report")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("log-errors", false, "Log each failed request")
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warn or error")
	flags.String("log-format", DefaultLogFormat, "Log format: console or json")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Pass/fail thresholds checked after the run (repeatable, e.g. 'http_req_duration:p95 < 500')")
	flags.StringSlice("abort-threshold", nil, "Thresholds that stop the run early when they fail (repeatable)")
	flags.Duration("threshold-interval", time.Second, "How often abort thresholds are evaluated")
	flags.Int("min-samples", 0, "Outcomes required before abort thresholds apply")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of calls to trace (0.0-1.0)")
	flags.Bool("tracing-insecure", false, "Use an insecure connection to the collector")
	flags.Bool("tracing-propagate", true, "Inject W3C trace headers into requests when tracing is enabled")
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	for name, dst := range map[string]*string{
		"target":               &cfg.TargetURL,
		"catalog":              &cfg.Catalog,
		"password":             &cfg.Password,
		"email-domain":         &cfg.EmailDomain,
		"bio":                  &cfg.Bio,
		"feeder-path":          &cfg.Feeder.Path,
		"feeder-type":          &cfg.Feeder.Type,
		"log-level":            &cfg.LogLevel,
		"log-format":           &cfg.LogFormat,
		"metrics-addr":         &cfg.MetricsAddr,
		"tracing-endpoint":     &cfg.Tracing.Endpoint,
		"tracing-protocol":     &cfg.Tracing.Protocol,
		"tracing-service-name": &cfg.Tracing.ServiceName,
	} {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
	}

	for name, dst := range map[string]*time.Duration{
		"duration":           &cfg.Duration,
		"think-min":          &cfg.ThinkMin,
		"think-max":          &cfg.ThinkMax,
		"timeout":            &cfg.Timeout,
		"threshold-interval": &cfg.ThresholdInterval,
	} {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	for name, dst := range map[string]*bool{
		"insecure":         &cfg.Insecure,
		"json-output":      &cfg.JSONOutput,
		"yaml-output":      &cfg.YAMLOutput,
		"dashboard":        &cfg.Dashboard,
		"log-errors":       &cfg.LogErrors,
		"tracing-insecure": &cfg.Tracing.Insecure,
	} {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	for name, dst := range map[string]*int{
		"users":       &cfg.Users,
		"retries":     &cfg.Retries,
		"min-samples": &cfg.MinSamples,
	} {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	if fs.Changed("spawn-rate") {
		val, err := fs.GetFloat64("spawn-rate")
		if err != nil {
			return err
		}
		cfg.SpawnRate = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if fs.Changed("weight") {
		val, err := fs.GetStringToInt("weight")
		if err != nil {
			return err
		}
		if cfg.Weights == nil {
			cfg.Weights = make(map[string]int, len(val))
		}
		for name, w := range val {
			cfg.Weights[strings.ToLower(strings.TrimSpace(name))] = w
		}
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("abort-threshold") {
		val, err := fs.GetStringSlice("abort-threshold")
		if err != nil {
			return err
		}
		cfg.AbortThresholds = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}
	return nil
}
