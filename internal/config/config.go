package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/torosent/swarmfire/internal/threshold"
)

// Defaults applied by the Loader before the config file and flags.
const (
	DefaultUsers       = 10
	DefaultThinkMin    = time.Second
	DefaultThinkMax    = 5 * time.Second
	DefaultTimeout     = 30 * time.Second
	DefaultCatalog     = "social"
	DefaultPassword    = "password123"
	DefaultEmailDomain = "example.com"
	DefaultBio         = "I am a swarmfire user."
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
)

type Config struct {
	TargetURL   string         `mapstructure:"target"`
	Users       int            `mapstructure:"users"`
	SpawnRate   float64        `mapstructure:"spawn_rate"`
	Duration    time.Duration  `mapstructure:"duration"`
	ThinkMin    time.Duration  `mapstructure:"think_min"`
	ThinkMax    time.Duration  `mapstructure:"think_max"`
	Timeout     time.Duration  `mapstructure:"timeout"`
	Insecure    bool           `mapstructure:"insecure"`
	Retries     int            `mapstructure:"retries"`
	Catalog     string         `mapstructure:"catalog"`
	Weights     map[string]int `mapstructure:"weights"`
	Password    string         `mapstructure:"password"`
	EmailDomain string         `mapstructure:"email_domain"`
	Bio         string         `mapstructure:"bio"`
	Seed        int64          `mapstructure:"seed"`
	JSONOutput  bool           `mapstructure:"json_output"`
	YAMLOutput  bool           `mapstructure:"yaml_output"`
	Dashboard   bool           `mapstructure:"dashboard"`
	LogErrors   bool           `mapstructure:"log_errors"`
	LogLevel    string         `mapstructure:"log_level"`
	LogFormat   string         `mapstructure:"log_format"`
	ConfigFile  string         `mapstructure:"-"`

	Thresholds        []string      `mapstructure:"thresholds"`
	AbortThresholds   []string      `mapstructure:"abort_thresholds"`
	ThresholdInterval time.Duration `mapstructure:"threshold_interval"`
	MinSamples        int           `mapstructure:"min_samples"`

	MetricsAddr string        `mapstructure:"metrics_addr"`
	Feeder      FeederConfig  `mapstructure:"feeder"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// FeederConfig points at a file of seed accounts used instead of generated
// credentials.
type FeederConfig struct {
	Path string `mapstructure:"path"`
	Type string `mapstructure:"type"` // "csv" or "json"
}

// Enabled reports whether a seed account file is configured.
func (f FeederConfig) Enabled() bool { return strings.TrimSpace(f.Path) != "" }

// TracingConfig configures OTLP span export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured directly or via
// OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether W3C trace headers are injected into calls.
// It defaults to Enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return "invalid configuration: " + strings.Join(e.issues, "; ")
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.TargetURL) == "" {
		issues = append(issues, "target is required")
	} else if u, err := url.Parse(c.TargetURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		issues = append(issues, fmt.Sprintf("target must be an http(s) URL, got %q", c.TargetURL))
	}
	if c.Users <= 0 {
		issues = append(issues, "users must be greater than zero")
	}
	if c.SpawnRate < 0 {
		issues = append(issues, "spawn_rate must be non-negative")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be non-negative")
	}
	if c.ThinkMin < 0 {
		issues = append(issues, "think_min must be non-negative")
	}
	if c.ThinkMax < c.ThinkMin {
		issues = append(issues, fmt.Sprintf("think_max (%s) must not be less than think_min (%s)", c.ThinkMax, c.ThinkMin))
	}
	if c.Timeout <= 0 {
		issues = append(issues, "timeout must be greater than zero")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be non-negative")
	}
	if strings.TrimSpace(c.Catalog) == "" {
		issues = append(issues, "catalog is required")
	}
	for _, name := range sortedKeys(c.Weights) {
		if c.Weights[name] < 0 {
			issues = append(issues, fmt.Sprintf("weights[%s] must be non-negative", name))
		}
	}
	if c.JSONOutput && c.YAMLOutput {
		issues = append(issues, "json_output and yaml_output are mutually exclusive")
	}
	if c.Dashboard && (c.JSONOutput || c.YAMLOutput) {
		issues = append(issues, "dashboard cannot be combined with structured output")
	}
	if !isOneOf(c.LogLevel, "debug", "info", "warn", "error") {
		issues = append(issues, fmt.Sprintf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if !isOneOf(c.LogFormat, "console", "json") {
		issues = append(issues, fmt.Sprintf("log_format must be console or json, got %q", c.LogFormat))
	}
	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, err.Error())
	}
	if _, err := threshold.ParseMultiple(c.AbortThresholds); err != nil {
		issues = append(issues, "abort "+err.Error())
	}
	if c.ThresholdInterval < 0 {
		issues = append(issues, "threshold_interval must be non-negative")
	}
	if c.MinSamples < 0 {
		issues = append(issues, "min_samples must be non-negative")
	}
	issues = append(issues, validateFeederConfig(c.Feeder)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateFeederConfig(feeder FeederConfig) []string {
	if !feeder.Enabled() {
		return nil
	}
	switch strings.ToLower(feeder.Type) {
	case "csv", "json":
		return nil
	case "":
		return []string{"feeder type is required when feeder path is set (csv or json)"}
	default:
		return []string{fmt.Sprintf("feeder type must be csv or json, got %q", feeder.Type)}
	}
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	if p := strings.ToLower(t.Protocol); p != "" && p != "grpc" && p != "http" {
		issues = append(issues, fmt.Sprintf("tracing protocol must be grpc or http, got %q", t.Protocol))
	}
	return issues
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isOneOf(value string, allowed ...string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
