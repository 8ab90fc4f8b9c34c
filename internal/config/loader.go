package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() *Config {
	return &Config{
		Users:       DefaultUsers,
		ThinkMin:    DefaultThinkMin,
		ThinkMax:    DefaultThinkMax,
		Timeout:     DefaultTimeout,
		Catalog:     DefaultCatalog,
		Password:    DefaultPassword,
		EmailDomain: DefaultEmailDomain,
		Bio:         DefaultBio,
		LogLevel:    DefaultLogLevel,
		LogFormat:   DefaultLogFormat,
		Tracing:     TracingConfig{SampleRate: 1.0},
	}
}

// LoadFlags builds a Config from an already parsed flag set, e.g. one owned
// by a cobra command. The file named by --config is read first.
func (Loader) LoadFlags(flagSet *pflag.FlagSet) (*Config, error) {
	configPath := ""
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.TargetURL = strings.TrimRight(strings.TrimSpace(cfg.TargetURL), "/")
	cfg.Catalog = strings.ToLower(strings.TrimSpace(cfg.Catalog))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.Feeder.Type = strings.ToLower(strings.TrimSpace(cfg.Feeder.Type))
	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	texts := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"target", "host"}, &cfg.TargetURL},
		{[]string{"catalog"}, &cfg.Catalog},
		{[]string{"password"}, &cfg.Password},
		{[]string{"email_domain", "emaildomain"}, &cfg.EmailDomain},
		{[]string{"bio"}, &cfg.Bio},
		{[]string{"log_level", "loglevel"}, &cfg.LogLevel},
		{[]string{"log_format", "logformat"}, &cfg.LogFormat},
		{[]string{"metrics_addr", "metricsaddr"}, &cfg.MetricsAddr},
	}
	for _, s := range texts {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	ints := []struct {
		keys []string
		dst  *int
	}{
		{[]string{"users"}, &cfg.Users},
		{[]string{"retries"}, &cfg.Retries},
		{[]string{"min_samples", "minsamples"}, &cfg.MinSamples},
	}
	for _, s := range ints {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	durations := []struct {
		keys []string
		dst  *time.Duration
	}{
		{[]string{"duration", "run_time"}, &cfg.Duration},
		{[]string{"think_min", "thinkmin"}, &cfg.ThinkMin},
		{[]string{"think_max", "thinkmax"}, &cfg.ThinkMax},
		{[]string{"timeout"}, &cfg.Timeout},
		{[]string{"threshold_interval", "thresholdinterval"}, &cfg.ThresholdInterval},
	}
	for _, s := range durations {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	bools := []struct {
		keys []string
		dst  *bool
	}{
		{[]string{"insecure"}, &cfg.Insecure},
		{[]string{"json_output", "jsonoutput"}, &cfg.JSONOutput},
		{[]string{"yaml_output", "yamloutput"}, &cfg.YAMLOutput},
		{[]string{"dashboard"}, &cfg.Dashboard},
		{[]string{"log_errors", "logerrors"}, &cfg.LogErrors},
	}
	for _, s := range bools {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "spawn_rate", "spawnrate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("spawn_rate: %w", err)
		}
		cfg.SpawnRate = val
	}
	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = int64(val)
	}
	if raw, ok := lookupSetting(settings, "weights"); ok {
		val, err := asIntMap(raw)
		if err != nil {
			return fmt.Errorf("weights: %w", err)
		}
		cfg.Weights = val
	}
	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}
	if raw, ok := lookupSetting(settings, "abort_thresholds", "abortthresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("abort_thresholds: %w", err)
		}
		cfg.AbortThresholds = val
	}
	if raw, ok := lookupSetting(settings, "feeder"); ok {
		feeder, err := parseFeeder(raw)
		if err != nil {
			return fmt.Errorf("feeder: %w", err)
		}
		cfg.Feeder = feeder
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := parseTracing(raw, &cfg.Tracing); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	return nil
}

func parseFeeder(value interface{}) (FeederConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return FeederConfig{}, err
	}
	var feeder FeederConfig
	if raw, ok := lookupSetting(settings, "path"); ok {
		if feeder.Path, err = asString(raw); err != nil {
			return FeederConfig{}, fmt.Errorf("path: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "type"); ok {
		if feeder.Type, err = asString(raw); err != nil {
			return FeederConfig{}, fmt.Errorf("type: %w", err)
		}
	}
	return feeder, nil
}

func parseTracing(value interface{}, tc *TracingConfig) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	for key, dst := range map[string]*string{
		"endpoint":     &tc.Endpoint,
		"protocol":     &tc.Protocol,
		"service_name": &tc.ServiceName,
	} {
		if raw, ok := lookupSetting(settings, key); ok {
			if *dst, err = asString(raw); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	if raw, ok := lookupSetting(settings, "sample_rate"); ok {
		if tc.SampleRate, err = asFloat64(raw); err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		if tc.Insecure, err = asBool(raw); err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &val
	}
	return nil
}
