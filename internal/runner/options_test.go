package runner

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestOptionsNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    Options
		validate func(*testing.T, Options)
	}{
		{
			name:  "defaults",
			input: Options{},
			validate: func(t *testing.T, o Options) {
				if o.ThresholdInterval != time.Second {
					t.Errorf("ThresholdInterval = %s, want 1s", o.ThresholdInterval)
				}
				if o.Logger == nil {
					t.Error("Logger should not be nil")
				}
				if o.LimiterFactory == nil {
					t.Error("LimiterFactory should not be nil")
				}
			},
		},
		{
			name: "negative values corrected",
			input: Options{
				Users:      -5,
				SpawnRate:  -1,
				Duration:   -time.Second,
				MinSamples: -3,
			},
			validate: func(t *testing.T, o Options) {
				if o.Users != 0 || o.SpawnRate != 0 || o.Duration != 0 || o.MinSamples != 0 {
					t.Errorf("negative values not corrected: %+v", o)
				}
			},
		},
		{
			name:  "custom interval kept",
			input: Options{ThresholdInterval: 250 * time.Millisecond},
			validate: func(t *testing.T, o Options) {
				if o.ThresholdInterval != 250*time.Millisecond {
					t.Errorf("ThresholdInterval = %s", o.ThresholdInterval)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := tt.input
			opt.normalize()
			tt.validate(t, opt)
		})
	}
}

func TestDefaultLimiterFactory(t *testing.T) {
	var o Options
	o.normalize()

	if l := o.LimiterFactory(0); l.Limit() != rate.Inf {
		t.Errorf("rate 0 should be unlimited, got %v", l.Limit())
	}
	l := o.LimiterFactory(2.5)
	if l.Limit() != rate.Limit(2.5) {
		t.Errorf("Limit() = %v, want 2.5", l.Limit())
	}
	if l.Burst() != 1 {
		t.Errorf("Burst() = %d, want 1", l.Burst())
	}
}
