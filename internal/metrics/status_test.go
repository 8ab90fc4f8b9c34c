package metrics_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"testing"

	"github.com/torosent/swarmfire/internal/metrics"
)

func TestFlattenStatusBuckets(t *testing.T) {
	tests := []struct {
		name    string
		buckets map[string]map[string]int
		want    []metrics.StatusBucket
	}{
		{
			name:    "nil buckets",
			buckets: nil,
			want:    nil,
		},
		{
			name:    "empty buckets",
			buckets: map[string]map[string]int{},
			want:    nil,
		},
		{
			name: "sorted by count desc",
			buckets: map[string]map[string]int{
				"GET /api/feed": {
					"500": 5,
					"503": 10,
				},
				"POST /api/posts/me": {
					"URL_ERROR": 20,
				},
			},
			want: []metrics.StatusBucket{
				{Route: "POST /api/posts/me", Code: "URL_ERROR", Count: 20},
				{Route: "GET /api/feed", Code: "503", Count: 10},
				{Route: "GET /api/feed", Code: "500", Count: 5},
			},
		},
		{
			name: "tie breaking by route then code",
			buckets: map[string]map[string]int{
				"GET /api/feed":    {"404": 10, "500": 10},
				"GET /api/friends": {"500": 10},
			},
			want: []metrics.StatusBucket{
				{Route: "GET /api/feed", Code: "404", Count: 10},
				{Route: "GET /api/feed", Code: "500", Count: 10},
				{Route: "GET /api/friends", Code: "500", Count: 10},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := metrics.FlattenStatusBuckets(tt.buckets)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("FlattenStatusBuckets() = %v, want %v", got, tt.want)
			}
		})
	}
}

type brokenPipeError struct{}

func (brokenPipeError) Error() string { return "broken pipe" }

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), "TIMEOUT"},
		{"canceled", context.Canceled, "CANCELED"},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("dial tcp: refused")}, "URL_ERROR"},
		{"custom type", brokenPipeError{}, "BROKENPIPEERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := metrics.ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusLabel(t *testing.T) {
	if got := metrics.StatusLabel(metrics.Outcome{StatusCode: 409}); got != "409" {
		t.Errorf("expected 409, got %q", got)
	}
	if got := metrics.StatusLabel(metrics.Outcome{ErrorKind: "dial tcp"}); got != "DIAL_TCP" {
		t.Errorf("expected DIAL_TCP, got %q", got)
	}
	if got := metrics.StatusLabel(metrics.Outcome{}); got != "UNKNOWN" {
		t.Errorf("expected UNKNOWN, got %q", got)
	}
}

func TestFriendlyErrorName(t *testing.T) {
	tests := map[string]string{
		"*httpclient.HTTPError": "HTTP error response",
		"*url.Error":            "Request URL error",
		"":                      "Unknown error",
		"*net.OpError":          "Op Error (net)",
	}
	for in, want := range tests {
		if got := metrics.FriendlyErrorName(in); got != want {
			t.Errorf("FriendlyErrorName(%q) = %q, want %q", in, got, want)
		}
	}
}
