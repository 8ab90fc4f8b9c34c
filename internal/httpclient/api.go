package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/torosent/swarmfire/internal/metrics"
	"github.com/torosent/swarmfire/internal/tracing"
)

const (
	maxResponseBytes   = 1 << 20
	maxLoggedBodyBytes = 1024
)

// AuthProvider supplies authentication tokens and injects them into HTTP requests.
type AuthProvider interface {
	Token(ctx context.Context) (string, error)
	InjectHeader(ctx context.Context, req *http.Request) error
	Close() error
}

// Request describes one JSON API call.
type Request struct {
	Method string
	Path   string
	// Body is JSON-encoded unless it is nil, a string or a byte slice.
	Body any
	// Label overrides the route label derived from Method and Path.
	Label string
	// Accept lists the status codes counted as success. Empty means any 2xx.
	Accept []int
}

func (r Request) accepts(status int) bool {
	if len(r.Accept) == 0 {
		return status >= 200 && status < 300
	}
	for _, code := range r.Accept {
		if code == status {
			return true
		}
	}
	return false
}

// Response is a fully read API response.
type Response struct {
	StatusCode int
	Body       []byte
	Latency    time.Duration
}

// Options configure an API.
type Options struct {
	BaseURL   string
	Client    *http.Client
	Auth      AuthProvider
	Recorder  metrics.Recorder
	Retry     RetryPolicy
	Tracer    trace.Tracer
	Propagate bool
	// Logger receives one warning per failed attempt when LogFailures is set.
	Logger      *zap.Logger
	LogFailures bool
}

// API issues JSON calls against a base URL, records one Outcome per attempt
// and injects credentials from its AuthProvider.
type API struct {
	base   string
	opts   Options
	client *http.Client
	tracer trace.Tracer
	logger *zap.Logger
}

// NewAPI validates opts and returns an API bound to opts.BaseURL.
func NewAPI(opts Options) (*API, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("target URL is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid target URL %q: scheme must be http or https", base)
	}

	client := opts.Client
	if client == nil {
		client = NewClient(30*time.Second, false)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("swarmfire")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &API{
		base:   strings.TrimRight(base, "/"),
		opts:   opts,
		client: client,
		tracer: tracer,
		logger: logger,
	}, nil
}

// WithAuth returns a copy of a that authenticates with p. The underlying
// connection pool is shared.
func (a *API) WithAuth(p AuthProvider) *API {
	clone := *a
	clone.opts.Auth = p
	return &clone
}

// Do executes r, retrying according to the configured policy. A non-nil
// Response is returned whenever the server answered, even if err is an
// *HTTPError for an unaccepted status.
func (a *API) Do(ctx context.Context, r Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method == "" {
		method = http.MethodGet
	}
	r.Method = method

	body, err := NewJSONBody(r.Body)
	if err != nil {
		return nil, err
	}
	label := r.Label
	if label == "" {
		label = metrics.RouteLabel(method, r.Path)
	}

	var resp *Response
	err = a.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var attemptErr error
		resp, attemptErr = a.attempt(ctx, r, label, body)
		return attemptErr
	})
	return resp, err
}

func (a *API) attempt(ctx context.Context, r Request, label string, body BodySource) (*Response, error) {
	ctx, span := tracing.StartRequestSpan(ctx, a.tracer, r.Method, label)

	start := time.Now()
	req, err := a.newRequest(ctx, r, body)
	if err != nil {
		a.finish(span, r, label, time.Since(start), 0, err)
		return nil, err
	}

	httpResp, err := a.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		a.finish(span, r, label, latency, 0, err)
		return nil, err
	}
	defer httpResp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	_, _ = io.Copy(io.Discard, httpResp.Body)
	latency = time.Since(start)
	if readErr != nil {
		a.finish(span, r, label, latency, 0, readErr)
		return nil, readErr
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Body: data, Latency: latency}
	var resultErr error
	if !r.accepts(httpResp.StatusCode) {
		snippet := data
		if len(snippet) > maxLoggedBodyBytes {
			snippet = snippet[:maxLoggedBodyBytes]
		}
		resultErr = &HTTPError{
			StatusCode: httpResp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	a.finish(span, r, label, latency, httpResp.StatusCode, resultErr)
	return resp, resultErr
}

func (a *API) newRequest(ctx context.Context, r Request, body BodySource) (*http.Request, error) {
	reader, err := body.NewReader()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, a.base+ensureLeadingSlash(r.Path), reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	if length, ok := body.ContentLength(); ok {
		req.ContentLength = length
	}
	req.GetBody = body.NewReader
	req.Header.Set("Accept", "application/json")
	if !body.Empty() {
		req.Header.Set("Content-Type", "application/json")
	}

	if a.opts.Auth != nil {
		if err := a.opts.Auth.InjectHeader(ctx, req); err != nil {
			return nil, fmt.Errorf("auth provider inject header: %w", err)
		}
	}
	if a.opts.Propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}
	return req, nil
}

func (a *API) finish(span trace.Span, r Request, label string, latency time.Duration, status int, err error) {
	outcome := metrics.Outcome{
		Label:      label,
		Method:     r.Method,
		Latency:    latency,
		Success:    err == nil,
		StatusCode: status,
	}
	if err != nil && status == 0 {
		outcome.ErrorKind = metrics.ErrorKind(err)
	}
	if a.opts.Recorder != nil {
		a.opts.Recorder.Record(outcome)
	}

	attrs := []attribute.KeyValue{attribute.String("swarmfire.route", label)}
	if status > 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", status))
	}
	tracing.EndSpan(span, err, attrs...)

	if err != nil && a.opts.LogFailures {
		a.logger.Warn("request failed",
			zap.String("method", r.Method),
			zap.String("route", label),
			zap.Int("status", status),
			zap.String("error_type", metrics.FriendlyErrorName(fmt.Sprintf("%T", err))),
			zap.Error(err),
		)
	}
}

func ensureLeadingSlash(path string) string {
	if path == "" || strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}
