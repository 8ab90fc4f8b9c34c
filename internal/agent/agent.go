// Package agent drives one virtual user through its lifecycle: provisioning,
// authentication, profile setup and the weighted active loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/torosent/swarmfire/internal/catalog"
	"github.com/torosent/swarmfire/internal/extractor"
	"github.com/torosent/swarmfire/internal/httpclient"
	"github.com/torosent/swarmfire/internal/metrics"
	"github.com/torosent/swarmfire/internal/registry"
	"github.com/torosent/swarmfire/internal/tracing"
	"github.com/torosent/swarmfire/internal/user"
)

// Lifecycle routes.
const (
	PathRegister = "/api/auth/register"
	PathLogin    = "/api/auth/login"
)

// DefaultBio is sent on profile creation when none is configured.
const DefaultBio = "I am a swarmfire user."

var (
	// ErrLoginFailed marks a login that did not yield a session token.
	ErrLoginFailed = errors.New("login failed")
	// ErrNoCredentials marks a user whose credentials could not be produced.
	ErrNoCredentials = errors.New("no credentials")
)

// StopSignal is the run-wide cooperative stop flag.
type StopSignal interface {
	Stopped() bool
	Done() <-chan struct{}
}

// TokenSetter receives the session token after login.
type TokenSetter interface {
	SetToken(token string)
}

// Options configure an Agent.
type Options struct {
	ID          int
	API         catalog.API
	Tokens      TokenSetter
	Credentials user.CredentialSource
	Registry    *registry.Registry
	Catalog     *catalog.Catalog
	Recorder    metrics.Recorder
	Stop        StopSignal
	ThinkMin    time.Duration
	ThinkMax    time.Duration
	Bio         string
	Rand        *rand.Rand
	Logger      *zap.Logger
	Tracer      trace.Tracer
	// OnTransition is called after every successful state change.
	OnTransition func(id int, from, to user.State)
}

// Agent owns one VirtualUser and runs it until the run stops or the user fails.
type Agent struct {
	opts       Options
	user       *user.VirtualUser
	session    *catalog.Session
	logger     *zap.Logger
	tracer     trace.Tracer
	iterations atomic.Int64
	failure    error
}

// New validates opts and creates an agent in StateInit.
func New(opts Options) (*Agent, error) {
	if opts.API == nil {
		return nil, errors.New("agent: API is required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("agent: catalog is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("agent: credential source is required")
	}
	if opts.ThinkMin < 0 || opts.ThinkMax < opts.ThinkMin {
		return nil, fmt.Errorf("agent: invalid think time range [%s, %s]", opts.ThinkMin, opts.ThinkMax)
	}
	if opts.Registry == nil {
		opts.Registry = registry.New()
	}
	if opts.Stop == nil {
		opts.Stop = neverStop{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano() + int64(opts.ID)))
	}
	if opts.Bio == "" {
		opts.Bio = DefaultBio
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.Int("agent", opts.ID))
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("swarmfire")
	}

	u := user.New(opts.ID)
	return &Agent{
		opts:   opts,
		user:   u,
		logger: logger,
		tracer: tracer,
		session: &catalog.Session{
			User:     u,
			API:      opts.API,
			Registry: opts.Registry,
			Rand:     opts.Rand,
			Recorder: opts.Recorder,
			Logger:   logger,
		},
	}, nil
}

// ID returns the agent's index.
func (a *Agent) ID() int { return a.opts.ID }

// State returns the user's current lifecycle state. Safe for concurrent use.
func (a *Agent) State() user.State { return a.user.State() }

// Iterations returns the number of completed active-loop iterations.
func (a *Agent) Iterations() int64 { return a.iterations.Load() }

// Err returns the reason the agent failed, if it did.
func (a *Agent) Err() error { return a.failure }

// User exposes the simulated user. Only the owning goroutine may mutate it.
func (a *Agent) User() *user.VirtualUser { return a.user }

// Run executes the lifecycle and returns the terminal state. Cancelling ctx
// acts like the stop signal: it is observed between steps, while in-flight
// calls run to completion under the client timeout. Only a rejected session
// ends in StateFailed.
func (a *Agent) Run(ctx context.Context) user.State {
	if a.stopRequested(ctx) {
		return a.stop()
	}
	finished := make(chan struct{})
	defer close(finished)
	work := httpclient.WithInterrupt(context.WithoutCancel(ctx), a.interrupt(ctx, finished))

	creds, credErr := a.provision(work)
	if a.stopRequested(ctx) {
		return a.stop()
	}

	if err := a.authenticate(work, creds, credErr); err != nil {
		if a.stopRequested(ctx) {
			// Retries were cut short by the stop; the session was never judged.
			return a.stop()
		}
		return a.fail(user.StateAuthenticating, err)
	}
	if a.stopRequested(ctx) {
		return a.stop()
	}

	if err := a.profile(work); err != nil {
		if a.stopRequested(ctx) {
			return a.stop()
		}
		return a.fail(user.StateProfiling, err)
	}
	// A user stopped here is never published, so the registry only holds
	// users that reached ACTIVE.
	if a.stopRequested(ctx) || !a.transition(user.StateActive) {
		return a.stop()
	}
	if a.user.ID != "" {
		a.opts.Registry.Add(a.user.ID)
		a.logger.Debug("registered identity", zap.String("uuid", a.user.ID))
	}

	a.active(ctx, work)
	return a.stop()
}

func (a *Agent) provision(ctx context.Context) (user.Credentials, error) {
	a.transition(user.StateProvisioning)

	creds, err := a.opts.Credentials.Next()
	if err != nil {
		a.logger.Error("credential generation failed", zap.Error(err))
		return user.Credentials{}, fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	a.user.Credentials = creds

	ctx, span := tracing.StartAgentSpan(ctx, a.tracer, a.opts.ID, "register")
	resp, err := a.opts.API.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   PathRegister,
		Body:   credentialsBody(creds),
		Accept: []int{http.StatusCreated, http.StatusConflict},
	})
	tracing.EndSpan(span, err)
	if err != nil {
		fields := []zap.Field{zap.String("email", creds.Email), zap.Error(err)}
		if resp != nil {
			fields = append(fields, zap.Int("status", resp.StatusCode))
		}
		a.logger.Warn("registration failed", fields...)
	}
	return creds, nil
}

func (a *Agent) authenticate(ctx context.Context, creds user.Credentials, credErr error) error {
	a.transition(user.StateAuthenticating)
	if credErr != nil {
		return credErr
	}

	ctx, span := tracing.StartAgentSpan(ctx, a.tracer, a.opts.ID, "login")
	resp, err := a.opts.API.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   PathLogin,
		Body:   credentialsBody(creds),
		Accept: []int{http.StatusOK},
	})
	if err != nil {
		tracing.EndSpan(span, err)
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	token := extractor.Field(resp.Body, "access_token")
	if token == "" {
		err := fmt.Errorf("%w: response has no access_token", ErrLoginFailed)
		tracing.EndSpan(span, err)
		return err
	}
	tracing.EndSpan(span, nil)

	a.user.Token = token
	if a.opts.Tokens != nil {
		a.opts.Tokens.SetToken(token)
	}
	a.transition(user.StateProfiling)
	return nil
}

// profile creates the profile when the catalog needs one and publishes the
// confirmed identifier. Only a rejected session is fatal here.
func (a *Agent) profile(ctx context.Context) error {
	if !a.opts.Catalog.RequiresProfile() {
		return nil
	}

	ctx, span := tracing.StartAgentSpan(ctx, a.tracer, a.opts.ID, "profile")
	defer span.End()

	resp, err := a.opts.API.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   catalog.PathProfileMe,
		Body: profileBody{
			Username: a.user.Credentials.Username,
			Bio:      a.opts.Bio,
		},
	})
	if unauthorized(resp) {
		return fmt.Errorf("profile creation: session rejected: %w", err)
	}
	if err != nil {
		a.logger.Warn("profile creation failed", zap.Error(err))
		return nil
	}

	resp, err = a.opts.API.Do(ctx, httpclient.Request{Method: http.MethodGet, Path: catalog.PathProfileMe})
	if unauthorized(resp) {
		return fmt.Errorf("profile fetch: session rejected: %w", err)
	}
	if err != nil {
		a.logger.Warn("profile fetch failed", zap.Error(err))
		return nil
	}

	id := extractor.Field(resp.Body, "uuid")
	if id == "" {
		a.logger.Warn("profile response has no uuid")
		return nil
	}
	a.user.ID = id
	return nil
}

func (a *Agent) active(ctx, work context.Context) {
	if a.user.State() != user.StateActive {
		return
	}
	for {
		if a.stopRequested(ctx) {
			return
		}

		task := a.opts.Catalog.Select(a.opts.Rand)
		if err := task.Handler(work, a.session); err != nil {
			a.logger.Debug("task failed", zap.String("task", task.Name), zap.Error(err))
		}
		a.iterations.Add(1)

		if !a.think(ctx) {
			return
		}
	}
}

// think sleeps a uniform duration in [ThinkMin, ThinkMax]. It returns false
// when the run stops during the wait.
func (a *Agent) think(ctx context.Context) bool {
	wait := a.thinkTime()
	if wait <= 0 {
		return !a.stopRequested(ctx)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return !a.stopRequested(ctx)
	case <-a.opts.Stop.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func (a *Agent) thinkTime() time.Duration {
	span := a.opts.ThinkMax - a.opts.ThinkMin
	if span <= 0 {
		return a.opts.ThinkMin
	}
	return a.opts.ThinkMin + time.Duration(a.opts.Rand.Int63n(int64(span)+1))
}

// interrupt closes when the run stops or ctx ends, so retry backoff between
// attempts ends with the run.
func (a *Agent) interrupt(ctx context.Context, finished <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-a.opts.Stop.Done():
		case <-ctx.Done():
		case <-finished:
		}
	}()
	return done
}

func (a *Agent) stopRequested(ctx context.Context) bool {
	return a.opts.Stop.Stopped() || ctx.Err() != nil
}

func (a *Agent) stop() user.State {
	a.transition(user.StateStopped)
	return a.user.State()
}

func (a *Agent) fail(from user.State, err error) user.State {
	a.failure = err
	if a.user.State() != from {
		// A stop raced the failing step; the agent is already terminal.
		return a.user.State()
	}
	a.transition(user.StateFailed)
	a.logger.Error("agent failed",
		zap.String("state", from.String()),
		zap.String("email", a.user.Credentials.Email),
		zap.Error(err),
	)
	return a.user.State()
}

// transition applies next and notifies the observer. Illegal moves are
// logged and reported as false.
func (a *Agent) transition(next user.State) bool {
	from := a.user.State()
	if err := a.user.Transition(next); err != nil {
		if !from.Terminal() {
			a.logger.Warn("rejected state transition", zap.Error(err))
		}
		return false
	}
	if a.opts.OnTransition != nil {
		a.opts.OnTransition(a.opts.ID, from, next)
	}
	return true
}

func unauthorized(resp *httpclient.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusUnauthorized
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type profileBody struct {
	Username string `json:"username"`
	Bio      string `json:"bio"`
}

func credentialsBody(c user.Credentials) credentialsPayload {
	return credentialsPayload{Email: c.Email, Password: c.Password}
}

type neverStop struct{}

func (neverStop) Stopped() bool          { return false }
func (neverStop) Done() <-chan struct{} { return nil }
