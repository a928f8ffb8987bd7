package agent

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/m2tx/function_calling/internal/repository"
)

const instrumentationName = "github.com/m2tx/function_calling/internal/agent"

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	fetchTimeout   time.Duration
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	now            func() time.Time
}

// WithFetchTimeout bounds every fetch. Zero leaves the caller's context as the only limit.
func WithFetchTimeout(d time.Duration) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.fetchTimeout = d
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.logger = logger
	}
}

// WithTracerProvider sets the provider used for dispatch spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.tracerProvider = tp
	}
}

// WithClock sets the clock used to stamp function results.
func WithClock(now func() time.Time) DispatcherOption {
	return func(o *dispatcherOptions) {
		o.now = now
	}
}

func newDispatcherOptions(opts []DispatcherOption) dispatcherOptions {
	o := dispatcherOptions{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Option configures an Agent.
type Option func(*Agent)

// WithSystemInstruction sets the instruction sent with every model request.
func WithSystemInstruction(instruction string) Option {
	return func(a *Agent) {
		a.systemInstruction = instruction
	}
}

// WithSynthesizer replaces the default TemplateSynthesizer.
func WithSynthesizer(s Synthesizer) Option {
	return func(a *Agent) {
		a.synthesizer = s
	}
}

// WithRepository journals every request to repo.
func WithRepository(repo repository.DispatchRepository) Option {
	return func(a *Agent) {
		a.repository = repo
	}
}

// WithDispatcher replaces the dispatcher built from the registry.
func WithDispatcher(d *Dispatcher) Option {
	return func(a *Agent) {
		a.dispatcher = d
	}
}

// WithAgentLogger sets the agent logger.
func WithAgentLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithIDGenerator sets the generator for dispatch record IDs.
func WithIDGenerator(newID func() string) Option {
	return func(a *Agent) {
		a.newID = newID
	}
}
