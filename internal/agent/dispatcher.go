package agent

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/m2tx/function_calling/internal/model"
)

// State is a step of the dispatch state machine.
type State string

const (
	StateAwaitingModelResponse State = "awaiting_model_response"
	StatePlainText             State = "plain_text"
	StateCallProposed          State = "call_proposed"
	StateValidating            State = "validating"
	StateExecuting             State = "executing"
	StateCompleted             State = "completed"
	StateFailed                State = "failed"
)

// Dispatch is the outcome of dispatching one model response.
type Dispatch struct {
	State State
	// Trace lists every state visited, starting with StateAwaitingModelResponse.
	Trace       []State
	Text        string
	Call        *model.FunctionCall
	Declaration *FunctionDeclaration
	Arguments   Arguments
	Result      *model.FunctionResult
	Err         error
}

// PlainText reports whether the model answered without proposing a call.
func (d *Dispatch) PlainText() bool {
	return d.Call == nil && d.State == StateCompleted
}

func (d *Dispatch) transition(s State) {
	d.State = s
	d.Trace = append(d.Trace, s)
}

func (d *Dispatch) fail(err error) (*Dispatch, error) {
	d.Err = err
	d.transition(StateFailed)
	return d, err
}

// Dispatcher validates function-call proposals against a Registry and executes them.
type Dispatcher struct {
	registry *Registry
	opts     dispatcherOptions
	tracer   trace.Tracer
}

func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	o := newDispatcherOptions(opts)
	return &Dispatcher{
		registry: registry,
		opts:     o,
		tracer:   o.tracerProvider.Tracer(instrumentationName),
	}
}

// Dispatch runs the state machine for resp. A response without a proposal
// completes immediately with its text. Otherwise the proposal is looked up,
// validated and executed exactly once. On failure both the Dispatch (in
// StateFailed) and the error are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, resp ModelResponse) (dp *Dispatch, err error) {
	dp = &Dispatch{}
	dp.transition(StateAwaitingModelResponse)

	if !resp.HasFunctionCall() {
		dp.transition(StatePlainText)
		dp.Text = resp.Text
		dp.transition(StateCompleted)
		return dp, nil
	}

	call := *resp.FunctionCall
	dp.Call = &call
	dp.transition(StateCallProposed)

	ctx, span := d.tracer.Start(ctx, "agent.Dispatch", trace.WithAttributes(
		attribute.String("function.name", call.Name),
	))
	defer func() {
		span.SetAttributes(attribute.String("dispatch.state", string(dp.State)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(KindOf(err)))
		}
		span.End()
	}()

	d.opts.logger.InfoContext(ctx, "function call", "function", call.Name, "arguments", call.Arguments)

	fd, err := d.registry.Lookup(call.Name)
	if err != nil {
		return d.failed(ctx, dp, err)
	}
	dp.Declaration = fd

	dp.transition(StateValidating)
	args, err := ParseArguments(fd, call.Arguments)
	if err != nil {
		return d.failed(ctx, dp, err)
	}
	dp.Arguments = args

	dp.transition(StateExecuting)
	values, err := d.execute(ctx, fd, args)
	if err != nil {
		return d.failed(ctx, dp, &Error{Kind: ErrExecution, Function: fd.Name, Err: err})
	}

	dp.Result = &model.FunctionResult{
		Name:        fd.Name,
		Values:      values,
		GeneratedAt: d.opts.now(),
	}
	dp.transition(StateCompleted)

	return dp, nil
}

func (d *Dispatcher) failed(ctx context.Context, dp *Dispatch, err error) (*Dispatch, error) {
	d.opts.logger.WarnContext(ctx, "function call failed", "function", dp.Call.Name, "kind", string(KindOf(err)), "error", err)
	return dp.fail(err)
}

type fetchOutcome struct {
	values map[string]any
	err    error
}

// execute runs the fetcher in its own goroutine so an abandoned request
// returns as soon as ctx is done. A late result is dropped.
func (d *Dispatcher) execute(ctx context.Context, fd *FunctionDeclaration, args Arguments) (map[string]any, error) {
	if d.opts.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.fetchTimeout)
		defer cancel()
	}

	done := make(chan fetchOutcome, 1)
	go func() {
		var out fetchOutcome
		defer func() {
			if p := recover(); p != nil {
				out = fetchOutcome{err: &panicError{p: p}}
			}
			done <- out
		}()
		out.values, out.err = fd.Fetcher.Fetch(ctx, args)
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		return checkResult(fd, out.values)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func checkResult(fd *FunctionDeclaration, values map[string]any) (map[string]any, error) {
	if values == nil {
		return nil, fmt.Errorf("%w: fetcher returned no data", ErrMalformedResult)
	}
	if fd.response != nil {
		if err := fd.response.Validate(values); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResult, err)
		}
	}
	return values, nil
}
