package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m2tx/function_calling/internal/model"
	"github.com/m2tx/function_calling/internal/repository"
)

// Agent runs one request end to end: model completion, dispatch, synthesis.
type Agent struct {
	model             ModelService
	registry          *Registry
	dispatcher        *Dispatcher
	synthesizer       Synthesizer
	systemInstruction string
	repository        repository.DispatchRepository
	logger            *slog.Logger
	newID             func() string
}

// Answer is the result of a successful request.
type Answer struct {
	DispatchID   string
	Text         string
	State        State
	FunctionCall *model.FunctionCall
	Arguments    Arguments
	Result       *model.FunctionResult
}

func New(m ModelService, registry *Registry, opts ...Option) *Agent {
	a := &Agent{
		model:    m,
		registry: registry,
		logger:   slog.Default(),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.dispatcher == nil {
		a.dispatcher = NewDispatcher(registry, WithLogger(a.logger))
	}
	if a.synthesizer == nil {
		a.synthesizer = NewTemplateSynthesizer()
	}
	return a
}

// Functions returns the registered declarations in registration order.
func (a *Agent) Functions() []*FunctionDeclaration {
	return a.registry.Describe()
}

// Send asks the model about prompt, executes a proposed function call and
// returns the synthesized answer. Any failure is returned as an error; no
// answer text is produced for a failed dispatch.
func (a *Agent) Send(ctx context.Context, prompt string) (*Answer, error) {
	record := &model.DispatchRecord{
		ID:        a.newID(),
		Query:     prompt,
		State:     string(StateAwaitingModelResponse),
		CreatedAt: time.Now().UTC(),
	}
	defer a.journal(ctx, record)

	resp, err := a.model.Complete(ctx, ModelRequest{
		SystemInstruction: a.systemInstruction,
		UserMessage:       prompt,
		Functions:         a.registry.Describe(),
	})
	if err != nil {
		err = &Error{Kind: ErrModelService, Err: err}
		failRecord(record, err)
		return nil, err
	}

	dp, err := a.dispatcher.Dispatch(ctx, resp)
	fillRecord(record, dp)
	if err != nil {
		failRecord(record, err)
		return nil, err
	}

	answer := &Answer{
		DispatchID:   record.ID,
		State:        dp.State,
		FunctionCall: dp.Call,
		Arguments:    dp.Arguments,
		Result:       dp.Result,
	}

	if dp.PlainText() {
		answer.Text = dp.Text
		record.Answer = answer.Text
		return answer, nil
	}

	answer.Text, err = a.synthesizer.Synthesize(ctx, SynthesisInput{
		Query:       prompt,
		Declaration: dp.Declaration,
		Call:        dp.Call,
		Arguments:   dp.Arguments,
		Result:      dp.Result,
	})
	if err != nil {
		failRecord(record, err)
		return nil, err
	}
	record.Answer = answer.Text

	return answer, nil
}

// Dispatch returns the journal record for id, or nil when there is none.
func (a *Agent) Dispatch(ctx context.Context, id string) (*model.DispatchRecord, error) {
	if a.repository == nil {
		return nil, nil
	}
	return a.repository.Load(ctx, id)
}

// DeleteDispatch removes the journal record for id.
func (a *Agent) DeleteDispatch(ctx context.Context, id string) error {
	if a.repository == nil {
		return nil
	}
	return a.repository.Delete(ctx, id)
}

func (a *Agent) journal(ctx context.Context, record *model.DispatchRecord) {
	if a.repository == nil {
		return
	}
	// The journal must outlive a cancelled request.
	if err := a.repository.Save(context.WithoutCancel(ctx), *record); err != nil {
		a.logger.WarnContext(ctx, "journal save failed", "dispatch_id", record.ID, "error", err)
	}
}

func fillRecord(record *model.DispatchRecord, dp *Dispatch) {
	if dp == nil {
		return
	}
	record.State = string(dp.State)
	record.FunctionCall = dp.Call
	record.Arguments = dp.Arguments
	record.Result = dp.Result
}

func failRecord(record *model.DispatchRecord, err error) {
	record.State = string(StateFailed)
	record.ErrorKind = string(KindOf(err))
	record.Error = err.Error()
}
