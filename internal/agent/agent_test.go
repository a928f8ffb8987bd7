package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m2tx/function_calling/internal/agent"
	"github.com/m2tx/function_calling/internal/functions"
	"github.com/m2tx/function_calling/internal/model"
	"github.com/m2tx/function_calling/internal/provider/scripted"
	"github.com/m2tx/function_calling/internal/repository"
)

type failingRepository struct {
	repository.DispatchRepository
}

func (failingRepository) Save(context.Context, model.DispatchRecord) error {
	return errors.New("disk full")
}

func newWeatherAgent(t *testing.T, m agent.ModelService, opts ...agent.Option) *agent.Agent {
	t.Helper()
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(functions.CreateWeatherFunctionDeclaration(functions.NewStaticWeather())))

	synth := agent.NewTemplateSynthesizer()
	require.NoError(t, synth.AddTemplate(functions.WeatherFunctionName, functions.WeatherAnswerTemplate))

	base := []agent.Option{
		agent.WithAgentLogger(quiet),
		agent.WithSynthesizer(synth),
		agent.WithIDGenerator(func() string { return "dispatch-1" }),
	}
	return agent.New(m, reg, append(base, opts...)...)
}

func TestAgent_Send_WeatherEndToEnd(t *testing.T) {
	journal := repository.NewMemoryDispatchRepository(repository.DefaultMemoryCapacity)
	a := newWeatherAgent(t, scripted.New(scripted.WeatherRule()), agent.WithRepository(journal))

	answer, err := a.Send(context.Background(), "What's the weather in New York, C?")
	require.NoError(t, err)

	assert.Equal(t, "dispatch-1", answer.DispatchID)
	assert.Equal(t, agent.StateCompleted, answer.State)
	for _, want := range []string{"New York", "22°C", "Partly cloudy", "65%", "8 km/h"} {
		assert.Contains(t, answer.Text, want)
	}
	require.NotNil(t, answer.FunctionCall)
	assert.Equal(t, "findWeather", answer.FunctionCall.Name)
	assert.Equal(t, agent.Arguments{"location": "New York", "unit": "C"}, answer.Arguments)

	record, err := a.Dispatch(context.Background(), "dispatch-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "completed", record.State)
	assert.Equal(t, answer.Text, record.Answer)
	assert.Equal(t, "What's the weather in New York, C?", record.Query)
	assert.Equal(t, "22°C", record.Result.Values["temperature"])
	assert.Empty(t, record.ErrorKind)

	require.NoError(t, a.DeleteDispatch(context.Background(), "dispatch-1"))
	record, err = a.Dispatch(context.Background(), "dispatch-1")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestAgent_Send_PlainText(t *testing.T) {
	m := &stubModel{responses: []agent.ModelResponse{{Text: "Hi there."}}}
	a := newWeatherAgent(t, m, agent.WithSystemInstruction("be helpful"))

	answer, err := a.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi there.", answer.Text)
	assert.Nil(t, answer.FunctionCall)

	require.Len(t, m.requests, 1)
	assert.Equal(t, "be helpful", m.requests[0].SystemInstruction)
	require.Len(t, m.requests[0].Functions, 1)
	assert.Equal(t, "findWeather", m.requests[0].Functions[0].Name)
}

func TestAgent_Send_FailureIsJournaled(t *testing.T) {
	journal := repository.NewMemoryDispatchRepository(repository.DefaultMemoryCapacity)
	m := &stubModel{responses: []agent.ModelResponse{proposal("findWeather", `{"unit":"C"}`)}}
	a := newWeatherAgent(t, m, agent.WithRepository(journal))

	answer, err := a.Send(context.Background(), "weather?")
	require.ErrorIs(t, err, agent.ErrMissingArgument)
	assert.Nil(t, answer)

	record, err := a.Dispatch(context.Background(), "dispatch-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "failed", record.State)
	assert.Equal(t, "missing_argument", record.ErrorKind)
	assert.Empty(t, record.Answer)
	require.NotNil(t, record.FunctionCall)
	assert.Equal(t, "findWeather", record.FunctionCall.Name)
}

func TestAgent_Send_ModelError(t *testing.T) {
	journal := repository.NewMemoryDispatchRepository(repository.DefaultMemoryCapacity)
	a := newWeatherAgent(t, &stubModel{err: errors.New("unavailable")}, agent.WithRepository(journal))

	_, err := a.Send(context.Background(), "What's the weather in New York, C?")
	require.ErrorIs(t, err, agent.ErrModelService)

	record, err := journal.Load(context.Background(), "dispatch-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "model_service", record.ErrorKind)
}

func TestAgent_Send_ModelMediated(t *testing.T) {
	m := scripted.New(scripted.WeatherRule())
	a := newWeatherAgent(t, m, agent.WithSynthesizer(agent.NewModelSynthesizer(m, "")))

	answer, err := a.Send(context.Background(), "What's the weather in New York, C?")
	require.NoError(t, err)
	assert.Contains(t, answer.Text, "According to findWeather")
	assert.Contains(t, answer.Text, "temperature is 22°C")
}

func TestAgent_Send_JournalFailureDoesNotFailRequest(t *testing.T) {
	a := newWeatherAgent(t, scripted.New(scripted.WeatherRule()), agent.WithRepository(failingRepository{}))

	answer, err := a.Send(context.Background(), "What's the weather in New York, C?")
	require.NoError(t, err)
	assert.Contains(t, answer.Text, "New York")
}

func TestAgent_WithoutRepository(t *testing.T) {
	a := newWeatherAgent(t, scripted.New())

	record, err := a.Dispatch(context.Background(), "any")
	require.NoError(t, err)
	assert.Nil(t, record)
	require.NoError(t, a.DeleteDispatch(context.Background(), "any"))

	assert.Len(t, a.Functions(), 1)
}
