package agent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m2tx/function_calling/internal/agent"
	"github.com/m2tx/function_calling/internal/functions"
	"github.com/m2tx/function_calling/internal/model"
)

func weatherInput() agent.SynthesisInput {
	return agent.SynthesisInput{
		Query: "What's the weather in New York, C?",
		Call:  &model.FunctionCall{Name: "findWeather", Arguments: `{"location":"New York","unit":"C"}`},
		Arguments: agent.Arguments{
			"location": "New York",
			"unit":     "C",
		},
		Result: &model.FunctionResult{
			Name: "findWeather",
			Values: map[string]any{
				"location":    "New York",
				"temperature": "22°C",
				"condition":   "Partly cloudy",
				"humidity":    "65%",
				"windSpeed":   "8 km/h",
			},
			GeneratedAt: time.Date(2025, 10, 16, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestTemplateSynthesizer_Template(t *testing.T) {
	s := agent.NewTemplateSynthesizer()
	require.NoError(t, s.AddTemplate(functions.WeatherFunctionName, functions.WeatherAnswerTemplate))

	text, err := s.Synthesize(context.Background(), weatherInput())
	require.NoError(t, err)
	assert.Equal(t, "The current weather in New York is 22°C with Partly cloudy conditions. "+
		"The humidity is 65% and wind speed is 8 km/h.", text)
}

func TestTemplateSynthesizer_QueryAndArgs(t *testing.T) {
	s := agent.NewTemplateSynthesizer()
	require.NoError(t, s.AddTemplate("findWeather", `{{.query}} -> {{.args.unit}}`))

	text, err := s.Synthesize(context.Background(), weatherInput())
	require.NoError(t, err)
	assert.Equal(t, "What's the weather in New York, C? -> C", text)
}

func TestTemplateSynthesizer_ResultFieldsWin(t *testing.T) {
	s := agent.NewTemplateSynthesizer()
	require.NoError(t, s.AddTemplate("searchDocs", `{{.query}}: {{.count}} ({{.args.query}})`))

	text, err := s.Synthesize(context.Background(), agent.SynthesisInput{
		Query:     "search docs for refund policy",
		Arguments: agent.Arguments{"query": "refund policy"},
		Result: &model.FunctionResult{
			Name:   "searchDocs",
			Values: map[string]any{"query": "refund", "count": 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "refund: 2 (refund policy)", text)
}

func TestTemplateSynthesizer_Generic(t *testing.T) {
	text, err := agent.NewTemplateSynthesizer().Synthesize(context.Background(), weatherInput())
	require.NoError(t, err)
	assert.Equal(t, "findWeather: condition=Partly cloudy, humidity=65%, location=New York, temperature=22°C, windSpeed=8 km/h", text)
}

func TestTemplateSynthesizer_Errors(t *testing.T) {
	s := agent.NewTemplateSynthesizer()
	require.Error(t, s.AddTemplate("broken", "{{.location"))

	require.NoError(t, s.AddTemplate("findWeather", "{{.pressure}}"))
	_, err := s.Synthesize(context.Background(), weatherInput())
	assert.ErrorIs(t, err, agent.ErrSynthesis)

	_, err = s.Synthesize(context.Background(), agent.SynthesisInput{Query: "x"})
	assert.ErrorIs(t, err, agent.ErrSynthesis)
}

func TestModelSynthesizer(t *testing.T) {
	m := &stubModel{responses: []agent.ModelResponse{{Text: "It's 22°C and partly cloudy in New York."}}}
	s := agent.NewModelSynthesizer(m, "be brief")

	in := weatherInput()
	text, err := s.Synthesize(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "It's 22°C and partly cloudy in New York.", text)

	require.Len(t, m.requests, 1)
	req := m.requests[0]
	assert.Equal(t, "be brief", req.SystemInstruction)
	assert.Equal(t, in.Query, req.UserMessage)
	assert.Empty(t, req.Functions)
	assert.Same(t, in.Call, req.FunctionCall)
	assert.Same(t, in.Result, req.FunctionResult)
}

func TestModelSynthesizer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		model *stubModel
		kind  agent.Kind
	}{
		{name: "model error", model: &stubModel{err: errors.New("quota exceeded")}, kind: agent.ErrModelService},
		{name: "empty text", model: &stubModel{responses: []agent.ModelResponse{{Text: "  "}}}, kind: agent.ErrSynthesis},
		{name: "further call", model: &stubModel{responses: []agent.ModelResponse{proposal("findWeather", `{}`)}}, kind: agent.ErrSynthesis},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agent.NewModelSynthesizer(tt.model, "").Synthesize(context.Background(), weatherInput())
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}
