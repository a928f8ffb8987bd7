package agent

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/template"

	"github.com/m2tx/function_calling/internal/model"
)

// SynthesisInput is everything a Synthesizer may use to phrase the final answer.
type SynthesisInput struct {
	Query       string
	Declaration *FunctionDeclaration
	Call        *model.FunctionCall
	Arguments   Arguments
	Result      *model.FunctionResult
}

// Synthesizer turns a function result into the final answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, in SynthesisInput) (string, error)
}

// TemplateSynthesizer renders answers locally from per-function templates.
// Templates see the result values as the root object plus .query and .args.
// A result field named query or args takes precedence over the prompt or the
// call arguments.
// Functions without a template get a generic listing of the result.
type TemplateSynthesizer struct {
	templates map[string]*template.Template
}

func NewTemplateSynthesizer() *TemplateSynthesizer {
	return &TemplateSynthesizer{templates: make(map[string]*template.Template)}
}

// AddTemplate parses text as the answer template for function name.
func (s *TemplateSynthesizer) AddTemplate(name, text string) error {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return fmt.Errorf("synthesizer: parse template %q: %w", name, err)
	}
	s.templates[name] = tmpl
	return nil
}

func (s *TemplateSynthesizer) Synthesize(_ context.Context, in SynthesisInput) (string, error) {
	if in.Result == nil {
		return "", &Error{Kind: ErrSynthesis, Reason: "no function result"}
	}

	tmpl, ok := s.templates[in.Result.Name]
	if !ok {
		return genericAnswer(in.Result), nil
	}

	data := make(map[string]any, len(in.Result.Values)+2)
	maps.Copy(data, in.Result.Values)
	if _, ok := data["query"]; !ok {
		data["query"] = in.Query
	}
	if _, ok := data["args"]; !ok {
		data["args"] = map[string]any(in.Arguments)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", &Error{Kind: ErrSynthesis, Function: in.Result.Name, Err: err}
	}
	return b.String(), nil
}

func genericAnswer(result *model.FunctionResult) string {
	keys := slices.Sorted(maps.Keys(result.Values))
	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", k, result.Values[k]))
	}
	return fmt.Sprintf("%s: %s", result.Name, strings.Join(fields, ", "))
}

// ModelSynthesizer sends the function result back to the model for a second
// completion and returns the model's text.
type ModelSynthesizer struct {
	model             ModelService
	systemInstruction string
}

func NewModelSynthesizer(m ModelService, systemInstruction string) *ModelSynthesizer {
	return &ModelSynthesizer{model: m, systemInstruction: systemInstruction}
}

func (s *ModelSynthesizer) Synthesize(ctx context.Context, in SynthesisInput) (string, error) {
	if in.Result == nil || in.Call == nil {
		return "", &Error{Kind: ErrSynthesis, Reason: "no function result"}
	}

	resp, err := s.model.Complete(ctx, ModelRequest{
		SystemInstruction: s.systemInstruction,
		UserMessage:       in.Query,
		FunctionCall:      in.Call,
		FunctionResult:    in.Result,
	})
	if err != nil {
		return "", &Error{Kind: ErrModelService, Function: in.Call.Name, Err: err}
	}

	if resp.HasFunctionCall() {
		return "", &Error{Kind: ErrSynthesis, Function: in.Call.Name, Reason: fmt.Sprintf("model proposed a further call to %q", resp.FunctionCall.Name)}
	}

	if strings.TrimSpace(resp.Text) == "" {
		return "", &Error{Kind: ErrSynthesis, Function: in.Call.Name, Reason: "model returned an empty answer"}
	}

	return resp.Text, nil
}
