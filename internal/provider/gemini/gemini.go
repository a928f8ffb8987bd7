// Package gemini implements agent.ModelService on top of the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/m2tx/function_calling/internal/agent"
	"github.com/m2tx/function_calling/internal/model"
)

type Service struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

func New(client *genai.Client, model string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: client,
		model:  model,
		logger: logger,
	}
}

func (s *Service) Complete(ctx context.Context, req agent.ModelRequest) (agent.ModelResponse, error) {
	contents, err := Contents(req)
	if err != nil {
		return agent.ModelResponse{}, err
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, Config(req))
	if err != nil {
		return agent.ModelResponse{}, fmt.Errorf("gemini: generate content: %w", err)
	}

	out, extra := ParseResponse(resp)
	if extra > 0 {
		s.logger.WarnContext(ctx, "ignoring additional function calls", "function", out.FunctionCall.Name, "ignored", extra)
	}

	return out, nil
}

// Config builds the generation config: system instruction and the offered functions.
func Config(req agent.ModelRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}

	if len(req.Functions) > 0 {
		config.Tools = Tools(req.Functions)
	}

	return config
}

// Tools converts declarations into a single Gemini tool, keeping their order.
func Tools(fds []*agent.FunctionDeclaration) []*genai.Tool {
	functions := make([]*genai.FunctionDeclaration, 0, len(fds))

	for _, fd := range fds {
		gfd := &genai.FunctionDeclaration{
			Name:                 fd.Name,
			Description:          fd.Description,
			ParametersJsonSchema: fd.Parameters,
		}
		if fd.ResponseSchema != nil {
			gfd.ResponseJsonSchema = fd.ResponseSchema
		}
		functions = append(functions, gfd)
	}

	return []*genai.Tool{
		{
			FunctionDeclarations: functions,
		},
	}
}

// Contents builds the conversation for req. A follow-up request replays the
// model's function call and answers it with the function result.
func Contents(req agent.ModelRequest) ([]*genai.Content, error) {
	contents := []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: req.UserMessage}},
		},
	}

	if req.FunctionCall == nil || req.FunctionResult == nil {
		return contents, nil
	}

	var args map[string]any
	if strings.TrimSpace(req.FunctionCall.Arguments) != "" {
		if err := json.Unmarshal([]byte(req.FunctionCall.Arguments), &args); err != nil {
			return nil, fmt.Errorf("gemini: decode function call arguments: %w", err)
		}
	}

	contents = append(contents,
		&genai.Content{
			Role: genai.RoleModel,
			Parts: []*genai.Part{
				{
					FunctionCall: &genai.FunctionCall{
						ID:   req.FunctionCall.ID,
						Name: req.FunctionCall.Name,
						Args: args,
					},
				},
			},
		},
		&genai.Content{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				{
					FunctionResponse: &genai.FunctionResponse{
						ID:       req.FunctionCall.ID,
						Name:     req.FunctionCall.Name,
						Response: req.FunctionResult.Values,
					},
				},
			},
		},
	)

	return contents, nil
}

// ParseResponse extracts the first function call of resp, or its text when
// there is none. It also reports how many further function calls were ignored.
func ParseResponse(resp *genai.GenerateContentResponse) (agent.ModelResponse, int) {
	var (
		out   agent.ModelResponse
		text  strings.Builder
		extra int
	)

	if resp == nil {
		return out, 0
	}

	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}

			if part.FunctionCall != nil {
				if out.FunctionCall != nil {
					extra++
					continue
				}
				out.FunctionCall = toFunctionCall(part.FunctionCall)
				continue
			}

			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
		}

		// Only the first candidate is considered.
		break
	}

	if out.FunctionCall == nil {
		out.Text = text.String()
	}

	return out, extra
}

func toFunctionCall(fc *genai.FunctionCall) *model.FunctionCall {
	args := "{}"
	if fc.Args != nil {
		if data, err := json.Marshal(fc.Args); err == nil {
			args = string(data)
		}
	}
	return &model.FunctionCall{
		ID:        fc.ID,
		Name:      fc.Name,
		Arguments: args,
	}
}
