// Package azureopenai implements agent.ModelService with Azure OpenAI chat completions.
package azureopenai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/azure"
	"github.com/openai/openai-go/v2/option"

	"github.com/m2tx/function_calling/internal/agent"
	"github.com/m2tx/function_calling/internal/model"
)

type Service struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewClient builds an Azure OpenAI client. An empty apiKey falls back to the
// default Azure credential chain (environment, managed identity, CLI).
func NewClient(endpoint, apiVersion, apiKey string) (openai.Client, error) {
	opts := []option.RequestOption{
		azure.WithEndpoint(endpoint, apiVersion),
	}

	if apiKey != "" {
		opts = append(opts, azure.WithAPIKey(apiKey))
	} else {
		credential, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return openai.Client{}, fmt.Errorf("azureopenai: default credential: %w", err)
		}
		opts = append(opts, azure.WithTokenCredential(credential))
	}

	return openai.NewClient(opts...), nil
}

// New creates a Service for the given deployment.
func New(client openai.Client, deployment string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: client,
		model:  deployment,
		logger: logger,
	}
}

func (s *Service) Complete(ctx context.Context, req agent.ModelRequest) (agent.ModelResponse, error) {
	params, err := Params(s.model, req)
	if err != nil {
		return agent.ModelResponse{}, err
	}

	completion, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return agent.ModelResponse{}, fmt.Errorf("azureopenai: chat completion: %w", err)
	}

	out, extra, err := ParseCompletion(completion)
	if err != nil {
		return agent.ModelResponse{}, err
	}
	if extra > 0 {
		s.logger.WarnContext(ctx, "ignoring additional function calls", "function", out.FunctionCall.Name, "ignored", extra)
	}

	return out, nil
}

// Params builds the chat completion request for req.
func Params(deployment string, req agent.ModelRequest) (openai.ChatCompletionNewParams, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 4)

	if req.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(req.SystemInstruction))
	}
	messages = append(messages, openai.UserMessage(req.UserMessage))

	if req.FunctionCall != nil && req.FunctionResult != nil {
		callID := req.FunctionCall.ID
		if callID == "" {
			callID = "call_" + req.FunctionCall.Name
		}

		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				ToolCalls: []openai.ChatCompletionMessageToolCallUnionParam{
					{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID:   callID,
							Type: "function",
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      req.FunctionCall.Name,
								Arguments: req.FunctionCall.Arguments,
							},
						},
					},
				},
			},
		})

		result, err := json.Marshal(req.FunctionResult.Values)
		if err != nil {
			return openai.ChatCompletionNewParams{}, fmt.Errorf("azureopenai: encode function result: %w", err)
		}
		messages = append(messages, openai.ToolMessage(string(result), callID))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(deployment),
		Messages: messages,
	}

	if len(req.Functions) > 0 {
		tools, err := Tools(req.Functions)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		params.Tools = tools
	}

	return params, nil
}

// Tools converts declarations into function tools, keeping their order.
func Tools(fds []*agent.FunctionDeclaration) ([]openai.ChatCompletionToolUnionParam, error) {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(fds))

	for _, fd := range fds {
		parameters, err := schemaMap(fd)
		if err != nil {
			return nil, err
		}

		tools = append(tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: openai.FunctionDefinitionParam{
					Name:        fd.Name,
					Description: openai.String(fd.Description),
					Parameters:  parameters,
				},
			},
		})
	}

	return tools, nil
}

func schemaMap(fd *agent.FunctionDeclaration) (openai.FunctionParameters, error) {
	if fd.Parameters == nil {
		return openai.FunctionParameters{"type": "object", "properties": map[string]any{}}, nil
	}

	data, err := json.Marshal(fd.Parameters)
	if err != nil {
		return nil, fmt.Errorf("azureopenai: encode parameters of %q: %w", fd.Name, err)
	}

	var m openai.FunctionParameters
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("azureopenai: decode parameters of %q: %w", fd.Name, err)
	}

	return m, nil
}

var errNoChoices = errors.New("azureopenai: completion has no choices")

// ParseCompletion extracts the first tool call of the first choice, or its
// text when there is none. It also reports how many further tool calls were ignored.
func ParseCompletion(completion *openai.ChatCompletion) (agent.ModelResponse, int, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return agent.ModelResponse{}, 0, errNoChoices
	}

	message := completion.Choices[0].Message
	if len(message.ToolCalls) == 0 {
		return agent.ModelResponse{Text: message.Content}, 0, nil
	}

	toolCall := message.ToolCalls[0]
	return agent.ModelResponse{
		FunctionCall: &model.FunctionCall{
			ID:        toolCall.ID,
			Name:      toolCall.Function.Name,
			Arguments: toolCall.Function.Arguments,
		},
	}, len(message.ToolCalls) - 1, nil
}
