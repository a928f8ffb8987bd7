package agent

import (
	"context"

	"github.com/m2tx/function_calling/internal/model"
)

// ModelService is the language-model completion boundary.
type ModelService interface {
	Complete(ctx context.Context, req ModelRequest) (ModelResponse, error)
}

// ModelRequest is a single completion request.
// FunctionCall and FunctionResult are only set for a follow-up request that
// asks the model to phrase the answer from an executed function.
type ModelRequest struct {
	SystemInstruction string
	UserMessage       string
	Functions         []*FunctionDeclaration
	FunctionCall      *model.FunctionCall
	FunctionResult    *model.FunctionResult
}

// ModelResponse carries either text or a function-call proposal.
type ModelResponse struct {
	Text         string
	FunctionCall *model.FunctionCall
}

// HasFunctionCall reports whether the model proposed a function call.
// A proposal with an empty name still counts; it fails lookup.
func (r ModelResponse) HasFunctionCall() bool {
	return r.FunctionCall != nil
}
