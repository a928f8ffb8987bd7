// Package server exposes the broker over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/m2tx/function_calling/internal/agent"
	"github.com/m2tx/function_calling/internal/model"
)

// Broker is the part of agent.Agent the handlers need.
type Broker interface {
	Send(ctx context.Context, prompt string) (*agent.Answer, error)
	Functions() []*agent.FunctionDeclaration
	Dispatch(ctx context.Context, id string) (*model.DispatchRecord, error)
	DeleteDispatch(ctx context.Context, id string) error
}

type handler struct {
	broker Broker
	logger *slog.Logger
}

// New returns the router with every route registered.
func New(broker Broker, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{broker: broker, logger: logger}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.POST("/prompt", h.prompt)
	router.GET("/functions", h.functions)
	router.GET("/dispatches/:id", h.getDispatch)
	router.DELETE("/dispatches/:id", h.deleteDispatch)

	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

type promptRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

type promptResponse struct {
	DispatchID   string                `json:"dispatch_id"`
	Answer       string                `json:"answer"`
	State        string                `json:"state"`
	FunctionCall *model.FunctionCall   `json:"function_call,omitempty"`
	Arguments    map[string]any        `json:"arguments,omitempty"`
	Result       *model.FunctionResult `json:"result,omitempty"`
}

func (h *handler) prompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}

	answer, err := h.broker.Send(c.Request.Context(), req.Prompt)
	if err != nil {
		h.writeAgentError(c, err)
		return
	}

	c.JSON(http.StatusOK, promptResponse{
		DispatchID:   answer.DispatchID,
		Answer:       answer.Text,
		State:        string(answer.State),
		FunctionCall: answer.FunctionCall,
		Arguments:    answer.Arguments,
		Result:       answer.Result,
	})
}

type functionView struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
	Response    *jsonschema.Schema `json:"response,omitempty"`
}

func (h *handler) functions(c *gin.Context) {
	fds := h.broker.Functions()
	views := make([]functionView, 0, len(fds))
	for _, fd := range fds {
		views = append(views, functionView{
			Name:        fd.Name,
			Description: fd.Description,
			Parameters:  fd.Parameters,
			Response:    fd.ResponseSchema,
		})
	}
	c.JSON(http.StatusOK, gin.H{"functions": views})
}

func (h *handler) getDispatch(c *gin.Context) {
	record, err := h.broker.Dispatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "load dispatch", "id", c.Param("id"), "error", err)
		writeError(c, http.StatusInternalServerError, "journal", "could not load dispatch")
		return
	}
	if record == nil {
		writeError(c, http.StatusNotFound, "not_found", "dispatch not found")
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *handler) deleteDispatch(c *gin.Context) {
	if err := h.broker.DeleteDispatch(c.Request.Context(), c.Param("id")); err != nil {
		h.logger.ErrorContext(c.Request.Context(), "delete dispatch", "id", c.Param("id"), "error", err)
		writeError(c, http.StatusInternalServerError, "journal", "could not delete dispatch")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) writeAgentError(c *gin.Context, err error) {
	kind := agent.KindOf(err)
	status := StatusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "prompt failed", "kind", string(kind), "error", err)
	}
	if kind == "" {
		kind = "internal"
		if errors.Is(err, context.Canceled) {
			kind = "canceled"
		}
	}
	writeError(c, status, string(kind), err.Error())
}

// StatusFor maps an error kind to the HTTP status returned for it.
func StatusFor(kind agent.Kind) int {
	switch kind {
	case agent.ErrUnknownFunction, agent.ErrArgumentParse, agent.ErrMissingArgument,
		agent.ErrInvalidEnumValue, agent.ErrInvalidArgument:
		return http.StatusUnprocessableEntity
	case agent.ErrExecution, agent.ErrModelService, agent.ErrSynthesis:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, kind, message string) {
	c.JSON(status, gin.H{"error": gin.H{"kind": kind, "message": message}})
}
