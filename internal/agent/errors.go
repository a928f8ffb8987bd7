package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies dispatch failures. A Kind is itself an error so callers can
// match with errors.Is(err, agent.ErrMissingArgument).
type Kind string

const (
	ErrDuplicateFunction Kind = "duplicate_function"
	ErrUnknownFunction   Kind = "unknown_function"
	ErrInvalidSchema     Kind = "invalid_schema"
	ErrArgumentParse     Kind = "argument_parse"
	ErrMissingArgument   Kind = "missing_argument"
	ErrInvalidEnumValue  Kind = "invalid_enum_value"
	ErrInvalidArgument   Kind = "invalid_argument"
	ErrExecution         Kind = "execution"
	ErrModelService      Kind = "model_service"
	ErrSynthesis         Kind = "synthesis"
)

func (k Kind) Error() string { return strings.ReplaceAll(string(k), "_", " ") }

// Causes reported by fetchers. They surface wrapped inside an ErrExecution error.
var (
	ErrNetwork         = errors.New("network error")
	ErrUpstream        = errors.New("upstream error")
	ErrMalformedResult = errors.New("malformed function result")
)

// Error is the structured error returned by the registry, the dispatcher and the broker.
type Error struct {
	Kind     Kind
	Function string
	Argument string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Function != "" {
		fmt.Fprintf(&b, " (function %q", e.Function)
		if e.Argument != "" {
			fmt.Fprintf(&b, ", argument %q", e.Argument)
		}
		b.WriteString(")")
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the Kind carried by err, or "" if err is not a broker error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}

// panicError wraps a value recovered from a panicking fetcher.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
