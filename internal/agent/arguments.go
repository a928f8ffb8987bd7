package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"
)

// maxExactInt is the largest integer a float64 holds without rounding.
const maxExactInt = 1 << 53

// Arguments are the parsed and validated arguments of a function call.
type Arguments map[string]any

// String returns the named argument when it holds a string.
func (a Arguments) String(name string) (string, bool) {
	s, ok := a[name].(string)
	return s, ok
}

// StringOr returns the named string argument or def when absent.
func (a Arguments) StringOr(name, def string) string {
	if s, ok := a.String(name); ok && s != "" {
		return s
	}
	return def
}

// Int returns the named argument when it holds a whole JSON number.
func (a Arguments) Int(name string) (int, bool) {
	f, ok := a[name].(float64)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// IntOr returns the named integer argument or def when absent.
func (a Arguments) IntOr(name string, def int) int {
	if n, ok := a.Int(name); ok {
		return n
	}
	return def
}

// ParseArguments deserializes argumentsJSON and validates it against the
// parameter schema of fd. Checks run in a fixed order: JSON syntax, required
// parameters, enum membership, then the remaining schema constraints.
// Declarations that were never registered are validated the same way.
// It has no side effects.
func ParseArguments(fd *FunctionDeclaration, argumentsJSON string) (Arguments, error) {
	if strings.TrimSpace(argumentsJSON) == "" {
		argumentsJSON = "{}"
	}

	v, err := decodeJSON(argumentsJSON)
	if err != nil {
		return nil, &Error{Kind: ErrArgumentParse, Function: fd.Name, Reason: "arguments are not valid JSON", Err: err}
	}

	raw, ok := v.(map[string]any)
	if !ok {
		return nil, &Error{Kind: ErrArgumentParse, Function: fd.Name, Reason: fmt.Sprintf("arguments must be a JSON object, got %s", jsonKind(v))}
	}

	args := make(map[string]any, len(raw))
	for name, val := range raw {
		n, err := normalizeNumbers(val)
		if err != nil {
			return nil, &Error{Kind: ErrInvalidArgument, Function: fd.Name, Argument: name, Err: err}
		}
		args[name] = n
	}

	params := fd.Parameters
	if params == nil {
		return Arguments(args), nil
	}

	var missing []string
	for _, name := range params.Required {
		if val, present := args[name]; !present || val == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &Error{Kind: ErrMissingArgument, Function: fd.Name, Argument: missing[0], Reason: "missing required: " + strings.Join(missing, ", ")}
	}

	for _, name := range propertyOrder(params) {
		prop := params.Properties[name]
		val, present := args[name]
		if prop == nil || len(prop.Enum) == 0 || !present || val == nil {
			continue
		}
		if !slices.ContainsFunc(prop.Enum, func(allowed any) bool { return enumEqual(allowed, val) }) {
			return nil, &Error{Kind: ErrInvalidEnumValue, Function: fd.Name, Argument: name, Reason: fmt.Sprintf("%v is not one of %v", val, prop.Enum)}
		}
	}

	resolved := fd.parameters
	if resolved == nil {
		resolved, err = params.Resolve(nil)
		if err != nil {
			return nil, &Error{Kind: ErrInvalidSchema, Function: fd.Name, Reason: "parameters", Err: err}
		}
	}
	if err := resolved.Validate(args); err != nil {
		return nil, &Error{Kind: ErrInvalidArgument, Function: fd.Name, Err: err}
	}

	return Arguments(args), nil
}

// decodeJSON decodes a single JSON value, keeping numbers as json.Number.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after the top-level value")
	}
	return v, nil
}

// normalizeNumbers replaces every json.Number in v with a float64. Integers
// that a float64 cannot hold exactly are rejected instead of rounded.
func normalizeNumbers(v any) (any, error) {
	switch v := v.(type) {
	case json.Number:
		return toFloat(v)
	case map[string]any:
		for k, e := range v {
			n, err := normalizeNumbers(e)
			if err != nil {
				return nil, err
			}
			v[k] = n
		}
		return v, nil
	case []any:
		for i, e := range v {
			n, err := normalizeNumbers(e)
			if err != nil {
				return nil, err
			}
			v[i] = n
		}
		return v, nil
	}
	return v, nil
}

func toFloat(n json.Number) (float64, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		i, err := n.Int64()
		if err != nil || i > maxExactInt || i < -maxExactInt {
			return 0, fmt.Errorf("integer %s is outside ±2^53 and would lose precision", s)
		}
		return float64(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("number %s is out of range", s)
	}
	return f, nil
}

// enumEqual compares a declared enum value with a decoded JSON value.
// Declared integers match the float64 produced by encoding/json.
func enumEqual(allowed, val any) bool {
	if reflect.DeepEqual(allowed, val) {
		return true
	}
	f, ok := val.(float64)
	if !ok {
		return false
	}
	switch a := allowed.(type) {
	case int:
		return float64(a) == f
	case int64:
		return float64(a) == f
	case float32:
		return float64(a) == f
	}
	return false
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64, json.Number:
		return "number"
	case bool:
		return "boolean"
	}
	return "object"
}
