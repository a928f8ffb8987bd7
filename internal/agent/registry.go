package agent

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// Fetcher performs the side-effecting lookup behind a declared function.
// Implementations must be idempotent for identical arguments and report
// failures wrapping ErrNetwork or ErrUpstream.
type Fetcher interface {
	Fetch(ctx context.Context, args Arguments) (map[string]any, error)
}

// FetchFunc adapts a plain function to Fetcher.
type FetchFunc func(ctx context.Context, args Arguments) (map[string]any, error)

func (f FetchFunc) Fetch(ctx context.Context, args Arguments) (map[string]any, error) {
	return f(ctx, args)
}

// FunctionDeclaration describes a callable function to the model and binds it
// to the Fetcher that executes it.
type FunctionDeclaration struct {
	Name        string
	Description string
	// Parameters must be an object schema. Nil means the function takes no arguments.
	Parameters *jsonschema.Schema
	// ResponseSchema is optional; when set, fetcher results are validated against it.
	ResponseSchema *jsonschema.Schema
	Fetcher        Fetcher

	parameters *jsonschema.Resolved
	response   *jsonschema.Resolved
}

// Registry holds function declarations in registration order.
type Registry struct {
	mu           sync.RWMutex
	declarations []*FunctionDeclaration
	byName       map[string]*FunctionDeclaration
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*FunctionDeclaration),
	}
}

// Register adds a declaration. The registry keeps its own copy of the schemas,
// so later changes to fd do not affect registered functions.
func (r *Registry) Register(fd *FunctionDeclaration) error {
	if fd == nil {
		return &Error{Kind: ErrInvalidSchema, Reason: "function declaration cannot be nil"}
	}

	if fd.Name == "" {
		return &Error{Kind: ErrInvalidSchema, Reason: "function name cannot be empty"}
	}

	if fd.Fetcher == nil {
		return &Error{Kind: ErrInvalidSchema, Function: fd.Name, Reason: "function fetcher cannot be nil"}
	}

	compiled, err := compileDeclaration(fd)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[fd.Name]; exists {
		return &Error{Kind: ErrDuplicateFunction, Function: fd.Name, Reason: "already registered"}
	}

	r.declarations = append(r.declarations, compiled)
	r.byName[compiled.Name] = compiled

	return nil
}

// MustRegister is Register for startup code where a bad declaration is a programming error.
func (r *Registry) MustRegister(fds ...*FunctionDeclaration) {
	for _, fd := range fds {
		if err := r.Register(fd); err != nil {
			panic(fmt.Sprintf("agent: register %v", err))
		}
	}
}

// Describe returns every declaration in registration order.
func (r *Registry) Describe() []*FunctionDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.declarations)
}

// Lookup returns the declaration registered under name.
func (r *Registry) Lookup(name string) (*FunctionDeclaration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fd, ok := r.byName[name]
	if !ok {
		return nil, &Error{Kind: ErrUnknownFunction, Function: name, Reason: "not registered"}
	}
	return fd, nil
}

// Len reports the number of registered functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.declarations)
}

func compileDeclaration(fd *FunctionDeclaration) (*FunctionDeclaration, error) {
	params := fd.Parameters.CloneSchemas()
	if params == nil {
		params = &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}}
	}

	if params.Type != "object" {
		return nil, &Error{Kind: ErrInvalidSchema, Function: fd.Name, Reason: fmt.Sprintf("parameters type must be \"object\", got %q", params.Type)}
	}

	for _, name := range params.Required {
		if _, ok := params.Properties[name]; !ok {
			return nil, &Error{Kind: ErrInvalidSchema, Function: fd.Name, Argument: name, Reason: "required parameter is not declared in properties"}
		}
	}

	params.Required = slices.Clone(params.Required)
	params.PropertyOrder = propertyOrder(params)

	resolvedParams, err := params.Resolve(nil)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidSchema, Function: fd.Name, Reason: "parameters", Err: err}
	}

	compiled := &FunctionDeclaration{
		Name:        fd.Name,
		Description: fd.Description,
		Parameters:  params,
		Fetcher:     fd.Fetcher,
		parameters:  resolvedParams,
	}

	if fd.ResponseSchema != nil {
		compiled.ResponseSchema = fd.ResponseSchema.CloneSchemas()
		compiled.response, err = compiled.ResponseSchema.Resolve(nil)
		if err != nil {
			return nil, &Error{Kind: ErrInvalidSchema, Function: fd.Name, Reason: "response schema", Err: err}
		}
	}

	return compiled, nil
}

// propertyOrder keeps an explicit PropertyOrder (or the required list when there
// is none) and appends every other declared property in sorted order.
func propertyOrder(s *jsonschema.Schema) []string {
	head := s.PropertyOrder
	if len(head) == 0 {
		head = s.Required
	}

	order := make([]string, 0, len(s.Properties))
	for _, name := range head {
		if _, ok := s.Properties[name]; ok && !slices.Contains(order, name) {
			order = append(order, name)
		}
	}

	rest := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		if !slices.Contains(order, name) {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)

	return append(order, rest...)
}
