package agent_test

import (
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m2tx/function_calling/internal/agent"
	"github.com/m2tx/function_calling/internal/functions"
)

func TestRegistry_DescribeKeepsRegistrationOrder(t *testing.T) {
	reg := agent.NewRegistry()
	reg.MustRegister(
		functions.CreateWeatherFunctionDeclaration(functions.NewStaticWeather()),
		pingDeclaration("ping", &countingFetcher{}),
		pingDeclaration("alpha", &countingFetcher{}),
	)

	var names []string
	for _, fd := range reg.Describe() {
		names = append(names, fd.Name)
	}
	assert.Equal(t, []string{"findWeather", "ping", "alpha"}, names)
	assert.Equal(t, 3, reg.Len())

	for _, name := range names {
		fd, err := reg.Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, fd.Name)
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(pingDeclaration("ping", &countingFetcher{})))

	err := reg.Register(pingDeclaration("ping", &countingFetcher{}))
	require.ErrorIs(t, err, agent.ErrDuplicateFunction)
	assert.Equal(t, agent.ErrDuplicateFunction, agent.KindOf(err))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_LookupUnknown(t *testing.T) {
	_, err := agent.NewRegistry().Lookup("nope")
	require.ErrorIs(t, err, agent.ErrUnknownFunction)

	var e *agent.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "nope", e.Function)
}

func TestRegistry_InvalidDeclarations(t *testing.T) {
	tests := []struct {
		name string
		fd   *agent.FunctionDeclaration
	}{
		{name: "nil", fd: nil},
		{name: "empty name", fd: pingDeclaration("", &countingFetcher{})},
		{name: "no fetcher", fd: &agent.FunctionDeclaration{Name: "x"}},
		{
			name: "non-object parameters",
			fd: &agent.FunctionDeclaration{
				Name:       "x",
				Parameters: &jsonschema.Schema{Type: "string"},
				Fetcher:    &countingFetcher{},
			},
		},
		{
			name: "undeclared required parameter",
			fd: &agent.FunctionDeclaration{
				Name:       "x",
				Parameters: objectSchema([]string{"city"}, map[string]*jsonschema.Schema{"location": {Type: "string"}}),
				Fetcher:    &countingFetcher{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := agent.NewRegistry()
			err := reg.Register(tt.fd)
			require.ErrorIs(t, err, agent.ErrInvalidSchema)
			assert.Zero(t, reg.Len())
		})
	}
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	reg := agent.NewRegistry()
	reg.MustRegister(pingDeclaration("ping", &countingFetcher{}))
	assert.Panics(t, func() {
		reg.MustRegister(pingDeclaration("ping", &countingFetcher{}))
	})
}

func TestRegistry_CopiesSchemas(t *testing.T) {
	fd := functions.CreateWeatherFunctionDeclaration(functions.NewStaticWeather())
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(fd))

	fd.Parameters.Properties["unit"].Enum = []any{"K"}
	fd.Parameters.Required = append(fd.Parameters.Required, "unit")

	registered, err := reg.Lookup("findWeather")
	require.NoError(t, err)
	assert.Equal(t, []any{"C", "F"}, registered.Parameters.Properties["unit"].Enum)
	assert.Equal(t, []string{"location"}, registered.Parameters.Required)

	_, err = agent.ParseArguments(registered, `{"location":"Paris","unit":"C"}`)
	require.NoError(t, err)
}

func TestRegistry_NilParametersMeansNoArguments(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(pingDeclaration("ping", &countingFetcher{})))

	fd, err := reg.Lookup("ping")
	require.NoError(t, err)
	require.NotNil(t, fd.Parameters)
	assert.Equal(t, "object", fd.Parameters.Type)

	args, err := agent.ParseArguments(fd, "")
	require.NoError(t, err)
	assert.Empty(t, args)
}
