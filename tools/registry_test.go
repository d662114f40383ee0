package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRejectsDuplicatesAndBadSchemas(t *testing.T) {
	r := NewRegistry()
	ok := &Tool{Name: "t", Handler: func(context.Context, map[string]any) (map[string]any, error) { return nil, nil }}
	require.NoError(t, r.Register(ok))
	require.Error(t, r.Register(ok))
	require.Error(t, r.Register(&Tool{Name: "x"}))
	require.Error(t, r.Register(&Tool{
		Name:    "bad",
		Handler: ok.Handler,
		Schema:  json.RawMessage(`{"type":`),
	}))
}

func TestValidateArgsEnforcesSchema(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Tool{
		Name:    "echo",
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) { return args, nil },
		Schema:  json.RawMessage(`{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"],"additionalProperties":false}`),
	}))

	require.NoError(t, r.ValidateArgs("echo", map[string]any{"n": float64(3)}))

	err := r.ValidateArgs("echo", map[string]any{"n": "three"})
	require.ErrorIs(t, err, ErrInvalidArguments)

	err = r.ValidateArgs("echo", map[string]any{})
	require.ErrorIs(t, err, ErrInvalidArguments)

	err = r.ValidateArgs("nope", nil)
	require.ErrorIs(t, err, ErrUnknownTool)
}

func TestSchemalessToolAcceptsAnything(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Tool{
		Name:    "free",
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) { return args, nil },
	}))
	require.NoError(t, r.ValidateArgs("free", map[string]any{"anything": true}))
}

func TestExecuteRunsHandler(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Tool{
		Name: "double",
		Handler: func(_ context.Context, args map[string]any) (map[string]any, error) {
			n := args["n"].(float64)
			return map[string]any{"n": n * 2}, nil
		},
	}))
	out, err := r.Execute(context.Background(), "double", map[string]any{"n": float64(4)})
	require.NoError(t, err)
	assert.Equal(t, float64(8), out["n"])

	_, err = r.Execute(context.Background(), "missing", nil)
	require.ErrorIs(t, err, ErrUnknownTool)
}

func TestNamesAndDefinitionsAreSorted(t *testing.T) {
	r := NewRegistry()
	h := func(context.Context, map[string]any) (map[string]any, error) { return nil, nil }
	require.NoError(t, r.Register(&Tool{Name: "zeta", Handler: h}))
	require.NoError(t, r.Register(&Tool{Name: "alpha", Handler: h, Description: "first"}))

	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())
	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "first", defs[0].Description)
}
