package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumTool() *FunctionTool {
	return NewFunctionTool(
		"calculate_sum",
		"Calculate the sum of two numbers",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		},
		WithExample(map[string]any{"a": 1, "b": 2}),
	)
}

func TestFunctionTool(t *testing.T) {
	ctx := context.Background()

	t.Run("successful call", func(t *testing.T) {
		result, err := sumTool().Call(ctx, map[string]any{"a": 2.0, "b": 3.0})

		require.NoError(t, err)
		assert.Equal(t, 5.0, result)
	})

	t.Run("validation failure yields VALIDATION_ERROR", func(t *testing.T) {
		_, err := sumTool().Call(ctx, map[string]any{"a": 2.0})

		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
		assert.Equal(t, "calculate_sum", toolErr.Tool)
	})

	t.Run("execution failure yields EXECUTION_ERROR", func(t *testing.T) {
		failing := NewFunctionTool("broken", "Always fails", nil, func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("boom")
		})

		_, err := failing.Call(ctx, map[string]any{})

		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
		assert.Equal(t, "boom", toolErr.Message)
	})

	t.Run("tool errors pass through unchanged", func(t *testing.T) {
		custom := NewToolError("custom", "rate limited", "RATE_LIMITED")
		failing := NewFunctionTool("custom", "Returns a custom tool error", nil, func(_ context.Context, _ map[string]any) (any, error) {
			return nil, custom
		})

		_, err := failing.Call(ctx, map[string]any{})

		var toolErr *ToolError
		require.ErrorAs(t, err, &toolErr)
		assert.Same(t, custom, toolErr)
	})

	t.Run("describe sentinel short-circuits execution", func(t *testing.T) {
		result, err := sumTool().Call(ctx, map[string]any{DescribeSentinel: true})

		require.NoError(t, err)

		var described map[string]any
		require.NoError(t, json.Unmarshal([]byte(result.(string)), &described))
		assert.Equal(t, "calculate_sum", described["name"])
		assert.Equal(t, "Calculate the sum of two numbers", described["description"])
		assert.NotNil(t, described["example_call"])
	})

	t.Run("empty description falls back to generated one", func(t *testing.T) {
		tl := NewFunctionTool("nameless", "", nil, func(_ context.Context, _ map[string]any) (any, error) {
			return nil, nil
		})

		assert.Equal(t, "Function nameless", tl.Description())
	})
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	type weatherArgs struct {
		City string `json:"city" description:"City name"`
		Days int    `json:"days,omitempty"`
	}

	tl := NewFunctionToolFromStruct("get_weather", "Get the weather", weatherArgs{},
		func(_ context.Context, args map[string]any) (any, error) {
			return "sunny in " + args["city"].(string), nil
		},
	)

	schema := tl.Parameters()
	props := schema["properties"].(map[string]any)
	assert.Equal(t, "string", props["city"].(map[string]any)["type"])
	assert.Equal(t, []string{"city"}, schema["required"])

	_, err := tl.Call(context.Background(), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)

	result, err := tl.Call(context.Background(), map[string]any{"city": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, "sunny in Oslo", result)
}
