package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Tool {
	return NewFunctionTool(name, "Echo "+name, nil, func(_ context.Context, args map[string]any) (any, error) {
		return name, nil
	})
}

func TestRegistry(t *testing.T) {
	t.Run("preserves registration order", func(t *testing.T) {
		r := NewRegistry(echoTool("alpha"), echoTool("beta"), echoTool("gamma"))

		assert.Equal(t, []string{"alpha", "beta", "gamma"}, r.Names())
		assert.Equal(t, 3, r.Len())
	})

	t.Run("replace keeps position", func(t *testing.T) {
		r := NewRegistry(echoTool("alpha"), echoTool("beta"))
		r.Register(echoTool("alpha"))

		assert.Equal(t, []string{"alpha", "beta"}, r.Names())
		assert.Equal(t, 2, r.Len())
	})

	t.Run("get and remove", func(t *testing.T) {
		r := NewRegistry(echoTool("alpha"))

		got, ok := r.Get("alpha")
		require.True(t, ok)
		assert.Equal(t, "alpha", got.Name())

		assert.True(t, r.Remove("alpha"))
		assert.False(t, r.Remove("alpha"))

		_, ok = r.Get("alpha")
		assert.False(t, ok)
	})

	t.Run("clone is isolated from the original", func(t *testing.T) {
		r := NewRegistry(echoTool("alpha"))

		clone := r.Clone()
		clone.Register(echoTool("extra"))
		clone.Remove("alpha")

		assert.Equal(t, []string{"alpha"}, r.Names())
		assert.Equal(t, []string{"extra"}, clone.Names())
	})
}

func TestDeclarations(t *testing.T) {
	t.Run("follows registry order", func(t *testing.T) {
		r := NewRegistry(echoTool("beta"), echoTool("alpha"))

		defs := Declarations(r)

		require.Len(t, defs, 2)
		assert.Equal(t, "beta", defs[0].Function.Name)
		assert.Equal(t, "alpha", defs[1].Function.Name)
		assert.Equal(t, "function", defs[0].Type)
	})

	t.Run("nil parameters yields empty object schema", func(t *testing.T) {
		defs := Declarations(NewRegistry(echoTool("alpha")))

		require.Len(t, defs, 1)
		assert.Equal(t, "object", defs[0].Function.Parameters["type"])
	})

	t.Run("empty registry", func(t *testing.T) {
		assert.Nil(t, Declarations(nil))
		assert.Nil(t, Declarations(NewRegistry()))
	})
}
