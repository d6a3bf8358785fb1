package tool

import (
	"github.com/hupe1980/orchestra/model"
)

// Declarations derives one function declaration per registered tool, in
// registry order. The declarations are advisory input to the model provider;
// they are not checked against the tool implementations, so a mismatch only
// surfaces when the model emits arguments and the call fails at execution
// time.
func Declarations(r *Registry) []model.ToolDefinition {
	if r == nil || r.Len() == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, r.Len())
	for _, t := range r.Tools() {
		params := t.Parameters()
		if params == nil {
			params = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  params,
			},
		})
	}
	return defs
}
