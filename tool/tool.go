// Package tool implements the function / tool calling subsystem that lets
// agents invoke structured capabilities (APIs, computations, side-effects)
// with schema validated arguments and consistent error handling. The ordered
// Registry keeps declaration order deterministic for schema generation.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/orchestra/internal/util"
)

// DescribeSentinel is a reserved argument key. Calling a tool with this key
// present makes it self-report its description and an example call instead of
// executing. It is used for schema/documentation purposes and is never sent
// during normal dispatch.
const DescribeSentinel = "__describe__"

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are registered with agents to enable function calling, allowing
// agents to perform actions beyond text generation such as API calls,
// calculations, database queries, or any other programmatic operations.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Honor context cancellation for long-running work
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for parameter validation and LLM function calling.
	Parameters() map[string]any

	// Call executes the tool with structured arguments. Arguments are parsed
	// from the model's JSON payload and validated against the tool's schema
	// at execution time only; a schema/implementation mismatch surfaces here
	// as a per-call error, never earlier.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
