// Package model defines the provider-neutral request/response structures and
// the Model interface that the dispatch loop drives. Concrete adapters live in
// the openai and anthropic subpackages; MockModel supports tests and examples.
package model

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message roles used across providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single role-tagged conversation entry. Tool result messages
// carry the originating call identifier in ToolCallID; assistant messages may
// carry tool call requests.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage builds a system role message.
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Content: text} }

// UserMessage builds a user role message.
func UserMessage(text string) Message { return Message{Role: RoleUser, Content: text} }

// AssistantMessage builds an assistant role message.
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// ToolMessage builds a tool result message keyed by the originating call id.
func ToolMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: name, ToolCallID: toolCallID}
}

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"` // "function"
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction describes the concrete function target of a tool call.
type ToolCallFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // JSON string of arguments
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the dispatch loop.
// Each Generate call is atomic request/response; there is no token streaming.
type Request struct {
	Messages         []Message        `json:"messages"`
	Tools            []ToolDefinition `json:"tools,omitempty"`
	Temperature      float64          `json:"temperature,omitempty"`
	TopP             float64          `json:"top_p,omitempty"`
	WebSearchOptions map[string]any   `json:"web_search_options,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completed model output for a single Generate call.
type Response struct {
	ID           string      `json:"id"`
	Message      Message     `json:"message"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Empty reports whether the response carries neither text nor tool calls.
// A choice-less provider reply maps to an empty Response.
func (r *Response) Empty() bool {
	return r == nil || (r.Message.Content == "" && len(r.Message.ToolCalls) == 0)
}

// Info contains metadata about a model implementation, including the
// capability flags the dispatch loop consults before attaching tool
// declarations or web search options.
type Info struct {
	Name              string `json:"name"`
	Provider          string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools     bool   `json:"supports_tools"`
	SupportsWebSearch bool   `json:"supports_web_search"`
}

// Model is the minimal interface required by agents to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// It serves scripted responses/errors in FIFO order when enqueued, and falls
// back to a prompt-keyed canned response map otherwise.
type MockModel struct {
	info      Info
	responses map[string]string
	queue     []scripted
	requests  []Request
}

type scripted struct {
	resp *Response
	err  error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// SetInfo overrides the reported model metadata (e.g. to simulate a model
// without tool-calling support).
func (m *MockModel) SetInfo(info Info) { m.info = info }

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// EnqueueResponse appends a scripted response served before any canned completions.
func (m *MockModel) EnqueueResponse(resp Response) {
	m.queue = append(m.queue, scripted{resp: &resp})
}

// EnqueueTextResponse appends a scripted plain-text assistant response.
func (m *MockModel) EnqueueTextResponse(text string) {
	m.EnqueueResponse(Response{Message: AssistantMessage(text), FinishReason: "stop"})
}

// EnqueueToolCallResponse appends a scripted response requesting a single tool call.
func (m *MockModel) EnqueueToolCallResponse(callID, name, arguments string) {
	m.EnqueueResponse(Response{
		Message: Message{
			Role: RoleAssistant,
			ToolCalls: []ToolCall{{
				ID:       callID,
				Type:     "function",
				Function: ToolCallFunction{Name: name, Arguments: json.RawMessage(arguments)},
			}},
		},
		FinishReason: "tool_calls",
	})
}

// EnqueueError appends a scripted generation failure.
func (m *MockModel) EnqueueError(err error) {
	m.queue = append(m.queue, scripted{err: err})
}

// Requests returns every Request seen by Generate, in call order.
func (m *MockModel) Requests() []Request { return m.requests }

// LastRequest returns the most recent Request, or a zero Request if none.
func (m *MockModel) LastRequest() Request {
	if len(m.requests) == 0 {
		return Request{}
	}
	return m.requests[len(m.requests)-1]
}

// Generate implements Model; serves scripted entries first, then canned completions.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.requests = append(m.requests, req)

	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		if next.err != nil {
			return nil, next.err
		}
		return next.resp, nil
	}

	var inputText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			inputText = req.Messages[i].Content
			break
		}
	}
	full := m.responses[inputText]
	if full == "" {
		full = fmt.Sprintf("Mock response to: %s", inputText)
	}
	return &Response{Message: AssistantMessage(full), FinishReason: "stop"}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
