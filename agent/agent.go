package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/orchestra/logging"
	"github.com/hupe1980/orchestra/model"
	"github.com/hupe1980/orchestra/tool"
)

// Diagnostic codes attached to capability warnings.
const (
	codeToolNotSupported      = "X_2001"
	codeWebSearchNotSupported = "X_2002"
)

// Options configures an Agent instance.
//
// Use functional options with New to override defaults.
type Options struct {
	// Identity is the persona or role definition (e.g. "You are a senior DevOps engineer.").
	Identity string
	// Instruction is the set of constraints, guidelines and behavioral rules the agent must follow.
	Instruction string
	// Tools registered for function calling, in declaration order.
	Tools []tool.Tool
	// Temperature and TopP are forwarded as sampling parameters.
	Temperature float64
	TopP        float64
	// WebSearchOptions enables provider-side web search when non-nil.
	WebSearchOptions map[string]any
	// Debug enables verbose logging of the agent's reasoning and execution steps.
	Debug  bool
	Logger logging.Logger
}

// Agent is a persona wrapping a language model plus a set of callable tools.
//
// A single invocation drives the tool-calling dispatch protocol: compose the
// prompt, invoke the model with derived tool declarations, execute any
// requested tool calls, feed results back, and invoke the model once more for
// the final answer. At most one tool-execution round happens per invocation;
// multi-step reasoning across tools is achieved by orchestrators re-invoking
// the agent, not by recursing here.
//
// Agents are long-lived and reusable across runs. Orchestrators never mutate
// an agent's registry or instruction; capability overlays are computed fresh
// per invocation (see LoopAgent).
type Agent struct {
	name        string
	llm         model.Model
	identity    string
	instruction string
	tools       *tool.Registry
	temperature float64
	topP        float64
	webSearch   map[string]any
	debug       bool
	logger      logging.Logger

	finalResponse string
}

// New creates an agent bound to a model.
//
// Defaults: a generic helpful-assistant identity, no tools, temperature 1.0,
// top_p 1.0, debug off, slog-backed logger.
func New(name string, llm model.Model, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Identity:    fmt.Sprintf("You are %s, a helpful AI assistant.", name),
		Temperature: 1.0,
		TopP:        1.0,
		Logger:      logging.NewDefaultSlogLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Agent{
		name:        name,
		llm:         llm,
		identity:    opts.Identity,
		instruction: opts.Instruction,
		tools:       tool.NewRegistry(opts.Tools...),
		temperature: opts.Temperature,
		topP:        opts.TopP,
		webSearch:   opts.WebSearchOptions,
		debug:       opts.Debug,
		logger:      opts.Logger,
	}
}

// Name returns the agent's designation used for logging and memory records.
func (a *Agent) Name() string { return a.name }

// Identity returns the persona text.
func (a *Agent) Identity() string { return a.identity }

// Instruction returns the behavioral rules text.
func (a *Agent) Instruction() string { return a.instruction }

// Model returns the bound language model.
func (a *Agent) Model() model.Model { return a.llm }

// Tools returns an order-preserving copy of the agent's tool registry.
func (a *Agent) Tools() *tool.Registry { return a.tools.Clone() }

// FinalResponse returns the output of the last successful invocation.
func (a *Agent) FinalResponse() string { return a.finalResponse }

// RegisterTool adds a tool to the agent's capability set.
func (a *Agent) RegisterTool(t tool.Tool) { a.tools.Register(t) }

// RegisterTools adds multiple tools in order.
func (a *Agent) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		a.tools.Register(t)
	}
}

// effectiveConfig is the immutable per-invocation view of an agent's mutable
// surface (instruction text + tool registry). Orchestrators wanting to grant
// extra capabilities compute a fresh overlay per invocation instead of
// mutating the agent, so isolation holds on every exit path.
type effectiveConfig struct {
	instruction string
	tools       *tool.Registry
}

func (a *Agent) baseConfig() effectiveConfig {
	return effectiveConfig{instruction: a.instruction, tools: a.tools}
}

// Run executes one dispatch round-trip: prompt, model call, optional tool
// execution round, final answer.
//
// Model invocation failures are recovered as error text returned in the
// output with a nil error, so a pipeline step never aborts the whole run on a
// provider hiccup. The only terminal error for an invocation is an
// empty/choice-less final response after tool execution, for which no
// automatic retry path exists.
func (a *Agent) Run(ctx context.Context, input string, history ...model.Message) (string, error) {
	return a.runWith(ctx, input, history, a.baseConfig())
}

func (a *Agent) runWith(ctx context.Context, input string, history []model.Message, eff effectiveConfig) (string, error) {
	messages := make([]model.Message, 0, len(history)+2)
	messages = append(messages, model.SystemMessage(systemPrompt(a.identity, eff.instruction)))
	messages = append(messages, history...)
	messages = append(messages, model.UserMessage("### CURRENT TASK\n"+input))

	a.debugLog("agent.run.start", "agent", a.name)

	decls := tool.Declarations(eff.tools)
	info := a.llm.Info()
	if len(decls) > 0 && !info.SupportsTools {
		a.logger.Warn(
			"agent.model.tool_calling_unsupported",
			"agent", a.name,
			"model", info.Name,
			"code", codeToolNotSupported,
		)
	}
	if a.webSearch != nil && !info.SupportsWebSearch {
		a.logger.Warn(
			"agent.model.web_search_unsupported",
			"agent", a.name,
			"model", info.Name,
			"code", codeWebSearchNotSupported,
		)
	}

	resp, err := a.llm.Generate(ctx, model.Request{
		Messages:         messages,
		Tools:            decls,
		Temperature:      a.temperature,
		TopP:             a.topP,
		WebSearchOptions: a.webSearch,
	})
	if err != nil {
		out := fmt.Sprintf("model invocation error: %v", err)
		a.logger.Error("agent.model.error", "agent", a.name, "error", err.Error())
		return out, nil
	}

	toolCalls := resp.Message.ToolCalls
	if len(toolCalls) == 0 {
		a.debugLog("agent.run.direct_answer", "agent", a.name)
		a.finalResponse = resp.Message.Content
		return resp.Message.Content, nil
	}

	// Tool execution round: exactly one per invocation.
	messages = append(messages, resp.Message)
	a.debugLog("agent.tools.triggered", "agent", a.name, "count", len(toolCalls))

	for _, call := range toolCalls {
		result := a.executeToolCall(ctx, eff.tools, call)
		messages = append(messages, model.ToolMessage(call.ID, call.Function.Name, result))
	}

	final, err := a.llm.Generate(ctx, model.Request{
		Messages:    messages,
		Temperature: a.temperature,
		TopP:        a.topP,
	})
	if err != nil {
		out := fmt.Sprintf("model invocation error after tool execution: %v", err)
		a.logger.Error("agent.model.error", "agent", a.name, "error", err.Error())
		return out, nil
	}
	if final.Empty() {
		err := fmt.Errorf("model %s returned an empty response in the final call after tool execution", info.Name)
		a.logger.Error("agent.run.empty_final_response", "agent", a.name, "model", info.Name)
		return "", err
	}

	a.debugLog("agent.run.final_answer", "agent", a.name)
	a.finalResponse = final.Message.Content
	return final.Message.Content, nil
}

// executeToolCall resolves and runs one requested tool call, converting every
// failure mode into a result string the model can react to in its final
// answer: malformed argument JSON degrades to an empty-argument call,
// unregistered names and execution errors become per-call error text.
func (a *Agent) executeToolCall(ctx context.Context, reg *tool.Registry, call model.ToolCall) string {
	name := call.Function.Name

	args := map[string]any{}
	if len(call.Function.Arguments) > 0 {
		if err := json.Unmarshal(call.Function.Arguments, &args); err != nil {
			a.debugLog("agent.tool.malformed_args", "agent", a.name, "tool", name)
			args = map[string]any{}
		}
	}

	impl, ok := reg.Get(name)
	if !ok {
		a.logger.Warn("agent.tool.not_registered", "agent", a.name, "tool", name)
		return fmt.Sprintf("Error executing tool %s: tool is not registered", name)
	}

	a.debugLog("agent.tool.call", "agent", a.name, "tool", name, "call_id", call.ID)

	result, err := safeCall(ctx, impl, args)
	if err != nil {
		a.logger.Warn("agent.tool.error", "agent", a.name, "tool", name, "error", err.Error())
		return fmt.Sprintf("Error executing tool %s: %v", name, err)
	}

	out := stringify(result)
	a.debugLog("agent.tool.result", "agent", a.name, "tool", name)
	return out
}

// safeCall invokes a tool recovering panics into errors so a misbehaving tool
// cannot crash the host process.
func safeCall(ctx context.Context, t tool.Tool, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()
	return t.Call(ctx, args)
}

// stringify converts a tool result into the string fed back to the model.
func stringify(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", v)
	}
}

// systemPrompt composes the structured system message from identity and instructions.
func systemPrompt(identity, instruction string) string {
	return fmt.Sprintf("### AGENT IDENTITY\n%s\n\n### OPERATIONAL INSTRUCTIONS\n%s", identity, instruction)
}

func (a *Agent) debugLog(msg string, args ...any) {
	if a.debug {
		a.logger.Debug(msg, args...)
	}
}
