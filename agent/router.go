package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/orchestra/model"
	"github.com/hupe1980/orchestra/tool"
)

// RouterOptions configures NewRouterAgent.
type RouterOptions struct {
	// Identity overrides the router's default identity text.
	Identity string
	// AdditionalInstructions is appended after the routing contract.
	AdditionalInstructions string
	// Options are forwarded to the underlying agent constructor.
	Options []func(o *Options)
}

const routerContract = `You are a routing agent. You NEVER answer the user's request yourself.

Your ONLY job is to delegate the task to the specialized agents available to
you as tools, in the execution order listed below, and to relay their results.

Rules:
- Call each agent tool with a clear, self-contained task description.
- Pass along relevant context from earlier agents when calling later ones.
- Do not skip agents, do not invent agents, and do not answer directly.`

// NewRouterAgent composes the given agents into a single dispatcher agent:
// each wrapped agent is exposed to the model as a tool taking one task
// string, and the router's instruction pins the execution order. The wrapped
// agents are not modified; each keeps its own model, tools, and instruction.
func NewRouterAgent(name string, llm model.Model, agents []*Agent, optFns ...func(o *RouterOptions)) *Agent {
	opts := RouterOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	var order strings.Builder
	order.WriteString("Execution Order:\n")
	wrapped := make([]tool.Tool, 0, len(agents))
	for i, ag := range agents {
		fmt.Fprintf(&order, "%d. Call **%s**\n", i+1, ag.Name())
		wrapped = append(wrapped, newAgentTool(ag))
	}

	instruction := routerContract + "\n\n" + order.String()
	if opts.AdditionalInstructions != "" {
		instruction += "\n" + opts.AdditionalInstructions
	}

	agentOpts := []func(o *Options){
		func(o *Options) {
			if opts.Identity != "" {
				o.Identity = opts.Identity
			}
			o.Instruction = instruction
			o.Tools = wrapped
		},
	}
	agentOpts = append(agentOpts, opts.Options...)

	return New(name, llm, agentOpts...)
}

// newAgentTool wraps an agent as a single-parameter tool.
func newAgentTool(ag *Agent) tool.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        "string",
				"description": "The complete, self-contained task for this agent.",
			},
		},
		"required": []string{"task"},
	}

	return tool.NewFunctionTool(
		sanitizeToolName(ag.Name()),
		fmt.Sprintf("This tool represents: %s. Use it only for its specialized purpose.", ag.Name()),
		params,
		func(ctx context.Context, args map[string]any) (any, error) {
			task, _ := args["task"].(string)
			return ag.Run(ctx, task)
		},
	)
}

// sanitizeToolName maps an agent name to a valid snake_case tool name.
func sanitizeToolName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.':
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "agent"
	}
	return b.String()
}
