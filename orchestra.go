// Package orchestra provides a thin façade over the agent, model, tool and
// memory packages for building multi-agent LLM systems. Most applications
// interact with it by:
//  1. Creating a provider model (model/openai or model/anthropic)
//  2. Creating agents with orchestra.NewAgent, registering tools
//  3. Composing them with NewSequentialAgent, NewLoopAgent or NewRouterAgent
//
// The façade re-exports the common entry points so simple programs need a
// single import; advanced use imports the subpackages directly.
package orchestra

import (
	"context"

	"github.com/hupe1980/orchestra/agent"
	"github.com/hupe1980/orchestra/model"
	"github.com/hupe1980/orchestra/tool"
)

// Agent and orchestrator types.
type (
	Agent             = agent.Agent
	AgentOptions      = agent.Options
	SequentialAgent   = agent.SequentialAgent
	SequentialOptions = agent.SequentialOptions
	LoopAgent         = agent.LoopAgent
	LoopOptions       = agent.LoopOptions
	LoopResult        = agent.LoopResult
	RouterOptions     = agent.RouterOptions
)

// Loop exit strategies.
const (
	ExitStrategyStructuredFlag = agent.ExitStrategyStructuredFlag
	ExitStrategyExitTool       = agent.ExitStrategyExitTool
)

// Model is the provider-agnostic chat model contract.
type Model = model.Model

// Tool is the callable tool contract.
type Tool = tool.Tool

// NewAgent creates a tool-calling agent bound to a model.
func NewAgent(name string, llm model.Model, optFns ...func(o *agent.Options)) *agent.Agent {
	return agent.New(name, llm, optFns...)
}

// NewSequentialAgent composes agents into a fixed pipeline with shared memory.
func NewSequentialAgent(name string, agents []*agent.Agent, optFns ...func(o *agent.SequentialOptions)) *agent.SequentialAgent {
	return agent.NewSequentialAgent(name, agents, optFns...)
}

// NewLoopAgent composes agents into an iterative loop with optional
// capability-gated early exit.
func NewLoopAgent(name string, agents []*agent.Agent, optFns ...func(o *agent.LoopOptions)) *agent.LoopAgent {
	return agent.NewLoopAgent(name, agents, optFns...)
}

// NewRouterAgent composes agents into a dispatcher that delegates via tool calls.
func NewRouterAgent(name string, llm model.Model, agents []*agent.Agent, optFns ...func(o *agent.RouterOptions)) *agent.Agent {
	return agent.NewRouterAgent(name, llm, agents, optFns...)
}

// NewFunctionTool wraps a Go function as a callable tool.
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...tool.FunctionToolOption,
) *tool.FunctionTool {
	return tool.NewFunctionTool(name, description, parameters, fn, optFns...)
}
