package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hupe1980/orchestra/logging"
	"github.com/hupe1980/orchestra/memory"
	"github.com/hupe1980/orchestra/tool"
)

// ExitStrategy selects how exit-privileged agents may terminate a loop run.
type ExitStrategy int

const (
	// ExitStrategyStructuredFlag instructs every agent (via an injected
	// contract) to emit a fixed-shape JSON result; privileged agents may set
	// terminate_loop in it.
	ExitStrategyStructuredFlag ExitStrategy = iota
	// ExitStrategyExitTool grants privileged agents a per-invocation
	// exit_loop tool plus exit instructions; calling the tool ends the run.
	ExitStrategyExitTool
)

// String returns the strategy name.
func (s ExitStrategy) String() string {
	switch s {
	case ExitStrategyExitTool:
		return "exit_tool"
	default:
		return "structured_flag"
	}
}

// LoopState is the loop run state machine.
type LoopState int

const (
	// StateRunning is the initial and between-invocations state.
	StateRunning LoopState = iota
	// StateAgentExecuting marks an in-flight agent invocation.
	StateAgentExecuting
	// StateTerminated is terminal: a privileged agent ended the loop early.
	StateTerminated
	// StateExhausted is terminal: the cycle count reached max loops. Not an error.
	StateExhausted
)

// String returns the state name.
func (s LoopState) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateAgentExecuting:
		return "AGENT_EXECUTING"
	case StateTerminated:
		return "TERMINATED"
	case StateExhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// LocalEntry is a per-agent local memory record, visible only to its owner on
// subsequent cycles.
type LocalEntry struct {
	LoopCycle int    `json:"loop_cycle"`
	Output    string `json:"output"`
}

// StepRecord captures one agent invocation in the run log.
type StepRecord struct {
	Cycle  int    `json:"cycle"`
	Step   int    `json:"step"`
	Agent  string `json:"agent"`
	Output string `json:"output"`
}

// LoopResult is the terminal outcome of a loop run. Both TERMINATED and
// EXHAUSTED are successful terminal states.
type LoopResult struct {
	RunID       string
	State       LoopState
	FinalOutput string
	ExitedBy    string
	ExitCycle   int
	ExitReason  string
	Log         []StepRecord
	ShortMemory []memory.ShortEntry
	LongMemory  []memory.LongEntry
}

// loopStepInput is the structured payload each loop step receives.
type loopStepInput struct {
	OriginalQuery        string              `json:"original_query"`
	LoopCycle            int                 `json:"loop_cycle"`
	StepNumber           int                 `json:"step_number"`
	AgentName            string              `json:"agent_name"`
	LocalMemory          []LocalEntry        `json:"agent_local_memory"`
	ShortMemory          []memory.ShortEntry `json:"global_short_memory"`
	LongMemory           []memory.LongEntry  `json:"global_long_memory"`
	ForwardedInstruction string              `json:"additional_instruction_from_previous_agent,omitempty"`
	Contract             string              `json:"contract,omitempty"`
}

// LoopOptions configures a LoopAgent.
type LoopOptions struct {
	Strategy ExitStrategy
	// MaxLoops bounds full cycles through the agent sequence.
	MaxLoops int
	// WindowSize / MaxContextChars bound the shared short memory.
	WindowSize      int
	MaxContextChars int
	// LocalMemoryWindow bounds each agent's private local memory.
	LocalMemoryWindow int
	// Compressor summarizes overflowing shared memory.
	Compressor memory.Compressor
	// ExitPrivileged grants loop-termination capability to the listed agents.
	// Privilege is keyed by agent identity, never by name matching.
	ExitPrivileged []*Agent
	// ExitInstructions is appended (per invocation only) to privileged
	// agents' instruction text under the exit tool strategy.
	ExitInstructions string
	Logger           logging.Logger
}

// LoopAgent repeats the full agent sequence up to MaxLoops cycles, feeding
// each agent the shared run memory plus its private local memory, and lets a
// designated subset of agents end the loop early.
//
// Capability isolation is by construction: a privileged agent's exit tool and
// exit instructions exist only in a per-invocation effective configuration;
// the agent itself is never mutated, so non-privileged agents cannot observe
// capabilities they do not hold even after a privileged agent ran earlier in
// the same cycle.
//
// A LoopAgent holds no per-run state; all run state lives in a per-run
// context created by Run. Concurrent Run calls on one LoopAgent must still be
// serialized by the caller since the agents themselves are shared.
type LoopAgent struct {
	name   string
	agents []*Agent

	strategy          ExitStrategy
	maxLoops          int
	windowSize        int
	maxContextChars   int
	localMemoryWindow int
	compressor        memory.Compressor
	privileged        map[*Agent]struct{}
	exitInstructions  string
	logger            logging.Logger
}

// NewLoopAgent creates a loop orchestrator over the given agents.
// Defaults: structured flag strategy, 5 loops, window size 2, 8000 context
// chars, local memory window 5, no exit privileges.
func NewLoopAgent(name string, agents []*Agent, optFns ...func(o *LoopOptions)) *LoopAgent {
	opts := LoopOptions{
		Strategy:          ExitStrategyStructuredFlag,
		MaxLoops:          5,
		WindowSize:        2,
		MaxContextChars:   8000,
		LocalMemoryWindow: 5,
		Logger:            logging.NewDefaultSlogLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	privileged := make(map[*Agent]struct{}, len(opts.ExitPrivileged))
	for _, ag := range opts.ExitPrivileged {
		privileged[ag] = struct{}{}
	}

	return &LoopAgent{
		name:              name,
		agents:            agents,
		strategy:          opts.Strategy,
		maxLoops:          opts.MaxLoops,
		windowSize:        opts.WindowSize,
		maxContextChars:   opts.MaxContextChars,
		localMemoryWindow: opts.LocalMemoryWindow,
		compressor:        opts.Compressor,
		privileged:        privileged,
		exitInstructions:  opts.ExitInstructions,
		logger:            opts.Logger,
	}
}

// Name returns the orchestrator's name.
func (l *LoopAgent) Name() string { return l.name }

// HasExitPrivilege reports whether the agent was granted exit capability at
// construction.
func (l *LoopAgent) HasExitPrivilege(ag *Agent) bool {
	_, ok := l.privileged[ag]
	return ok
}

// loopRun owns all per-run mutable state, so nothing on the LoopAgent needs
// resetting between runs.
type loopRun struct {
	id          string
	mem         *memory.Controller
	local       map[string][]LocalEntry
	forwarded   string
	state       LoopState
	log         []StepRecord
	exitedBy    string
	exitCycle   int
	exitReason  string
	finalOutput string
}

// exitControl is the per-invocation scratch structure the injected exit tool
// writes into. It is created fresh for every privileged invocation and
// discarded afterwards unless it signals exit.
type exitControl struct {
	shouldExit bool
	reason     string
	payload    any
}

// Run executes up to MaxLoops full cycles. Agent invocation failures are
// recorded as error text in that agent's memory slot and the loop continues;
// the only error Run itself returns is context cancellation.
func (l *LoopAgent) Run(ctx context.Context, query string) (*LoopResult, error) {
	run := &loopRun{
		id: uuid.NewString(),
		mem: memory.NewController(l.windowSize, l.maxContextChars, func(o *memory.Options) {
			o.Compressor = l.compressor
			o.Logger = l.logger
		}),
		local: make(map[string][]LocalEntry, len(l.agents)),
		state: StateRunning,
	}

	l.logger.Info(
		"loop.run.start",
		"loop", l.name,
		"run_id", run.id,
		"max_loops", l.maxLoops,
		"agents", len(l.agents),
		"strategy", l.strategy.String(),
	)

	for cycle := 1; cycle <= l.maxLoops && run.state == StateRunning; cycle++ {
		for step, ag := range l.agents {
			if run.state != StateRunning {
				break
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			run.state = StateAgentExecuting
			l.invoke(ctx, run, query, cycle, step+1, ag)
			if run.state == StateAgentExecuting {
				run.state = StateRunning
			}
		}
	}

	if run.state != StateTerminated {
		run.state = StateExhausted
	}
	if run.finalOutput == "" {
		if last, ok := run.mem.Last(); ok {
			run.finalOutput = last.Output
		}
	}

	l.logger.Info(
		"loop.run.complete",
		"loop", l.name,
		"run_id", run.id,
		"state", run.state.String(),
		"steps", len(run.log),
	)

	return &LoopResult{
		RunID:       run.id,
		State:       run.state,
		FinalOutput: run.finalOutput,
		ExitedBy:    run.exitedBy,
		ExitCycle:   run.exitCycle,
		ExitReason:  run.exitReason,
		Log:         run.log,
		ShortMemory: run.mem.Short(),
		LongMemory:  run.mem.Long(),
	}, nil
}

// invoke runs one agent for one step, applying the configured exit strategy.
func (l *LoopAgent) invoke(ctx context.Context, run *loopRun, query string, cycle, step int, ag *Agent) {
	privileged := l.HasExitPrivilege(ag)

	input := loopStepInput{
		OriginalQuery: query,
		LoopCycle:     cycle,
		StepNumber:    step,
		AgentName:     ag.Name(),
		LocalMemory:   run.local[ag.Name()],
		ShortMemory:   run.mem.Short(),
		LongMemory:    run.mem.Long(),
	}

	eff := ag.baseConfig()
	var ctrl *exitControl

	switch l.strategy {
	case ExitStrategyExitTool:
		if privileged {
			ctrl = &exitControl{}
			eff = l.exitOverlay(ag, ctrl)
		}
	default:
		input.Contract = buildContract(privileged)
		input.ForwardedInstruction = run.forwarded
	}

	payload, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		payload = []byte(query)
	}

	output, err := ag.runWith(ctx, string(payload), nil, eff)
	if err != nil {
		output = fmt.Sprintf("agent execution error: %v", err)
		l.logger.Warn("loop.agent.error", "loop", l.name, "run_id", run.id, "cycle", cycle, "agent", ag.Name(), "error", err.Error())
	}

	run.recordLocal(ag.Name(), cycle, output, l.localMemoryWindow)
	run.mem.Record(ctx, ag.Name(), output)
	run.log = append(run.log, StepRecord{Cycle: cycle, Step: step, Agent: ag.Name(), Output: output})

	switch l.strategy {
	case ExitStrategyExitTool:
		if privileged && ctrl.shouldExit {
			run.state = StateTerminated
			run.exitedBy = ag.Name()
			run.exitCycle = cycle
			run.exitReason = ctrl.reason
			run.finalOutput = fmt.Sprintf(
				"Loop exited by agent '%s' at cycle %d.\nReason: %s\nLast agent response: %s",
				ag.Name(), cycle, ctrl.reason, output,
			)
			l.logger.Info("loop.exit.tool", "loop", l.name, "run_id", run.id, "agent", ag.Name(), "cycle", cycle, "reason", ctrl.reason)
		}
	default:
		parsed, ok := ParseStructuredOutput(output)
		if !ok {
			// Malformed structured output degrades to an empty forwarded
			// instruction; the loop continues.
			run.forwarded = ""
			return
		}
		run.forwarded = parsed.AdditionalInstruction
		if privileged && parsed.TerminateLoop {
			run.state = StateTerminated
			run.exitedBy = ag.Name()
			run.exitCycle = cycle
			run.exitReason = "terminate_loop flag set"
			l.logger.Info("loop.exit.flag", "loop", l.name, "run_id", run.id, "agent", ag.Name(), "cycle", cycle)
		}
	}
}

// recordLocal appends to the agent's private local memory, evicting oldest
// entries beyond the window.
func (r *loopRun) recordLocal(agentName string, cycle int, output string, window int) {
	entries := append(r.local[agentName], LocalEntry{LoopCycle: cycle, Output: output})
	if window > 0 && len(entries) > window {
		entries = entries[len(entries)-window:]
	}
	r.local[agentName] = entries
}

// exitOverlay computes the per-invocation effective configuration for a
// privileged agent: a cloned registry with the exit tool plus the exit
// instructions appendix. The agent's own registry and instruction text are
// never touched, so no restore step exists to get wrong.
func (l *LoopAgent) exitOverlay(ag *Agent, ctrl *exitControl) effectiveConfig {
	tools := ag.tools.Clone()
	tools.Register(newExitTool(ctrl))

	instruction := ag.instruction
	if l.exitInstructions != "" {
		instruction = instruction + "\n\nIMPORTANT: " + l.exitInstructions
	}

	return effectiveConfig{instruction: instruction, tools: tools}
}

// newExitTool builds the one-shot exit tool bound to a per-invocation control.
func newExitTool(ctrl *exitControl) tool.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason":  map[string]any{"type": "string", "description": "Why the loop should stop"},
			"payload": map[string]any{"type": "object", "description": "Optional free-form result payload"},
		},
	}

	return tool.NewFunctionTool(
		"exit_loop",
		"Exit the loop early. Call this only when the entire workflow is complete and satisfies the task.",
		params,
		func(_ context.Context, args map[string]any) (any, error) {
			ctrl.shouldExit = true
			ctrl.reason, _ = args["reason"].(string)
			ctrl.payload = args["payload"]
			return map[string]any{
				"status":          "exit_requested",
				"reason":          ctrl.reason,
				"payload_summary": clipString(fmt.Sprintf("%v", ctrl.payload), 500),
			}, nil
		},
		tool.WithExample(map[string]any{"reason": "task complete"}),
	)
}

// buildContract renders the structured output contract injected into every
// agent's input under the structured flag strategy. Only privileged agents
// are told about terminate_loop.
func buildContract(privileged bool) string {
	contract := "When producing your final answer, YOU MUST output strict JSON:\n" +
		"{\n" +
		"   \"final_output\": \"<your main generated content>\",\n" +
		"   \"additional_instruction\": \"<optional guidance for next agent or empty string>\""

	if privileged {
		contract += ",\n" +
			"   \"terminate_loop\": <true or false>\n" +
			"}\n\n" +
			"Rules:\n" +
			"- Do NOT include any explanation outside the JSON structure.\n" +
			"- `final_output` contains your main response.\n" +
			"- `additional_instruction` passes context to the next agent (can be empty).\n" +
			"- `terminate_loop` should be set to true ONLY when the entire workflow is complete and it satisfies the provided task.\n" +
			"- Set `terminate_loop` to false if the workflow should continue to the next cycle.\n"
	} else {
		contract += "\n" +
			"}\n\n" +
			"Rules:\n" +
			"- Do NOT include any explanation outside the JSON structure.\n" +
			"- `final_output` contains your main response.\n" +
			"- `additional_instruction` passes context to the next agent (can be empty).\n"
	}

	contract += "- Your local memory shows what YOU did in previous loop cycles.\n" +
		"- Global memory shows what ALL agents have done.\n" +
		"- Incorporate any forwarded instruction from the previous agent.\n"

	return contract
}

func clipString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
