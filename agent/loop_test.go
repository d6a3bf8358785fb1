package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/orchestra/logging"
	"github.com/hupe1980/orchestra/model"
)

func quietLoopOptions(fns ...func(o *LoopOptions)) []func(o *LoopOptions) {
	all := []func(o *LoopOptions){func(o *LoopOptions) { o.Logger = logging.NoOpLogger{} }}
	return append(all, fns...)
}

func TestLoopAgentExhaustion(t *testing.T) {
	writerLLM := model.NewMockModel("mock-model", "mock")
	criticLLM := model.NewMockModel("mock-model", "mock")

	loop := NewLoopAgent("refine", []*Agent{
		quietAgent("writer", writerLLM),
		quietAgent("critic", criticLLM),
	}, quietLoopOptions(func(o *LoopOptions) { o.MaxLoops = 2 })...)

	result, err := loop.Run(context.Background(), "draft a poem")

	require.NoError(t, err)
	assert.Equal(t, StateExhausted, result.State)
	assert.Empty(t, result.ExitedBy)
	require.Len(t, result.Log, 4)
	assert.Equal(t, 1, result.Log[0].Cycle)
	assert.Equal(t, "writer", result.Log[0].Agent)
	assert.Equal(t, 2, result.Log[3].Cycle)
	assert.Equal(t, "critic", result.Log[3].Agent)

	// Terminal result is the last recorded output.
	assert.Equal(t, result.Log[3].Output, result.FinalOutput)
	require.Len(t, result.LongMemory, 4)
	assert.NotEmpty(t, result.RunID)
}

func TestLoopAgentStructuredFlagTermination(t *testing.T) {
	terminateJSON := `{"final_output":"approved","additional_instruction":"","terminate_loop":true}`

	writerLLM := model.NewMockModel("mock-model", "mock")
	criticLLM := model.NewMockModel("mock-model", "mock")
	criticLLM.EnqueueTextResponse(terminateJSON)

	writer := quietAgent("writer", writerLLM)
	critic := quietAgent("critic", criticLLM)

	loop := NewLoopAgent("refine", []*Agent{writer, critic}, quietLoopOptions(func(o *LoopOptions) {
		o.MaxLoops = 2
		o.ExitPrivileged = []*Agent{critic}
	})...)

	result, err := loop.Run(context.Background(), "draft a poem")

	require.NoError(t, err)
	assert.Equal(t, StateTerminated, result.State)
	assert.Equal(t, "critic", result.ExitedBy)
	assert.Equal(t, 1, result.ExitCycle)
	require.Len(t, result.Log, 2)
	assert.Equal(t, terminateJSON, result.FinalOutput)
	assert.Len(t, writerLLM.Requests(), 1)
}

func TestLoopAgentTerminateFlagRequiresPrivilege(t *testing.T) {
	terminateJSON := `{"final_output":"stop now","additional_instruction":"","terminate_loop":true}`

	writerLLM := model.NewMockModel("mock-model", "mock")
	writerLLM.EnqueueTextResponse(terminateJSON)
	writerLLM.EnqueueTextResponse(terminateJSON)

	loop := NewLoopAgent("stubborn", []*Agent{
		quietAgent("writer", writerLLM),
	}, quietLoopOptions(func(o *LoopOptions) { o.MaxLoops = 2 })...)

	result, err := loop.Run(context.Background(), "go")

	require.NoError(t, err)
	assert.Equal(t, StateExhausted, result.State)
	assert.Len(t, result.Log, 2)
}

func TestLoopAgentContractInjection(t *testing.T) {
	writerLLM := model.NewMockModel("mock-model", "mock")
	criticLLM := model.NewMockModel("mock-model", "mock")

	writer := quietAgent("writer", writerLLM)
	critic := quietAgent("critic", criticLLM)

	loop := NewLoopAgent("refine", []*Agent{writer, critic}, quietLoopOptions(func(o *LoopOptions) {
		o.MaxLoops = 1
		o.ExitPrivileged = []*Agent{critic}
	})...)

	_, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	writerPayload := lastUserPayload(t, writerLLM.LastRequest())
	criticPayload := lastUserPayload(t, criticLLM.LastRequest())

	assert.Contains(t, writerPayload["contract"], "final_output")
	assert.NotContains(t, writerPayload["contract"], "terminate_loop")
	assert.Contains(t, criticPayload["contract"], "terminate_loop")
}

func TestLoopAgentForwardedInstruction(t *testing.T) {
	writerLLM := model.NewMockModel("mock-model", "mock")
	writerLLM.EnqueueTextResponse(`{"final_output":"draft one","additional_instruction":"focus on rhyme"}`)
	criticLLM := model.NewMockModel("mock-model", "mock")
	criticLLM.EnqueueTextResponse("this is not json")

	loop := NewLoopAgent("refine", []*Agent{
		quietAgent("writer", writerLLM),
		quietAgent("critic", criticLLM),
	}, quietLoopOptions(func(o *LoopOptions) { o.MaxLoops = 2 })...)

	_, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	// The critic (cycle 1) receives the writer's instruction verbatim.
	criticPayload := lastUserPayload(t, criticLLM.Requests()[0])
	assert.Equal(t, "focus on rhyme", criticPayload["additional_instruction_from_previous_agent"])

	// The critic's unparseable output clears the forwarded instruction for
	// the writer's next invocation.
	writerPayload := lastUserPayload(t, writerLLM.Requests()[1])
	_, present := writerPayload["additional_instruction_from_previous_agent"]
	assert.False(t, present)
}

func TestLoopAgentLocalMemoryIsPrivate(t *testing.T) {
	writerLLM := model.NewMockModel("mock-model", "mock")
	writerLLM.EnqueueTextResponse("ALPHA-ONE")
	writerLLM.EnqueueTextResponse("ALPHA-TWO")
	criticLLM := model.NewMockModel("mock-model", "mock")
	criticLLM.EnqueueTextResponse("BRAVO-ONE")
	criticLLM.EnqueueTextResponse("BRAVO-TWO")

	loop := NewLoopAgent("refine", []*Agent{
		quietAgent("writer", writerLLM),
		quietAgent("critic", criticLLM),
	}, quietLoopOptions(func(o *LoopOptions) { o.MaxLoops = 2 })...)

	_, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	// Cycle 2: each agent sees only its own cycle 1 output in local memory.
	writerPayload := lastUserPayload(t, writerLLM.Requests()[1])
	writerLocal, ok := writerPayload["agent_local_memory"].([]any)
	require.True(t, ok)
	require.Len(t, writerLocal, 1)
	assert.Equal(t, float64(1), writerLocal[0].(map[string]any)["loop_cycle"])
	assert.Equal(t, "ALPHA-ONE", writerLocal[0].(map[string]any)["output"])

	criticPayload := lastUserPayload(t, criticLLM.Requests()[1])
	criticLocal, ok := criticPayload["agent_local_memory"].([]any)
	require.True(t, ok)
	require.Len(t, criticLocal, 1)
	assert.Equal(t, "BRAVO-ONE", criticLocal[0].(map[string]any)["output"])

	// Global memory is shared: the critic sees the writer's outputs there.
	long, ok := criticPayload["global_long_memory"].([]any)
	require.True(t, ok)
	require.Len(t, long, 3)
	assert.Equal(t, "ALPHA-ONE", long[0].(map[string]any)["output"])
}

func TestLoopAgentLocalMemoryWindow(t *testing.T) {
	writerLLM := model.NewMockModel("mock-model", "mock")
	for i := 1; i <= 4; i++ {
		writerLLM.EnqueueTextResponse(fmt.Sprintf("draft %d", i))
	}

	loop := NewLoopAgent("refine", []*Agent{
		quietAgent("writer", writerLLM),
	}, quietLoopOptions(func(o *LoopOptions) {
		o.MaxLoops = 4
		o.LocalMemoryWindow = 2
	})...)

	_, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	// Cycle 4 sees only the freshest two local entries.
	payload := lastUserPayload(t, writerLLM.Requests()[3])
	local := payload["agent_local_memory"].([]any)
	require.Len(t, local, 2)
	assert.Equal(t, "draft 2", local[0].(map[string]any)["output"])
	assert.Equal(t, "draft 3", local[1].(map[string]any)["output"])
}

func TestLoopAgentExitToolStrategy(t *testing.T) {
	writerLLM := model.NewMockModel("mock-model", "mock")
	criticLLM := model.NewMockModel("mock-model", "mock")
	criticLLM.EnqueueToolCallResponse("call_1", "exit_loop", `{"reason":"quality bar met"}`)
	criticLLM.EnqueueTextResponse("wrapping up")

	writer := quietAgent("writer", writerLLM)
	critic := quietAgent("critic", criticLLM)

	loop := NewLoopAgent("refine", []*Agent{writer, critic}, quietLoopOptions(func(o *LoopOptions) {
		o.Strategy = ExitStrategyExitTool
		o.MaxLoops = 3
		o.ExitPrivileged = []*Agent{critic}
		o.ExitInstructions = "Call exit_loop once the draft meets the quality bar."
	})...)

	result, err := loop.Run(context.Background(), "draft a poem")

	require.NoError(t, err)
	assert.Equal(t, StateTerminated, result.State)
	assert.Equal(t, "critic", result.ExitedBy)
	assert.Equal(t, 1, result.ExitCycle)
	assert.Equal(t, "quality bar met", result.ExitReason)
	assert.Contains(t, result.FinalOutput, "Loop exited by agent 'critic' at cycle 1")
	assert.Contains(t, result.FinalOutput, "Reason: quality bar met")
	require.Len(t, result.Log, 2)

	// The privileged invocation carried the injected tool and instructions.
	criticFirst := criticLLM.Requests()[0]
	require.Len(t, criticFirst.Tools, 1)
	assert.Equal(t, "exit_loop", criticFirst.Tools[0].Function.Name)
	assert.Contains(t, criticFirst.Messages[0].Content, "IMPORTANT: Call exit_loop once the draft meets the quality bar.")

	// Non-privileged invocations never see the tool.
	assert.Empty(t, writerLLM.Requests()[0].Tools)

	// Under the exit tool strategy no contract is injected.
	writerPayload := lastUserPayload(t, writerLLM.Requests()[0])
	_, present := writerPayload["contract"]
	assert.False(t, present)
}

func TestLoopAgentCapabilityIsolation(t *testing.T) {
	criticLLM := model.NewMockModel("mock-model", "mock")
	criticLLM.EnqueueToolCallResponse("call_1", "exit_loop", `{"reason":"done"}`)
	criticLLM.EnqueueTextResponse("bye")

	critic := New("critic", criticLLM, func(o *Options) {
		o.Instruction = "Judge the draft."
		o.Logger = logging.NoOpLogger{}
	})

	loop := NewLoopAgent("refine", []*Agent{critic}, quietLoopOptions(func(o *LoopOptions) {
		o.Strategy = ExitStrategyExitTool
		o.MaxLoops = 2
		o.ExitPrivileged = []*Agent{critic}
		o.ExitInstructions = "Call exit_loop when done."
	})...)

	_, err := loop.Run(context.Background(), "go")
	require.NoError(t, err)

	// The agent itself carries no trace of the per-invocation overlay.
	assert.Equal(t, "Judge the draft.", critic.Instruction())
	_, registered := critic.Tools().Get("exit_loop")
	assert.False(t, registered)
}

func TestLoopAgentExitPrivilegeIsByIdentity(t *testing.T) {
	llmA := model.NewMockModel("mock-model", "mock")
	llmB := model.NewMockModel("mock-model", "mock")

	// Two distinct agents sharing one name: only the registered pointer is
	// privileged.
	privileged := quietAgent("critic", llmA)
	impostor := quietAgent("critic", llmB)

	loop := NewLoopAgent("refine", []*Agent{privileged, impostor}, quietLoopOptions(func(o *LoopOptions) {
		o.ExitPrivileged = []*Agent{privileged}
	})...)

	assert.True(t, loop.HasExitPrivilege(privileged))
	assert.False(t, loop.HasExitPrivilege(impostor))
}

func TestLoopAgentAgentErrorRecordedAndLoopContinues(t *testing.T) {
	flakyLLM := model.NewMockModel("mock-model", "mock")
	flakyLLM.EnqueueToolCallResponse("call_1", "missing_tool", `{}`)
	flakyLLM.EnqueueResponse(model.Response{})

	loop := NewLoopAgent("resilient", []*Agent{
		quietAgent("flaky", flakyLLM),
	}, quietLoopOptions(func(o *LoopOptions) { o.MaxLoops = 2 })...)

	result, err := loop.Run(context.Background(), "go")

	require.NoError(t, err)
	assert.Equal(t, StateExhausted, result.State)
	require.Len(t, result.Log, 2)
	assert.Contains(t, result.Log[0].Output, "agent execution error:")
}

func TestLoopAgentContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := NewLoopAgent("cancelled", []*Agent{
		quietAgent("writer", model.NewMockModel("mock-model", "mock")),
	}, quietLoopOptions()...)

	_, err := loop.Run(ctx, "go")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoopStateString(t *testing.T) {
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "AGENT_EXECUTING", StateAgentExecuting.String())
	assert.Equal(t, "TERMINATED", StateTerminated.String())
	assert.Equal(t, "EXHAUSTED", StateExhausted.String())
}
