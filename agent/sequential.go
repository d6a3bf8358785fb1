package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hupe1980/orchestra/logging"
	"github.com/hupe1980/orchestra/memory"
)

// stepInput is the structured payload each pipeline step receives.
type stepInput struct {
	OriginalQuery string             `json:"original_query"`
	StepNumber    int                `json:"step_number"`
	AgentName     string             `json:"agent_name"`
	ShortMemory   []memory.ShortEntry `json:"short_memory"`
	LongMemory    []memory.LongEntry  `json:"long_memory"`
}

// SequentialOptions configures a SequentialAgent.
type SequentialOptions struct {
	Description string
	// WindowSize bounds the short memory window shared across steps.
	WindowSize int
	// MaxContextChars bounds the serialized short memory before compression kicks in.
	MaxContextChars int
	// Compressor summarizes overflowing memory; nil selects truncation fallback.
	Compressor memory.Compressor
	Logger     logging.Logger
}

// SequentialAgent chains agents once, in order, feeding each agent the
// accumulated run memory. There is no looping and no exit mechanism: the run
// is a deterministic single pass whose terminal result is the last recorded
// output. A failing agent invocation aborts the run — with no loop to recover
// within, the error propagates to the caller.
type SequentialAgent struct {
	name        string
	description string
	agents      []*Agent

	windowSize      int
	maxContextChars int
	compressor      memory.Compressor
	logger          logging.Logger
}

// NewSequentialAgent creates a sequential pipeline over the given agents.
// Defaults: window size 2, 8000 context chars, truncation-only compression.
func NewSequentialAgent(name string, agents []*Agent, optFns ...func(o *SequentialOptions)) *SequentialAgent {
	opts := SequentialOptions{
		Description:     fmt.Sprintf("Sequential pipeline %s", name),
		WindowSize:      2,
		MaxContextChars: 8000,
		Logger:          logging.NewDefaultSlogLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &SequentialAgent{
		name:            name,
		description:     opts.Description,
		agents:          agents,
		windowSize:      opts.WindowSize,
		maxContextChars: opts.MaxContextChars,
		compressor:      opts.Compressor,
		logger:          opts.Logger,
	}
}

// Name returns the pipeline's name.
func (s *SequentialAgent) Name() string { return s.name }

// Description returns the pipeline's description.
func (s *SequentialAgent) Description() string { return s.description }

// Run executes all agents once, in order. Memory is owned by this run — a
// fresh controller is created per call, so there is no cross-run leakage.
func (s *SequentialAgent) Run(ctx context.Context, query string) (string, error) {
	runID := uuid.NewString()
	mem := memory.NewController(s.windowSize, s.maxContextChars, func(o *memory.Options) {
		o.Compressor = s.compressor
		o.Logger = s.logger
	})

	s.logger.Info("sequential.run.start", "pipeline", s.name, "run_id", runID, "steps", len(s.agents))

	for i, ag := range s.agents {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		payload, err := json.Marshal(stepInput{
			OriginalQuery: query,
			StepNumber:    i + 1,
			AgentName:     ag.Name(),
			ShortMemory:   mem.Short(),
			LongMemory:    mem.Long(),
		})
		if err != nil {
			return "", fmt.Errorf("build step %d input: %w", i+1, err)
		}

		output, err := ag.Run(ctx, string(payload))
		if err != nil {
			return "", fmt.Errorf("sequential run failed at step %d (%s): %w", i+1, ag.Name(), err)
		}

		mem.Record(ctx, ag.Name(), output)
		s.logger.Debug("sequential.step.complete", "pipeline", s.name, "run_id", runID, "step", i+1, "agent", ag.Name())
	}

	last, ok := mem.Last()
	if !ok {
		return "", nil
	}

	s.logger.Info("sequential.run.complete", "pipeline", s.name, "run_id", runID)
	return last.Output, nil
}
