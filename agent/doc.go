// Package agent provides tool-calling agents and the orchestrators that
// compose them: SequentialAgent for fixed pipelines, LoopAgent for iterative
// refinement with capability-gated early exit, and NewRouterAgent for
// model-driven delegation where sub-agents are exposed as tools.
package agent
