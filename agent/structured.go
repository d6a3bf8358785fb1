package agent

import (
	"strings"

	"github.com/tidwall/gjson"
)

// StructuredOutput is the fixed-shape result the loop contract asks agents to
// emit. TerminateLoop is only meaningful for exit-privileged agents; for all
// others the orchestrator ignores it.
type StructuredOutput struct {
	FinalOutput           string
	AdditionalInstruction string
	TerminateLoop         bool
}

// ParseStructuredOutput reads an agent's raw output as loosely-typed JSON and
// returns a tagged result: (parsed, true) when the output is a JSON object,
// (zero, false) otherwise. Callers must match on the tag instead of assuming
// shape — a parse failure is a normal outcome, not an error.
//
// Models frequently wrap JSON answers in markdown fences; those are stripped
// before parsing.
func ParseStructuredOutput(raw string) (StructuredOutput, bool) {
	text := stripFences(strings.TrimSpace(raw))
	if !gjson.Valid(text) {
		return StructuredOutput{}, false
	}

	root := gjson.Parse(text)
	if !root.IsObject() {
		return StructuredOutput{}, false
	}

	return StructuredOutput{
		FinalOutput:           root.Get("final_output").String(),
		AdditionalInstruction: root.Get("additional_instruction").String(),
		TerminateLoop:         root.Get("terminate_loop").Bool(),
	}, true
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	trimmed := strings.TrimPrefix(text, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
