package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/orchestra/logging"
	"github.com/hupe1980/orchestra/model"
)

const (
	// PreviewChars caps short memory previews at a fixed character count.
	PreviewChars = 1000
	// fallbackEntryChars bounds per-entry text in the truncation fallback summary.
	fallbackEntryChars = 200
)

// ShortEntry is a bounded recent-window memory record. The oldest window slot
// may hold a synthetic compressed entry summarizing evicted history.
type ShortEntry struct {
	Agent      string `json:"agent"`
	Preview    string `json:"preview"`
	Compressed bool   `json:"compressed,omitempty"`
}

// LongEntry is an append-only memory record holding an agent's raw output and
// an optional model-produced summary.
type LongEntry struct {
	Agent   string `json:"agent"`
	Output  string `json:"output"`
	Summary string `json:"summary,omitempty"`
}

// Compressor summarizes memory entries into a single string. Failures are
// treated as "no compression available" and fall back to deterministic
// truncation.
type Compressor func(ctx context.Context, entries []ShortEntry) (string, error)

// ModelCompressor adapts a language model into a Compressor using a fixed
// summarization prompt.
func ModelCompressor(m model.Model) Compressor {
	return func(ctx context.Context, entries []ShortEntry) (string, error) {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return "", err
		}
		prompt := "Summarize the following agent outputs into a concise paragraph " +
			"(max 150 words). Keep key decisions and results.\n\n" + string(data)

		resp, err := m.Generate(ctx, model.Request{
			Messages: []model.Message{model.UserMessage(prompt)},
		})
		if err != nil {
			return "", err
		}
		if resp.Empty() {
			return "", fmt.Errorf("compression model returned an empty response")
		}
		return resp.Message.Content, nil
	}
}

// Options configures a Controller.
type Options struct {
	// Compressor summarizes overflowing short memory. Nil means truncation only.
	Compressor Compressor
	Logger     logging.Logger
}

// Controller maintains the two-tier run memory shared across a multi-agent
// run: a bounded recent short window with exact fidelity, and an append-only
// long history. Once the serialized short window exceeds maxContextChars,
// older entries degrade to a single compressed summary entry; the window
// never exceeds windowSize entries.
//
// A Controller is owned by a single orchestrator run and is not safe for
// concurrent use.
type Controller struct {
	windowSize      int
	maxContextChars int
	compress        Compressor
	logger          logging.Logger

	short []ShortEntry
	long  []LongEntry
}

// NewController creates a memory controller with the given short-window entry
// bound and serialized short-memory character bound.
func NewController(windowSize, maxContextChars int, optFns ...func(o *Options)) *Controller {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if windowSize < 1 {
		windowSize = 1
	}

	return &Controller{
		windowSize:      windowSize,
		maxContextChars: maxContextChars,
		compress:        opts.Compressor,
		logger:          opts.Logger,
	}
}

// Record appends output to long memory unconditionally and to the short
// window, then enforces both bounds.
func (c *Controller) Record(ctx context.Context, agentName, output string) {
	long := LongEntry{Agent: agentName, Output: output}
	if c.compress != nil {
		summary, err := c.compress(ctx, []ShortEntry{{Agent: agentName, Preview: clip(output, 2*PreviewChars)}})
		if err != nil {
			c.logger.Debug("memory.compress.long_failed", "agent", agentName, "error", err.Error())
		} else {
			long.Summary = summary
		}
	}
	c.long = append(c.long, long)

	c.short = append(c.short, ShortEntry{Agent: agentName, Preview: clip(output, PreviewChars)})
	c.enforce(ctx)
}

// enforce applies the short-window bounds: entry-count truncation while the
// serialized window fits, compression of everything but the freshest
// windowSize entries once it does not, and forced truncation as the final
// safety net.
func (c *Controller) enforce(ctx context.Context) {
	if c.serializedShortLen() <= c.maxContextChars {
		c.truncateShort()
		return
	}

	// The synthetic summary entry takes the oldest window slot, so only
	// windowSize-1 fresh entries survive compression.
	keep := c.windowSize - 1
	if len(c.short) > keep+1 {
		old := c.short[:len(c.short)-keep]
		tail := c.short[len(c.short)-keep:]

		summary := c.summarize(ctx, old)
		window := make([]ShortEntry, 0, c.windowSize)
		window = append(window, ShortEntry{Agent: "memory", Preview: clip(summary, PreviewChars), Compressed: true})
		window = append(window, tail...)
		c.short = window
	}

	c.truncateShort()
}

// summarize compresses old entries via the collaborator, falling back to
// deterministic truncation when none is configured or it fails.
func (c *Controller) summarize(ctx context.Context, entries []ShortEntry) string {
	if c.compress != nil {
		summary, err := c.compress(ctx, entries)
		if err == nil && summary != "" {
			return summary
		}
		if err != nil {
			c.logger.Warn("memory.compress.failed", "entries", len(entries), "error", err.Error())
		}
	}
	return FallbackSummary(entries)
}

// FallbackSummary deterministically truncates entries into a single line.
func FallbackSummary(entries []ShortEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Agent, clip(e.Preview, fallbackEntryChars)))
	}
	return strings.Join(parts, " | ")
}

func (c *Controller) truncateShort() {
	if len(c.short) > c.windowSize {
		c.short = c.short[len(c.short)-c.windowSize:]
	}
}

func (c *Controller) serializedShortLen() int {
	data, err := json.Marshal(c.short)
	if err != nil {
		return 0
	}
	return len(data)
}

// Short returns a copy of the current short window, most recent last.
func (c *Controller) Short() []ShortEntry {
	out := make([]ShortEntry, len(c.short))
	copy(out, c.short)
	return out
}

// Long returns a copy of the long history, in record order.
func (c *Controller) Long() []LongEntry {
	out := make([]LongEntry, len(c.long))
	copy(out, c.long)
	return out
}

// Last returns the most recent long entry.
func (c *Controller) Last() (LongEntry, bool) {
	if len(c.long) == 0 {
		return LongEntry{}, false
	}
	return c.long[len(c.long)-1], true
}

// Reset clears both memory tiers.
func (c *Controller) Reset() {
	c.short = nil
	c.long = nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
