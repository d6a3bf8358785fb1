// Package memory implements the two-tier run memory shared across a
// multi-agent run. Short memory is a bounded recent window with exact
// fidelity; long memory is append-only history, optionally summarized by a
// compression collaborator. Bounds keep prompt size finite while recent steps
// stay verbatim and older context degrades gracefully to summary form.
package memory
