// Package model normalizes language model providers behind a synchronous
// Generate interface. The dispatch loop builds a Request from role-tagged
// messages plus optional tool declarations and sampling parameters; adapters
// translate to provider wire formats and back into a single Response.
package model
