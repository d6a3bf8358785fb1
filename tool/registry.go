package tool

// Registry is an insertion-ordered collection of named tools. Iteration order
// matches registration order, which keeps derived schema lists deterministic.
//
// A Registry is not safe for concurrent mutation; orchestrators never share
// one across goroutines and capability overlays work on clones.
type Registry struct {
	names   []string
	entries map[string]Tool
}

// NewRegistry creates a Registry pre-populated with the given tools in order.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{entries: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool, replacing any existing tool with the same name while
// keeping its original position.
func (r *Registry) Register(t Tool) {
	if _, exists := r.entries[t.Name()]; !exists {
		r.names = append(r.names, t.Name())
	}
	r.entries[t.Name()] = t
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.entries[name]
	return t, ok
}

// Remove deletes a tool by name. Returns true if the tool was registered.
func (r *Registry) Remove(name string) bool {
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	for i, n := range r.names {
		if n == name {
			r.names = append(r.names[:i], r.names[i+1:]...)
			break
		}
	}
	return true
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.names) }

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.entries[name])
	}
	return out
}

// Clone returns an order-preserving shallow copy. Mutating the clone leaves
// the original untouched, which is how capability overlays stay isolated.
func (r *Registry) Clone() *Registry {
	clone := &Registry{
		names:   make([]string, len(r.names)),
		entries: make(map[string]Tool, len(r.entries)),
	}
	copy(clone.names, r.names)
	for name, t := range r.entries {
		clone.entries[name] = t
	}
	return clone
}
