// Package registry is the in-process Tool Registry (spec.md §4.2
// "Tool Registry"): the authoritative map of tool_id to a live Adapter,
// concurrency-safe for Register/Deregister racing Lookup/List/Filter.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/scanio-git/orchestrator/internal/adapter"
	"github.com/scanio-git/orchestrator/internal/capability"
)

// entry pairs a registered adapter with its in-flight call count so
// Deregister can refuse to evict a tool mid-execution.
type entry struct {
	adapter  adapter.Adapter
	inFlight int
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a with its descriptor's tool_id. Re-registering an
// existing tool_id replaces the adapter only if it has no in-flight
// calls, matching spec.md §4.2's "registration is a point-in-time
// replace, not a merge" note.
func (r *Registry) Register(a adapter.Adapter) error {
	d := a.Describe()
	if err := d.Validate(); err != nil {
		return fmt.Errorf("registry: refusing invalid descriptor for %s: %w", d.ToolID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[d.ToolID]; ok && existing.inFlight > 0 {
		return fmt.Errorf("registry: tool %s has %d in-flight call(s), cannot replace", d.ToolID, existing.inFlight)
	}
	r.entries[d.ToolID] = &entry{adapter: a}
	return nil
}

// Deregister removes toolID. It fails if the tool has in-flight calls.
func (r *Registry) Deregister(toolID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[toolID]
	if !ok {
		return fmt.Errorf("registry: tool %s not registered", toolID)
	}
	if e.inFlight > 0 {
		return fmt.Errorf("registry: tool %s has %d in-flight call(s), cannot deregister", toolID, e.inFlight)
	}
	delete(r.entries, toolID)
	return nil
}

// Lookup returns the adapter registered under toolID.
func (r *Registry) Lookup(toolID string) (adapter.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[toolID]
	if !ok {
		return nil, false
	}
	return e.adapter, true
}

// Acquire marks toolID as having one more in-flight call, guarding
// against a concurrent Deregister evicting it mid-call. Release must be
// called exactly once for every successful Acquire.
func (r *Registry) Acquire(toolID string) (adapter.Adapter, func(), error) {
	r.mu.Lock()
	e, ok := r.entries[toolID]
	if !ok {
		r.mu.Unlock()
		return nil, nil, fmt.Errorf("registry: tool %s not registered", toolID)
	}
	e.inFlight++
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		e.inFlight--
		r.mu.Unlock()
	}
	return e.adapter, release, nil
}

// List returns every registered descriptor, sorted by tool_id for
// deterministic tools/list responses.
func (r *Registry) List() []capability.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]capability.Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.adapter.Describe())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out
}

// Filter narrows List by category, target language, and/or CWE, any of
// which may be left zero-valued to mean "don't filter on this".
type Filter struct {
	Category capability.Category
	Language string
	CWE      int
}

// Filter returns descriptors matching every non-zero field of f.
func (r *Registry) Filter(f Filter) []capability.Descriptor {
	all := r.List()
	out := make([]capability.Descriptor, 0, len(all))
	for _, d := range all {
		if f.Category != "" && d.Category != f.Category {
			continue
		}
		if f.Language != "" && !d.SupportsLanguage(f.Language) {
			continue
		}
		if f.CWE != 0 && !d.CoversCWE(f.CWE) {
			continue
		}
		out = append(out, d)
	}
	return out
}
