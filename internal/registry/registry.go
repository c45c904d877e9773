// Package registry maps agent names to constructors and caches the built
// instances, so the orchestrator can assemble its pool from configuration.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/codeguard-dev/codeguard/internal/analysis/core"
	"github.com/codeguard-dev/codeguard/internal/analysis/perf"
	"github.com/codeguard-dev/codeguard/internal/analysis/quality"
	"github.com/codeguard-dev/codeguard/internal/analysis/security"
	"github.com/codeguard-dev/codeguard/internal/analysis/style"
)

// ErrUnknownAgent is returned when a name has no registered constructor.
var ErrUnknownAgent = errors.New("unknown agent")

// Constructor builds an agent from shared dependencies.
type Constructor func(core.Deps) core.Agent

// Registry holds the known agent constructors plus one cached instance per
// name. Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	deps         core.Deps
	constructors map[string]Constructor
	instances    map[string]core.Agent
	order        []string
}

// New returns an empty registry bound to the given dependencies.
func New(deps core.Deps) *Registry {
	return &Registry{
		deps:         deps,
		constructors: make(map[string]Constructor),
		instances:    make(map[string]core.Agent),
	}
}

// Default returns a registry preloaded with the four built-in agents.
func Default(deps core.Deps) *Registry {
	r := New(deps)
	r.Register("security", security.New)
	r.Register("quality", func(d core.Deps) core.Agent { return quality.New(d) })
	r.Register("style", func(d core.Deps) core.Agent { return style.New(d) })
	r.Register("performance", perf.New)
	return r
}

// Register adds or replaces the constructor for name. Replacing drops any
// cached instance so the next Get rebuilds it.
func (r *Registry) Register(name string, build Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[name]; !exists {
		r.order = append(r.order, name)
	}
	r.constructors[name] = build
	delete(r.instances, name)
}

// Unregister removes a constructor and its cached instance. Unknown names
// are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constructors[name]; !exists {
		return
	}
	delete(r.constructors, name)
	delete(r.instances, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Names lists the registered agent names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Create builds a fresh, uncached instance of the named agent.
func (r *Registry) Create(name string) (core.Agent, error) {
	r.mu.RLock()
	build, ok := r.constructors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	return build(r.deps), nil
}

// Get returns the cached instance for name, constructing it on first use.
func (r *Registry) Get(name string) (core.Agent, error) {
	r.mu.RLock()
	if agent, ok := r.instances[name]; ok {
		r.mu.RUnlock()
		return agent, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.instances[name]; ok {
		return agent, nil
	}
	build, ok := r.constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	agent := build(r.deps)
	r.instances[name] = agent
	return agent, nil
}

// All returns one instance per registered agent, in registration order.
// With onlyEnabled set, disabled agents are skipped.
func (r *Registry) All(onlyEnabled bool) []core.Agent {
	names := r.Names()
	agents := make([]core.Agent, 0, len(names))
	for _, name := range names {
		agent, err := r.Get(name)
		if err != nil {
			continue
		}
		if onlyEnabled && !agent.Enabled() {
			continue
		}
		agents = append(agents, agent)
	}
	return agents
}

// SortedNames lists the registered names alphabetically, for stable display.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}
