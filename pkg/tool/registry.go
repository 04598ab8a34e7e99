package tool

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry is the central directory of available tools. A name maps to
// exactly one instance; re-registration under a taken name is rejected.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
	log   *logrus.Logger
}

// NewRegistry returns an empty registry. The logger may be nil.
func NewRegistry(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		tools: make(map[string]Tool),
		log:   log,
	}
}

// Register adds a tool under the given name.
func (r *Registry) Register(name string, t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return NewError(fmt.Sprintf("tool %q is already registered", name), "DUPLICATE_TOOL")
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	r.log.WithField("tool", name).Info("registered tool")
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, NewError(fmt.Sprintf("tool %q not found in registry", name), "TOOL_NOT_FOUND")
	}
	return t, nil
}

// Unregister removes the tool registered under name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return NewError(fmt.Sprintf("cannot unregister tool %q: not found in registry", name), "TOOL_NOT_FOUND")
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.log.WithField("tool", name).Info("unregistered tool")
	return nil
}

// List returns the registered tool names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Contains reports whether a tool is registered under name.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Clear removes every tool from the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]Tool)
	r.order = nil
	r.log.Info("cleared tool registry")
}

// Info returns the capabilities of a single tool, or of all tools when
// name is empty.
func (r *Registry) Info(name string) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name != "" {
		t, ok := r.tools[name]
		if !ok {
			return nil, NewError(fmt.Sprintf("tool %q not found in registry", name), "TOOL_NOT_FOUND")
		}
		return t.Capabilities(), nil
	}
	all := make(map[string]any, len(r.tools))
	for n, t := range r.tools {
		all[n] = t.Capabilities()
	}
	return all, nil
}
