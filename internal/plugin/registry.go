package plugin

import (
	"fmt"
	"sort"
	"sync"

	"groupbot/internal/command"
)

// Registry stores the loaded plugins, keyed both by plugin name and by the
// entry command's name. It is an explicit value constructed by the host at
// startup and passed by reference into the dispatcher's collaborators; the
// engine holds no process-wide registry state.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Plugin
	byEntry map[string]Plugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:  make(map[string]Plugin),
		byEntry: make(map[string]Plugin),
	}
}

// Register adds a plugin. It fails at load time when the plugin name or
// entry command name is empty or already taken, or when the entry point is
// neither a Root nor a Leaf.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Name() == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}
	entry := p.Entry()
	if entry == nil {
		return fmt.Errorf("plugin %s has no command entry", p.Name())
	}
	if entry.Name() == "" {
		return fmt.Errorf("plugin %s: entry command name cannot be empty", p.Name())
	}
	switch entry.(type) {
	case *command.Root, *command.Leaf:
	default:
		return fmt.Errorf("plugin %s: entry %q must be a Root or Leaf command", p.Name(), entry.Name())
	}

	if _, exists := r.byName[p.Name()]; exists {
		return fmt.Errorf("plugin %s already registered", p.Name())
	}
	if other, exists := r.byEntry[entry.Name()]; exists {
		return fmt.Errorf("command %q already claimed by plugin %s", entry.Name(), other.Name())
	}

	r.byName[p.Name()] = p
	r.byEntry[entry.Name()] = p
	return nil
}

// Get retrieves a plugin by plugin name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Lookup retrieves the plugin whose entry command matches the given name.
// This is how the host maps an inbound message's first token to a plugin.
func (r *Registry) Lookup(entryName string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byEntry[entryName]
	return p, ok
}

// All returns the registered plugins sorted by plugin name.
func (r *Registry) All() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Plugin, 0, len(r.byName))
	for _, p := range r.byName {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}
