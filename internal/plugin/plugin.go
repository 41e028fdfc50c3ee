package plugin

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnknownPlugin indicates a descriptor names a plugin that is not registered.
	ErrUnknownPlugin = errors.New("unknown plugin")
	// ErrDuplicatePlugin indicates a factory was registered twice under the same name.
	ErrDuplicatePlugin = errors.New("plugin already registered")
)

// Descriptor declares one bundler plugin and its options. Descriptors are opaque
// to the loader; only the registered factory interprets Options.
type Descriptor struct {
	Name    string         `json:"name" yaml:"name" koanf:"name"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty" koanf:"options"`
}

// Plugin is an initialised transform the external bundler will apply.
type Plugin interface {
	Name() string
	Setup(root string) error
}

// Factory builds a Plugin from descriptor options.
type Factory func(options map[string]any) (Plugin, error)

// InitError reports which descriptor failed during Init. Err carries the
// plugin's own message untouched.
type InitError struct {
	Index  int
	Plugin string
	Err    error
}

func (e *InitError) Error() string {
	return e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Registry maps plugin names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in plugins.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(ReactName, NewReact)
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("plugin %q: nil factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, name)
	}
	r.factories[name] = factory
	return nil
}

// Names returns the registered plugin names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Init builds and sets up every descriptor in declaration order and stops at
// the first failure. Unknown names fail with ErrUnknownPlugin before any
// factory runs; factory and Setup failures come back as *InitError.
func (r *Registry) Init(root string, descriptors []Descriptor) ([]Plugin, error) {
	for _, d := range descriptors {
		if !r.Has(d.Name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPlugin, d.Name)
		}
	}

	plugins := make([]Plugin, 0, len(descriptors))
	for i, d := range descriptors {
		r.mu.RLock()
		factory := r.factories[d.Name]
		r.mu.RUnlock()

		p, err := factory(d.Options)
		if err != nil {
			return nil, &InitError{Index: i, Plugin: d.Name, Err: err}
		}
		if err := p.Setup(root); err != nil {
			return nil, &InitError{Index: i, Plugin: d.Name, Err: err}
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// CloneDescriptors returns a deep copy of descriptors so callers cannot reach
// into another snapshot's option maps.
func CloneDescriptors(src []Descriptor) []Descriptor {
	if src == nil {
		return nil
	}
	out := make([]Descriptor, len(src))
	for i, d := range src {
		out[i] = Descriptor{Name: d.Name, Options: cloneOptions(d.Options)}
	}
	return out
}

func cloneOptions(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneOptions(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
