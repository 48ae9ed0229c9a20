package model

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// OpenOptions are passed to a back-end factory.
type OpenOptions struct {
	Config      *Config
	WeightsPath string
	Device      Device
}

// Factory constructs a Model from a resolved configuration.
type Factory func(OpenOptions) (Model, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// RegisterBackend makes a back-end available by name. It panics on a
// duplicate or nil registration, which is a programming error.
func RegisterBackend(name string, f Factory) {
	name = normalizeBackend(name)
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("model: RegisterBackend factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("model: RegisterBackend called twice for " + name)
	}
	registry[name] = f
}

// Backends lists registered back-end names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// OpenBackend constructs the named back-end.
func OpenBackend(name string, opts OpenOptions) (Model, error) {
	name = normalizeBackend(name)
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (available: %s)", name, strings.Join(Backends(), ", "))
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("backend %s: nil config", name)
	}
	dev, err := opts.Device.Resolve()
	if err != nil {
		return nil, err
	}
	opts.Device = dev
	return f(opts)
}

func normalizeBackend(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
