// Package hooks holds the post-scan hooks that can be enabled by name.
package hooks

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"authfuzz/pkg/engine"
	"authfuzz/pkg/logger"
)

// Options carries the per-application settings a hook may need.
type Options struct {
	// ReportsDir is where file-writing hooks put their output.
	ReportsDir string
}

// Factory builds a hook instance. Hooks that need external credentials may
// fail here, which keeps a misconfigured hook out of the scan entirely.
type Factory func(opts Options) (engine.Hook, error)

var (
	registryMu   sync.RWMutex
	hookRegistry = make(map[string]Factory)
)

func RegisterHook(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := hookRegistry[name]; exists {
		logger.Errorf("hook %s already registered, replacing", name)
	}
	hookRegistry[name] = f
}

func GetHook(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := hookRegistry[name]
	return f, ok
}

func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(hookRegistry))
	for n := range hookRegistry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build instantiates the named hooks in order.
func Build(opts Options, names ...string) ([]engine.Hook, error) {
	var out []engine.Hook
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		f, ok := GetHook(name)
		if !ok {
			return nil, fmt.Errorf("unknown hook %q (available: %s)", name, strings.Join(Registered(), ", "))
		}
		h, err := f(opts)
		if err != nil {
			return nil, fmt.Errorf("hook %s: %w", name, err)
		}
		out = append(out, h)
	}
	return out, nil
}
