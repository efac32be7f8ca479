// Package runner drives the traffic generators that exercise a target
// through the capture proxy before a scan.
package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "authfuzz/pkg/errors"
)

// Generator produces authenticated traffic against baseURL. Everything it
// sends must go through the capture proxy so the normalizer can see it.
type Generator interface {
	Generate(ctx context.Context, baseURL string) error
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, baseURL string) error

func (f GeneratorFunc) Generate(ctx context.Context, baseURL string) error {
	return f(ctx, baseURL)
}

// Registry maps target ids to their generators.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
}

func NewRegistry() *Registry {
	return &Registry{generators: make(map[string]Generator)}
}

func (r *Registry) Register(target string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[target] = g
}

func (r *Registry) Get(target string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[target]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownTarget, target)
	}
	return g, nil
}

// Targets lists registered target ids in sorted order.
func (r *Registry) Targets() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.generators))
	for t := range r.generators {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
