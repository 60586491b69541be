package core

import (
	"context"
	"sort"
	"sync"

	"github.com/vango-go/midas/pkg/core/types"
)

// ChatProvider is the interface every vision chat backend implements.
type ChatProvider interface {
	// Name returns the provider identifier (e.g., "openai", "gemini").
	Name() string

	// Chat sends one stateless request carrying the full history.
	Chat(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error)
}

// ChatFunc adapts a function to ChatProvider. It is mostly useful in tests.
type ChatFunc func(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error)

func (f ChatFunc) Name() string { return "func" }

func (f ChatFunc) Chat(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	return f(ctx, req)
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(provider ChatProvider)

	// Get returns a provider by name.
	Get(name string) (ChatProvider, bool)

	// List returns all registered provider names.
	List() []string
}

type defaultRegistry struct {
	mu        sync.RWMutex
	providers map[string]ChatProvider
}

// NewProviderRegistry creates a new provider registry.
func NewProviderRegistry() ProviderRegistry {
	return &defaultRegistry{providers: make(map[string]ChatProvider)}
}

func (r *defaultRegistry) Register(provider ChatProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

func (r *defaultRegistry) Get(name string) (ChatProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

func (r *defaultRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
