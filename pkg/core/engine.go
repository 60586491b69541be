package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/vango-go/midas/pkg/core/types"
)

// Engine routes chat requests to a provider by the "provider/model" prefix
// of the request's model string.
type Engine struct {
	registry     ProviderRegistry
	defaultModel string
}

// NewEngine creates an Engine. defaultModel is used for requests that leave
// Model empty.
func NewEngine(defaultModel string) *Engine {
	return &Engine{
		registry:     NewProviderRegistry(),
		defaultModel: strings.TrimSpace(defaultModel),
	}
}

// RegisterProvider adds a provider to the engine.
func (e *Engine) RegisterProvider(provider ChatProvider) {
	e.registry.Register(provider)
}

// GetProvider returns a provider by name.
func (e *Engine) GetProvider(name string) (ChatProvider, bool) {
	return e.registry.Get(name)
}

// ProviderNames returns the list of registered provider names.
func (e *Engine) ProviderNames() []string {
	return e.registry.List()
}

// Name identifies the engine when it is used as a ChatProvider.
func (e *Engine) Name() string { return "engine" }

// Chat routes the request to the appropriate provider.
func (e *Engine) Chat(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	if req == nil {
		return nil, NewInvalidRequestError("request is required")
	}
	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = e.defaultModel
	}
	providerName, modelName, err := ParseModelString(model)
	if err != nil {
		return nil, err
	}
	provider, ok := e.registry.Get(providerName)
	if !ok {
		return nil, NewProviderError(providerName, fmt.Errorf("provider not registered"))
	}

	reqCopy := *req
	reqCopy.Model = modelName
	resp, err := provider.Chat(ctx, &reqCopy)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = modelName
	}
	return resp, nil
}

// ParseModelString parses a model string in the format "provider/model-name".
func ParseModelString(model string) (provider string, modelName string, err error) {
	parts := strings.SplitN(strings.TrimSpace(model), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", NewInvalidRequestErrorWithParam(
			fmt.Sprintf("invalid model format: %q, expected 'provider/model-name'", model),
			"model",
		)
	}
	return parts[0], parts[1], nil
}
