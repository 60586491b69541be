// Package openai implements vision chat on the OpenAI Chat Completions API.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/vango-go/midas/pkg/core"
	"github.com/vango-go/midas/pkg/core/types"
)

const (
	// DefaultModel is used when a request names no model.
	DefaultModel = "gpt-4o"

	// DefaultMaxTokens is the default max tokens if not specified.
	DefaultMaxTokens = 1024
)

// Provider implements core.ChatProvider on OpenAI.
type Provider struct {
	client     openai.Client
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// Option configures the Provider.
type Option func(*Provider)

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimSpace(url)
	}
}

// WithHTTPClient sets the HTTP client for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithMaxRetries sets the SDK's retry budget. Default 0: a failed turn is
// reported to the user rather than retried.
func WithMaxRetries(n int) Option {
	return func(p *Provider) {
		p.maxRetries = n
	}
}

// New creates a new OpenAI provider.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithMaxRetries(p.maxRetries),
	}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(p.httpClient))
	}
	p.client = openai.NewClient(reqOpts...)
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "openai"
}

// Chat sends the history and any attached images in one completion call.
func (p *Provider) Chat(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, core.NewProviderError("openai", errors.New("response has no choices"))
	}
	choice := resp.Choices[0]
	return &types.ChatResponse{
		ID:         resp.ID,
		Model:      resp.Model,
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: stopReason(choice.FinishReason),
		Usage: types.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

func stopReason(finish string) types.StopReason {
	switch finish {
	case "length":
		return types.StopReasonMaxTokens
	case "content_filter":
		return types.StopReasonFiltered
	default:
		return types.StopReasonEndTurn
	}
}

func convertError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		ce := core.NewHTTPError("openai", apiErr.StatusCode, apiErr.Message)
		ce.Code = apiErr.Code
		return ce
	}
	return core.NewProviderError("openai", err)
}
