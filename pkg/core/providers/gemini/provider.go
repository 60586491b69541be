// Package gemini implements vision chat on the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/midas/pkg/core"
	"github.com/vango-go/midas/pkg/core/types"
)

const (
	DefaultModel     = "gemini-2.5-flash"
	DefaultMaxTokens = 1024
)

// Provider implements core.ChatProvider on Gemini.
type Provider struct {
	client *genai.Client
}

// Option configures the Provider.
type Option func(*genai.ClientConfig)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *genai.ClientConfig) {
		c.HTTPOptions.BaseURL = strings.TrimSpace(url)
	}
}

// WithHTTPClient sets the HTTP client for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *genai.ClientConfig) {
		c.HTTPClient = client
	}
}

// New creates a Gemini provider backed by the Gemini Developer API.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Provider{client: client}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// Chat sends the history and any attached images in one GenerateContent call.
func (p *Provider) Chat(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	model, contents, cfg, err := buildRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Candidates) == 0 {
		return nil, core.NewProviderError("gemini", errors.New("response has no candidates"))
	}

	out := &types.ChatResponse{
		ID:         resp.ResponseID,
		Model:      resp.ModelVersion,
		Text:       strings.TrimSpace(resp.Text()),
		StopReason: stopReason(resp.Candidates[0].FinishReason),
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = types.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func buildRequest(req *types.ChatRequest) (string, []*genai.Content, *genai.GenerateContentConfig, error) {
	if req == nil {
		return "", nil, nil, core.NewInvalidRequestError("request is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = DefaultModel
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)}
	if sys := strings.TrimSpace(req.System); sys != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(sys)}}
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.WantsJSON() {
		cfg.ResponseMIMEType = "application/json"
	}

	var (
		contents []*genai.Content
		last     *genai.Content
	)
	for i, m := range req.Messages {
		role, parts, err := convMessage(m)
		if err != nil {
			return "", nil, nil, core.NewInvalidRequestErrorWithParam(err.Error(), fmt.Sprintf("messages[%d]", i))
		}
		// Gemini rejects consecutive turns with the same role.
		if last != nil && last.Role == role {
			last.Parts = append(last.Parts, parts...)
			continue
		}
		last = &genai.Content{Role: role, Parts: parts}
		contents = append(contents, last)
	}
	if len(contents) == 0 {
		return "", nil, nil, core.NewInvalidRequestErrorWithParam("at least one message is required", "messages")
	}
	return model, contents, cfg, nil
}

func convMessage(m types.Message) (string, []*genai.Part, error) {
	var role string
	switch m.Role {
	case types.RoleUser:
		role = string(genai.RoleUser)
	case types.RoleAssistant:
		role = string(genai.RoleModel)
	default:
		return "", nil, fmt.Errorf("unsupported role %q", m.Role)
	}

	var parts []*genai.Part
	if text := m.TextContent(); text != "" {
		parts = append(parts, genai.NewPartFromText(text))
	}
	for _, img := range m.Images() {
		if img.Source.Type == "url" {
			parts = append(parts, genai.NewPartFromURI(img.Source.URL, img.Source.MediaType))
			continue
		}
		data, err := img.Source.Bytes()
		if err != nil {
			return "", nil, fmt.Errorf("decode image: %w", err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, img.Source.MediaType))
	}
	if len(parts) == 0 {
		parts = append(parts, genai.NewPartFromText(""))
	}
	return role, parts, nil
}

func stopReason(r genai.FinishReason) types.StopReason {
	switch r {
	case genai.FinishReasonMaxTokens:
		return types.StopReasonMaxTokens
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return types.StopReasonFiltered
	default:
		return types.StopReasonEndTurn
	}
}

func convertError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		ce := core.NewHTTPError("gemini", apiErr.Code, apiErr.Message)
		if apiErr.Status != "" {
			ce.Code = apiErr.Status
		}
		return ce
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return core.NewHTTPError("gemini", apiErrPtr.Code, apiErrPtr.Message)
	}
	return core.NewProviderError("gemini", err)
}
