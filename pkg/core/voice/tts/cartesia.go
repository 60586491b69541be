package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vango-go/midas/pkg/core"
)

const (
	cartesiaBaseURL = "https://api.cartesia.ai"
	cartesiaVersion = "2025-04-16"
	cartesiaModel   = "sonic-3"
)

// Default voice ID - users should provide their own voice IDs
const defaultVoiceID = "a0e99841-438c-4a64-b679-ae501e7d6091"

// CartesiaProvider synthesizes through Cartesia's /tts/bytes endpoint.
type CartesiaProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// CartesiaOption configures a CartesiaProvider.
type CartesiaOption func(*CartesiaProvider)

// WithCartesiaBaseURL overrides the API endpoint.
func WithCartesiaBaseURL(u string) CartesiaOption {
	return func(c *CartesiaProvider) { c.baseURL = strings.TrimRight(strings.TrimSpace(u), "/") }
}

// WithCartesiaHTTPClient sets the HTTP client.
func WithCartesiaHTTPClient(client *http.Client) CartesiaOption {
	return func(c *CartesiaProvider) { c.httpClient = client }
}

// NewCartesia creates a Cartesia TTS provider.
func NewCartesia(apiKey string, opts ...CartesiaOption) *CartesiaProvider {
	c := &CartesiaProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    cartesiaBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider identifier.
func (c *CartesiaProvider) Name() string {
	return "cartesia"
}

// Synthesize converts text to audio in a single request.
func (c *CartesiaProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	voiceID := opts.Voice
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	reqBody := cartesiaTTSRequest{
		ModelID:      cartesiaModel,
		Transcript:   text,
		Voice:        cartesiaVoiceSpec{Mode: "id", ID: voiceID},
		OutputFormat: buildOutputFormat(opts),
	}
	if opts.Speed != 0 || opts.Volume != 0 || opts.Emotion != "" {
		reqBody.GenerationConfig = &cartesiaGenerationConfig{
			Speed:   opts.Speed,
			Volume:  opts.Volume,
			Emotion: opts.Emotion,
		}
	}
	if opts.Language != "" {
		reqBody.Language = &opts.Language
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts/bytes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.NewProviderError("cartesia", err)
	}
	defer resp.Body.Close()

	out := &Synthesis{Format: getFormat(opts.Format), SampleRate: sampleRate(opts)}
	if resp.StatusCode == http.StatusNoContent {
		return out, nil
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.NewHTTPError("cartesia", resp.StatusCode, string(errBody))
	}
	out.Audio, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return out, nil
}

type cartesiaTTSRequest struct {
	ModelID          string                    `json:"model_id"`
	Transcript       string                    `json:"transcript"`
	Voice            cartesiaVoiceSpec         `json:"voice"`
	OutputFormat     cartesiaOutputFormat      `json:"output_format"`
	Language         *string                   `json:"language,omitempty"`
	GenerationConfig *cartesiaGenerationConfig `json:"generation_config,omitempty"`
}

type cartesiaVoiceSpec struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

type cartesiaGenerationConfig struct {
	Speed   float64 `json:"speed,omitempty"`
	Volume  float64 `json:"volume,omitempty"`
	Emotion string  `json:"emotion,omitempty"`
}

func buildOutputFormat(opts SynthesizeOptions) cartesiaOutputFormat {
	rate := sampleRate(opts)
	switch getFormat(opts.Format) {
	case "mp3":
		return cartesiaOutputFormat{Container: "mp3", SampleRate: rate, BitRate: 128000}
	case "pcm":
		return cartesiaOutputFormat{Container: "raw", Encoding: "pcm_s16le", SampleRate: rate}
	default:
		return cartesiaOutputFormat{Container: "wav", Encoding: "pcm_s16le", SampleRate: rate}
	}
}
