package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vango-go/midas/pkg/core"
)

const (
	cartesiaBaseURL = "https://api.cartesia.ai"
	cartesiaVersion = "2025-04-16"
	cartesiaModel   = "ink-whisper"
)

// CartesiaProvider transcribes through Cartesia's batch /stt endpoint.
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

// NewCartesia creates a Cartesia STT provider.
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

// Transcribe uploads the recording as multipart form data.
func (c *CartesiaProvider) Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", "audio."+getExtension(opts.Format))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	model := opts.Model
	if model == "" {
		model = cartesiaModel
	}
	if err := mw.WriteField("model", model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if opts.Language != "" {
		if err := mw.WriteField("language", opts.Language); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}
	if opts.Timestamps {
		if err := mw.WriteField("timestamp_granularities[]", "word"); err != nil {
			return nil, fmt.Errorf("write timestamp field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	u, err := url.Parse(c.baseURL + "/stt")
	if err != nil {
		return nil, fmt.Errorf("cartesia url: %w", err)
	}
	q := u.Query()
	if encoding := getEncoding(opts.Format); encoding != "" {
		q.Set("encoding", encoding)
	}
	if opts.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.NewProviderError("cartesia", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, core.NewHTTPError("cartesia", resp.StatusCode, string(body))
	}

	var out cartesiaTranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return out.transcript(), nil
}

type cartesiaWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type cartesiaTranscriptionResponse struct {
	Text     string         `json:"text"`
	Language *string        `json:"language,omitempty"`
	Duration *float64       `json:"duration,omitempty"`
	Words    []cartesiaWord `json:"words,omitempty"`
}

func (r cartesiaTranscriptionResponse) transcript() *Transcript {
	t := &Transcript{Text: strings.TrimSpace(r.Text)}
	if r.Language != nil {
		t.Language = *r.Language
	}
	if r.Duration != nil {
		t.Duration = *r.Duration
	}
	for _, w := range r.Words {
		t.Words = append(t.Words, Word(w))
	}
	return t
}

func getExtension(format string) string {
	switch format {
	case "wav", "mp3", "webm", "ogg", "flac", "m4a", "mp4", "mpeg", "mpga", "oga":
		return format
	default:
		return "wav"
	}
}

// getEncoding returns the query encoding for raw PCM formats.
func getEncoding(format string) string {
	switch format {
	case "pcm_s16le", "pcm_s32le", "pcm_f16le", "pcm_f32le", "pcm_mulaw", "pcm_alaw":
		return format
	default:
		return ""
	}
}
