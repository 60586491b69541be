package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/midas/pkg/core"
)

const (
	elevenLabsDefaultWSBase = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"
	elevenLabsModel         = "eleven_flash_v2_5"
)

// ElevenLabsProvider synthesizes over the ElevenLabs stream-input websocket
// and collects the audio into one buffer.
type ElevenLabsProvider struct {
	apiKey    string
	wsBaseURL string
	voice     string
	dialer    *websocket.Dialer
}

// ElevenLabsOption configures an ElevenLabsProvider.
type ElevenLabsOption func(*ElevenLabsProvider)

// WithElevenLabsWSBaseURL overrides the websocket endpoint. "{voice_id}" is
// substituted.
func WithElevenLabsWSBaseURL(base string) ElevenLabsOption {
	return func(e *ElevenLabsProvider) {
		if base = strings.TrimSpace(base); base != "" {
			e.wsBaseURL = base
		}
	}
}

// WithElevenLabsVoice sets the voice used when SynthesizeOptions.Voice is empty.
func WithElevenLabsVoice(voice string) ElevenLabsOption {
	return func(e *ElevenLabsProvider) { e.voice = strings.TrimSpace(voice) }
}

// NewElevenLabs creates an ElevenLabs TTS provider.
func NewElevenLabs(apiKey string, opts ...ElevenLabsOption) *ElevenLabsProvider {
	e := &ElevenLabsProvider{
		apiKey:    strings.TrimSpace(apiKey),
		wsBaseURL: elevenLabsDefaultWSBase,
		dialer:    websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the provider identifier.
func (e *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

// Synthesize sends text followed by a flush and reads audio frames until the
// server marks the stream final.
func (e *ElevenLabsProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if e.apiKey == "" {
		return nil, core.NewInvalidRequestError("elevenlabs api key is required")
	}
	voiceID := strings.TrimSpace(opts.Voice)
	if voiceID == "" {
		voiceID = e.voice
	}
	if voiceID == "" {
		return nil, core.NewInvalidRequestErrorWithParam("voice id is required", "voice")
	}
	wsURL, err := buildElevenLabsWSURL(e.wsBaseURL, voiceID, opts)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", e.apiKey)
	conn, resp, err := e.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, core.NewHTTPError("elevenlabs", resp.StatusCode, err.Error())
		}
		return nil, core.NewProviderError("elevenlabs", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	}
	// The first message must carry a single space to open the stream.
	msgs := []map[string]any{
		{"text": " "},
		{"text": withTrailingSpace(text)},
		{"text": "", "flush": true},
	}
	for _, m := range msgs {
		if err := conn.WriteJSON(m); err != nil {
			return nil, core.NewProviderError("elevenlabs", fmt.Errorf("write: %w", err))
		}
	}

	out := &Synthesis{Format: elevenLabsFormat(opts), SampleRate: sampleRate(opts)}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return out, nil
			}
			return nil, core.NewProviderError("elevenlabs", fmt.Errorf("read: %w", err))
		}
		var msg elevenLabsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return nil, core.NewProviderError("elevenlabs", errors.New(msg.Error))
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("decode audio: %w", err)
			}
			out.Audio = append(out.Audio, chunk...)
		}
		if msg.final() {
			return out, nil
		}
	}
}

type elevenLabsMessage struct {
	Audio    string `json:"audio"`
	IsFinal  *bool  `json:"isFinal"`
	IsFinal2 *bool  `json:"is_final"`
	Error    string `json:"error"`
}

func (m elevenLabsMessage) final() bool {
	return (m.IsFinal != nil && *m.IsFinal) || (m.IsFinal2 != nil && *m.IsFinal2)
}

func withTrailingSpace(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	return text + " "
}

// elevenLabsFormat is "mp3" when requested, otherwise raw PCM.
func elevenLabsFormat(opts SynthesizeOptions) string {
	if getFormat(opts.Format) == "mp3" {
		return "mp3"
	}
	return "pcm"
}

func buildElevenLabsWSURL(base, voiceID string, opts SynthesizeOptions) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = elevenLabsDefaultWSBase
	}
	base = strings.ReplaceAll(base, "{voice_id}", url.PathEscape(voiceID))
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input"
	}
	q := u.Query()
	if q.Get("model_id") == "" {
		q.Set("model_id", elevenLabsModel)
	}
	if q.Get("output_format") == "" {
		if elevenLabsFormat(opts) == "mp3" {
			q.Set("output_format", "mp3_44100_128")
		} else {
			q.Set("output_format", "pcm_"+strconv.Itoa(sampleRate(opts)))
		}
	}
	if opts.Language != "" && q.Get("language_code") == "" {
		q.Set("language_code", opts.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
