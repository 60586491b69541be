// Package voice binds an STT and a TTS provider into the two speech calls a
// repair turn makes.
package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vango-go/midas/pkg/core/voice/stt"
	"github.com/vango-go/midas/pkg/core/voice/tts"
)

// ErrNoProvider is returned when the requested direction is not configured.
var ErrNoProvider = errors.New("voice: provider not configured")

// Audio is one recorded utterance.
type Audio struct {
	Data      []byte
	MediaType string // e.g. "audio/wav"; empty means wav
}

// Config carries provider options for both directions.
type Config struct {
	STTModel    string
	Language    string
	SampleRate  int // input sample rate, used for raw PCM
	Voice       string
	Speed       float64
	Format      string // output format
	OutputRate  int
	Emotion     string
	WordOffsets bool
}

// Pipeline handles STT and TTS for repair turns. Either provider may be nil.
type Pipeline struct {
	sttProvider stt.Provider
	ttsProvider tts.Provider
	cfg         Config
}

// NewPipeline creates a pipeline over the given providers.
func NewPipeline(sttProvider stt.Provider, ttsProvider tts.Provider, cfg Config) *Pipeline {
	return &Pipeline{sttProvider: sttProvider, ttsProvider: ttsProvider, cfg: cfg}
}

// STTProvider returns the current STT provider.
func (p *Pipeline) STTProvider() stt.Provider {
	return p.sttProvider
}

// TTSProvider returns the current TTS provider.
func (p *Pipeline) TTSProvider() tts.Provider {
	return p.ttsProvider
}

// CanSpeak reports whether a TTS provider is configured.
func (p *Pipeline) CanSpeak() bool {
	return p != nil && p.ttsProvider != nil
}

// Transcribe returns the trimmed transcript of audio.
func (p *Pipeline) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if p == nil || p.sttProvider == nil {
		return "", ErrNoProvider
	}
	if len(audio.Data) == 0 {
		return "", nil
	}
	tr, err := p.sttProvider.Transcribe(ctx, bytes.NewReader(audio.Data), stt.TranscribeOptions{
		Model:      p.cfg.STTModel,
		Language:   p.cfg.Language,
		Format:     FormatFromMediaType(audio.MediaType),
		SampleRate: p.cfg.SampleRate,
		Timestamps: p.cfg.WordOffsets,
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if tr == nil {
		return "", nil
	}
	return strings.TrimSpace(tr.Text), nil
}

// Synthesize converts a reply to audio. Empty text yields an empty
// synthesis without calling the provider.
func (p *Pipeline) Synthesize(ctx context.Context, text string) (*tts.Synthesis, error) {
	if p == nil || p.ttsProvider == nil {
		return nil, ErrNoProvider
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return &tts.Synthesis{}, nil
	}
	syn, err := p.ttsProvider.Synthesize(ctx, text, tts.SynthesizeOptions{
		Voice:      p.cfg.Voice,
		Speed:      p.cfg.Speed,
		Emotion:    p.cfg.Emotion,
		Language:   p.cfg.Language,
		Format:     p.cfg.Format,
		SampleRate: p.cfg.OutputRate,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return syn, nil
}

// FormatFromMediaType maps an audio MIME type to a provider format hint.
func FormatFromMediaType(mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "audio/wav", "audio/wave", "audio/x-wav":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	case "audio/flac":
		return "flac"
	case "audio/m4a", "audio/mp4":
		return "m4a"
	case "audio/pcm", "audio/l16":
		return "pcm_s16le"
	default:
		return "wav"
	}
}

// MediaTypeForFormat is the inverse used when audio leaves the process.
func MediaTypeForFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "mp3":
		return "audio/mpeg"
	case "pcm", "raw":
		return "audio/pcm"
	default:
		return "audio/wav"
	}
}

// MediaTypeForPath guesses an audio MIME type from a file extension.
func MediaTypeForPath(path string) string {
	p := strings.ToLower(path)
	for ext, mt := range map[string]string{
		".mp3": "audio/mpeg", ".webm": "audio/webm", ".ogg": "audio/ogg",
		".oga": "audio/ogg", ".flac": "audio/flac", ".m4a": "audio/m4a",
		".pcm": "audio/pcm", ".raw": "audio/pcm",
	} {
		if strings.HasSuffix(p, ext) {
			return mt
		}
	}
	return "audio/wav"
}
