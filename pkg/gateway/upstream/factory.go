// Package upstream builds the external collaborators a repair session talks
// to from process configuration.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/midas/pkg/core"
	"github.com/vango-go/midas/pkg/core/audio/playback"
	"github.com/vango-go/midas/pkg/core/providers/gemini"
	"github.com/vango-go/midas/pkg/core/providers/openai"
	"github.com/vango-go/midas/pkg/core/voice"
	"github.com/vango-go/midas/pkg/core/voice/stt"
	"github.com/vango-go/midas/pkg/core/voice/tts"
	"github.com/vango-go/midas/pkg/gateway/config"
	"github.com/vango-go/midas/pkg/repair/camera"
	"github.com/vango-go/midas/pkg/repair/detect"
	"github.com/vango-go/midas/pkg/repair/speechctx"
)

// Factory builds providers from Config. The zero HTTPClient means a fresh
// default client per provider.
type Factory struct {
	Config     config.Config
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (f Factory) client() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return &http.Client{}
}

func (f Factory) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

// Chat returns an engine with every provider whose key is set. The model
// named by Config.Model must be among them.
func (f Factory) Chat(ctx context.Context) (*core.Engine, error) {
	engine := core.NewEngine(f.Config.Model)
	client := f.client()

	if key := strings.TrimSpace(f.Config.OpenAIAPIKey); key != "" {
		opts := []openai.Option{openai.WithHTTPClient(client)}
		if f.Config.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(f.Config.OpenAIBaseURL))
		}
		engine.RegisterProvider(openai.New(key, opts...))
	}
	if key := strings.TrimSpace(f.Config.GeminiAPIKey); key != "" {
		p, err := gemini.New(ctx, key, gemini.WithHTTPClient(client))
		if err != nil {
			return nil, err
		}
		engine.RegisterProvider(p)
	}

	want := f.Config.ChatProvider()
	if _, ok := engine.GetProvider(want); !ok {
		return nil, fmt.Errorf("chat provider %q is not configured", want)
	}
	return engine, nil
}

// Voice returns the speech pipeline and the closers for any provider that
// holds a connection. A pipeline is returned even when both directions are
// "none"; the session treats it as silent.
func (f Factory) Voice(ctx context.Context) (*voice.Pipeline, []io.Closer, error) {
	var (
		sttProvider stt.Provider
		ttsProvider tts.Provider
		closers     []io.Closer
	)
	client := f.client()

	switch f.Config.STTProvider {
	case "cartesia":
		sttProvider = stt.NewCartesia(f.Config.CartesiaAPIKey, stt.WithCartesiaHTTPClient(client))
	case "google":
		g, err := stt.NewGoogle(ctx)
		if err != nil {
			return nil, nil, err
		}
		sttProvider = g
		closers = append(closers, g)
	case "", "none":
	default:
		return nil, nil, fmt.Errorf("unknown stt provider %q", f.Config.STTProvider)
	}

	switch f.Config.TTSProvider {
	case "cartesia":
		ttsProvider = tts.NewCartesia(f.Config.CartesiaAPIKey, tts.WithCartesiaHTTPClient(client))
	case "elevenlabs":
		var opts []tts.ElevenLabsOption
		if f.Config.Voice != "" {
			opts = append(opts, tts.WithElevenLabsVoice(f.Config.Voice))
		}
		ttsProvider = tts.NewElevenLabs(f.Config.ElevenLabsAPIKey, opts...)
	case "", "none":
	default:
		closeAll(closers)
		return nil, nil, fmt.Errorf("unknown tts provider %q", f.Config.TTSProvider)
	}

	cfg := voice.Config{
		Language: f.Config.Language,
		Voice:    f.Config.Voice,
	}
	return voice.NewPipeline(sttProvider, ttsProvider, cfg), closers, nil
}

// Player returns the audio player, or nil when playback is disabled.
func (f Factory) Player() playback.Player {
	switch f.Config.Player {
	case "ffplay":
		return playback.FFPlay{Logger: f.logger()}
	case "timed":
		return playback.Timed{MinDuration: 500 * time.Millisecond}
	default:
		return nil
	}
}

// Camera returns the configured frame source, or nil when none is set.
func (f Factory) Camera() camera.Source {
	switch {
	case f.Config.CameraURL != "":
		return camera.NewHTTPSnapshot(f.Config.CameraURL, nil)
	case f.Config.CameraFile != "":
		return camera.File{Path: f.Config.CameraFile}
	default:
		return nil
	}
}

// Detector returns the model-server detector boosted by speech context, or
// nil when no detector URL is set.
func (f Factory) Detector(sc *speechctx.Context) detect.Detector {
	if f.Config.DetectorURL == "" {
		return nil
	}
	d := detect.NewHTTPClient(f.Config.DetectorURL, nil)
	d.MinConfidence = f.Config.DetectConfidence
	if sc == nil {
		return d
	}
	return speechctx.Boost(d, sc)
}

// CloseAll closes every closer and joins their errors.
func CloseAll(closers []io.Closer) error {
	return closeAll(closers)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
