package upstream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/vango-go/midas/pkg/core/audio/playback"
	"github.com/vango-go/midas/pkg/gateway/config"
	"github.com/vango-go/midas/pkg/repair/camera"
	"github.com/vango-go/midas/pkg/repair/speechctx"
)

func TestFactoryChat_RegistersConfiguredProviders(t *testing.T) {
	f := Factory{Config: config.Config{Model: "openai/gpt-4o", OpenAIAPIKey: "sk-test"}}
	engine, err := f.Chat(context.Background())
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if names := engine.ProviderNames(); len(names) != 1 || names[0] != "openai" {
		t.Fatalf("providers=%v, want [openai]", names)
	}
}

func TestFactoryChat_MissingProvider(t *testing.T) {
	f := Factory{Config: config.Config{Model: "gemini/gemini-2.0-flash", OpenAIAPIKey: "sk-test"}}
	_, err := f.Chat(context.Background())
	if err == nil || !strings.Contains(err.Error(), "gemini") {
		t.Fatalf("err=%v, want gemini not configured", err)
	}
}

func TestFactoryVoice(t *testing.T) {
	f := Factory{Config: config.Config{STTProvider: "cartesia", TTSProvider: "none", CartesiaAPIKey: "ck"}}
	p, closers, err := f.Voice(context.Background())
	if err != nil {
		t.Fatalf("Voice: %v", err)
	}
	if len(closers) != 0 {
		t.Fatalf("closers=%d, want 0", len(closers))
	}
	if p.STTProvider() == nil || p.STTProvider().Name() != "cartesia" {
		t.Fatalf("stt provider not wired")
	}
	if p.CanSpeak() {
		t.Fatalf("tts=none should not speak")
	}

	_, _, err = Factory{Config: config.Config{STTProvider: "whisper"}}.Voice(context.Background())
	if err == nil {
		t.Fatalf("expected error for unknown stt provider")
	}
}

func TestFactoryVoice_ElevenLabs(t *testing.T) {
	f := Factory{Config: config.Config{TTSProvider: "elevenlabs", ElevenLabsAPIKey: "ek", Voice: "Rachel"}}
	p, _, err := f.Voice(context.Background())
	if err != nil {
		t.Fatalf("Voice: %v", err)
	}
	if !p.CanSpeak() || p.TTSProvider().Name() != "elevenlabs" {
		t.Fatalf("tts provider not wired")
	}
}

func TestFactoryPlayer(t *testing.T) {
	if p := (Factory{Config: config.Config{Player: "none"}}).Player(); p != nil {
		t.Fatalf("player=%T, want nil", p)
	}
	if _, ok := (Factory{Config: config.Config{Player: "ffplay"}}).Player().(playback.FFPlay); !ok {
		t.Fatalf("expected FFPlay")
	}
	if _, ok := (Factory{Config: config.Config{Player: "timed"}}).Player().(playback.Timed); !ok {
		t.Fatalf("expected Timed")
	}
}

func TestFactoryCamera(t *testing.T) {
	if src := (Factory{}).Camera(); src != nil {
		t.Fatalf("camera=%T, want nil", src)
	}
	if _, ok := (Factory{Config: config.Config{CameraURL: "http://cam/snap.jpg"}}).Camera().(*camera.HTTPSnapshot); !ok {
		t.Fatalf("expected HTTPSnapshot")
	}
	src := (Factory{Config: config.Config{CameraFile: "board.jpg"}}).Camera()
	if f, ok := src.(camera.File); !ok || f.Path != "board.jpg" {
		t.Fatalf("camera=%#v, want File{board.jpg}", src)
	}
}

func TestFactoryDetector(t *testing.T) {
	if d := (Factory{}).Detector(nil); d != nil {
		t.Fatalf("detector=%T, want nil", d)
	}
	f := Factory{Config: config.Config{DetectorURL: "http://model:8000", DetectConfidence: 0.4}}
	if d := f.Detector(speechctx.New()); d == nil {
		t.Fatalf("expected boosted detector")
	}
}

type errCloser struct{ err error }

func (c errCloser) Close() error { return c.err }

func TestCloseAll(t *testing.T) {
	boom := errors.New("boom")
	err := CloseAll([]io.Closer{errCloser{}, errCloser{err: boom}})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}
}
