//go:build integration
// +build integration

package integration

import (
	"strings"
	"testing"

	"github.com/vango-go/midas/pkg/core/voice"
)

func TestVoice_CartesiaRoundTrip(t *testing.T) {
	requireCartesiaKey(t)
	ctx := defaultTestContext(t)

	f := factoryFor(t, "openai/gpt-4o-mini")
	f.Config.STTProvider = "cartesia"
	f.Config.TTSProvider = "cartesia"
	pipeline, closers, err := f.Voice(ctx)
	if err != nil {
		t.Fatalf("Voice: %v", err)
	}
	defer upstreamClose(t, closers)

	if !pipeline.CanSpeak() {
		t.Fatalf("CanSpeak=false with cartesia TTS")
	}
	syn, err := pipeline.Synthesize(ctx, "Remove the battery cover.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if syn.Empty() {
		t.Fatalf("empty synthesis")
	}

	text, err := pipeline.Transcribe(ctx, voice.Audio{
		Data:      syn.Audio,
		MediaType: voice.MediaTypeForFormat(syn.Format),
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !strings.Contains(strings.ToLower(text), "battery") {
		t.Fatalf("transcript=%q, want mention of battery", text)
	}
}

func TestVoice_ElevenLabsSynthesize(t *testing.T) {
	requireElevenLabsKey(t)
	ctx := defaultTestContext(t)

	f := factoryFor(t, "openai/gpt-4o-mini")
	f.Config.TTSProvider = "elevenlabs"
	pipeline, closers, err := f.Voice(ctx)
	if err != nil {
		t.Fatalf("Voice: %v", err)
	}
	defer upstreamClose(t, closers)

	syn, err := pipeline.Synthesize(ctx, "Unplug the charger first.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if syn.Empty() {
		t.Fatalf("empty synthesis")
	}
	t.Logf("format=%s bytes=%d", syn.Format, len(syn.Audio))
}
