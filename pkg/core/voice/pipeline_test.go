package voice

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/vango-go/midas/pkg/core/voice/stt"
	"github.com/vango-go/midas/pkg/core/voice/tts"
)

type fakeSTTProvider struct {
	text     string
	err      error
	lastOpts stt.TranscribeOptions
	lastData string
}

func (f *fakeSTTProvider) Name() string { return "fake-stt" }

func (f *fakeSTTProvider) Transcribe(_ context.Context, audio io.Reader, opts stt.TranscribeOptions) (*stt.Transcript, error) {
	b, _ := io.ReadAll(audio)
	f.lastData = string(b)
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &stt.Transcript{Text: f.text}, nil
}

type fakeTTSProvider struct {
	audio    []byte
	err      error
	calls    int
	lastText string
	lastOpts tts.SynthesizeOptions
}

func (f *fakeTTSProvider) Name() string { return "fake-tts" }

func (f *fakeTTSProvider) Synthesize(_ context.Context, text string, opts tts.SynthesizeOptions) (*tts.Synthesis, error) {
	f.calls++
	f.lastText = text
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &tts.Synthesis{Audio: f.audio, Format: opts.Format}, nil
}

func TestPipeline_Transcribe(t *testing.T) {
	s := &fakeSTTProvider{text: "  my phone fell  "}
	p := NewPipeline(s, nil, Config{Language: "en", SampleRate: 16000})

	got, err := p.Transcribe(context.Background(), Audio{Data: []byte("pcm"), MediaType: "audio/webm;codecs=opus"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "my phone fell" {
		t.Fatalf("got=%q, want %q", got, "my phone fell")
	}
	if s.lastOpts.Format != "webm" || s.lastOpts.Language != "en" || s.lastOpts.SampleRate != 16000 || s.lastData != "pcm" {
		t.Fatalf("opts=%+v data=%q", s.lastOpts, s.lastData)
	}

	s.err = errors.New("boom")
	if _, err := p.Transcribe(context.Background(), Audio{Data: []byte("x")}); err == nil {
		t.Fatalf("expected error")
	}
	if got, err := p.Transcribe(context.Background(), Audio{}); err != nil || got != "" {
		t.Fatalf("empty audio: got=%q err=%v", got, err)
	}
}

func TestPipeline_Synthesize(t *testing.T) {
	f := &fakeTTSProvider{audio: []byte("wav")}
	p := NewPipeline(nil, f, Config{Voice: "v1", Format: "mp3"})

	syn, err := p.Synthesize(context.Background(), " Step 1: Unplug it. ")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(syn.Audio) != "wav" || f.lastText != "Step 1: Unplug it." || f.lastOpts.Voice != "v1" || f.lastOpts.Format != "mp3" {
		t.Fatalf("syn=%+v text=%q opts=%+v", syn, f.lastText, f.lastOpts)
	}

	if syn, err := p.Synthesize(context.Background(), "   "); err != nil || !syn.Empty() || f.calls != 1 {
		t.Fatalf("blank text should skip provider: syn=%+v err=%v calls=%d", syn, err, f.calls)
	}
}

func TestPipeline_MissingProviders(t *testing.T) {
	p := NewPipeline(nil, nil, Config{})
	if _, err := p.Transcribe(context.Background(), Audio{Data: []byte("x")}); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err=%v, want ErrNoProvider", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi"); !errors.Is(err, ErrNoProvider) {
		t.Fatalf("err=%v, want ErrNoProvider", err)
	}
	if p.CanSpeak() {
		t.Fatalf("CanSpeak with no tts provider")
	}
}

func TestMediaTypeMapping(t *testing.T) {
	tests := []struct{ in, want string }{
		{"audio/mpeg", "mp3"},
		{"audio/ogg", "ogg"},
		{"AUDIO/WAV", "wav"},
		{"audio/pcm", "pcm_s16le"},
		{"", "wav"},
	}
	for _, tc := range tests {
		if got := FormatFromMediaType(tc.in); got != tc.want {
			t.Fatalf("FormatFromMediaType(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
	if got := MediaTypeForFormat("mp3"); got != "audio/mpeg" {
		t.Fatalf("MediaTypeForFormat(mp3)=%q", got)
	}
	if got := MediaTypeForPath("/tmp/clip.FLAC"); got != "audio/flac" {
		t.Fatalf("MediaTypeForPath=%q", got)
	}
}
