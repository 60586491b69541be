package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/midas/pkg/core"
)

func TestCartesia_Synthesize(t *testing.T) {
	var got cartesiaTTSRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts/bytes" || r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("path=%q auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		_, _ = w.Write([]byte("RIFFDATA"))
	}))
	defer srv.Close()

	p := NewCartesia("key", WithCartesiaBaseURL(srv.URL), WithCartesiaHTTPClient(srv.Client()))
	syn, err := p.Synthesize(context.Background(), "Step 1: Power off.", SynthesizeOptions{Speed: 1.1})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(syn.Audio) != "RIFFDATA" || syn.Format != "wav" || syn.SampleRate != defaultSampleRate {
		t.Fatalf("synthesis=%+v", syn)
	}
	if got.Transcript != "Step 1: Power off." || got.Voice.ID != defaultVoiceID || got.ModelID != cartesiaModel {
		t.Fatalf("request=%+v", got)
	}
	if got.GenerationConfig == nil || got.GenerationConfig.Speed != 1.1 {
		t.Fatalf("generation config=%+v", got.GenerationConfig)
	}
}

func TestCartesia_SynthesizeErrors(t *testing.T) {
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()
	p := NewCartesia("key", WithCartesiaBaseURL(srv.URL))

	syn, err := p.Synthesize(context.Background(), "x", SynthesizeOptions{})
	if err != nil || !syn.Empty() {
		t.Fatalf("no content: syn=%+v err=%v", syn, err)
	}

	status = http.StatusTooManyRequests
	_, err = p.Synthesize(context.Background(), "x", SynthesizeOptions{})
	var ce *core.Error
	if !errors.As(err, &ce) || ce.Type != core.ErrRateLimit {
		t.Fatalf("err=%v", err)
	}
}

func TestBuildOutputFormat(t *testing.T) {
	mp3 := buildOutputFormat(SynthesizeOptions{Format: "mp3", SampleRate: 44100})
	if mp3.Container != "mp3" || mp3.SampleRate != 44100 || mp3.BitRate == 0 {
		t.Fatalf("mp3 format = %#v, want mp3/44100/non-zero bitrate", mp3)
	}

	pcm := buildOutputFormat(SynthesizeOptions{Format: "pcm", SampleRate: 16000})
	if pcm.Container != "raw" || pcm.Encoding != "pcm_s16le" || pcm.SampleRate != 16000 {
		t.Fatalf("pcm format = %#v, want raw/pcm_s16le/16000", pcm)
	}

	wavDefault := buildOutputFormat(SynthesizeOptions{})
	if wavDefault.Container != "wav" || wavDefault.Encoding != "pcm_s16le" || wavDefault.SampleRate != 24000 {
		t.Fatalf("default format = %#v, want wav/pcm_s16le/24000", wavDefault)
	}
}

func TestGetFormat(t *testing.T) {
	for in, want := range map[string]string{"mp3": "mp3", "raw": "pcm", "unknown": "wav", "": "wav"} {
		if got := getFormat(in); got != want {
			t.Fatalf("getFormat(%q) = %q, want %q", in, got, want)
		}
	}
}
