package playback

import (
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"
)

func TestClipDuration(t *testing.T) {
	c := Clip{Audio: make([]byte, 48000), Format: "pcm", SampleRate: 24000}
	if got := c.Duration(); got != time.Second {
		t.Fatalf("got=%v, want 1s", got)
	}
	if got := (Clip{Audio: make([]byte, 10), Format: "mp3"}).Duration(); got != 0 {
		t.Fatalf("mp3 duration=%v, want 0", got)
	}
}

func TestTimed_CompletesOnce(t *testing.T) {
	h, err := Timed{MinDuration: 10 * time.Millisecond}.Prepare(Clip{})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	done := make(chan struct{})
	var calls atomic.Int32
	if err := h.Start(func() { calls.Add(1); close(done) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("onComplete not called")
	}
	h.Stop()
	h.Stop()
	if calls.Load() != 1 {
		t.Fatalf("calls=%d, want 1", calls.Load())
	}
}

func TestTimed_StopSuppressesCompletion(t *testing.T) {
	h, _ := Timed{MinDuration: 50 * time.Millisecond}.Prepare(Clip{})
	var calls atomic.Int32
	if err := h.Start(func() { calls.Add(1) }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.Stop()
	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("onComplete ran after Stop")
	}
	if err := h.Start(nil); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v, want ErrStopped", err)
	}
}

func TestFFPlay_Args(t *testing.T) {
	p := FFPlay{Volume: 50}
	pcm := p.args(Clip{Format: "pcm", SampleRate: 16000})
	if !slices.Contains(pcm, "s16le") || !slices.Contains(pcm, "16000") || pcm[len(pcm)-1] != "-" {
		t.Fatalf("pcm args=%v", pcm)
	}
	wav := p.args(Clip{Format: "wav"})
	if slices.Contains(wav, "s16le") || !slices.Contains(wav, "-autoexit") || !slices.Contains(wav, "50") {
		t.Fatalf("wav args=%v", wav)
	}
	if _, err := p.Prepare(Clip{}); err == nil {
		t.Fatalf("expected error for empty clip")
	}
}

func TestFFPlay_MissingBinary(t *testing.T) {
	h, err := FFPlay{Path: "/nonexistent/ffplay"}.Prepare(Clip{Audio: []byte{1, 2}, Format: "pcm"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := h.Start(nil); err == nil {
		t.Fatalf("expected start error")
	}
	h.Stop()
}
