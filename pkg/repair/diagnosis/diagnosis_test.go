package diagnosis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vango-go/midas/pkg/core/types"
	"github.com/vango-go/midas/pkg/repair/camera"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		device   string
		severity string
		steps    int
	}{
		{
			name:     "plain",
			in:       `{"device": "Logitech G502 mouse", "damage_detected": true, "severity": "moderate", "confidence": 0.8, "tools": ["screwdriver"], "steps": ["Remove the feet", "Unscrew the shell"]}`,
			device:   "Logitech G502 mouse",
			severity: SeverityModerate,
			steps:    2,
		},
		{
			name:     "fenced",
			in:       "```json\n{\"device\": \"keyboard\", \"severity\": \"High\", \"steps\": [\"Pull the keycap\"]}\n```",
			device:   "keyboard",
			severity: SeverityHigh,
			steps:    1,
		},
		{
			name:     "trailing comma",
			in:       `{"device": "phone", "severity": "medium", "steps": ["Power off",],}`,
			device:   "phone",
			severity: SeverityModerate,
			steps:    1,
		},
		{
			name:     "missing fields",
			in:       `{"damage_detected": false}`,
			device:   "unknown",
			severity: SeverityUnknown,
			steps:    0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if r.Device != tc.device || r.Severity != tc.severity || len(r.Steps) != tc.steps {
				t.Fatalf("got=%+v", r)
			}
			if r.Raw != tc.in {
				t.Fatalf("raw not preserved")
			}
		})
	}
}

func TestParse_Unparseable(t *testing.T) {
	for _, in := range []string{"", "```\n```"} {
		if _, err := Parse(in); !errors.Is(err, ErrUnparseable) {
			t.Fatalf("Parse(%q) err=%v, want ErrUnparseable", in, err)
		}
	}
}

func TestParse_ClampsConfidence(t *testing.T) {
	r, err := Parse(`{"device": "cable", "confidence": 3}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Confidence != 1 {
		t.Fatalf("confidence=%v, want 1", r.Confidence)
	}
}

type fakeChat struct {
	mu    sync.Mutex
	reply string
	calls int
	last  *types.ChatRequest
}

func (f *fakeChat) Name() string { return "fake" }

func (f *fakeChat) Chat(ctx context.Context, req *types.ChatRequest) (*types.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	return &types.ChatResponse{Text: f.reply}, nil
}

func TestDiagnose_UsesCache(t *testing.T) {
	cache, err := OpenCache(CacheOptions{InMemory: true})
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	defer cache.Close()

	chat := &fakeChat{reply: `{"device": "laptop", "damage_detected": true, "severity": "low", "steps": ["Replace the hinge cap"]}`}
	d := New(chat, Options{Model: "openai/gpt-4o", Cache: cache})
	frame := camera.Frame{Data: []byte("jpeg bytes"), MediaType: "image/jpeg"}

	first, err := d.Diagnose(context.Background(), frame, "the hinge is loose")
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	second, err := d.Diagnose(context.Background(), frame, "the hinge is loose")
	if err != nil {
		t.Fatalf("Diagnose (cached): %v", err)
	}
	if chat.calls != 1 {
		t.Fatalf("chat calls=%d, want 1", chat.calls)
	}
	if first.Device != second.Device || len(second.Steps) != 1 || second.Severity != SeverityLow {
		t.Fatalf("first=%+v second=%+v", first, second)
	}

	if !chat.last.WantsJSON() || chat.last.System != DefaultPrompt {
		t.Fatalf("request=%+v", chat.last)
	}
	if imgs := chat.last.Messages[0].Images(); len(imgs) != 1 {
		t.Fatalf("frame not attached")
	}

	if _, err := d.Diagnose(context.Background(), frame, "different description"); err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if chat.calls != 2 {
		t.Fatalf("chat calls=%d, want 2", chat.calls)
	}
}

func TestDiagnose_EmptyFrame(t *testing.T) {
	d := New(&fakeChat{}, Options{})
	if _, err := d.Diagnose(context.Background(), camera.Frame{}, ""); !errors.Is(err, camera.ErrNotReady) {
		t.Fatalf("err=%v, want camera.ErrNotReady", err)
	}
}

func TestNormalizeSeverity(t *testing.T) {
	cases := map[string]string{
		"None":     SeverityNone,
		" minor ":  SeverityLow,
		"MEDIUM":   SeverityModerate,
		"critical": SeverityHigh,
		"catastro": SeverityUnknown,
	}
	for in, want := range cases {
		if got := NormalizeSeverity(in); got != want {
			t.Fatalf("NormalizeSeverity(%q)=%q, want %q", in, got, want)
		}
	}
}
