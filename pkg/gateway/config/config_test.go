package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/midas/pkg/repair/checklist"
	"github.com/vango-go/midas/pkg/repair/overlay"
)

// clearEnv unsets every variable Config reads and restores them after the
// test.
func clearEnv(t *testing.T) {
	t.Helper()
	typ := reflect.TypeOf(Config{})
	for i := 0; i < typ.NumField(); i++ {
		key := typ.Field(i).Tag.Get("env")
		if key == "" {
			continue
		}
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr=%q, want :8080", cfg.Addr)
	}
	if cfg.Model != "openai/gpt-4o" || cfg.ChatProvider() != "openai" || cfg.ChatModel() != "gpt-4o" {
		t.Fatalf("Model=%q provider=%q model=%q", cfg.Model, cfg.ChatProvider(), cfg.ChatModel())
	}
	if cfg.RevealMin != 40*time.Millisecond || cfg.RevealMax != 110*time.Millisecond {
		t.Fatalf("reveal=%v..%v", cfg.RevealMin, cfg.RevealMax)
	}
	if cfg.OverlayInterval != 500*time.Millisecond {
		t.Fatalf("OverlayInterval=%v", cfg.OverlayInterval)
	}
	if cfg.STTProvider != "none" || cfg.TTSProvider != "none" || cfg.Player != "none" {
		t.Fatalf("voice=%q/%q/%q", cfg.STTProvider, cfg.TTSProvider, cfg.Player)
	}
	if cfg.MaxBodyBytes != 8<<20 {
		t.Fatalf("MaxBodyBytes=%d", cfg.MaxBodyBytes)
	}
	if cfg.LimitRPS != 2 || cfg.LimitBurst != 5 || cfg.LimitMaxStreams != 4 {
		t.Fatalf("limits=%v/%d/%d", cfg.LimitRPS, cfg.LimitBurst, cfg.LimitMaxStreams)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("AllowedOrigins=%v, want empty", cfg.AllowedOrigins)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "g-test")
	t.Setenv("MIDAS_MODEL", "gemini/gemini-2.0-flash")
	t.Setenv("MIDAS_LOG_LEVEL", "DEBUG")
	t.Setenv("MIDAS_TTS_PROVIDER", "ElevenLabs")
	t.Setenv("ELEVENLABS_API_KEY", "el-test")
	t.Setenv("MIDAS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("MIDAS_REVEAL_MIN", "0s")
	t.Setenv("MIDAS_REVEAL_MAX", "0s")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.TTSProvider != "elevenlabs" {
		t.Fatalf("normalize: level=%q tts=%q", cfg.LogLevel, cfg.TTSProvider)
	}
	want := []string{"https://a.example", "https://b.example"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Fatalf("AllowedOrigins=%v, want %v", cfg.AllowedOrigins, want)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing key", map[string]string{"OPENAI_API_KEY": ""}, "OPENAI_API_KEY"},
		{"bad model", map[string]string{"MIDAS_MODEL": "gpt-4o"}, "MIDAS_MODEL"},
		{"unknown provider", map[string]string{"MIDAS_MODEL": "acme/x"}, "MIDAS_MODEL"},
		{"log level", map[string]string{"MIDAS_LOG_LEVEL": "loud"}, "MIDAS_LOG_LEVEL"},
		{"stt", map[string]string{"MIDAS_STT_PROVIDER": "whisper"}, "MIDAS_STT_PROVIDER"},
		{"cartesia key", map[string]string{"MIDAS_STT_PROVIDER": "cartesia"}, "CARTESIA_API_KEY"},
		{"player", map[string]string{"MIDAS_PLAYER": "vlc"}, "MIDAS_PLAYER"},
		{"camera", map[string]string{"MIDAS_CAMERA_URL": "http://cam", "MIDAS_CAMERA_FILE": "f.jpg"}, "MIDAS_CAMERA_URL"},
		{"reveal", map[string]string{"MIDAS_REVEAL_MIN": "1s", "MIDAS_REVEAL_MAX": "10ms"}, "MIDAS_REVEAL_MAX"},
		{"confidence", map[string]string{"MIDAS_DETECT_CONFIDENCE": "1.5"}, "MIDAS_DETECT_CONFIDENCE"},
		{"archive keys", map[string]string{"MIDAS_ARCHIVE_ACCESS_KEY": "ak"}, "MIDAS_ARCHIVE_ACCESS_KEY"},
		{"limits", map[string]string{"MIDAS_LIMIT_BURST": "0"}, "MIDAS_LIMIT_RPS"},
		{"body", map[string]string{"MIDAS_MAX_BODY_BYTES": "0"}, "MIDAS_MAX_BODY_BYTES"},
		{"parse", map[string]string{"MIDAS_READ_TIMEOUT": "soon"}, "parse env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("OPENAI_API_KEY", "sk-test")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err=%v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestParseProfile(t *testing.T) {
	doc := `
chat_prompt: You fix bikes.
confirm_text: next please
step_patterns:
  - '^\s*(\d+)\)\s*(?P<text>.+)$'
overlay:
  kind: circle
  palette: ["#010101"]
guides:
  chain_off:
    display_name: Chain off
    severity: easy
    steps: [Shift to the smallest cog.]
keywords:
  chain:
    - {class: chain_off, weight: 0.9}
`
	p, err := ParseProfile(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	if p.ChatPrompt != "You fix bikes." || p.ConfirmText != "next please" {
		t.Fatalf("prompts=%+v", p)
	}

	patterns, err := p.Patterns()
	if err != nil || len(patterns) != 1 {
		t.Fatalf("patterns=%v err=%v", patterns, err)
	}

	style, err := p.Style()
	if err != nil {
		t.Fatalf("Style: %v", err)
	}
	if style.Kind != overlay.KindCircle {
		t.Fatalf("Kind=%q, want circle", style.Kind)
	}
	if g, ok := style.Guides.Lookup("chain_off"); !ok || g.Severity != "easy" {
		t.Fatalf("guide=%+v ok=%v", g, ok)
	}
	if _, ok := style.Guides.Lookup("lcd_retak"); !ok {
		t.Fatalf("built-in guides should survive the merge")
	}

	sc := p.SpeechContext()
	sc.Update("my chain fell off")
	if sc.Score("chain_off") <= 0 {
		t.Fatalf("profile keyword did not score")
	}
}

func TestParseProfile_Empty(t *testing.T) {
	p, err := ParseProfile(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	patterns, err := p.Patterns()
	if err != nil || len(patterns) == 0 {
		t.Fatalf("default patterns=%v err=%v", patterns, err)
	}
}

func TestProfile_Extractor(t *testing.T) {
	repeated := []checklist.Step{{Text: "Remove the SIM tray."}}
	for _, tc := range []struct {
		doc       string
		wantAdded bool
	}{
		{"", true},
		{"skip_duplicate_steps: true\n", false},
	} {
		p, err := ParseProfile(strings.NewReader(tc.doc))
		if err != nil {
			t.Fatalf("ParseProfile(%q): %v", tc.doc, err)
		}
		e, err := p.Extractor()
		if err != nil {
			t.Fatalf("Extractor: %v", err)
		}
		if _, added := e.Apply(repeated, "Step 2: remove the sim tray."); added != tc.wantAdded {
			t.Fatalf("%q: added=%v, want %v", tc.doc, added, tc.wantAdded)
		}
	}
}

func TestParseProfile_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown field": "colour: red\n",
		"bad pattern":   "step_patterns: ['(']\n",
		"no text group": "step_patterns: ['^(\\d+)\\.']\n",
		"bad kind":      "overlay: {kind: star}\n",
		"bad keyword":   "keywords: {x: [{class: '', weight: 1}]}\n",
	}
	for name, doc := range tests {
		if _, err := ParseProfile(strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadProfile_EmptyPath(t *testing.T) {
	p, err := LoadProfile("")
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p.ChatPrompt != "" {
		t.Fatalf("expected zero profile")
	}
}
