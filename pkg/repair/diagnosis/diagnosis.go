// Package diagnosis produces a one-shot structured damage assessment of a
// camera frame.
package diagnosis

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/vango-go/midas/pkg/core"
	"github.com/vango-go/midas/pkg/core/types"
	"github.com/vango-go/midas/pkg/repair/camera"
)

// Severity levels a Result may carry.
const (
	SeverityNone     = "none"
	SeverityLow      = "low"
	SeverityModerate = "moderate"
	SeverityHigh     = "high"
	SeverityUnknown  = "unknown"
)

// DefaultPrompt asks for the JSON object Parse understands.
const DefaultPrompt = `You are MIDAS, an AR-powered repair assistant. You analyze images of broken technology and provide repair guidance.

You can diagnose damage on any technology: mice, keyboards, laptops, phones, monitors, headphones, game controllers, cables, chargers, circuit boards, and more.

Identify the device as specifically as you can. Detect visible damage or faults such as broken switches, worn cables, cracked shells, stuck or missing keys, frayed wires, loose connectors or dead LEDs. Give concise, actionable repair steps for that device and warn about safety hazards. If you see no damage, say so.

You must respond with valid JSON in exactly this format, with no markdown and no code fences:
{
    "device": "what the device is",
    "damage_detected": true or false,
    "damage_description": "1-2 sentence summary of visible damage",
    "severity": "none" or "low" or "moderate" or "high",
    "confidence": 0.0 to 1.0,
    "tools": ["tool1", "tool2"],
    "steps": ["step 1", "step 2"],
    "warning": "safety warnings, or 'None'",
    "estimated_difficulty": "beginner" or "intermediate" or "advanced",
    "estimated_cost": "rough cost estimate for parts if needed"
}`

// ErrUnparseable is returned when the model reply cannot be read as a
// diagnosis even after repair.
var ErrUnparseable = errors.New("diagnosis: unparseable reply")

// Result is a structured damage assessment.
type Result struct {
	Device              string   `json:"device" msgpack:"device"`
	DamageDetected      bool     `json:"damage_detected" msgpack:"damage_detected"`
	DamageDescription   string   `json:"damage_description" msgpack:"damage_description"`
	Severity            string   `json:"severity" msgpack:"severity"`
	Confidence          float64  `json:"confidence" msgpack:"confidence"`
	Tools               []string `json:"tools" msgpack:"tools"`
	Steps               []string `json:"steps" msgpack:"steps"`
	Warning             string   `json:"warning,omitempty" msgpack:"warning"`
	EstimatedDifficulty string   `json:"estimated_difficulty,omitempty" msgpack:"estimated_difficulty"`
	EstimatedCost       string   `json:"estimated_cost,omitempty" msgpack:"estimated_cost"`
	Raw                 string   `json:"raw,omitempty" msgpack:"raw"`
}

// Parse reads a model reply. Markdown code fences are stripped and
// malformed JSON is repaired before decoding.
func Parse(text string) (Result, error) {
	cleaned := stripFences(text)
	if cleaned == "" {
		return Result{}, ErrUnparseable
	}

	var r Result
	if err := unmarshalJSON([]byte(cleaned), &r); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	r.Device = strings.TrimSpace(r.Device)
	if r.Device == "" {
		r.Device = "unknown"
	}
	r.Severity = NormalizeSeverity(r.Severity)
	r.Confidence = min(max(r.Confidence, 0), 1)
	if r.Tools == nil {
		r.Tools = []string{}
	}
	if r.Steps == nil {
		r.Steps = []string{}
	}
	r.Raw = text
	return r, nil
}

func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return err
	}
	fixed, rerr := jsonrepair.JSONRepair(string(data))
	if rerr != nil {
		return rerr
	}
	return json.Unmarshal([]byte(fixed), v)
}

func stripFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```") {
		if i := strings.IndexByte(cleaned, '\n'); i >= 0 {
			cleaned = cleaned[i+1:]
		} else {
			cleaned = cleaned[3:]
		}
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	return strings.TrimSpace(cleaned)
}

// NormalizeSeverity maps free-form severities onto the fixed scale.
func NormalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "no damage":
		return SeverityNone
	case "low", "minor", "easy":
		return SeverityLow
	case "moderate", "medium":
		return SeverityModerate
	case "high", "severe", "critical":
		return SeverityHigh
	default:
		return SeverityUnknown
	}
}

// Options configures a Diagnoser.
type Options struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature *float64
	Cache       *Cache
	Logger      *slog.Logger
}

// Diagnoser runs diagnoses against a chat provider.
type Diagnoser struct {
	chat   core.ChatProvider
	opts   Options
	logger *slog.Logger
}

// New returns a Diagnoser over chat.
func New(chat core.ChatProvider, opts Options) *Diagnoser {
	if strings.TrimSpace(opts.Prompt) == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.Temperature == nil {
		t := 0.3
		opts.Temperature = &t
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Diagnoser{chat: chat, opts: opts, logger: logger}
}

// Diagnose assesses frame. transcript is the user's description of the
// problem and may be empty. Successful results are cached by frame content.
func (d *Diagnoser) Diagnose(ctx context.Context, frame camera.Frame, transcript string) (Result, error) {
	if len(frame.Data) == 0 {
		return Result{}, camera.ErrNotReady
	}
	transcript = strings.TrimSpace(transcript)
	key := cacheKey(d.opts.Model, frame.Data, transcript)

	if d.opts.Cache != nil {
		if r, ok, err := d.opts.Cache.Get(key); err != nil {
			d.logger.Warn("diagnosis cache read failed", "error", err)
		} else if ok {
			d.logger.Debug("diagnosis cache hit", "key", key)
			return r, nil
		}
	}

	text := "The user hasn't described the problem yet. Analyze the image for any visible damage."
	if transcript != "" {
		text = fmt.Sprintf("The user says: %q", transcript)
	}
	msgs := types.AttachImage([]types.Message{{Role: types.RoleUser, Content: text}},
		types.Image(frame.Data, frame.MediaType))

	resp, err := d.chat.Chat(ctx, &types.ChatRequest{
		Model:          d.opts.Model,
		System:         d.opts.Prompt,
		Messages:       msgs,
		MaxTokens:      d.opts.MaxTokens,
		Temperature:    d.opts.Temperature,
		ResponseFormat: "json",
	})
	if err != nil {
		return Result{}, err
	}
	r, err := Parse(resp.Text)
	if err != nil {
		return Result{}, err
	}

	if d.opts.Cache != nil {
		if err := d.opts.Cache.Put(key, r); err != nil {
			d.logger.Warn("diagnosis cache write failed", "error", err)
		}
	}
	return r, nil
}

func cacheKey(model string, data []byte, transcript string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write(data)
	h.Write([]byte{0})
	h.Write(bytes.TrimSpace([]byte(transcript)))
	return hex.EncodeToString(h.Sum(nil))
}
