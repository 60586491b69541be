// Package tts provides text-to-speech for assistant replies.
package tts

import "context"

// Provider synthesizes one complete reply.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string  // provider voice identifier
	Speed      float64 // speed multiplier, 0 for the provider default
	Volume     float64 // volume multiplier, 0 for the provider default
	Emotion    string
	Language   string
	Format     string // "wav" (default), "mp3" or "pcm"
	SampleRate int    // Hz, 0 for 24000
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio      []byte
	Format     string // "wav", "mp3" or "pcm"
	SampleRate int
}

// Empty reports whether the synthesis carries no audio.
func (s *Synthesis) Empty() bool {
	return s == nil || len(s.Audio) == 0
}

const defaultSampleRate = 24000

func getFormat(format string) string {
	switch format {
	case "mp3", "wav":
		return format
	case "pcm", "raw":
		return "pcm"
	default:
		return "wav"
	}
}

func sampleRate(opts SynthesizeOptions) int {
	if opts.SampleRate > 0 {
		return opts.SampleRate
	}
	return defaultSampleRate
}
