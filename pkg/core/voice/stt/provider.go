// Package stt provides speech-to-text for recorded user utterances.
package stt

import (
	"context"
	"io"
)

// Provider transcribes one complete recording.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts audio to text.
	Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Model      string // provider-specific model
	Language   string // ISO language code, e.g. "en" or "en-US"
	Format     string // container or encoding hint: wav, mp3, webm, ogg, flac, pcm_s16le
	SampleRate int    // Hz, required for raw PCM
	Timestamps bool   // request word-level timestamps
}

// Transcript is the result of transcription.
type Transcript struct {
	Text     string
	Language string
	Duration float64 // seconds, when the provider reports it
	Words    []Word
}

// Word is a single transcribed word with timing.
type Word struct {
	Word  string
	Start float64
	End   float64
}
