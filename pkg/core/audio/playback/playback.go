// Package playback plays synthesized replies through a single replaceable
// handle.
package playback

import (
	"errors"
	"time"
)

// ErrStopped is returned when Start is called on a stopped handle.
var ErrStopped = errors.New("playback: handle stopped")

// Clip is one synthesized reply.
type Clip struct {
	Audio      []byte
	Format     string // "wav", "mp3" or "pcm" (s16le mono)
	SampleRate int
}

// Duration estimates playback length. Only raw PCM has a known length.
func (c Clip) Duration() time.Duration {
	if c.Format != "pcm" || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Audio)) * time.Second / time.Duration(c.SampleRate*2)
}

// Handle controls one playback. Stop is idempotent. onComplete runs once
// when playback finishes on its own; it does not run after Stop.
type Handle interface {
	Start(onComplete func()) error
	Stop()
}

// Player creates handles for clips.
type Player interface {
	Prepare(clip Clip) (Handle, error)
}
