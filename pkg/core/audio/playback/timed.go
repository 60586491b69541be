package playback

import (
	"sync"
	"time"
)

// Timed is a silent Player whose handles complete after the clip's
// estimated duration. It stands in for a speaker on headless hosts, where
// the audio is delivered to clients by other means.
type Timed struct {
	// MinDuration is used when the clip length is unknown.
	MinDuration time.Duration
}

// Prepare implements Player.
func (p Timed) Prepare(clip Clip) (Handle, error) {
	d := clip.Duration()
	if d < p.MinDuration {
		d = p.MinDuration
	}
	return &timedHandle{d: d}, nil
}

type timedHandle struct {
	d       time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	started bool
}

func (h *timedHandle) Start(onComplete func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return ErrStopped
	}
	if h.started {
		return nil
	}
	h.started = true
	h.timer = time.AfterFunc(h.d, func() {
		h.mu.Lock()
		stopped := h.stopped
		h.stopped = true
		h.mu.Unlock()
		if !stopped && onComplete != nil {
			onComplete()
		}
	})
	return nil
}

func (h *timedHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
	}
}
