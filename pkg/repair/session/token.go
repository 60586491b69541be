package session

import (
	"context"
	"sync"
	"time"
)

// token identifies one cancellation generation. A stage captures the
// session's token before suspending and compares pointers afterwards; End,
// Reset and Close swap in a fresh token and cancel the old one.
type token struct {
	done chan struct{}
	once sync.Once
}

func newToken() *token {
	return &token{done: make(chan struct{})}
}

func (t *token) cancel() {
	t.once.Do(func() { close(t.done) })
}

// sleep waits for d. It returns false if the token was cancelled or ctx
// ended first.
func (t *token) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-t.done:
			return false
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.done:
		return false
	case <-ctx.Done():
		return false
	}
}
