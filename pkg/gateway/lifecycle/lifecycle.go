package lifecycle

import (
	"sync/atomic"
	"time"
)

// Lifecycle is shared between the server and its readiness probe. A
// draining process reports not-ready so load balancers stop routing to it
// while in-flight requests finish.
type Lifecycle struct {
	draining atomic.Bool
	started  time.Time
}

// New records the process start time.
func New() *Lifecycle {
	return &Lifecycle{started: time.Now()}
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// Uptime is zero for a nil or zero-value Lifecycle.
func (l *Lifecycle) Uptime() time.Duration {
	if l == nil || l.started.IsZero() {
		return 0
	}
	return time.Since(l.started)
}
