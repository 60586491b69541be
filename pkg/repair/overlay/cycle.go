package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/midas/pkg/repair/camera"
	"github.com/vango-go/midas/pkg/repair/detect"
)

// ErrStale is returned by RunOnce when the loop was stopped or restarted
// while the cycle was in progress. The cycle's result was discarded.
var ErrStale = errors.New("overlay: stale cycle")

// CycleObserver receives the outcome of every detection cycle.
type CycleObserver interface {
	ObserveCycle(detections int, elapsed time.Duration, err error)
}

// LoopConfig configures a detection loop.
type LoopConfig struct {
	Source   camera.Source
	Detector detect.Detector
	Window   *Window

	// Interval between cycle starts. Zero runs cycles back to back.
	Interval time.Duration

	// IdleInterval is how long to wait before re-checking the gate while
	// inactive. Default 250ms.
	IdleInterval time.Duration

	// Active gates the loop, typically on the session being Active. Nil
	// means always active.
	Active func() bool

	Observer CycleObserver
	Logger   *slog.Logger
}

// Loop repeatedly captures a frame, runs detection and replaces the window.
type Loop struct {
	cfg LoopConfig

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop returns a stopped loop.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("overlay: camera source is required")
	}
	if cfg.Detector == nil {
		return nil, fmt.Errorf("overlay: detector is required")
	}
	if cfg.Window == nil {
		cfg.Window = NewWindow(Style{})
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 250 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{cfg: cfg}, nil
}

// Window returns the window this loop feeds.
func (l *Loop) Window() *Window { return l.cfg.Window }

func (l *Loop) active() bool {
	if !l.cfg.Source.Ready() {
		return false
	}
	return l.cfg.Active == nil || l.cfg.Active()
}

func (l *Loop) generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}

// RunOnce executes a single capture → detect round trip. The window is
// replaced only if the loop was not stopped or restarted and the gate is
// still open when detection returns.
func (l *Loop) RunOnce(ctx context.Context) ([]Annotation, error) {
	gen := l.generation()
	start := time.Now()

	frame, err := l.cfg.Source.CaptureFrame(ctx)
	if err != nil {
		err = fmt.Errorf("capture frame: %w", err)
		l.observe(0, start, err)
		return nil, err
	}
	dets, err := l.cfg.Detector.Detect(ctx, frame)
	if err != nil {
		err = fmt.Errorf("detect: %w", err)
		l.observe(0, start, err)
		return nil, err
	}
	l.mu.Lock()
	if l.gen != gen || (l.cfg.Active != nil && !l.cfg.Active()) {
		l.mu.Unlock()
		return nil, ErrStale
	}
	out := l.cfg.Window.Replace(dets)
	l.mu.Unlock()
	l.observe(len(dets), start, nil)
	return out, nil
}

func (l *Loop) observe(n int, start time.Time, err error) {
	if l.cfg.Observer != nil {
		l.cfg.Observer.ObserveCycle(n, time.Since(start), err)
	}
}

// Start launches the loop in the background. Calling Start on a running
// loop restarts it; any cycle from the previous run is discarded.
func (l *Loop) Start(ctx context.Context) {
	l.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	l.mu.Lock()
	l.gen++
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	go func() {
		defer close(done)
		l.run(runCtx)
	}()
}

// Stop halts the loop and clears the window. It does not wait for an
// in-progress cycle; that cycle's result is discarded when it lands. Safe to
// call on a stopped loop.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.gen++
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	l.cfg.Window.Clear()
}

// Done is closed when the most recently started run exits.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return l.done
}

func (l *Loop) run(ctx context.Context) {
	wasActive := false
	for {
		if ctx.Err() != nil {
			return
		}
		if !l.active() {
			if wasActive {
				l.cfg.Window.Clear()
				wasActive = false
			}
			if !sleepCtx(ctx, l.cfg.IdleInterval) {
				return
			}
			continue
		}
		wasActive = true

		start := time.Now()
		if _, err := l.RunOnce(ctx); err != nil && !errors.Is(err, ErrStale) && ctx.Err() == nil {
			// Failed cycles are skipped and retried on the next tick.
			l.cfg.Logger.Debug("detection cycle failed", "error", err)
		}

		if wait := l.cfg.Interval - time.Since(start); wait > 0 {
			if !sleepCtx(ctx, wait) {
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
