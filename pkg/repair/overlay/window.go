package overlay

import (
	"sync"
	"time"

	"github.com/vango-go/midas/pkg/repair/detect"
)

// MaxSlots bounds how many markers are ever shown at once.
const MaxSlots = 3

// Window owns the currently displayed annotations. Each Replace swaps the
// whole slot array; slots are never patched or carried across cycles.
type Window struct {
	style Style

	mu        sync.RWMutex
	slots     [MaxSlots]*Annotation
	cycle     uint64
	updatedAt time.Time
	top       *Annotation
	notify    []func([]Annotation)
}

// NewWindow returns an empty window.
func NewWindow(style Style) *Window {
	return &Window{style: style.withDefaults()}
}

// Replace installs the markers for one detection cycle. Only the first
// MaxSlots detections are kept, in list order, keyed by their position.
func (w *Window) Replace(dets []detect.Detection) []Annotation {
	var next [MaxSlots]*Annotation
	n := min(len(dets), MaxSlots)
	for i := 0; i < n; i++ {
		a := w.style.Annotate(i, dets[i])
		next[i] = &a
	}

	w.mu.Lock()
	w.slots = next
	w.cycle++
	w.updatedAt = time.Now()
	if next[0] != nil && (w.top == nil || next[0].Confidence >= w.top.Confidence) {
		t := *next[0]
		w.top = &t
	}
	out := w.snapshotLocked()
	notify := append([]func([]Annotation){}, w.notify...)
	w.mu.Unlock()

	for _, fn := range notify {
		fn(out)
	}
	return out
}

// Clear empties every slot.
func (w *Window) Clear() {
	w.mu.Lock()
	w.slots = [MaxSlots]*Annotation{}
	w.cycle++
	w.updatedAt = time.Now()
	notify := append([]func([]Annotation){}, w.notify...)
	w.mu.Unlock()

	for _, fn := range notify {
		fn(nil)
	}
}

// Annotations returns a copy of the occupied slots in slot order.
func (w *Window) Annotations() []Annotation {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshotLocked()
}

func (w *Window) snapshotLocked() []Annotation {
	out := make([]Annotation, 0, MaxSlots)
	for _, a := range w.slots {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// Cycle reports how many times the slot array has been replaced.
func (w *Window) Cycle() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cycle
}

// UpdatedAt is when the slots were last replaced.
func (w *Window) UpdatedAt() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.updatedAt
}

// Top returns the highest-confidence primary marker seen since the last
// ResetTop. Repair history uses it as the session's fault.
func (w *Window) Top() (Annotation, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.top == nil {
		return Annotation{}, false
	}
	return *w.top, true
}

// ResetTop forgets the tracked top marker.
func (w *Window) ResetTop() {
	w.mu.Lock()
	w.top = nil
	w.mu.Unlock()
}

// OnChange registers fn to receive every new slot set. Callbacks run on the
// goroutine that replaced the slots and must not block.
func (w *Window) OnChange(fn func([]Annotation)) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.notify = append(w.notify, fn)
	w.mu.Unlock()
}
