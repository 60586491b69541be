package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vango-go/midas/pkg/repair/camera"
	"github.com/vango-go/midas/pkg/repair/detect"
)

func makeDetections(n int) []detect.Detection {
	out := make([]detect.Detection, n)
	for i := range out {
		out[i] = detect.Detection{
			ClassID:    i,
			Label:      fmt.Sprintf("fault_%d", i),
			Confidence: 0.9 - float64(i)*0.1,
			BBox:       detect.BBox{X1: i * 10, Y1: i * 10, X2: i*10 + 40, Y2: i*10 + 60},
		}
	}
	return out
}

func TestWindow_BoundIsMinKThree(t *testing.T) {
	w := NewWindow(Style{})
	for k := 0; k <= 7; k++ {
		got := w.Replace(makeDetections(k))
		want := min(k, MaxSlots)
		if len(got) != want || len(w.Annotations()) != want {
			t.Fatalf("k=%d: rendered=%d, want %d", k, len(got), want)
		}
		for i, a := range got {
			if a.Slot != i {
				t.Fatalf("k=%d: slot=%d at index %d", k, a.Slot, i)
			}
		}
	}
}

func TestWindow_ReplacesWholesale(t *testing.T) {
	w := NewWindow(Style{})
	w.Replace(makeDetections(3))
	got := w.Replace([]detect.Detection{{Label: "lcd_retak", Confidence: 0.8, BBox: detect.BBox{X2: 10, Y2: 10}}})
	if len(got) != 1 || got[0].Label != "lcd_retak" || got[0].Slot != 0 {
		t.Fatalf("annotations=%+v", got)
	}
	if w.Cycle() != 2 {
		t.Fatalf("cycle=%d, want 2", w.Cycle())
	}
}

func TestWindow_KeysBySlotNotIdentity(t *testing.T) {
	w := NewWindow(Style{})
	dets := makeDetections(2)
	w.Replace(dets)
	dets[0], dets[1] = dets[1], dets[0]
	got := w.Replace(dets)
	if got[0].Slot != 0 || got[0].Label != "fault_1" {
		t.Fatalf("slot 0=%+v", got[0])
	}
}

func TestStyle_Geometry(t *testing.T) {
	d := detect.Detection{Label: "lcd_rusak", Confidence: 0.5, BBox: detect.BBox{X1: 100, Y1: 50, X2: 200, Y2: 250}}

	rect := Style{}.withDefaults().Annotate(0, d)
	if rect.Kind != KindRectangle || rect.X != 100 || rect.Y != 50 || rect.Width != 100 || rect.Height != 200 {
		t.Fatalf("rect=%+v", rect)
	}
	if rect.Color != SeverityColors["high"] || rect.Severity != "high" {
		t.Fatalf("color=%q severity=%q", rect.Color, rect.Severity)
	}
	if rect.Caption != "Broken LCD 50%" {
		t.Fatalf("caption=%q", rect.Caption)
	}

	circle := Style{Kind: KindCircle}.withDefaults().Annotate(1, d)
	if circle.X != 150 || circle.Y != 150 || circle.Radius != 100 {
		t.Fatalf("circle=%+v", circle)
	}

	arrow := Style{Kind: KindArrow}.withDefaults().Annotate(2, d)
	if arrow.X != 150 || arrow.Y != 50 || arrow.Rotation != 90 || arrow.Length != 66 {
		t.Fatalf("arrow=%+v", arrow)
	}
}

func TestStyle_ColorFallbacks(t *testing.T) {
	s := Style{}.withDefaults()

	unknown := s.Annotate(1, detect.Detection{Label: "toaster"})
	if unknown.Color != Palette[1] || unknown.Severity != "unknown" {
		t.Fatalf("unknown label=%+v", unknown)
	}

	none := s.Annotate(0, detect.Detection{Label: "phone"})
	if none.Color != SeverityColors["unknown"] {
		t.Fatalf("severity none color=%q", none.Color)
	}

	server := s.Annotate(0, detect.Detection{Label: "toaster", Repair: &detect.RepairInfo{Severity: "Easy"}})
	if server.Color != SeverityColors["easy"] {
		t.Fatalf("server severity color=%q", server.Color)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindRectangle, "Circle": KindCircle, " arrow ": KindArrow} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q)=%q,%v", in, got, err)
		}
	}
	if _, err := ParseKind("star"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWindow_TopAndNotify(t *testing.T) {
	w := NewWindow(Style{})
	var calls atomic.Int32
	w.OnChange(func([]Annotation) { calls.Add(1) })

	w.Replace([]detect.Detection{{Label: "body_lecet", Confidence: 0.6}})
	w.Replace([]detect.Detection{{Label: "lcd_retak", Confidence: 0.9}})
	w.Replace([]detect.Detection{{Label: "phone", Confidence: 0.4}})
	w.Clear()

	top, ok := w.Top()
	if !ok || top.Label != "lcd_retak" {
		t.Fatalf("top=%+v ok=%v", top, ok)
	}
	if calls.Load() != 4 {
		t.Fatalf("notify calls=%d, want 4", calls.Load())
	}
	w.ResetTop()
	if _, ok := w.Top(); ok {
		t.Fatalf("expected top to be reset")
	}
}

type fakeDetector struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) ([]detect.Detection, error)
}

func (d *fakeDetector) Detect(ctx context.Context, frame camera.Frame) ([]detect.Detection, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	d.mu.Unlock()
	return d.fn(call)
}

func (d *fakeDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type recordingObserver struct {
	mu   sync.Mutex
	errs int
	ok   int
}

func (o *recordingObserver) ObserveCycle(n int, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.errs++
	} else {
		o.ok++
	}
}

func TestLoop_FailureSkippedAndRetried(t *testing.T) {
	det := &fakeDetector{fn: func(call int) ([]detect.Detection, error) {
		if call%2 == 1 {
			return nil, errors.New("model server unavailable")
		}
		return makeDetections(5), nil
	}}
	obs := &recordingObserver{}
	loop, err := NewLoop(LoopConfig{
		Source:   camera.Static{Data: []byte{0xff, 0xd8, 0xff}},
		Detector: det,
		Interval: time.Millisecond,
		Observer: obs,
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	loop.Start(context.Background())
	defer loop.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for det.Calls() < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if det.Calls() < 4 {
		t.Fatalf("loop stopped after failures: calls=%d", det.Calls())
	}
	if n := len(loop.Window().Annotations()); n != MaxSlots {
		t.Fatalf("annotations=%d, want %d", n, MaxSlots)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.errs == 0 || obs.ok == 0 {
		t.Fatalf("observer errs=%d ok=%d", obs.errs, obs.ok)
	}
}

func TestLoop_StaleCycleDiscarded(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	det := &fakeDetector{fn: func(call int) ([]detect.Detection, error) {
		if call == 1 {
			entered <- struct{}{}
			<-release
		}
		return makeDetections(2), nil
	}}
	loop, err := NewLoop(LoopConfig{
		Source:   camera.Static{Data: []byte{1}},
		Detector: det,
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	loop.Start(context.Background())
	<-entered
	loop.Stop()
	close(release)
	<-loop.Done()

	if n := len(loop.Window().Annotations()); n != 0 {
		t.Fatalf("stale cycle rendered %d annotations", n)
	}
}

func TestLoop_GateClosedDiscards(t *testing.T) {
	var active atomic.Bool
	active.Store(true)
	det := &fakeDetector{fn: func(call int) ([]detect.Detection, error) {
		active.Store(false)
		return makeDetections(1), nil
	}}
	loop, err := NewLoop(LoopConfig{
		Source:   camera.Static{Data: []byte{1}},
		Detector: det,
		Active:   active.Load,
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	if _, err := loop.RunOnce(context.Background()); !errors.Is(err, ErrStale) {
		t.Fatalf("err=%v, want ErrStale", err)
	}
	if n := len(loop.Window().Annotations()); n != 0 {
		t.Fatalf("annotations=%d, want 0", n)
	}
}

func TestNewLoop_Validates(t *testing.T) {
	if _, err := NewLoop(LoopConfig{Detector: &fakeDetector{}}); err == nil {
		t.Fatalf("expected missing source error")
	}
	if _, err := NewLoop(LoopConfig{Source: camera.Static{}}); err == nil {
		t.Fatalf("expected missing detector error")
	}
}
