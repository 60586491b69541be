package lifecycle

import "testing"

func TestLifecycle_Draining(t *testing.T) {
	l := New()
	if l.IsDraining() {
		t.Fatalf("new lifecycle should not be draining")
	}
	l.SetDraining(true)
	if !l.IsDraining() {
		t.Fatalf("expected draining")
	}
	if l.Uptime() < 0 {
		t.Fatalf("uptime=%v", l.Uptime())
	}
}

func TestLifecycle_NilSafe(t *testing.T) {
	var l *Lifecycle
	l.SetDraining(true)
	if l.IsDraining() || l.Uptime() != 0 {
		t.Fatalf("nil lifecycle should report idle")
	}
}
