package checklist

import (
	"strings"
	"testing"
)

func TestExtract_NumberedForms(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "step colon", in: "Step 1: Power off the device.", want: "Power off the device."},
		{name: "step period", in: "step 2. Remove the back cover", want: "Remove the back cover"},
		{name: "bold step", in: "**Step 3:** Disconnect the *battery* connector", want: "Disconnect the battery connector"},
		{name: "paren", in: "4) Lift the display with a suction cup", want: "Lift the display with a suction cup"},
		{name: "dash", in: "5 - Reseat the flex cable", want: "Reseat the flex cable"},
		{name: "bullet prefix", in: "- 6. Apply new adhesive", want: "Apply new adhesive"},
		{name: "code markup", in: "1. Loosen the `P2` screws", want: "Loosen the P2 screws"},
		{name: "later line", in: "I can see a cracked screen.\n\n1. Power the phone off first.\nThen tell me.", want: "Power the phone off first."},
	}
	e := NewExtractor()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := e.Extract(tc.in)
			if !ok {
				t.Fatalf("expected a step for %q", tc.in)
			}
			if got.Text != tc.want {
				t.Fatalf("text=%q, want %q", got.Text, tc.want)
			}
			if got.Completed {
				t.Fatalf("new step must not be completed")
			}
		})
	}
}

func TestExtract_FirstMatchOnly(t *testing.T) {
	step, ok := NewExtractor().Extract("1. Unplug the charger\n2. Remove the case\n3. Power off")
	if !ok {
		t.Fatalf("expected a match")
	}
	if step.Text != "Unplug the charger" {
		t.Fatalf("text=%q, want first line", step.Text)
	}
}

func TestExtract_NoNumberedLine(t *testing.T) {
	inputs := []string{
		"",
		"I can't see a device in the frame. Could you move the camera closer?",
		"Use a 3.5mm pry tool around the edge.",
		"Steps: be careful with the glass.",
		"In 2024 this model was recalled.",
	}
	e := NewExtractor()
	for _, in := range inputs {
		if step, ok := e.Extract(in); ok {
			t.Fatalf("unexpected step %q for %q", step.Text, in)
		}
	}
}

func TestApply_DoesNotTouchExisting(t *testing.T) {
	e := NewExtractor()
	existing := []Step{{Text: "Power off the device.", Completed: true}}

	got, added := e.Apply(existing, "Great.\nStep 2: Remove the SIM tray.")
	if !added || len(got) != 2 {
		t.Fatalf("added=%v len=%d, want true 2", added, len(got))
	}
	if got[0] != existing[0] {
		t.Fatalf("existing step changed: %+v", got[0])
	}
	if got[1].Text != "Remove the SIM tray." || got[1].Completed {
		t.Fatalf("new step=%+v", got[1])
	}

	same, added := e.Apply(got, "Nice work, keep going.")
	if added || len(same) != 2 {
		t.Fatalf("non-matching text appended a step: %+v", same)
	}

	again, added := e.Apply(got, "Step 3: remove the sim tray.")
	if !added || len(again) != 3 || again[2].Text != "remove the sim tray." {
		t.Fatalf("repeated instruction not appended: %+v", again)
	}
}

func TestApply_SkipDuplicates(t *testing.T) {
	base := NewExtractor()
	e := base.SkipDuplicates()
	existing := []Step{{Text: "Remove the SIM tray.", Completed: true}}

	dup, added := e.Apply(existing, "Step 2: remove the sim tray.")
	if added || len(dup) != 1 {
		t.Fatalf("duplicate step appended: %+v", dup)
	}
	next, added := e.Apply(existing, "Step 2: Lift the battery.")
	if !added || len(next) != 2 {
		t.Fatalf("new step not appended: %+v", next)
	}
	if _, added := base.Apply(existing, "Step 2: remove the sim tray."); !added {
		t.Fatalf("SkipDuplicates changed the original extractor")
	}
}

func TestCompile_RequiresTextGroup(t *testing.T) {
	if _, err := Compile("bad", `^(\d+)\.`); err == nil || !strings.Contains(err.Error(), "text") {
		t.Fatalf("err=%v, want missing group error", err)
	}
	if _, err := Compile("broken", `(`); err == nil {
		t.Fatalf("expected regexp error")
	}
}

func TestCompileAll_CustomPatterns(t *testing.T) {
	patterns, err := CompileAll([]string{`^Langkah\s+(\d+)[.:]\s*(?P<text>.+)$`})
	if err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	e := NewExtractor(patterns...)
	step, ok := e.Extract("Langkah 1: Matikan perangkat")
	if !ok || step.Text != "Matikan perangkat" {
		t.Fatalf("step=%+v ok=%v", step, ok)
	}
	if _, ok := e.Extract("Step 1: Power off"); ok {
		t.Fatalf("custom set should replace defaults")
	}

	defaults, err := CompileAll(nil)
	if err != nil || len(defaults) != len(DefaultPatterns) {
		t.Fatalf("defaults=%d err=%v", len(defaults), err)
	}
}

func TestLastIncomplete(t *testing.T) {
	steps := []Step{{Text: "a"}, {Text: "b", Completed: true}, {Text: "c"}, {Text: "d", Completed: true}}
	if got := LastIncomplete(steps); got != 2 {
		t.Fatalf("got=%d, want 2", got)
	}
	if got := LastIncomplete([]Step{{Text: "a", Completed: true}}); got != -1 {
		t.Fatalf("got=%d, want -1", got)
	}
	if got := CompletedCount(steps); got != 2 {
		t.Fatalf("completed=%d, want 2", got)
	}
}
