package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/midas/pkg/repair/checklist"
	"github.com/vango-go/midas/pkg/repair/history"
)

func sampleRecords() []history.Record {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []history.Record{
		{ID: "a", SessionID: "s1", Fault: "screen_crack", Success: true, CompletedSteps: 1,
			Steps: []checklist.Step{{Text: "Power off", Completed: true}}, CreatedAt: at},
		{ID: "b", SessionID: "s2", Fault: "battery_swelling", Success: false,
			Steps: []checklist.Step{{Text: "Stop charging"}}, CreatedAt: at},
	}
}

func TestPrintRecords_JQFilter(t *testing.T) {
	var buf bytes.Buffer
	if err := printRecords(&buf, sampleRecords(), `.[] | select(.success | not) | .fault`); err != nil {
		t.Fatalf("printRecords: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != `"battery_swelling"` {
		t.Fatalf("got=%s, want \"battery_swelling\"", got)
	}
}

func TestPrintRecords_NoQuery(t *testing.T) {
	var buf bytes.Buffer
	if err := printRecords(&buf, nil, ""); err != nil {
		t.Fatalf("printRecords: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Fatalf("got=%s, want []", got)
	}
}

func TestRunJQ_Errors(t *testing.T) {
	if _, err := runJQ(sampleRecords(), ".[] | "); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := runJQ(sampleRecords(), `.[0].id | error("nope")`); err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("err=%v, want runtime error", err)
	}
	out, err := runJQ(sampleRecords(), `length`)
	if err != nil || len(out) != 1 || out[0] != 2 {
		t.Fatalf("out=%v err=%v", out, err)
	}
}
