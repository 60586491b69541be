package detect

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vango-go/midas/pkg/repair/camera"
)

func TestHTTPClient_Detect(t *testing.T) {
	var gotImage []byte
	var gotField string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		f, _, err := r.FormFile("image")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		gotImage, _ = io.ReadAll(f)
		gotField = r.FormValue("apply_speech_context")

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"detections": [
				{"class_id": 4, "label": "lcd_retak", "confidence": 0.91, "bbox": {"x1": 10, "y1": 20, "x2": 110, "y2": 220}, "repair_info": {"severity": "high", "tools": ["Heat gun"], "steps": ["Power off"]}},
				{"class_id": 0, "label": "phone", "confidence": 0.2, "bbox": {"x1": 0, "y1": 0, "x2": 5, "y2": 5}}
			],
			"frame_width": 640,
			"frame_height": 480
		}`)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", srv.Client())
	c.MinConfidence = 0.4
	dets, err := c.Detect(context.Background(), camera.Frame{Data: []byte("jpeg-bytes"), MediaType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if string(gotImage) != "jpeg-bytes" {
		t.Fatalf("image=%q", gotImage)
	}
	if gotField != "false" {
		t.Fatalf("apply_speech_context=%q, want false", gotField)
	}
	if len(dets) != 1 {
		t.Fatalf("len(dets)=%d, want 1 after confidence filter", len(dets))
	}
	d := dets[0]
	if d.Label != "lcd_retak" || d.Repair == nil || d.Repair.Severity != "high" {
		t.Fatalf("detection=%+v", d)
	}
	if d.BBox.Width != 100 || d.BBox.Height != 200 || d.BBox.CenterX != 60 || d.BBox.CenterY != 120 {
		t.Fatalf("bbox=%+v", d.BBox)
	}
}

func TestHTTPClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, srv.Client()).Detect(context.Background(), camera.Frame{Data: []byte("x")})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err=%v, want 503 error", err)
	}
}

func TestHTTPClient_EmptyFrame(t *testing.T) {
	if _, err := NewHTTPClient("http://example.invalid", nil).Detect(context.Background(), camera.Frame{}); err == nil {
		t.Fatalf("expected error for empty frame")
	}
}

func TestSortByConfidence(t *testing.T) {
	dets := []Detection{{Label: "a", Confidence: 0.3}, {Label: "b", Confidence: 0.9}, {Label: "c", Confidence: 0.3}}
	SortByConfidence(dets)
	got := dets[0].Label + dets[1].Label + dets[2].Label
	if got != "bac" {
		t.Fatalf("order=%q, want bac", got)
	}
}
