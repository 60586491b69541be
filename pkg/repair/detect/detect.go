// Package detect is the client side of the fault-detection model server.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/vango-go/midas/pkg/repair/camera"
)

// BBox is a pixel-space bounding box. Center and size are derived from the
// corners when the server omits them.
type BBox struct {
	X1      int `json:"x1"`
	Y1      int `json:"y1"`
	X2      int `json:"x2"`
	Y2      int `json:"y2"`
	CenterX int `json:"center_x"`
	CenterY int `json:"center_y"`
	Width   int `json:"width"`
	Height  int `json:"height"`
}

// Normalize fills derived fields from the corners.
func (b BBox) Normalize() BBox {
	if b.X2 < b.X1 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y2 < b.Y1 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	b.Width = b.X2 - b.X1
	b.Height = b.Y2 - b.Y1
	b.CenterX = (b.X1 + b.X2) / 2
	b.CenterY = (b.Y1 + b.Y2) / 2
	return b
}

// RepairInfo is the server's knowledge-base hint for a label.
type RepairInfo struct {
	Severity string   `json:"severity"`
	Tools    []string `json:"tools"`
	Steps    []string `json:"steps"`
}

// Detection is one raw result from the model server.
type Detection struct {
	ClassID     int         `json:"class_id"`
	Label       string      `json:"label"`
	Confidence  float64     `json:"confidence"`
	BBox        BBox        `json:"bbox"`
	Repair      *RepairInfo `json:"repair_info,omitempty"`
	SpeechMatch bool        `json:"speech_match"`
}

// Detector runs detection over a single frame. Results are ordered by
// descending relevance.
type Detector interface {
	Detect(ctx context.Context, frame camera.Frame) ([]Detection, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, frame camera.Frame) ([]Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, frame camera.Frame) ([]Detection, error) {
	return f(ctx, frame)
}

// HTTPClient posts frames to a model server's /detect endpoint.
type HTTPClient struct {
	BaseURL       string
	HTTPClient    *http.Client
	MinConfidence float64
}

// NewHTTPClient returns a detector for the server at baseURL.
func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPClient{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: client,
	}
}

type detectResponse struct {
	Detections  []Detection `json:"detections"`
	FrameWidth  int         `json:"frame_width"`
	FrameHeight int         `json:"frame_height"`
}

func (c *HTTPClient) Detect(ctx context.Context, frame camera.Frame) ([]Detection, error) {
	if c == nil || c.BaseURL == "" {
		return nil, fmt.Errorf("detect: base url is required")
	}
	if len(frame.Data) == 0 {
		return nil, fmt.Errorf("detect: empty frame")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mediaType := frame.MediaType
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="frame`+extensionFor(mediaType)+`"`)
	h.Set("Content-Type", mediaType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("detect: create image part: %w", err)
	}
	if _, err := part.Write(frame.Data); err != nil {
		return nil, fmt.Errorf("detect: write image part: %w", err)
	}
	// Speech-context boosting runs on this side; see speechctx.
	if err := mw.WriteField("apply_speech_context", "false"); err != nil {
		return nil, fmt.Errorf("detect: write field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("detect: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/detect", &body)
	if err != nil {
		return nil, fmt.Errorf("detect: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("detect: server error %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("detect: decode response: %w", err)
	}

	dets := make([]Detection, 0, len(out.Detections))
	for _, d := range out.Detections {
		if d.Confidence < c.MinConfidence {
			continue
		}
		d.BBox = d.BBox.Normalize()
		dets = append(dets, d)
	}
	return dets, nil
}

// SortByConfidence orders detections by descending confidence, keeping the
// server's order among equal scores.
func SortByConfidence(dets []Detection) {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
