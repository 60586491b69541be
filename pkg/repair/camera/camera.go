// Package camera provides frame sources for repair sessions.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrNotReady is returned by CaptureFrame when the source has no live feed.
var ErrNotReady = errors.New("camera: source not ready")

// Frame is one captured still image.
type Frame struct {
	Data       []byte
	MediaType  string
	CapturedAt time.Time
}

// Source produces frames from a live video feed.
type Source interface {
	// Ready reports whether the source currently has a live feed.
	Ready() bool

	// CaptureFrame grabs the current frame.
	CaptureFrame(ctx context.Context) (Frame, error)
}

// HTTPSnapshot captures frames by fetching a JPEG snapshot URL, the way
// IP cameras and most phone webcam apps expose their feed.
type HTTPSnapshot struct {
	URL        string
	HTTPClient *http.Client
	MaxBytes   int64

	mu        sync.Mutex
	lastError error
}

// NewHTTPSnapshot returns a snapshot source for url.
func NewHTTPSnapshot(url string, client *http.Client) *HTTPSnapshot {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSnapshot{URL: strings.TrimSpace(url), HTTPClient: client, MaxBytes: 8 << 20}
}

// Ready reports whether a snapshot URL is configured. Transient fetch
// failures surface from CaptureFrame and LastError instead.
func (s *HTTPSnapshot) Ready() bool {
	return s != nil && s.URL != ""
}

// LastError returns the error from the most recent capture, if any.
func (s *HTTPSnapshot) LastError() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *HTTPSnapshot) CaptureFrame(ctx context.Context) (Frame, error) {
	if !s.Ready() {
		return Frame{}, ErrNotReady
	}
	frame, err := s.fetch(ctx)
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
	return frame, err
}

func (s *HTTPSnapshot) fetch(ctx context.Context) (Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Frame{}, fmt.Errorf("camera: build request: %w", err)
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("camera: fetch snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Frame{}, fmt.Errorf("camera: snapshot status %d", resp.StatusCode)
	}
	limit := s.MaxBytes
	if limit <= 0 {
		limit = 8 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return Frame{}, fmt.Errorf("camera: read snapshot: %w", err)
	}
	if int64(len(data)) > limit {
		return Frame{}, fmt.Errorf("camera: snapshot exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("camera: empty snapshot")
	}
	mediaType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if mediaType == "" || !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	return Frame{Data: data, MediaType: mediaType, CapturedAt: time.Now()}, nil
}

// File serves a still image from disk on every capture. It backs the CLI's
// offline mode and photo-only scans.
type File struct {
	Path string
}

func (f File) Ready() bool {
	if strings.TrimSpace(f.Path) == "" {
		return false
	}
	info, err := os.Stat(f.Path)
	return err == nil && !info.IsDir()
}

func (f File) CaptureFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if !f.Ready() {
		return Frame{}, ErrNotReady
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Frame{}, fmt.Errorf("camera: read %s: %w", f.Path, err)
	}
	return Frame{Data: data, MediaType: http.DetectContentType(data), CapturedAt: time.Now()}, nil
}

// Static returns the same bytes on every capture.
type Static struct {
	Data      []byte
	MediaType string
}

func (s Static) Ready() bool { return len(s.Data) > 0 }

func (s Static) CaptureFrame(ctx context.Context) (Frame, error) {
	if len(s.Data) == 0 {
		return Frame{}, ErrNotReady
	}
	mt := s.MediaType
	if mt == "" {
		mt = http.DetectContentType(s.Data)
	}
	return Frame{Data: s.Data, MediaType: mt, CapturedAt: time.Now()}, nil
}
