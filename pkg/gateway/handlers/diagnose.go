package handlers

import (
	"context"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/vango-go/midas/pkg/repair/camera"
	"github.com/vango-go/midas/pkg/repair/diagnosis"
)

// Diagnoser is satisfied by *diagnosis.Diagnoser.
type Diagnoser interface {
	Diagnose(ctx context.Context, frame camera.Frame, transcript string) (diagnosis.Result, error)
}

// DiagnoseHandler runs a one-shot structured diagnosis. The request body is
// an image; an empty body diagnoses the current camera frame instead. The
// optional transcript query parameter carries the user's description.
type DiagnoseHandler struct {
	Diagnoser    Diagnoser
	Camera       camera.Source
	MaxBodyBytes int64
}

func (h DiagnoseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Diagnoser == nil {
		notConfigured(w, r, "diagnosis")
		return
	}
	body, err := readBody(w, r, h.MaxBodyBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var frame camera.Frame
	if len(body) > 0 {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if !strings.HasPrefix(mediaType, "image/") {
			writeInvalid(w, r, "body must be an image", "Content-Type")
			return
		}
		frame = camera.Frame{Data: body, MediaType: mediaType, CapturedAt: time.Now()}
	} else {
		if h.Camera == nil {
			writeError(w, r, camera.ErrNotReady)
			return
		}
		frame, err = h.Camera.CaptureFrame(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	res, err := h.Diagnoser.Diagnose(r.Context(), frame, r.URL.Query().Get("transcript"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
