package handlers

import (
	"net/http"
	"time"

	"github.com/vango-go/midas/pkg/repair/overlay"
)

// OverlayHandler serves the current annotation slots.
type OverlayHandler struct {
	Window *overlay.Window
}

func (h OverlayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type overlayResp struct {
		Cycle       uint64               `json:"cycle"`
		UpdatedAt   time.Time            `json:"updated_at,omitzero"`
		Annotations []overlay.Annotation `json:"annotations"`
	}
	if h.Window == nil {
		notConfigured(w, r, "overlay")
		return
	}
	anns := h.Window.Annotations()
	if anns == nil {
		anns = []overlay.Annotation{}
	}
	writeJSON(w, http.StatusOK, overlayResp{
		Cycle:       h.Window.Cycle(),
		UpdatedAt:   h.Window.UpdatedAt(),
		Annotations: anns,
	})
}
