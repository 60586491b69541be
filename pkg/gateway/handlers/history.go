package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vango-go/midas/pkg/repair/history"
)

const maxHistoryLimit = 500

// HistoryHandler lists stored repair records, newest first. The device can
// be chosen with a {device_id} path segment or a device_id query parameter.
type HistoryHandler struct {
	Store history.Store
}

func (h HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		notConfigured(w, r, "history")
		return
	}
	q := r.URL.Query()
	opts := history.ListOptions{
		DeviceID:    strings.TrimSpace(r.PathValue("device_id")),
		DeviceModel: strings.TrimSpace(q.Get("device_model")),
	}
	if opts.DeviceID == "" {
		opts.DeviceID = strings.TrimSpace(q.Get("device_id"))
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeInvalid(w, r, "limit must be between 1 and 500", "limit")
			return
		}
		opts.Limit = n
	}
	records, err := h.Store.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
