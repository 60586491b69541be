package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vango-go/midas/pkg/core"
	"github.com/vango-go/midas/pkg/gateway/apierror"
	"github.com/vango-go/midas/pkg/gateway/mw"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err in the canonical envelope with the status
// apierror assigns to it.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	coreErr, status := apierror.FromError(err, reqID)
	writeJSON(w, status, apierror.Envelope{Error: coreErr})
}

func writeInvalid(w http.ResponseWriter, r *http.Request, message, param string) {
	err := core.NewInvalidRequestErrorWithParam(message, param)
	writeError(w, r, err)
}

// readBody reads at most limit bytes. A larger body is an invalid request.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = 8 << 20
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, core.NewInvalidRequestErrorWithParam("request body too large", "body")
		}
		return nil, core.NewInvalidRequestErrorWithParam("failed to read request body", "body")
	}
	return data, nil
}
