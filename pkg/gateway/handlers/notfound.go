package handlers

import (
	"net/http"

	"github.com/vango-go/midas/pkg/core"
	"github.com/vango-go/midas/pkg/gateway/apierror"
	"github.com/vango-go/midas/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeJSON(w, http.StatusNotFound, apierror.Envelope{Error: &core.Error{
		Type:      core.ErrNotFound,
		Message:   "not found",
		RequestID: reqID,
	}})
}

// notConfigured answers routes whose backing component is disabled.
func notConfigured(w http.ResponseWriter, r *http.Request, what string) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeJSON(w, http.StatusNotFound, apierror.Envelope{Error: &core.Error{
		Type:      core.ErrNotFound,
		Message:   what + " is not configured",
		Code:      "not_configured",
		RequestID: reqID,
	}})
}
