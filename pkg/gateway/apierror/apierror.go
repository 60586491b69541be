package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/vango-go/midas/pkg/core"
	"github.com/vango-go/midas/pkg/repair/camera"
	"github.com/vango-go/midas/pkg/repair/diagnosis"
	"github.com/vango-go/midas/pkg/repair/history"
	"github.com/vango-go/midas/pkg/repair/session"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

// sentinel maps a package error to its wire shape.
type sentinel struct {
	err    error
	typ    core.ErrorType
	code   string
	status int
}

var sentinels = []sentinel{
	{session.ErrTurnInFlight, core.ErrInvalidRequest, "turn_in_flight", http.StatusConflict},
	{session.ErrNotActive, core.ErrInvalidRequest, "session_not_active", http.StatusConflict},
	{session.ErrInvalidTransition, core.ErrInvalidRequest, "invalid_transition", http.StatusConflict},
	{session.ErrNoIncompleteStep, core.ErrInvalidRequest, "no_incomplete_step", http.StatusConflict},
	{session.ErrEmptyInput, core.ErrInvalidRequest, "empty_input", http.StatusBadRequest},
	{session.ErrConflictingInput, core.ErrInvalidRequest, "conflicting_input", http.StatusBadRequest},
	{session.ErrNoSource, core.ErrAPI, "camera_not_ready", http.StatusServiceUnavailable},
	{camera.ErrNotReady, core.ErrAPI, "camera_not_ready", http.StatusServiceUnavailable},
	{history.ErrInvalidRecord, core.ErrInvalidRequest, "invalid_record", http.StatusBadRequest},
	{diagnosis.ErrUnparseable, core.ErrProvider, "unparseable_diagnosis", http.StatusBadGateway},
}

func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	// Context timeouts/cancellation.
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return &core.Error{
				Type:      s.typ,
				Message:   err.Error(),
				Code:      s.code,
				RequestID: requestID,
			}, s.status
		}
	}

	// Already canonical.
	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, statusFromType(coreErr.Type)
	}

	// Unknown errors: treat as internal API error (do not leak details by default).
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrPermission:
		return http.StatusForbidden
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrOverloaded:
		return 529
	case core.ErrProvider:
		return http.StatusBadGateway
	case core.ErrAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
