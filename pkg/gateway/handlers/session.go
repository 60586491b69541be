package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/vango-go/midas/pkg/core"
	"github.com/vango-go/midas/pkg/core/voice"
	"github.com/vango-go/midas/pkg/gateway/apierror"
	"github.com/vango-go/midas/pkg/gateway/mw"
	"github.com/vango-go/midas/pkg/repair/checklist"
	"github.com/vango-go/midas/pkg/repair/session"
)

// SessionHandler exposes one repair session over HTTP.
type SessionHandler struct {
	Session      *session.Session
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// turnRequest is the JSON body of POST /v1/session/turn. Audio turns send
// the raw audio instead, with an audio/* content type.
type turnRequest struct {
	Text      string `json:"text,omitempty"`
	FrameOnly bool   `json:"frame_only,omitempty"`
	Wait      bool   `json:"wait,omitempty"`
}

type turnResponse struct {
	SessionID     string            `json:"session_id"`
	TurnID        string            `json:"turn_id"`
	Kind          session.InputKind `json:"kind"`
	Outcome       session.Outcome   `json:"outcome,omitempty"`
	UserText      string            `json:"user_text,omitempty"`
	AssistantText string            `json:"assistant_text,omitempty"`
	Step          *checklist.Step   `json:"step,omitempty"`
	Spoken        bool              `json:"spoken,omitempty"`
	Error         *core.Error       `json:"error,omitempty"`
}

// Get returns the current snapshot.
func (h SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Session.Snapshot())
}

func (h SessionHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Session.GrantPermissions)
}

func (h SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Session.Start)
}

func (h SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Session.EndSession)
}

func (h SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func() error {
		h.Session.ResetSession()
		return nil
	})
}

func (h SessionHandler) transition(w http.ResponseWriter, r *http.Request, fn func() error) {
	if err := fn(); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Session.Snapshot())
}

// Turn starts a turn. With wait=true (JSON field or query parameter) the
// response is held until the turn settles; otherwise 202 is returned as
// soon as the turn is accepted.
func (h SessionHandler) Turn(w http.ResponseWriter, r *http.Request) {
	in, wait, ok := h.decodeTurn(w, r)
	if !ok {
		return
	}
	turn, err := h.Session.StartTurn(in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondTurn(w, r, turn, wait)
}

// Confirm marks the last incomplete step done and requests the next one.
func (h SessionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	turn, err := h.Session.ConfirmStep()
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondTurn(w, r, turn, queryBool(r, "wait"))
}

func (h SessionHandler) decodeTurn(w http.ResponseWriter, r *http.Request) (session.TurnInput, bool, bool) {
	wait := queryBool(r, "wait")
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	body, err := readBody(w, r, h.MaxBodyBytes)
	if err != nil {
		writeError(w, r, err)
		return session.TurnInput{}, false, false
	}

	if strings.HasPrefix(mediaType, "audio/") {
		return session.Spoken(voice.Audio{Data: body, MediaType: mediaType}), wait, true
	}
	if mediaType != "" && mediaType != "application/json" {
		writeInvalid(w, r, "content type must be application/json or audio/*", "Content-Type")
		return session.TurnInput{}, false, false
	}

	var req turnRequest
	if len(body) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeInvalid(w, r, "invalid JSON body: "+err.Error(), "body")
			return session.TurnInput{}, false, false
		}
	}
	return session.TurnInput{Text: req.Text, FrameOnly: req.FrameOnly}, wait || req.Wait, true
}

func (h SessionHandler) respondTurn(w http.ResponseWriter, r *http.Request, turn *session.Turn, wait bool) {
	w.Header().Set("X-Session-ID", h.Session.ID())
	w.Header().Set("X-Turn-ID", turn.ID)
	resp := turnResponse{
		SessionID: h.Session.ID(),
		TurnID:    turn.ID,
		Kind:      turn.Kind,
	}
	if !wait {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	res, err := turn.Wait(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp.Outcome = res.Outcome
	resp.UserText = res.UserText
	resp.AssistantText = res.AssistantText
	resp.Step = res.Step
	resp.Spoken = res.Spoken
	if res.Err != nil {
		reqID, _ := mw.RequestIDFrom(r.Context())
		resp.Error, _ = apierror.FromError(res.Err, reqID)
		if h.Logger != nil {
			h.Logger.Warn("turn failed", "request_id", reqID, "turn_id", turn.ID, "error", res.Err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}
