package handlers

import (
	"net/http"
	"time"

	"github.com/vango-go/midas/pkg/core"
	"github.com/vango-go/midas/pkg/gateway/apierror"
	"github.com/vango-go/midas/pkg/gateway/mw"
	"github.com/vango-go/midas/pkg/gateway/sse"
	"github.com/vango-go/midas/pkg/repair/feed"
)

// EventSource is satisfied by *feed.Hub.
type EventSource interface {
	Subscribe() (events <-chan feed.Message, cancel func(), ok bool)
}

// EventsHandler streams the live feed as server-sent events, for clients
// that cannot open a websocket.
type EventsHandler struct {
	Source       EventSource
	PingInterval time.Duration
}

func (h EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Source == nil {
		notConfigured(w, r, "feed")
		return
	}
	events, cancel, ok := h.Source.Subscribe()
	if !ok {
		reqID, _ := mw.RequestIDFrom(r.Context())
		writeJSON(w, http.StatusServiceUnavailable, apierror.Envelope{Error: &core.Error{
			Type:      core.ErrOverloaded,
			Message:   "feed is shutting down",
			RequestID: reqID,
		}})
		return
	}
	defer cancel()

	sw, err := sse.New(w)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := sw.Ping(); err != nil {
		return
	}

	interval := h.PingInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ping := time.NewTicker(interval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-events:
			if !ok {
				return
			}
			if err := sw.SendRaw(msg.Type, msg.Payload); err != nil {
				return
			}
		case <-ping.C:
			if err := sw.Ping(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
