// Package feed broadcasts session and overlay state to live subscribers.
package feed

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/midas/pkg/repair/overlay"
	"github.com/vango-go/midas/pkg/repair/session"
)

// Event types.
const (
	EventSession = "session"
	EventOverlay = "overlay"
)

// Event is one message on the feed.
type Event struct {
	Type        string               `json:"type"`
	Session     *session.Snapshot    `json:"session,omitempty"`
	Annotations []overlay.Annotation `json:"annotations,omitempty"`
	At          time.Time            `json:"at"`
}

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Hub fans events out to websocket subscribers. A subscriber that falls
// behind by more than its buffer is disconnected.
type Hub struct {
	Logger *slog.Logger

	// CheckOrigin overrides the upgrader's origin check. Nil allows all
	// origins.
	CheckOrigin func(*http.Request) bool

	mu      sync.Mutex
	clients map[*client]struct{}
	last    map[string][]byte // latest payload per event type
	closed  bool
}

// Message is one encoded event as delivered to subscribers.
type Message struct {
	Type    string
	Payload []byte
}

type client struct {
	send chan Message
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{Logger: logger, clients: make(map[*client]struct{}), last: make(map[string][]byte)}
}

// PublishSession is a session.Hooks.OnChange callback.
func (h *Hub) PublishSession(snap session.Snapshot) {
	h.Publish(Event{Type: EventSession, Session: &snap, At: time.Now()})
}

// PublishOverlay is an overlay.Window change callback.
func (h *Hub) PublishOverlay(anns []overlay.Annotation) {
	if anns == nil {
		anns = []overlay.Annotation{}
	}
	h.Publish(Event{Type: EventOverlay, Annotations: anns, At: time.Now()})
}

// Publish sends ev to every subscriber.
func (h *Hub) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.Logger.Error("feed event encode failed", "type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.last[ev.Type] = payload
	msg := Message{Type: ev.Type, Payload: payload}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			c.close()
			h.Logger.Warn("feed subscriber too slow, dropped")
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register() (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &client{send: make(chan Message, sendBuffer)}
	for _, typ := range []string{EventSession, EventOverlay} {
		if payload, ok := h.last[typ]; ok {
			c.send <- Message{Type: typ, Payload: payload}
		}
	}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// Subscribe registers a subscriber for transports other than the websocket
// one. The channel first carries the latest event of each type and is closed
// when the subscriber falls behind or the hub closes. cancel unregisters it;
// ok is false once the hub is closed.
func (h *Hub) Subscribe() (events <-chan Message, cancel func(), ok bool) {
	c, ok := h.register()
	if !ok {
		return nil, func() {}, false
	}
	return c.send, func() { h.unregister(c) }, true
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
// New subscribers first receive the latest event of each type.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checkOrigin := h.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c, ok := h.register()
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"), time.Now().Add(writeTimeout))
		return
	}
	defer h.unregister(c)

	// Subscribers only listen; reading detects disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(1024)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
