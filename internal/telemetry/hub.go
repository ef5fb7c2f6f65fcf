// Package telemetry streams live pipeline events to UI clients over
// websockets.
//
// The [Hub] fans events out to every connected client as JSON messages. The
// audio core performs no network I/O itself; the application feeds the hub
// from the session hooks. Amplitude events arrive at frame rate, so each
// client has a bounded send queue and clients that cannot keep up are
// disconnected rather than allowed to stall the rest.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// DefaultClientQueueDepth is the per-client event queue size. At a typical
// 20 ms frame quantum this buffers just over a second of amplitude events.
const DefaultClientQueueDepth = 64

// writeTimeout caps a single websocket write; a client blocked longer than
// this is treated as gone.
const writeTimeout = 5 * time.Second

// Event is a single telemetry message. Type is always set; the remaining
// fields are populated per event type.
type Event struct {
	Type   string    `json:"type"`
	At     time.Time `json:"at"`
	Level  float64   `json:"level,omitempty"`
	State  string    `json:"state,omitempty"`
	Path   string    `json:"path,omitempty"`
	Chunks int       `json:"chunks,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Amplitude reports the current capture level in [0.0, 1.0].
func Amplitude(level float64) Event {
	return Event{Type: "amplitude", Level: level}
}

// StateChange reports a detector state transition.
func StateChange(state string) Event {
	return Event{Type: "state", State: state}
}

// SpeechStart reports the onset of a user utterance.
func SpeechStart() Event {
	return Event{Type: "speech_start"}
}

// SpeechEnd reports a finalized utterance and its segment file path.
func SpeechEnd(path string) Event {
	return Event{Type: "speech_end", Path: path}
}

// PlaybackStarted reports the beginning of a spoken response.
func PlaybackStarted(chunks int) Event {
	return Event{Type: "playback_started", Chunks: chunks}
}

// PlaybackFinished reports the end of a spoken response. State is "done" or
// "stopped".
func PlaybackFinished(stopped bool) Event {
	state := "done"
	if stopped {
		state = "stopped"
	}
	return Event{Type: "playback_finished", State: state}
}

// PipelineError reports an unrecoverable pipeline failure.
func PipelineError(err error) Event {
	return Event{Type: "error", Error: err.Error()}
}

// client is one connected websocket consumer. Its events channel is closed
// by the hub to signal eviction.
type client struct {
	events chan Event
}

// Hub broadcasts events to all connected websocket clients. Safe for
// concurrent use.
type Hub struct {
	queueDepth int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// Option configures a [Hub].
type Option func(*Hub)

// WithQueueDepth overrides the per-client event queue size. Values below 1
// are ignored.
func WithQueueDepth(n int) Option {
	return func(h *Hub) {
		if n >= 1 {
			h.queueDepth = n
		}
	}
}

// NewHub returns a Hub ready to accept clients.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		queueDepth: DefaultClientQueueDepth,
		clients:    make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish fans ev out to all connected clients. It never blocks: a client
// whose queue is full is evicted. A zero At field is stamped with the current
// time.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.events <- ev:
		default:
			// Queue overflow: the client is too slow to follow the
			// frame-rate event stream.
			delete(h.clients, c)
			close(c.events)
			slog.Warn("telemetry: dropping slow client", "queue_depth", h.queueDepth)
		}
	}
}

// Close evicts all clients and rejects future connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.events)
	}
}

// register adds a client; it reports false when the hub is closed.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// unregister removes a client if it is still present. The events channel is
// closed exactly once, by whichever of unregister/Publish/Close evicts the
// client first.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.events)
	}
}

// ServeHTTP implements the websocket endpoint. Inbound messages are not
// expected and only read to detect disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("telemetry: websocket accept failed", "err", err)
		return
	}

	c := &client{events: make(chan Event, h.queueDepth)}
	if !h.register(c) {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}

	slog.Debug("telemetry: client connected", "remote", r.RemoteAddr)
	h.writeLoop(r.Context(), conn, c)
	h.unregister(c)
	slog.Debug("telemetry: client disconnected", "remote", r.RemoteAddr)
}

// writeLoop pushes queued events to the connection until the client goes
// away or is evicted.
func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	// CloseRead consumes inbound frames and cancels the context when the
	// peer closes or the connection breaks.
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-c.events:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "event queue overflow")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
