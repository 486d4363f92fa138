// Package ws bridges the event bus and switcher commands to WebSocket
// clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/dohr-michael/umbra/internal/events"
)

// LocalOrigins are the browser origins, as host patterns, allowed to
// reach the gateway.
var LocalOrigins = []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*"}

// OriginAllowed applies the LocalOrigins policy to a plain HTTP request.
// Requests without an Origin header (CLI, curl) pass.
func OriginAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, pattern := range LocalOrigins {
		if ok, _ := path.Match(pattern, host); ok {
			return true
		}
	}
	return false
}

// Dispatcher executes a named command and returns its result payload.
type Dispatcher func(ctx context.Context, method string, params json.RawMessage) (any, error)

// Client represents a connected WebSocket client.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub manages WebSocket clients and bridges them to the event bus.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	bus         *events.Bus
	dispatch    Dispatcher
	unsubscribe func()
}

// NewHub creates a hub that forwards every bus event except
// schedule.evaluated to connected clients and runs request frames through
// dispatch.
func NewHub(bus *events.Bus, dispatch Dispatcher) *Hub {
	h := &Hub{
		clients:  make(map[*Client]struct{}),
		bus:      bus,
		dispatch: dispatch,
	}

	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		if e.Type == events.EventScheduleEvaluated {
			return
		}
		frame, err := NewEventFrame(string(e.Type), e)
		if err != nil {
			slog.Error("marshal event frame", "error", err)
			return
		}
		data, err := MarshalFrame(frame)
		if err != nil {
			slog.Error("marshal frame", "error", err)
			return
		}
		h.broadcast(data)
	})

	return h
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast sends data to all connected clients.
func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Debug("ws client connected", "clients", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Debug("ws client disconnected", "clients", len(h.clients))
	}
}

// ServeWS handles a WebSocket upgrade and manages the client lifecycle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: LocalOrigins,
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

// readPump reads frames from the WS connection and dispatches them.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Warn("ws unmarshal frame", "error", err)
			c.reply(NewResponseFrame("", false, nil, "invalid frame"))
			continue
		}

		switch frame.Type {
		case FrameTypeRequest:
			c.handleRequest(ctx, frame)
		default:
			slog.Debug("ws unknown frame type", "type", frame.Type)
		}
	}
}

// handleRequest runs a command frame through the dispatcher. The frame ID
// becomes the request ID of every event the command publishes.
func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	if c.hub.dispatch == nil {
		c.reply(NewResponseFrame(frame.ID, false, nil, "commands not available"))
		return
	}

	ctx = events.ContextWithRequestID(ctx, frame.ID)
	result, err := c.hub.dispatch(ctx, frame.Method, frame.Params)
	if err != nil {
		c.reply(NewResponseFrame(frame.ID, false, result, err.Error()))
		return
	}
	c.reply(NewResponseFrame(frame.ID, true, result, ""))
}

func (c *Client) reply(f Frame, err error) {
	if err != nil {
		slog.Error("ws build response", "error", err)
		return
	}
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump writes queued messages to the WS connection.
func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
		close(c.send)
	}
}
