// Package gateway exposes the daemon over HTTP and WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"mime"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dohr-michael/umbra/internal/cron"
	"github.com/dohr-michael/umbra/internal/events"
	"github.com/dohr-michael/umbra/internal/gateway/ws"
	"github.com/dohr-michael/umbra/internal/switcher"
	"github.com/dohr-michael/umbra/internal/telemetry"
)

// RequestIDHeader carries the caller's request ID on POST /api/commands.
const RequestIDHeader = "X-Request-Id"

// Commander is the part of the switcher the gateway drives.
type Commander interface {
	Execute(ctx context.Context, cmd switcher.Command) (switcher.Status, error)
	Status() switcher.Status
}

// Config holds dependencies for the server.
type Config struct {
	Bus      *events.Bus
	Switcher Commander
	Metrics  *telemetry.Metrics // nil disables /metrics and request metrics
	Addr     string             // host:port
	Now      func() time.Time
}

// Server is the umbra gateway HTTP server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	bus        *events.Bus
	sw         Commander
	now        func() time.Time
}

// NewServer creates a new gateway server.
func NewServer(cfg Config) *Server {
	s := &Server{
		bus: cfg.Bus,
		sw:  cfg.Switcher,
		now: cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.hub = ws.NewHub(cfg.Bus, s.dispatch)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// The WebSocket route stays outside the metrics middleware so the
	// connection can be hijacked directly.
	r.Get("/api/ws", s.hub.ServeWS)

	r.Group(func(r chi.Router) {
		if cfg.Metrics != nil {
			r.Use(cfg.Metrics.Middleware)
			r.Handle("/metrics", cfg.Metrics.Handler())
		}
		r.Get("/api/health", s.handleHealth)
		r.Get("/api/status", s.handleStatus)
		r.Get("/api/events", s.handleEvents)
		r.Get("/api/cron/validate", s.handleCronValidate)
		r.With(localJSON).Post("/api/commands", s.handleCommand)
	})

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("umbra gateway listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// dispatch decodes and runs a command. Shared by the WS hub and
// POST /api/commands.
func (s *Server) dispatch(ctx context.Context, name string, params json.RawMessage) (any, error) {
	if s.sw == nil {
		return nil, errors.New("switcher not running")
	}
	cmd, err := switcher.DecodeCommand(name, params)
	if err != nil {
		return nil, err
	}
	st, err := s.sw.Execute(ctx, cmd)
	return st, err
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("gateway: encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	switcher.Status
	Clients int `json:"ws_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.sw == nil {
		writeError(w, http.StatusServiceUnavailable, "switcher not running")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: s.sw.Status(), Clients: s.hub.Len()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	typ := events.EventType(r.URL.Query().Get("type"))

	var history []events.Event
	if typ == "" {
		history = s.bus.History(limit)
	} else {
		// Filter over the whole buffer, then keep the newest limit.
		for _, e := range s.bus.History(math.MaxInt) {
			if e.Type == typ {
				history = append(history, e)
			}
		}
		if len(history) > limit {
			history = history[len(history)-limit:]
		}
	}
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

type cronValidateResponse struct {
	Expression string    `json:"expression"`
	Valid      bool      `json:"valid"`
	Error      string    `json:"error,omitempty"`
	Last       time.Time `json:"last,omitzero"`
	Next       time.Time `json:"next,omitzero"`
}

func (s *Server) handleCronValidate(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("expr")
	resp := cronValidateResponse{Expression: expr}

	e, err := cron.Parse(expr)
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Valid = true

	now := s.now()
	if last, ok := e.Last(now, cron.DefaultLookback); ok {
		resp.Last = last
	}
	if next, ok := e.Next(now, cron.DefaultLookback); ok {
		resp.Next = next
	}
	writeJSON(w, http.StatusOK, resp)
}

// localJSON rejects browser requests from foreign origins and bodies that
// are not application/json, so a web page cannot post a command as a
// simple cross-origin request.
func localJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ws.OriginAllowed(r) {
			writeError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/json" {
			writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type commandRequest struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type commandResponse struct {
	OK        bool             `json:"ok"`
	RequestID string           `json:"request_id"`
	Status    *switcher.Status `json:"status,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	resp := commandResponse{RequestID: id}

	if s.sw == nil {
		resp.Error = "switcher not running"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	cmd, err := switcher.DecodeCommand(req.Command, req.Params)
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	ctx := events.ContextWithRequestID(r.Context(), id)
	st, err := s.sw.Execute(ctx, cmd)
	resp.Status = &st
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	resp.OK = true
	writeJSON(w, http.StatusOK, resp)
}
