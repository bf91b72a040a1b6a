// Package api implements the HTTP API for the assistant.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/valet-agent/valet/internal/agent"
	"github.com/valet-agent/valet/internal/buildinfo"
	"github.com/valet-agent/valet/internal/calendar"
	"github.com/valet-agent/valet/internal/config"
	"github.com/valet-agent/valet/internal/convo"
	"github.com/valet-agent/valet/internal/events"
	"github.com/valet-agent/valet/internal/tasks"
)

// TurnProcessor runs one conversational turn. Implemented by
// *agent.Loop; an interface so handlers can be tested with a fake.
type TurnProcessor interface {
	ProcessMessage(ctx context.Context, userText, conversationID string) (*agent.Response, error)
}

// Pinger checks reachability of the model provider. Satisfied by
// llm.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	listen   config.ListenConfig
	loop     TurnProcessor
	tasks    *tasks.Store
	calendar calendar.Source
	usage    UsageReader
	bus      *events.Bus
	pinger   Pinger
	logger   *slog.Logger
	server   *http.Server

	// convLocks serializes turns per conversation so concurrent
	// requests against the same conversation cannot interleave
	// read-modify-write cycles on it.
	mu        sync.Mutex
	convLocks map[string]*sync.Mutex
}

// NewServer creates a new API server.
func NewServer(listen config.ListenConfig, loop TurnProcessor, logger *slog.Logger) *Server {
	return &Server{
		listen:    listen,
		loop:      loop,
		logger:    logger,
		convLocks: make(map[string]*sync.Mutex),
	}
}

// SetTaskStore configures the task store for the debrief endpoint.
func (s *Server) SetTaskStore(ts *tasks.Store) {
	s.tasks = ts
}

// SetCalendar configures the calendar source for the debrief endpoint.
func (s *Server) SetCalendar(src calendar.Source) {
	s.calendar = src
}

// SetUsageReader configures the trace reader for the usage endpoint.
func (s *Server) SetUsageReader(ur UsageReader) {
	s.usage = ur
}

// SetEventBus configures the event bus for the events endpoint.
func (s *Server) SetEventBus(bus *events.Bus) {
	s.bus = bus
}

// SetPinger configures the provider reachability check for /healthz.
func (s *Server) SetPinger(p Pinger) {
	s.pinger = p
}

// Handler builds the route table. Exposed separately from Start so
// tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/debrief", s.handleDebrief)
	mux.HandleFunc("GET /v1/usage", s.handleUsage)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests. Blocks until the listener fails
// or Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.listen.Address, s.listen.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // agent turns can run long
	}

	addr := s.listen.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.listen.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// convLock returns the mutex for a conversation, creating it on first
// use. Locks are never reaped; conversations are few and long-lived.
func (s *Server) convLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.convLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.convLocks[id] = l
	}
	return l
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message},
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse is the body of a successful POST /v1/chat.
type ChatResponse struct {
	ConversationID string  `json:"conversation_id"`
	Response       string  `json:"response"`
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	CostUSD        float64 `json:"cost_usd"`
	Iterations     int     `json:"iterations"`
	TraceID        string  `json:"trace_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	if req.ConversationID != "" {
		lock := s.convLock(req.ConversationID)
		lock.Lock()
		defer lock.Unlock()
	}

	resp, err := s.loop.ProcessMessage(r.Context(), req.Message, req.ConversationID)
	if err != nil {
		s.chatError(w, err)
		return
	}

	out := ChatResponse{
		ConversationID: resp.Conversation.ID,
		Response:       resp.Content,
		InputTokens:    resp.InputTokens,
		OutputTokens:   resp.OutputTokens,
	}
	if resp.Trace != nil {
		out.CostUSD = resp.Trace.CostUSD
		out.Iterations = len(resp.Trace.Iterations)
		out.TraceID = resp.Trace.ID
	}
	s.writeJSON(w, out)
}

// chatError maps turn failures onto HTTP status codes.
func (s *Server) chatError(w http.ResponseWriter, err error) {
	s.logger.Error("turn failed", "error", err)

	var provErr *agent.ProviderError
	switch {
	case errors.Is(err, convo.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, agent.ErrContextOverflow):
		s.errorResponse(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, agent.ErrIterationLimit):
		s.errorResponse(w, http.StatusBadGateway, err.Error())
	case errors.As(err, &provErr):
		s.errorResponse(w, http.StatusBadGateway, err.Error())
	default:
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, map[string]string{
		"name":    "Valet",
		"version": buildinfo.Version,
		"status":  "ok",
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, buildinfo.Info())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Warn("provider ping failed", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			if err := json.NewEncoder(w).Encode(map[string]string{
				"status":   "degraded",
				"provider": "unreachable",
			}); err != nil {
				s.logger.Debug("failed to write health response", "error", err)
			}
			return
		}
	}
	s.writeJSON(w, map[string]string{"status": "healthy"})
}
