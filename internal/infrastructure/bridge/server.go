// Package bridge exposes the HTTP surface of the review server and
// translates between wire JSON-RPC and the session registry.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/RickCogley/aichaku-sub007/internal/domain/review"
	"github.com/RickCogley/aichaku-sub007/internal/infrastructure/session"
)

// DefaultPort is the documented shared-server port.
const DefaultPort = 7182

// Config bounds the bridge.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
}

// Server bridges HTTP/SSE clients to worker sessions.
type Server struct {
	mgr       *session.Manager
	cfg       Config
	logger    *slog.Logger
	startedAt time.Time
	httpSrv   *http.Server
}

// NewServer wires the bridge over a session manager.
func NewServer(mgr *session.Manager, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = fmt.Sprintf(":%d", DefaultPort)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	return &Server{
		mgr:       mgr,
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rpc", s.handleRPC)
	mux.HandleFunc("GET /sse", s.handleSSE)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("DELETE /session", s.handleDeleteSession)
	return mux
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
// A bind failure is fatal to the whole server; everything else degrades
// per session.
func (s *Server) ListenAndServe() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("review server listening", "addr", s.cfg.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen on %s: %w", s.cfg.Addr, err)
	}
	return nil
}

// Shutdown stops the listener and tears down every session.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.mgr.Shutdown()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// rpcRequest is the POST /rpc body.
type rpcRequest struct {
	SessionID string          `json:"sessionId"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	ID        json.RawMessage `json:"id"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 10<<20)).Decode(&req); err != nil {
		s.writeRPCError(w, http.StatusBadRequest, nil, -32700, fmt.Sprintf("parse error: %v", err))
		return
	}
	if req.SessionID == "" || req.Method == "" || len(req.ID) == 0 {
		s.writeRPCError(w, http.StatusBadRequest, req.ID, -32600, "sessionId, method and id are required")
		return
	}

	sess, err := s.mgr.GetOrCreate(r.Context(), req.SessionID)
	if err != nil {
		status, code := statusFor(err)
		s.writeRPCError(w, status, req.ID, code, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	resp, err := sess.Call(ctx, req.Method, req.Params, req.ID)
	if err != nil {
		status, code := statusFor(err)
		s.writeRPCError(w, status, req.ID, code, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		s.writeRPCError(w, http.StatusBadRequest, nil, -32600, "sessionId query parameter is required")
		return
	}
	sess, err := s.mgr.Get(sessionID)
	if err != nil {
		s.writeRPCError(w, http.StatusNotFound, nil, -32000, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeRPCError(w, http.StatusInternalServerError, nil, -32603, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := sess.Subscribe()
	defer sess.Unsubscribe(sub)

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, ok := <-sub.Messages():
			if !ok {
				// Session ended; the client must create a new session.
				return
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"sessions":        s.mgr.Count(),
		"uptimeSeconds":   int(time.Since(s.startedAt).Seconds()),
		"droppedMessages": s.mgr.Dropped(),
	})
}

// handleDeleteSession is idempotent: 204 whether or not the session
// existed.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID != "" {
		s.mgr.Close(sessionID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeRPCError always produces a well-formed JSON-RPC error body, never
// an empty body or a raw stack trace.
func (s *Server) writeRPCError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string) {
	s.writeJSON(w, status, session.Message{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &session.RPCError{Code: code, Message: message},
	})
}

func statusFor(err error) (httpStatus, rpcCode int) {
	switch {
	case errors.Is(err, review.ErrSessionDead):
		return http.StatusBadGateway, -32000
	case errors.Is(err, review.ErrStartupTimeout):
		return http.StatusBadGateway, -32001
	case errors.Is(err, review.ErrRequestTimeout):
		return http.StatusGatewayTimeout, -32002
	case errors.Is(err, review.ErrSessionClosed):
		return http.StatusConflict, -32003
	case errors.Is(err, review.ErrSessionNotFound):
		return http.StatusNotFound, -32000
	default:
		return http.StatusInternalServerError, -32603
	}
}
