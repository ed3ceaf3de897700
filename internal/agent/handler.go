package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/courtside/courtside/internal/session"
)

// maxRequestBodySize is the maximum allowed chat request body size (1MB).
const maxRequestBodySize = 1 << 20

// Terminal SSE events matter more than chunks: a lost chunk degrades the
// reply, a lost done/error event leaves the client spinner stuck. Retry
// those writes a few times before giving up.
const (
	terminalWriteRetries = 3
	doneRetryDelay       = 200 * time.Millisecond
	errorRetryDelay      = 100 * time.Millisecond
)

// RateLimiter implements a per-session sliding-window rate limiter.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a rate limiter and starts the background eviction
// goroutine.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
	rl.startEviction()
	return rl
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// startEviction periodically removes expired keys from the requests map,
// preventing unbounded memory growth.
func (r *RateLimiter) startEviction() {
	go func() {
		ticker := time.NewTicker(r.window)
		defer ticker.Stop()
		for range ticker.C {
			r.mu.Lock()
			cutoff := time.Now().Add(-r.window)
			for key, times := range r.requests {
				var fresh []time.Time
				for _, t := range times {
					if t.After(cutoff) {
						fresh = append(fresh, t)
					}
				}
				if len(fresh) == 0 {
					delete(r.requests, key)
				} else {
					r.requests[key] = fresh
				}
			}
			r.mu.Unlock()
		}
	}()
}

// Handler exposes the chat service over HTTP with SSE streaming.
type Handler struct {
	agent       *Service
	rateLimiter *RateLimiter
}

// NewHandler creates the agent HTTP handler.
func NewHandler(agent *Service, rateLimitRequests int, rateLimitWindow time.Duration) *Handler {
	return &Handler{
		agent:       agent,
		rateLimiter: NewRateLimiter(rateLimitRequests, rateLimitWindow),
	}
}

// RegisterRoutes registers the chat API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.HandleChat)
		r.Post("/reset", h.HandleReset)
		r.Get("/state", h.HandleState)
	})
}

// HandleChat handles POST /api/chat requests. The response is an SSE stream
// by default; ?stream=false returns a single buffered JSON object instead.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := session.IDFromContext(r.Context())

	if !h.rateLimiter.Allow(sessionID) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}
	req.SessionID = sessionID

	slog.Info("Chat request",
		"session_id", sessionID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Message),
	)

	if r.URL.Query().Get("stream") == "false" {
		h.handleBufferedChat(w, r, req)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	for chunk, err := range h.agent.Chat(r.Context(), req) {
		if err != nil {
			slog.Error("Chat stream failed", "session_id", sessionID, "error", err)
			h.writeTerminalEvent(w, flusher, &Chunk{
				Type:    EventError,
				Message: "response generation was interrupted",
			}, terminalWriteRetries, errorRetryDelay)
			return
		}

		data, err := json.Marshal(chunk)
		if err != nil {
			slog.Warn("failed to marshal chat chunk", "error", err)
			continue
		}

		if chunk.Type == EventDone {
			h.writeTerminalEvent(w, flusher, chunk, terminalWriteRetries, doneRetryDelay)
			return
		}

		if err := writeSSE(w, "message", string(data)); err != nil {
			slog.Warn("failed to write SSE chunk", "session_id", sessionID, "error", err)
			return
		}
		flusher.Flush()
	}
}

// handleBufferedChat runs the full turn and replies with one response
// object instead of a stream.
func (h *Handler) handleBufferedChat(w http.ResponseWriter, r *http.Request, req ChatRequest) {
	var full strings.Builder
	var done *Chunk

	for chunk, err := range h.agent.Chat(r.Context(), req) {
		if err != nil {
			slog.Error("Chat turn failed", "session_id", req.SessionID, "error", err)
			writeJSON(w, http.StatusInternalServerError, &Chunk{
				Type:      EventError,
				Message:   "response generation was interrupted",
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
		switch chunk.Type {
		case EventChunk:
			full.WriteString(chunk.Content)
		case EventDone:
			done = chunk
		}
	}

	resp := &Chunk{
		Type:      EventResponse,
		Content:   full.String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if done != nil {
		resp.UserLevel = done.UserLevel
		resp.TopicsDiscussed = done.TopicsDiscussed
		resp.MessageCount = done.MessageCount
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeTerminalEvent writes a done or error event, retrying with a linear
// backoff so a transient write hiccup does not strand the client.
func (h *Handler) writeTerminalEvent(w http.ResponseWriter, flusher http.Flusher, chunk *Chunk, retries int, baseDelay time.Duration) {
	data, err := json.Marshal(chunk)
	if err != nil {
		slog.Error("failed to marshal terminal event", "type", chunk.Type, "error", err)
		return
	}

	for attempt := 1; attempt <= retries; attempt++ {
		if err := writeSSE(w, "message", string(data)); err == nil {
			flusher.Flush()
			return
		} else if attempt < retries {
			slog.Warn("terminal event write failed, retrying",
				"type", chunk.Type, "attempt", attempt, "error", err)
			time.Sleep(baseDelay * time.Duration(attempt))
		} else {
			slog.Error("giving up on terminal event write", "type", chunk.Type, "error", err)
		}
	}
}

// HandleReset handles POST /api/reset, clearing the session's history and
// metadata.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := session.IDFromContext(r.Context())

	if err := h.agent.Reset(r.Context(), sessionID); err != nil {
		slog.Error("failed to reset session", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to reset conversation"})
		return
	}

	slog.Info("Session reset", "session_id", sessionID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HandleState handles GET /api/state, returning session metadata without
// modifying anything.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	sessionID := session.IDFromContext(r.Context())

	state, err := h.agent.State(r.Context(), sessionID)
	if err != nil {
		slog.Error("failed to load session state", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load state"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userLevel":       state.UserLevel,
		"topicsDiscussed": state.TopicsDiscussed,
		"messageCount":    state.MessageCount,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", "error", err)
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
