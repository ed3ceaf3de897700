// Package chatws provides the WebSocket chat transport. It relays the same
// chunk/done/error envelopes as the HTTP SSE surface, one chat turn per
// inbound message frame.
package chatws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/courtside/courtside/internal/agent"
	"github.com/courtside/courtside/internal/session"
)

// Handler handles WebSocket-based chat sessions.
type Handler struct {
	agent         *agent.Service
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket chat handler.
func NewHandler(agentService *agent.Service, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		agent:         agentService,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsMessage represents the inbound WebSocket message structure.
type wsMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := session.IDFromContext(r.Context())
	slog.Info("WebSocket connection request", "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.readLoop(ctx, ws, sessionID)
	slog.Info("WebSocket chat session ended", "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop processes inbound frames until the client disconnects. Each
// "message" frame runs one full chat turn; the connection survives
// individual turn failures.
func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if writeErr := h.writeChunk(ws, &agent.Chunk{
				Type:    agent.EventError,
				Message: "invalid message format",
			}); writeErr != nil {
				slog.Debug("Failed to send format error", "error", writeErr)
			}
			continue
		}

		switch msg.Type {
		case "message":
			if msg.Content == "" {
				if err := h.writeChunk(ws, &agent.Chunk{
					Type:    agent.EventError,
					Message: "message content is required",
				}); err != nil {
					slog.Debug("Failed to send empty-message error", "error", err)
				}
				continue
			}
			h.runTurn(ctx, ws, sessionID, msg.Content)
		case "ping":
			if err := h.writeJSON(ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		default:
			slog.Debug("Ignoring unknown WebSocket message type", "type", msg.Type, "session_id", sessionID)
		}
	}
}

// runTurn executes one chat turn and relays every event to the client.
// Write failures are logged and end the relay for this turn; the service
// still finishes persisting its side of the conversation.
func (h *Handler) runTurn(ctx context.Context, ws *websocket.Conn, sessionID, content string) {
	req := agent.ChatRequest{Message: content, SessionID: sessionID}

	slog.Info("WebSocket chat turn", "session_id", sessionID, "message_length", len(content))

	writeFailed := false
	for chunk, err := range h.agent.Chat(ctx, req) {
		if err != nil {
			slog.Error("WebSocket chat turn failed", "session_id", sessionID, "error", err)
			if writeErr := h.writeChunk(ws, &agent.Chunk{
				Type:    agent.EventError,
				Message: "response generation was interrupted",
			}); writeErr != nil {
				slog.Debug("Failed to send turn error", "error", writeErr)
			}
			return
		}
		if writeFailed {
			// Keep draining so the service completes the turn and saves
			// the assistant message.
			continue
		}
		if chunk.Timestamp == "" {
			chunk.Timestamp = time.Now().UTC().Format(time.RFC3339)
		}
		if err := h.writeChunk(ws, chunk); err != nil {
			slog.Warn("WebSocket write failed mid-turn", "session_id", sessionID, "error", err)
			writeFailed = true
		}
	}
}

func (h *Handler) writeChunk(ws *websocket.Conn, chunk *agent.Chunk) error {
	return h.writeJSON(ws, chunk)
}

func (h *Handler) writeJSON(ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(context.Background(), websocket.MessageText, data)
}
