// Package agent implements the basketball assistant pipeline: intent
// classification, context assembly, prompt construction and response
// generation.
package agent

import (
	"github.com/courtside/courtside/internal/domain"
)

// Event types emitted during a chat turn.
const (
	EventChunk    = "chunk"
	EventDone     = "done"
	EventError    = "error"
	EventResponse = "response"
)

// ChatRequest represents one inbound chat turn.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"-"`
}

// Chunk is a single event in a chat response stream.
type Chunk struct {
	Type            string           `json:"type"`
	Content         string           `json:"content,omitempty"`
	UserLevel       domain.UserLevel `json:"userLevel,omitempty"`
	TopicsDiscussed []string         `json:"topicsDiscussed,omitempty"`
	MessageCount    int              `json:"messageCount,omitempty"`
	Message         string           `json:"message,omitempty"`
	Timestamp       string           `json:"timestamp,omitempty"`
}
