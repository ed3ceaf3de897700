package domain

import (
	"slices"
	"time"
)

// UserLevel is the inferred basketball knowledge level of a session's user.
type UserLevel string

// Known user levels.
const (
	LevelUnknown      UserLevel = "unknown"
	LevelBeginner     UserLevel = "beginner"
	LevelIntermediate UserLevel = "intermediate"
	LevelAdvanced     UserLevel = "advanced"
)

// Valid reports whether l is one of the defined levels.
func (l UserLevel) Valid() bool {
	switch l {
	case LevelUnknown, LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// SessionState holds one logical conversation.
type SessionState struct {
	SessionID       string
	History         []Message
	TopicsDiscussed []string
	UserLevel       UserLevel
	MessageCount    int
	LastActive      time.Time
}

// NewSessionState returns the initial empty state for a session.
func NewSessionState(sessionID string) *SessionState {
	return &SessionState{
		SessionID:       sessionID,
		History:         nil,
		TopicsDiscussed: nil,
		UserLevel:       LevelUnknown,
		MessageCount:    0,
		LastActive:      time.Now(),
	}
}

// RecentHistory returns the last n messages in original order.
func (s *SessionState) RecentHistory(n int) []Message {
	if n >= len(s.History) {
		return s.History
	}
	return s.History[len(s.History)-n:]
}

// AddTopics unions new topics into TopicsDiscussed. The set only grows.
func (s *SessionState) AddTopics(topics []string) {
	for _, t := range topics {
		if !slices.Contains(s.TopicsDiscussed, t) {
			s.TopicsDiscussed = append(s.TopicsDiscussed, t)
		}
	}
}

// PromoteLevel sets the user level if it is still unknown. Once a
// non-unknown level is recorded it is never reassigned.
func (s *SessionState) PromoteLevel(level UserLevel) {
	if s.UserLevel != LevelUnknown {
		return
	}
	if level != LevelUnknown && level.Valid() {
		s.UserLevel = level
	}
}

// TrimHistory drops the oldest messages so at most limit remain.
func (s *SessionState) TrimHistory(limit int) {
	if limit > 0 && len(s.History) > limit {
		s.History = s.History[len(s.History)-limit:]
	}
}
