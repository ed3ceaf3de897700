package agent

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/courtside/courtside/internal/domain"
	"github.com/courtside/courtside/internal/intent"
	"github.com/courtside/courtside/internal/llm"
	"github.com/courtside/courtside/internal/session"
	"github.com/courtside/courtside/internal/store"
)

const (
	maxGenerateRetries = 3
	retryBaseDelay     = 500 * time.Millisecond
	replayGroupWords   = 3
	replayDelay        = 50 * time.Millisecond
)

// abortCause records why generation stopped before completing. After the
// consumer stops the range loop, yield is dead and must never be called
// again; a cancellation observed while yield was still live may surface as
// a final error event.
type abortCause int

const (
	abortNone abortCause = iota
	abortConsumer
	abortContext
)

// Completer is the language model surface the service depends on.
type Completer interface {
	ChatStream(ctx context.Context, messages []llm.Message, handler llm.StreamHandler) (string, error)
	ChatWithRetry(ctx context.Context, messages []llm.Message, maxRetries int, baseDelay time.Duration) (string, error)
}

// Service runs complete chat turns: persistence, classification, context
// assembly and response generation. Turns for the same session are
// serialized through the lock registry.
type Service struct {
	repo         store.Repository
	sports       SportsClient
	completer    Completer
	locks        *session.Locks
	historyLimit int
}

// NewService creates the chat service.
func NewService(repo store.Repository, sports SportsClient, completer Completer, historyLimit int) *Service {
	return &Service{
		repo:         repo,
		sports:       sports,
		completer:    completer,
		locks:        session.NewLocks(),
		historyLimit: historyLimit,
	}
}

// Chat processes one conversation turn and yields response chunks followed
// by a terminal done event. The sequence is finite and must be consumed
// exactly once. Storage failures are absorbed (logged, best-effort); only a
// consumer abort or context cancellation surfaces as a yielded error.
func (s *Service) Chat(ctx context.Context, req ChatRequest) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		release := s.locks.Acquire(req.SessionID)
		defer release()

		state, err := s.repo.GetSession(ctx, req.SessionID)
		if err != nil {
			// Treat storage read failure as "no prior state".
			slog.Error("failed to load session, starting fresh", "session_id", req.SessionID, "error", err)
			state = domain.NewSessionState(req.SessionID)
		}
		// Stored rows can exceed the bound if the configured limit shrank
		// since they were written; enforce it on the in-memory view.
		state.TrimHistory(s.historyLimit)

		userMsg := domain.NewMessage(domain.RoleUser, req.Message)
		if err := s.repo.AppendMessage(ctx, req.SessionID, userMsg, s.historyLimit); err != nil {
			slog.Error("failed to persist user message", "session_id", req.SessionID, "error", err)
		}

		state.PromoteLevel(intent.DetectLevel(req.Message, state.UserLevel))
		state.AddTopics(intent.ExtractTopics(req.Message))
		state.LastActive = time.Now()
		if err := s.repo.UpdateMetadata(ctx, state); err != nil {
			slog.Error("failed to persist session metadata", "session_id", req.SessionID, "error", err)
		}

		cats := intent.Classify(req.Message)
		contextData := AssembleContext(ctx, s.sports, req.Message, cats)
		messages := BuildMessages(state, contextData, req.Message)

		slog.Info("Chat turn",
			"session_id", req.SessionID,
			"intents", cats,
			"user_level", state.UserLevel,
			"message_length", len(req.Message),
		)

		fullText, abort := s.generate(ctx, messages, cats, state, yield)

		// Save the complete assistant response exactly once, after all
		// chunks (real or simulated) have been emitted.
		if fullText != "" {
			assistantMsg := domain.NewMessage(domain.RoleAssistant, fullText)
			if err := s.repo.AppendMessage(ctx, req.SessionID, assistantMsg, s.historyLimit); err != nil {
				slog.Error("failed to persist assistant message", "session_id", req.SessionID, "error", err)
			}
		}

		switch abort {
		case abortConsumer:
			// The range loop already stopped; yield must not be called.
			return
		case abortContext:
			yield(nil, ctx.Err())
			return
		}

		count := state.MessageCount + 2
		if count > s.historyLimit {
			count = s.historyLimit
		}
		yield(&Chunk{
			Type:            EventDone,
			UserLevel:       state.UserLevel,
			TopicsDiscussed: state.TopicsDiscussed,
			MessageCount:    count,
		}, nil)
	}
}

// generate streams the completion, falling back to a retried buffered call
// replayed in word groups, and finally to a canned response. Returns the
// assembled text and why generation stopped early, if it did.
func (s *Service) generate(ctx context.Context, messages []llm.Message, cats []intent.Category, state *domain.SessionState, yield func(*Chunk, error) bool) (string, abortCause) {
	var full strings.Builder
	aborted := false

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	text, err := s.completer.ChatStream(streamCtx, messages, func(fragment string) {
		if aborted {
			return
		}
		full.WriteString(fragment)
		if !yield(s.chunk(state, fragment), nil) {
			aborted = true
			cancelStream()
		}
	})
	if aborted {
		return full.String(), abortConsumer
	}
	if err == nil {
		return text, abortNone
	}

	slog.Warn("streaming generation failed, falling back to buffered call", "error", err)

	text, err = s.completer.ChatWithRetry(ctx, messages, maxGenerateRetries, retryBaseDelay)
	if err != nil {
		slog.Error("buffered generation failed, sending canned response", "error", err)
		canned := cannedResponse(cats)
		if !yield(s.chunk(state, canned), nil) {
			return canned, abortConsumer
		}
		return canned, abortNone
	}

	// Replay the buffered text in small word groups with a pacing delay to
	// preserve the incremental delivery experience.
	words := strings.Fields(text)
	for i := 0; i < len(words); i += replayGroupWords {
		end := i + replayGroupWords
		if end > len(words) {
			end = len(words)
		}
		group := strings.Join(words[i:end], " ")
		if end < len(words) {
			group += " "
		}
		if !yield(s.chunk(state, group), nil) {
			return text, abortConsumer
		}
		if end < len(words) {
			select {
			case <-time.After(replayDelay):
			case <-ctx.Done():
				return text, abortContext
			}
		}
	}

	return text, abortNone
}

func (s *Service) chunk(state *domain.SessionState, content string) *Chunk {
	return &Chunk{
		Type:            EventChunk,
		Content:         content,
		UserLevel:       state.UserLevel,
		TopicsDiscussed: state.TopicsDiscussed,
	}
}

// State returns the current session metadata. Read-only and idempotent.
func (s *Service) State(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	return s.repo.GetSession(ctx, sessionID)
}

// Reset clears a session's history and metadata back to initial values.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	release := s.locks.Acquire(sessionID)
	defer release()
	return s.repo.ResetSession(ctx, sessionID)
}

// cannedResponse returns the deterministic fallback text for a failed
// generation, distinct per matched category.
func cannedResponse(cats []intent.Category) string {
	switch {
	case intent.Contains(cats, intent.CategoryPlayer):
		return "I'm having trouble reaching live player data right now, but I can still discuss playing styles, career highlights and what makes players effective. What would you like to know?"
	case intent.Contains(cats, intent.CategoryGame):
		return "I can't pull up live game information at the moment. I'm happy to talk matchups, strategy or how to read a box score while things recover. What are you curious about?"
	case intent.Contains(cats, intent.CategoryTeam):
		return "Team standings are unavailable right now, but I can still cover team histories, playing styles and roster construction. What would you like to explore?"
	default:
		return "I'm here to help with NBA questions! I can provide information about players, teams, games, and statistics. What would you like to know?"
	}
}
