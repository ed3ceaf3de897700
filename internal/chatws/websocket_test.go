package chatws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/courtside/courtside/internal/agent"
	"github.com/courtside/courtside/internal/domain"
	"github.com/courtside/courtside/internal/llm"
	"github.com/courtside/courtside/internal/nba"
)

type memRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.SessionState
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[string]*domain.SessionState)}
}

func (r *memRepo) state(id string) *domain.SessionState {
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := domain.NewSessionState(id)
	r.sessions[id] = s
	return s
}

func (r *memRepo) GetSession(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state(sessionID)
	copied := *s
	copied.History = append([]domain.Message(nil), s.History...)
	copied.MessageCount = len(s.History)
	return &copied, nil
}

func (r *memRepo) AppendMessage(ctx context.Context, sessionID string, msg domain.Message, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state(sessionID)
	s.History = append(s.History, msg)
	s.TrimHistory(limit)
	return nil
}

func (r *memRepo) UpdateMetadata(ctx context.Context, state *domain.SessionState) error { return nil }
func (r *memRepo) ReplaceSession(ctx context.Context, state *domain.SessionState) error { return nil }
func (r *memRepo) ResetSession(ctx context.Context, sessionID string) error             { return nil }
func (r *memRepo) Ping(ctx context.Context) error                                       { return nil }
func (r *memRepo) Close() error                                                         { return nil }

type stubSports struct{}

func (stubSports) Standings(ctx context.Context) (nba.Standings, error) {
	return nba.Standings{Eastern: []nba.TeamStanding{}, Western: []nba.TeamStanding{}}, nil
}
func (stubSports) TodaysGames(ctx context.Context) ([]nba.Game, error) { return []nba.Game{}, nil }
func (stubSports) PlayerStats(ctx context.Context, name string) (nba.PlayerStats, error) {
	return nba.PlayerStats{Name: name}, nil
}
func (stubSports) InjuryReport(ctx context.Context) ([]nba.Injury, error) {
	return []nba.Injury{}, nil
}
func (stubSports) News(ctx context.Context) ([]nba.NewsItem, error) { return []nba.NewsItem{}, nil }

type stubCompleter struct {
	fragments []string
}

func (c *stubCompleter) ChatStream(ctx context.Context, messages []llm.Message, handler llm.StreamHandler) (string, error) {
	var full strings.Builder
	for _, f := range c.fragments {
		full.WriteString(f)
		handler(f)
	}
	return full.String(), nil
}

func (c *stubCompleter) ChatWithRetry(ctx context.Context, messages []llm.Message, maxRetries int, baseDelay time.Duration) (string, error) {
	return "", context.Canceled
}

func dialTestServer(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "test done") })
	return ws
}

func readChunk(t *testing.T, ws *websocket.Conn) *agent.Chunk {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var chunk agent.Chunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		t.Fatalf("Failed to decode frame %q: %v", data, err)
	}
	return &chunk
}

func newWSHandler(completer agent.Completer) *Handler {
	svc := agent.NewService(newMemRepo(), stubSports{}, completer, 20)
	return NewHandler(svc, "*", true)
}

func TestWebSocketChatTurn(t *testing.T) {
	h := newWSHandler(&stubCompleter{fragments: []string{"Hello ", "there."}})
	ws := dialTestServer(t, h)

	ctx := context.Background()
	msg, _ := json.Marshal(map[string]string{"type": "message", "content": "hi"})
	if err := ws.Write(ctx, websocket.MessageText, msg); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	first := readChunk(t, ws)
	if first.Type != agent.EventChunk || first.Content != "Hello " {
		t.Errorf("Unexpected first frame: %+v", first)
	}
	second := readChunk(t, ws)
	if second.Type != agent.EventChunk || second.Content != "there." {
		t.Errorf("Unexpected second frame: %+v", second)
	}
	done := readChunk(t, ws)
	if done.Type != agent.EventDone || done.MessageCount != 2 {
		t.Errorf("Unexpected done frame: %+v", done)
	}
	if done.Timestamp == "" {
		t.Error("Expected done frame to carry a timestamp")
	}
}

func TestWebSocketPingPong(t *testing.T) {
	h := newWSHandler(&stubCompleter{})
	ws := dialTestServer(t, h)

	ctx := context.Background()
	if err := ws.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var pong map[string]string
	if err := json.Unmarshal(data, &pong); err != nil {
		t.Fatalf("Failed to decode pong: %v", err)
	}
	if pong["type"] != "pong" {
		t.Errorf("Expected pong, got %v", pong)
	}
}

func TestWebSocketEmptyMessageError(t *testing.T) {
	h := newWSHandler(&stubCompleter{})
	ws := dialTestServer(t, h)

	ctx := context.Background()
	if err := ws.Write(ctx, websocket.MessageText, []byte(`{"type":"message","content":""}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	chunk := readChunk(t, ws)
	if chunk.Type != agent.EventError {
		t.Errorf("Expected error frame, got %+v", chunk)
	}
}

func TestCheckOrigin(t *testing.T) {
	h := NewHandler(nil, "https://courtside.example.com", false)

	r := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	if h.checkOrigin(r) {
		t.Error("Expected mismatched origin to be rejected")
	}

	r.Header.Set("Origin", "https://courtside.example.com")
	if !h.checkOrigin(r) {
		t.Error("Expected matching origin to be accepted")
	}

	dev := NewHandler(nil, "https://courtside.example.com", true)
	r.Header.Set("Origin", "https://evil.example.com")
	if !dev.checkOrigin(r) {
		t.Error("Expected dev mode to accept any origin")
	}
}
