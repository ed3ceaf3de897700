package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newStreamServer(t *testing.T, lines []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			if _, err := w.Write([]byte(line + "\n")); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChatStreamForwardsFragmentsInOrder(t *testing.T) {
	srv := newStreamServer(t, []string{
		`data: {"choices":[{"delta":{"content":"The "}}]}`,
		``,
		`data: {"choices":[{"delta":{"content":"Lakers "}}]}`,
		`data: not valid json at all`,
		`data: {"choices":[]}`,
		`data: {"choices":[{"delta":{"content":"won."}}]}`,
		`data: [DONE]`,
		`data: {"choices":[{"delta":{"content":"never seen"}}]}`,
	})
	client := New("", srv.URL, "test-model", 0.7, 750)

	var fragments []string
	text, err := client.ChatStream(context.Background(), []Message{{Role: "user", Content: "who won"}}, func(fragment string) {
		fragments = append(fragments, fragment)
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}

	if text != "The Lakers won." {
		t.Errorf("Expected assembled text %q, got %q", "The Lakers won.", text)
	}
	if strings.Join(fragments, "") != text {
		t.Errorf("Expected fragments to reassemble the full text, got %v", fragments)
	}
	if len(fragments) != 3 {
		t.Errorf("Expected 3 fragments (malformed lines skipped), got %d", len(fragments))
	}
}

func TestChatBuffered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Stream {
			t.Error("Expected non-streaming request")
		}
		if req.MaxTokens != 750 || req.Temperature != 0.7 {
			t.Errorf("Unexpected generation params: %+v", req)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"full answer"}}]}`))
	}))
	t.Cleanup(srv.Close)
	client := New("test-key", srv.URL, "test-model", 0.7, 750)

	text, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if text != "full answer" {
		t.Errorf("Expected 'full answer', got %q", text)
	}
}

func TestChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	}))
	t.Cleanup(srv.Close)
	client := New("", srv.URL, "test-model", 0.7, 750)

	if _, err := client.Chat(context.Background(), nil); err == nil {
		t.Fatal("Expected an API error")
	}
}

func TestChatWithRetryEventuallySucceeds(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"third time lucky"}}]}`))
	}))
	t.Cleanup(srv.Close)
	client := New("", srv.URL, "test-model", 0.7, 750)

	text, err := client.ChatWithRetry(context.Background(), nil, 3, time.Millisecond)
	if err != nil {
		t.Fatalf("ChatWithRetry failed: %v", err)
	}
	if text != "third time lucky" {
		t.Errorf("Expected success on third attempt, got %q", text)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
}

func TestChatWithRetryExhausts(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	client := New("", srv.URL, "test-model", 0.7, 750)

	if _, err := client.ChatWithRetry(context.Background(), nil, 3, time.Millisecond); err == nil {
		t.Fatal("Expected exhausted retries to fail")
	}
	if calls.Load() != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", calls.Load())
	}
}

func TestChatWithRetryHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	client := New("", srv.URL, "test-model", 0.7, 750)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.ChatWithRetry(ctx, nil, 3, time.Hour); err == nil {
		t.Fatal("Expected cancellation to abort retries")
	}
}
