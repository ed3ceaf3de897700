// Package llm provides a client for an OpenAI-compatible chat completion API.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Message is one turn of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamHandler receives each decoded text fragment as it arrives.
type StreamHandler func(fragment string)

// Client calls a hosted chat completion endpoint.
type Client struct {
	apiKey           string
	baseURL          string
	model            string
	temperature      float64
	topP             float64
	maxTokens        int
	frequencyPenalty float64
	presencePenalty  float64
	httpClient       *http.Client
}

type chatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	MaxTokens        int       `json:"max_tokens"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
	Stream           bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		Delta        Message `json:"delta"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// New creates a new LLM client.
func New(apiKey, baseURL, model string, temperature float64, maxTokens int) *Client {
	return &Client{
		apiKey:           apiKey,
		baseURL:          strings.TrimSuffix(baseURL, "/"),
		model:            model,
		temperature:      temperature,
		topP:             0.9,
		maxTokens:        maxTokens,
		frequencyPenalty: 0.1,
		presencePenalty:  0.1,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Chat sends a buffered chat request and returns the full completion text.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	return c.chat(ctx, messages, false, nil)
}

// ChatStream sends a streaming chat request, forwarding each text fragment
// to handler as it is decoded, and returns the assembled completion text.
func (c *Client) ChatStream(ctx context.Context, messages []Message, handler StreamHandler) (string, error) {
	return c.chat(ctx, messages, true, handler)
}

func (c *Client) chat(ctx context.Context, messages []Message, stream bool, handler StreamHandler) (string, error) {
	reqBody := chatRequest{
		Model:            c.model,
		Messages:         messages,
		Temperature:      c.temperature,
		TopP:             c.topP,
		MaxTokens:        c.maxTokens,
		FrequencyPenalty: c.frequencyPenalty,
		PresencePenalty:  c.presencePenalty,
		Stream:           stream,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("serialize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completion API returned status %d: %s", resp.StatusCode, string(body))
	}

	if stream {
		return c.handleStreamResponse(resp.Body, handler)
	}
	return c.handleResponse(resp.Body)
}

func (c *Client) handleResponse(body io.Reader) (string, error) {
	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("completion API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion API returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// handleStreamResponse incrementally parses newline-delimited "data: "
// records, forwarding each text fragment before the next line is read.
// Malformed lines are skipped.
func (c *Client) handleStreamResponse(body io.Reader, handler StreamHandler) (string, error) {
	reader := bufio.NewReader(body)
	var full strings.Builder

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return full.String(), fmt.Errorf("read stream: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var resp chatResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			continue // skip malformed records
		}
		if len(resp.Choices) == 0 {
			continue
		}

		fragment := resp.Choices[0].Delta.Content
		if fragment != "" {
			full.WriteString(fragment)
			if handler != nil {
				handler(fragment)
			}
		}
	}

	return full.String(), nil
}

// ChatWithRetry retries buffered completion with linearly increasing backoff
// (base delay times the attempt number).
func (c *Client) ChatWithRetry(ctx context.Context, messages []Message, maxRetries int, baseDelay time.Duration) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		text, err := c.Chat(ctx, messages)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if attempt < maxRetries {
			select {
			case <-time.After(baseDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", maxRetries, lastErr)
}
