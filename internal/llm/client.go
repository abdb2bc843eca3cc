package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mfenderov/protokb/internal/apperr"
)

// Config holds language-model client configuration.
type Config struct {
	Provider    string        // "openai" (any chat-completions endpoint) or "gemini"
	BaseURL     string        // e.g. "https://api.openai.com/v1"
	SocketPath  string        // optional Unix socket, e.g. for a local model runner
	APIKey      string        // sent as a bearer token when set
	Model       string        // model name
	MaxTokens   int           // response length limit, 0 for none
	Temperature float32       // sampling temperature
	Timeout     time.Duration // per-request timeout
}

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	apiKey      string
	model       string
	maxTokens   int
	temperature float32
}

// NewClient creates a chat completions client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" && config.SocketPath == "" {
		return nil, apperr.Missing("llm.base_url")
	}
	if config.Model == "" {
		return nil, apperr.Missing("llm.model")
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	httpClient := &http.Client{Timeout: config.Timeout}
	baseURL := config.BaseURL
	if config.SocketPath != "" {
		socket := config.SocketPath
		httpClient.Transport = &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socket)
			},
		}
		if baseURL == "" {
			baseURL = "http://localhost/engines/v1"
		}
	}

	return &Client{
		httpClient:  httpClient,
		endpoint:    strings.TrimRight(baseURL, "/") + "/chat/completions",
		apiKey:      config.APIKey,
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
	}, nil
}

// chatRequest is the request payload for the chat completions API.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response from the chat completions API.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a prompt to the model and returns the response.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteMessages(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

// CompleteMessages sends a conversation to the model and returns the reply.
func (c *Client) CompleteMessages(ctx context.Context, messages []Message) (string, error) {
	req := chatRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &apperr.RemoteServiceError{
			Service:    "llm",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
		}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if chatResp.Error != nil {
		return "", &apperr.RemoteServiceError{Service: "llm", Message: chatResp.Error.Message}
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response returned")
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}
