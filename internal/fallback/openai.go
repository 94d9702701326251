package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// defaultSystemPrompt keeps the assistant in character when none is configured.
const defaultSystemPrompt = "You are DHV OS, a professional AI assistant for the DHV sales and digital hustle community. Provide helpful, concise, and professional advice."

// Config holds OpenAI-compatible provider settings.
type Config struct {
	APIKey       string
	APIBase      string // default https://api.groq.com/openai/v1
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a fallback client. Per-attempt deadlines come from the
// caller's context; the transport timeout is only a safety net.
func NewClient(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.MaxTokens < 1 {
		cfg.MaxTokens = 1024
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.cfg.Model }

// Generate sends the question with conversation context and returns the
// generated reply text.
func (c *Client) Generate(ctx context.Context, question string, history []Message) (string, error) {
	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: "system", Content: c.cfg.SystemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: "user", Content: question})

	body, err := json.Marshal(map[string]any{
		"model":       c.cfg.Model,
		"messages":    msgs,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
	})
	if err != nil {
		return "", &UpstreamError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	endpoint := strings.TrimRight(c.cfg.APIBase, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &UpstreamError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Includes context deadline: a slow upstream is a transient failure.
		return "", &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UpstreamError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTPError(resp.StatusCode, respBody)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &UpstreamError{Err: fmt.Errorf("parse response: %w", err)}
	}
	if len(result.Choices) == 0 {
		return "", &UpstreamError{Err: errors.New("empty choices")}
	}

	reply := strings.TrimSpace(result.Choices[0].Message.Content)
	if reply == "" {
		return "", &UpstreamError{Err: errors.New("empty reply")}
	}
	return reply, nil
}

// classifyHTTPError maps provider HTTP errors onto the two-way taxonomy:
// content-policy refusals are terminal, everything else is transient.
func classifyHTTPError(status int, body []byte) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)

	kind := strings.ToLower(apiErr.Error.Type + " " + apiErr.Error.Code)
	if strings.Contains(kind, "content_filter") || strings.Contains(kind, "content_policy") ||
		strings.Contains(kind, "moderation") {
		reason := apiErr.Error.Message
		if reason == "" {
			reason = fmt.Sprintf("HTTP %d", status)
		}
		return &ContentPolicyError{Reason: reason}
	}

	msg := apiErr.Error.Message
	if msg == "" {
		msg = string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	return &UpstreamError{Err: fmt.Errorf("HTTP %d: %s", status, msg)}
}
