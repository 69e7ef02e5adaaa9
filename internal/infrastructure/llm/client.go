// Package llm implements the text generation port over an
// OpenAI-compatible chat completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ragresearch/internal/domain"
	"ragresearch/internal/ports"
)

// Client talks to a chat completions API for summary generation.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	maxTok   int
	http     *http.Client
}

var _ ports.Generator = (*Client)(nil)

// NewClient creates a reusable HTTP client for the given model. A nil
// client gets a 120s timeout suited to long generations.
func NewClient(endpoint, apiKey, model string, maxTokens int, client *http.Client) *Client {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		maxTok:   maxTokens,
		http:     client,
	}
}

func (c *Client) Model() string { return c.model }

// Complete sends a system and user message pair and returns the first
// choice's content.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}
	if c.maxTok > 0 {
		payload["max_tokens"] = c.maxTok
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Transient("completion request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return domain.Transient("completion request", err)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
