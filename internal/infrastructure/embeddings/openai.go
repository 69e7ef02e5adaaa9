package embeddings

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

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
// Request: {"input": ["text", ...], "model": "..."}
// Response: {"data": [{"embedding": [...], "index": 0}, ...]}
type OpenAIEmbedder struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

var _ ports.Embedder = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(apiKey, model, endpoint string, client *http.Client) *OpenAIEmbedder {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/embeddings"
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAIEmbedder{apiKey: apiKey, model: model, endpoint: endpoint, client: client}
}

func (o *OpenAIEmbedder) Model() string { return o.model }

func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	payload := map[string]any{
		"input": texts,
		"model": o.model,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, domain.Transient("openai embed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		err := fmt.Errorf("openai embed: status %d: %v", resp.StatusCode, apiErr)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, domain.Transient("openai embed", err)
		}
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	out := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embed: vector index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}
