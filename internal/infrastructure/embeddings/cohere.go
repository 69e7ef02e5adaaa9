package embeddings

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"ragresearch/internal/domain"
	"ragresearch/internal/ports"
)

// CohereEmbedder calls the Cohere Embed API through the official SDK.
type CohereEmbedder struct {
	client *cohereclient.Client
	model  string
}

var _ ports.Embedder = (*CohereEmbedder)(nil)

func NewCohereEmbedder(apiKey, model string, httpClient *http.Client) *CohereEmbedder {
	if model == "" {
		model = "embed-english-v3.0"
	}
	var client *cohereclient.Client
	if httpClient != nil {
		client = cohereclient.NewClient(
			cohereclient.WithToken(apiKey),
			cohereclient.WithHTTPClient(httpClient),
		)
	} else {
		client = cohereclient.NewClient(cohereclient.WithToken(apiKey))
	}
	return &CohereEmbedder{client: client, model: model}
}

func (c *CohereEmbedder) Model() string { return c.model }

func (c *CohereEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := c.client.V2.Embed(ctx, &cohere.V2EmbedRequest{
		Texts:          texts,
		Model:          c.model,
		InputType:      cohere.EmbedInputTypeSearchDocument,
		EmbeddingTypes: []cohere.EmbeddingType{cohere.EmbeddingTypeFloat},
	})
	if err != nil {
		return nil, domain.Transient("cohere embed", err)
	}
	if resp == nil || resp.Embeddings == nil || resp.Embeddings.Float == nil {
		return nil, errors.New("cohere embed returned no float embeddings")
	}

	floats := resp.Embeddings.Float
	if len(floats) != len(texts) {
		return nil, fmt.Errorf("cohere embed: got %d vectors for %d inputs", len(floats), len(texts))
	}

	out := make([][]float32, len(floats))
	for i, vec := range floats {
		fv := make([]float32, len(vec))
		for j, v := range vec {
			fv[j] = float32(v)
		}
		out[i] = fv
	}
	return out, nil
}
