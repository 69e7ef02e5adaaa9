// Package embeddings provides text embedding clients for the vector
// index, selected by configuration.
package embeddings

import (
	"fmt"
	"net/http"

	"ragresearch/internal/config"
	"ragresearch/internal/ports"
)

// New builds the configured embeddings provider. The client carries the
// shared per-call timeout; nil falls back to the provider default.
func New(cfg config.EmbeddingsConfig, client *http.Client) (ports.Embedder, error) {
	switch cfg.Provider {
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embeddings provider openai requires an API key")
		}
		return NewOpenAIEmbedder(cfg.APIKey, cfg.Model, cfg.Endpoint, client), nil
	case "cohere":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("embeddings provider cohere requires an API key")
		}
		return NewCohereEmbedder(cfg.APIKey, cfg.Model, client), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}
}
