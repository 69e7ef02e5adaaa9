package scanner

import (
	"context"
	"fmt"
	"time"

	"ragresearch/internal/domain"
)

// Request carries all parameters required to execute one feed scan.
type Request struct {
	Topic      string
	From       time.Time
	MaxResults int
	Options    map[string]string
	FeedURLs   []string
}

// Source captures a single feed strategy (arXiv API, arXiv listing, RSS).
type Source interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.Paper, error)
}

// Registry keeps a mapping from source names to their implementations.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: map[string]Source{}}
}

// Register adds or replaces a source implementation.
func (r *Registry) Register(src Source) {
	if r.sources == nil {
		r.sources = map[string]Source{}
	}
	r.sources[src.Name()] = src
}

// Resolve returns a source by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Source, error) {
	if src, ok := r.sources[name]; ok {
		return src, nil
	}
	return nil, fmt.Errorf("feed source %s is not registered", name)
}
