package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// Options selects and configures a retrieval backend.
type Options struct {
	Backend       string
	Embedder      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	EmbedModel    string
	DatabaseURL   string
	Table         string
	WeaviateURL   string
	WeaviateClass string
	CorpusPaths   []string
}

// NewEmbedder resolves auto to OpenAI when an API key is present, otherwise hashing.
func NewEmbedder(opts Options) Embedder {
	switch strings.ToLower(strings.TrimSpace(opts.Embedder)) {
	case "hash":
		return HashEmbedder{}
	case "openai":
		return NewOpenAIEmbedder(opts.OpenAIAPIKey, opts.OpenAIBaseURL, opts.EmbedModel)
	default:
		if strings.TrimSpace(opts.OpenAIAPIKey) != "" {
			return NewOpenAIEmbedder(opts.OpenAIAPIKey, opts.OpenAIBaseURL, opts.EmbedModel)
		}
		return HashEmbedder{}
	}
}

// New creates the configured backend. The none backend never fails.
func New(ctx context.Context, opts Options) (Retriever, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "none":
		return NoneRetriever{}, nil
	case "pgvector":
		return NewPGVectorRetriever(ctx, opts.DatabaseURL, opts.Table, NewEmbedder(opts))
	case "weaviate":
		return NewWeaviateRetriever(opts.WeaviateURL, opts.WeaviateClass, NewEmbedder(opts))
	case "memory":
		r := NewMemoryRetriever(NewEmbedder(opts))
		if err := r.LoadFiles(ctx, opts.CorpusPaths...); err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported retrieval backend %q", opts.Backend)
	}
}
