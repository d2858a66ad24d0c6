package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// WeaviateRetriever runs nearVector searches against one class holding
// content/source_file/document properties.
type WeaviateRetriever struct {
	client   *weaviate.Client
	class    string
	embedder Embedder
}

func NewWeaviateRetriever(rawURL, class string, embedder Embedder) (*WeaviateRetriever, error) {
	cfg := weaviate.Config{Host: rawURL, Scheme: "http"}
	switch {
	case strings.HasPrefix(rawURL, "https://"):
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(rawURL, "https://")
	case strings.HasPrefix(rawURL, "http://"):
		cfg.Host = strings.TrimPrefix(rawURL, "http://")
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &WeaviateRetriever{client: client, class: class, embedder: embedder}, nil
}

func (r *WeaviateRetriever) Retrieve(ctx context.Context, query string, n int) (Result, error) {
	n = ClampResults(n)
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source_file"},
		{Name: "document"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}
	resp, err := r.client.GraphQL().Get().
		WithClassName(r.class).
		WithFields(fields...).
		WithNearVector(r.client.GraphQL().NearVectorArgBuilder().WithVector(vec)).
		WithLimit(n).
		Do(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: weaviate search: %v", ErrUnavailable, err)
	}
	if len(resp.Errors) > 0 {
		return Result{}, fmt.Errorf("%w: weaviate search: %s", ErrUnavailable, resp.Errors[0].Message)
	}
	return parseWeaviate(resp, r.class), nil
}

func parseWeaviate(resp *models.GraphQLResponse, class string) Result {
	get, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return Result{}
	}
	items, ok := get[class].([]interface{})
	if !ok {
		return Result{}
	}

	out := Result{Passages: make([]Passage, 0, len(items))}
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		text, _ := obj["content"].(string)
		meta := map[string]string{}
		if v, _ := obj["source_file"].(string); v != "" {
			meta["source_file"] = v
		}
		if v, _ := obj["document"].(string); v != "" {
			meta["document"] = v
		}
		distance := 1.0
		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			if d, ok := add["distance"].(float64); ok {
				distance = d
			}
		}
		out.Passages = append(out.Passages, Passage{Text: text, Metadata: meta, Similarity: 1 - distance})
	}
	return out
}

func (r *WeaviateRetriever) Close() error { return nil }
