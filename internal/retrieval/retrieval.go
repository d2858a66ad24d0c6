// Package retrieval is the boundary to the document corpus: ranked passage lookup
// plus the context builder that turns ranked passages into prompt text.
package retrieval

import (
	"context"
	"errors"
)

const (
	MinResults = 8
	MaxResults = 40
)

var ErrUnavailable = errors.New("retrieval backend unavailable")

// Passage is one ranked hit. Similarity is 1 - distance.
type Passage struct {
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata"`
	Similarity float64           `json:"similarity"`
}

// Source returns the provenance label of the passage.
func (p Passage) Source() string {
	if v := p.Metadata["source_file"]; v != "" {
		return v
	}
	if v := p.Metadata["document"]; v != "" {
		return v
	}
	return "Unknown"
}

// Result is an ephemeral ranked list produced by one query.
type Result struct {
	Passages []Passage `json:"passages"`
}

// Retriever returns passages ranked by similarity to query. Implementations clamp n
// with ClampResults.
type Retriever interface {
	Retrieve(ctx context.Context, query string, n int) (Result, error)
	Close() error
}

// ClampResults bounds a caller-requested result count into [MinResults, MaxResults].
func ClampResults(n int) int {
	if n < MinResults {
		return MinResults
	}
	if n > MaxResults {
		return MaxResults
	}
	return n
}

// NoneRetriever is used when no corpus is configured; every query is empty.
type NoneRetriever struct{}

func (NoneRetriever) Retrieve(context.Context, string, int) (Result, error) { return Result{}, nil }

func (NoneRetriever) Close() error { return nil }
