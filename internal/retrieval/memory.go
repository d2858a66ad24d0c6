package retrieval

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Chunk is one line of a pre-embedded corpus file.
type Chunk struct {
	Text       string    `json:"text"`
	SourceFile string    `json:"source_file"`
	Document   string    `json:"document"`
	Embedding  []float32 `json:"embedding"`
}

// MemoryRetriever ranks pre-embedded JSONL chunks by brute-force cosine distance.
type MemoryRetriever struct {
	embedder Embedder

	mu     sync.RWMutex
	chunks []Chunk
}

func NewMemoryRetriever(embedder Embedder) *MemoryRetriever {
	return &MemoryRetriever{embedder: embedder}
}

// LoadFiles reads one JSON Chunk per line. Chunks without text are skipped; chunks
// without an embedding are embedded with the retriever's embedder.
func (r *MemoryRetriever) LoadFiles(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		if err := r.loadFile(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRetriever) loadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open corpus %s: %w", path, err)
	}
	defer f.Close()

	var loaded []Chunk
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var c Chunk
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return fmt.Errorf("corpus %s line %d: %w", path, line, err)
		}
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		if len(c.Embedding) == 0 {
			c.Embedding, err = r.embedder.Embed(ctx, c.Text)
			if err != nil {
				return fmt.Errorf("corpus %s line %d: %w", path, line, err)
			}
		}
		loaded = append(loaded, c)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read corpus %s: %w", path, err)
	}

	r.Add(loaded...)
	return nil
}

// Add appends chunks to the in-process index.
func (r *MemoryRetriever) Add(chunks ...Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunks...)
}

// Len returns the number of indexed chunks.
func (r *MemoryRetriever) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks)
}

func (r *MemoryRetriever) Retrieve(ctx context.Context, query string, n int) (Result, error) {
	n = ClampResults(n)
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	r.mu.RLock()
	passages := make([]Passage, 0, len(r.chunks))
	for _, c := range r.chunks {
		meta := map[string]string{}
		if c.SourceFile != "" {
			meta["source_file"] = c.SourceFile
		}
		if c.Document != "" {
			meta["document"] = c.Document
		}
		passages = append(passages, Passage{
			Text:       c.Text,
			Metadata:   meta,
			Similarity: 1 - cosineDistance(vec, c.Embedding),
		})
	}
	r.mu.RUnlock()

	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Similarity > passages[j].Similarity
	})
	if len(passages) > n {
		passages = passages[:n]
	}
	return Result{Passages: passages}, nil
}

func (r *MemoryRetriever) Close() error { return nil }
