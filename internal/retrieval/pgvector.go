package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGVectorRetriever queries a pgvector table using cosine distance.
type PGVectorRetriever struct {
	pool     *pgxpool.Pool
	embedder Embedder
	query    string
}

func NewPGVectorRetriever(ctx context.Context, databaseURL, table string, embedder Embedder) (*PGVectorRetriever, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PGVectorRetriever{
		pool:     pool,
		embedder: embedder,
		query:    pgvectorQuery(table),
	}, nil
}

func pgvectorQuery(table string) string {
	ident := pgx.Identifier{table}.Sanitize()
	return `SELECT content, COALESCE(source_file, ''), COALESCE(document, ''), embedding <=> $1::vector AS distance
		FROM ` + ident + ` ORDER BY distance ASC LIMIT $2`
}

func (r *PGVectorRetriever) Retrieve(ctx context.Context, query string, n int) (Result, error) {
	n = ClampResults(n)
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rows, err := r.pool.Query(ctx, r.query, vectorLiteral(vec), n)
	if err != nil {
		return Result{}, fmt.Errorf("%w: query pgvector: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	out := Result{Passages: make([]Passage, 0, n)}
	for rows.Next() {
		var (
			text, source, document string
			distance               float64
		)
		if err := rows.Scan(&text, &source, &document, &distance); err != nil {
			return Result{}, fmt.Errorf("scan pgvector row: %w", err)
		}
		meta := map[string]string{}
		if source != "" {
			meta["source_file"] = source
		}
		if document != "" {
			meta["document"] = document
		}
		out.Passages = append(out.Passages, Passage{Text: text, Metadata: meta, Similarity: 1 - distance})
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate pgvector rows: %w", err)
	}
	return out, nil
}

func (r *PGVectorRetriever) Close() error {
	r.pool.Close()
	return nil
}

// vectorLiteral renders the pgvector text input format, e.g. [0.1,0.2].
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec)*8 + 2)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
