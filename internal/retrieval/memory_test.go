package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRetrieverRanksByCosine(t *testing.T) {
	r := NewMemoryRetriever(HashEmbedder{})
	ctx := context.Background()

	mood, err := HashEmbedder{}.Embed(ctx, "mood anxiety stress")
	require.NoError(t, err)
	types, err := HashEmbedder{}.Embed(ctx, "extraversion introversion")
	require.NoError(t, err)
	r.Add(
		Chunk{Text: "types", SourceFile: "mbti.pdf", Embedding: types},
		Chunk{Text: "mood", SourceFile: "dsm5.pdf", Embedding: mood},
	)

	res, err := r.Retrieve(ctx, "mood anxiety stress", 3)
	require.NoError(t, err)
	require.Len(t, res.Passages, 2)
	assert.Equal(t, "mood", res.Passages[0].Text)
	assert.InDelta(t, 1.0, res.Passages[0].Similarity, 1e-6)
	assert.Equal(t, "dsm5.pdf", res.Passages[0].Source())
}

func TestMemoryRetrieverClampsToMax(t *testing.T) {
	r := NewMemoryRetriever(HashEmbedder{Dim: 16})
	for i := 0; i < 50; i++ {
		vec, _ := HashEmbedder{Dim: 16}.Embed(context.Background(), "chunk")
		r.Add(Chunk{Text: "chunk", Embedding: vec})
	}
	res, err := r.Retrieve(context.Background(), "chunk", 1000)
	require.NoError(t, err)
	assert.Len(t, res.Passages, MaxResults)
}

func TestLoadFilesEmbedsMissingVectors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.jsonl")
	body := `{"text":"sleep and concentration","source_file":"dsm5.pdf"}
{"text":"   "}

{"text":"judging perceiving","document":"MBTI","embedding":[0.5,0.5]}
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	r := NewMemoryRetriever(HashEmbedder{})
	require.NoError(t, r.LoadFiles(context.Background(), path))
	assert.Equal(t, 2, r.Len())
}

func TestLoadFilesRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o644))

	err := NewMemoryRetriever(HashEmbedder{}).LoadFiles(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,0]", vectorLiteral([]float32{0.5, -1, 0}))
	assert.Equal(t, "[]", vectorLiteral(nil))
}

func TestNewDefaultsToNone(t *testing.T) {
	r, err := New(context.Background(), Options{})
	require.NoError(t, err)
	res, err := r.Retrieve(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Empty(t, res.Passages)
	assert.Equal(t, NoContentSentinel, BuildContext(res, 0.02, 5))
}

func TestNewEmbedderAuto(t *testing.T) {
	_, isHash := NewEmbedder(Options{}).(HashEmbedder)
	assert.True(t, isHash)
	_, isOpenAI := NewEmbedder(Options{OpenAIAPIKey: "sk-test"}).(*OpenAIEmbedder)
	assert.True(t, isOpenAI)
}
