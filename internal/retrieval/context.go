package retrieval

import (
	"fmt"
	"sort"
	"strings"
)

const (
	NoContentSentinel     = "No relevant content found in DSM-5 / MBTI documents."
	NoStrongMatchSentinel = "No strong matches in DSM-5 / MBTI documents."
)

// BuildContext renders at most maxChunks passages at or above minSimilarity, best
// first, as source-labeled blocks. It never returns an empty string.
func BuildContext(res Result, minSimilarity float64, maxChunks int) string {
	if len(res.Passages) == 0 {
		return NoContentSentinel
	}
	if maxChunks <= 0 {
		return NoStrongMatchSentinel
	}

	scored := make([]Passage, 0, len(res.Passages))
	for _, p := range res.Passages {
		if p.Similarity < minSimilarity {
			continue
		}
		scored = append(scored, p)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	parts := make([]string, 0, maxChunks)
	for _, p := range scored {
		if len(parts) >= maxChunks {
			break
		}
		text := strings.ReplaceAll(strings.TrimSpace(p.Text), "\n\n", "\n")
		parts = append(parts, fmt.Sprintf("[SOURCE: %s | similarity=%.3f]\n%s", p.Source(), p.Similarity, text))
	}

	if len(parts) == 0 {
		return NoStrongMatchSentinel
	}
	return strings.Join(parts, "\n\n---\n\n")
}
