// Package embedder maps passages and queries into a shared vector space.
package embedder

import (
	"context"
	"errors"
)

// ErrEmbeddingFailed is returned when the model backend cannot produce
// embeddings. It is a hard failure for both ingestion and query: a silent
// zero-vector fallback would corrupt similarity rankings.
var ErrEmbeddingFailed = errors.New("failed to generate embedding")

// Embedder is the capability interface for an embedding backend. Both
// methods are deterministic for a fixed model version, and Embed preserves
// 1:1 positional correspondence with its input.
type Embedder interface {
	// Embed embeds passages for indexing.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a search query. It may use a different prefixing
	// convention than Embed but lands in the same vector space.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	Dimension() int
	ModelInfo() string
}
