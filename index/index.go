// Package index provides an in-memory flat inner-product index over
// L2-normalized embedding vectors.
package index

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotBuilt is returned when Search is called before Build.
var ErrNotBuilt = errors.New("vector index not built")

// ErrDimensionMismatch is returned when vectors disagree on dimensionality.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Hit is one search result: the chunk index the vector was built from and
// its raw inner-product score in [-1, 1].
type Hit struct {
	ChunkIndex int
	Score      float32
}

// VectorIndex holds the full vector set for one document. It is built once
// per document and read-only afterwards, so concurrent Search calls need no
// locking.
type VectorIndex struct {
	vectors   [][]float32
	dimension int
	built     bool
}

// New creates an empty, unbuilt index.
func New() *VectorIndex {
	return &VectorIndex{}
}

// Build loads the vector set in one shot. vectors[i] must correspond to
// chunk i; the mapping is positional and never reordered. Inconsistent
// dimensions fail the build.
func (idx *VectorIndex) Build(vectors [][]float32) error {
	if len(vectors) > 0 {
		dim := len(vectors[0])
		for i, v := range vectors {
			if len(v) != dim {
				return fmt.Errorf("%w: vector %d has dimension %d, expected %d", ErrDimensionMismatch, i, len(v), dim)
			}
		}
		idx.dimension = dim
	}

	idx.vectors = vectors
	idx.built = true
	return nil
}

// Len returns the number of indexed vectors.
func (idx *VectorIndex) Len() int {
	return len(idx.vectors)
}

// Dimension returns the vector dimension, or 0 for an empty index.
func (idx *VectorIndex) Dimension() int {
	return idx.dimension
}

// Search returns the k nearest vectors to the query by inner product,
// ordered by descending score with ties broken by lower chunk index.
// k larger than the corpus is clamped; an empty index yields an empty
// result, not an error.
func (idx *VectorIndex) Search(query []float32, k int) ([]Hit, error) {
	if !idx.built {
		return nil, ErrNotBuilt
	}
	if len(idx.vectors) == 0 {
		return []Hit{}, nil
	}
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, index has %d", ErrDimensionMismatch, len(query), idx.dimension)
	}
	if k < 1 {
		k = 1
	}
	if k > len(idx.vectors) {
		k = len(idx.vectors)
	}

	hits := make([]Hit, len(idx.vectors))
	for i, v := range idx.vectors {
		hits[i] = Hit{ChunkIndex: i, Score: dot(query, v)}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ChunkIndex < hits[b].ChunkIndex
	})

	return hits[:k], nil
}

// dot computes the inner product. Vectors are normalized at embedding time,
// so this equals cosine similarity.
func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
