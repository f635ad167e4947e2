package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchBeforeBuild(t *testing.T) {
	idx := New()

	_, err := idx.Search([]float32{1, 0}, 3)
	assert.ErrorIs(t, err, ErrNotBuilt)
}

func TestBuildDimensionMismatch(t *testing.T) {
	idx := New()

	err := idx.Build([][]float32{
		{1, 0, 0},
		{0, 1},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Build(nil))

	hits, err := idx.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchQueryDimensionMismatch(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Build([][]float32{{1, 0, 0}}))

	_, err := idx.Search([]float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearchRanking(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Build([][]float32{
		{0, 1},  // orthogonal to query
		{1, 0},  // identical to query
		{-1, 0}, // opposite
		{0.707, 0.707},
	}))

	hits, err := idx.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, 1, hits[0].ChunkIndex)
	assert.Equal(t, 3, hits[1].ChunkIndex)
	assert.Equal(t, 0, hits[2].ChunkIndex)

	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestSearchClampsK(t *testing.T) {
	idx := New()
	require.NoError(t, idx.Build([][]float32{
		{1, 0}, {0, 1}, {0.5, 0.5}, {0.9, 0.1},
	}))

	hits, err := idx.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 4)

	seen := make(map[int]bool)
	for _, hit := range hits {
		assert.False(t, seen[hit.ChunkIndex], "duplicate chunk index %d", hit.ChunkIndex)
		seen[hit.ChunkIndex] = true
	}

	hits, err = idx.Search([]float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearchTieBreakByChunkIndex(t *testing.T) {
	idx := New()
	// Three identical vectors: equal scores must come back in index order
	require.NoError(t, idx.Build([][]float32{
		{1, 0}, {1, 0}, {1, 0},
	}))

	hits, err := idx.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, 0, hits[0].ChunkIndex)
	assert.Equal(t, 1, hits[1].ChunkIndex)
	assert.Equal(t, 2, hits[2].ChunkIndex)
}

func TestLenAndDimension(t *testing.T) {
	idx := New()
	assert.Equal(t, 0, idx.Len())

	require.NoError(t, idx.Build([][]float32{{1, 0, 0}, {0, 1, 0}}))
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, 3, idx.Dimension())
}
