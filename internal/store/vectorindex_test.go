package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndex_AddAndSearch_FindsClosestVector(t *testing.T) {
	vi := NewVectorIndex(3, "cosine")
	require.NoError(t, vi.Add(1, []float32{1, 0, 0}))
	require.NoError(t, vi.Add(2, []float32{0, 1, 0}))
	require.NoError(t, vi.Add(3, []float32{0.9, 0.1, 0}))

	hits, err := vi.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, uint64(1), hits[0].ChunkID)
}

func TestVectorIndex_Add_RejectsWrongDimensions(t *testing.T) {
	vi := NewVectorIndex(3, "cosine")
	err := vi.Add(1, []float32{1, 0})
	assert.Error(t, err)
	var mismatch ErrDimensionMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestVectorIndex_Delete_HidesFromSearch(t *testing.T) {
	vi := NewVectorIndex(2, "cosine")
	require.NoError(t, vi.Add(1, []float32{1, 0}))
	require.NoError(t, vi.Add(2, []float32{0, 1}))

	vi.Delete(1)
	assert.Equal(t, 1, vi.Len())

	hits, err := vi.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, uint64(1), h.ChunkID)
	}
}

func TestVectorIndex_Search_EmptyGraphReturnsNoHits(t *testing.T) {
	vi := NewVectorIndex(2, "cosine")
	hits, err := vi.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestEncodeDecodeVector_RoundTrips(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.125}
	blob := encodeVector(v)
	got, err := decodeVector(blob, len(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestDecodeVector_RejectsWrongLength(t *testing.T) {
	blob := encodeVector([]float32{1, 2, 3})
	_, err := decodeVector(blob, 4)
	assert.Error(t, err)
}
