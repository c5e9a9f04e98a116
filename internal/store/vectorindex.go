package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
)

// ErrDimensionMismatch reports a vector whose length doesn't match the
// index's configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// VectorIndex wraps one hnsw.Graph[uint64] per embedding dimension, keyed
// directly by chunk id (unlike the teacher's HNSWStore, which needed a
// string<->uint64 id map; our ids are already numeric chunk ids, so the
// graph's native key type serves directly as the mapping). Deletions are
// lazy: the node stays in the graph but is hidden from search results, the
// same workaround the teacher's HNSWStore uses for a known coder/hnsw bug
// around deleting the last remaining node.
//
// Keying by chunk id (rather than by (chunk_id, provider, model), which is
// embeddings_{D}'s actual uniqueness constraint) assumes a chunk carries at
// most one embedding per dimension bucket at a time in practice: the last
// Add for a given chunk id wins the graph slot. This matches the normal
// operating mode (one active embedding provider per dims), and all
// provider/model bookkeeping for exact-match filtering still lives in SQL
// (see semanticRowFor) — only the rare case of two providers sharing both a
// dims value and a chunk would see one of them silently excluded from
// semantic search results while remaining fully present in SQL.
type VectorIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	dims    int
	metric  string
	deleted map[uint64]struct{}
}

// NewVectorIndex creates an empty index for the given dimensionality and
// metric ("cosine" or "l2"; anything else defaults to cosine).
func NewVectorIndex(dims int, metric string) *VectorIndex {
	if metric == "" {
		metric = "cosine"
	}
	g := hnsw.NewGraph[uint64]()
	switch metric {
	case "l2":
		g.Distance = hnsw.EuclideanDistance
	default:
		metric = "cosine"
		g.Distance = hnsw.CosineDistance
	}
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25

	return &VectorIndex{
		graph:   g,
		dims:    dims,
		metric:  metric,
		deleted: make(map[uint64]struct{}),
	}
}

// Add inserts or replaces the vector for chunkID.
func (vi *VectorIndex) Add(chunkID uint64, vector []float32) error {
	if len(vector) != vi.dims {
		return ErrDimensionMismatch{Expected: vi.dims, Got: len(vector)}
	}

	vi.mu.Lock()
	defer vi.mu.Unlock()

	delete(vi.deleted, chunkID)

	vec := make([]float32, len(vector))
	copy(vec, vector)
	if vi.metric == "cosine" {
		normalizeInPlace(vec)
	}
	vi.graph.Add(hnsw.MakeNode(chunkID, vec))
	return nil
}

// Delete lazily removes chunkID: the node remains in the underlying graph
// but Search filters it out.
func (vi *VectorIndex) Delete(chunkID uint64) {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	vi.deleted[chunkID] = struct{}{}
}

// VectorHit is one nearest-neighbor result.
type VectorHit struct {
	ChunkID    uint64
	Similarity float64
}

// Search returns up to k nearest neighbors of query, excluding lazily
// deleted ids, ordered by descending similarity.
func (vi *VectorIndex) Search(query []float32, k int) ([]VectorHit, error) {
	if len(query) != vi.dims {
		return nil, ErrDimensionMismatch{Expected: vi.dims, Got: len(query)}
	}

	vi.mu.RLock()
	defer vi.mu.RUnlock()

	if vi.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if vi.metric == "cosine" {
		normalizeInPlace(q)
	}

	// Over-fetch to compensate for lazily deleted nodes still occupying
	// graph slots.
	fetch := k + len(vi.deleted)
	if fetch < k {
		fetch = k
	}
	nodes := vi.graph.Search(q, fetch)

	hits := make([]VectorHit, 0, len(nodes))
	for _, node := range nodes {
		if _, gone := vi.deleted[node.Key]; gone {
			continue
		}
		distance := vi.graph.Distance(q, node.Value)
		hits = append(hits, VectorHit{
			ChunkID:    node.Key,
			Similarity: distanceToSimilarity(distance, vi.metric),
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Len reports the number of live (non-deleted) vectors.
func (vi *VectorIndex) Len() int {
	vi.mu.RLock()
	defer vi.mu.RUnlock()
	return vi.graph.Len() - len(vi.deleted)
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

func distanceToSimilarity(distance float32, metric string) float64 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + float64(distance))
	default: // cosine
		return 1.0 - float64(distance)
	}
}

// encodeVector serializes a []float32 to a little-endian byte blob for BLOB
// storage in embeddings_{dims}.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector parses an encodeVector blob back into a []float32, validating
// it carries exactly dims elements.
func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != dims*4 {
		return nil, cherrors.Storage("corrupt embedding blob: unexpected length", nil).
			WithDetail("expected_bytes", fmt.Sprintf("%d", dims*4)).
			WithDetail("got_bytes", fmt.Sprintf("%d", len(blob)))
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}
