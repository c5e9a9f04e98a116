package embed

import (
	"context"
	"math"
	"time"
)

// Batch and retry defaults for the embedding service (§4.D).
const (
	MinBatchSize     = 1
	MaxBatchSize     = 256
	DefaultBatchSize = 32

	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 3

	// bulkIndexManagementThreshold is the "M" from spec §4.D step 4: batches
	// of vectors at or above this size go through
	// Engine.BulkOperationWithIndexManagement (drop index / insert / rebuild)
	// rather than a plain transactional insert, since rebuilding an HNSW
	// graph incrementally for a large batch costs more than a full rebuild.
	bulkIndexManagementThreshold = 500
)

// Embedder generates vector embeddings for text. It is the system's one
// pluggable collaborator for turning code into vectors — the embedding
// service and deep research engine depend only on this interface, never on
// a concrete provider, so a deployment can swap in any HTTP-ish embedding
// backend without touching either.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension. May be 0 until the first
	// successful call, for embedders that auto-detect it from the response.
	Dimensions() int

	// Provider returns the provider identifier (e.g. "openai", "ollama").
	Provider() string

	// ModelName returns the model identifier.
	ModelName() string

	// Available reports whether the embedder is reachable and ready.
	Available(ctx context.Context) bool

	// Close releases resources (idle connections, caches).
	Close() error
}

// normalizeVector scales v to unit length, leaving a zero vector untouched.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
