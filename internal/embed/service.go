// Package embed implements component D, the embedding service, plus the
// opaque Embedder collaborator it drives: given chunk ids and a provider, it
// produces and persists vectors so every requested chunk ends up with
// exactly one embeddings_{dims} row for (chunk_id, provider, model).
package embed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ofriw/chunkhound-sub000/internal/config"
	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/model"
	"github.com/ofriw/chunkhound-sub000/internal/store"
)

// Result summarizes one EmbedChunks call.
type Result struct {
	Requested       int
	AlreadyEmbedded int
	Embedded        int
	Failed          []FailedBatch
}

// FailedBatch records a batch that exhausted its retries.
type FailedBatch struct {
	ChunkIDs []int64
	Error    string
}

// Service is the embedding service: it owns the configured Embedder and
// drives it against the storage engine. A nil Embedder makes it inert
// (Enqueue becomes a no-op), matching how a deployment without embeddings
// configured skips this component entirely.
type Service struct {
	Engine   *store.Engine
	Embedder Embedder
	Config   config.EmbeddingConfig
	Retry    RetryConfig
}

// NewService constructs a Service. embedder may be nil.
func NewService(engine *store.Engine, embedder Embedder, cfg config.EmbeddingConfig) *Service {
	return &Service{Engine: engine, Embedder: embedder, Config: cfg, Retry: DefaultRetryConfig()}
}

// Enqueue implements the index package's EmbedEnqueuer interface: it runs
// the embedding service's algorithm against chunkIDs synchronously. A
// realtime watcher that wants embedding decoupled from the indexing pass
// schedules its own call to this method at "embed priority" instead of
// calling it inline, per §4.E's priority model — the service itself has no
// opinion on when it's called.
func (s *Service) Enqueue(ctx context.Context, chunkIDs []int64) error {
	if s.Embedder == nil || len(chunkIDs) == 0 {
		return nil
	}
	result, err := s.EmbedChunks(ctx, chunkIDs)
	if err != nil {
		return err
	}
	for _, f := range result.Failed {
		slog.Warn("embedding batch failed", slog.Int("chunks", len(f.ChunkIDs)), slog.String("error", f.Error))
	}
	return nil
}

// EmbedChunks runs the full §4.D algorithm for the given chunk ids: subtract
// already-embedded chunks, partition the rest into batches, run up to
// Config.MaxConcurrent batches concurrently with retry, and persist
// successful batches without rolling back on a sibling batch's failure.
func (s *Service) EmbedChunks(ctx context.Context, chunkIDs []int64) (Result, error) {
	result := Result{Requested: len(chunkIDs)}
	if s.Embedder == nil || len(chunkIDs) == 0 {
		return result, nil
	}

	provider := s.Embedder.Provider()
	modelName := s.Embedder.ModelName()
	dims := s.Embedder.Dimensions()

	pending := chunkIDs
	if dims > 0 {
		existing, err := s.Engine.GetExistingEmbeddings(chunkIDs, provider, modelName, dims)
		if err != nil {
			return result, err
		}
		pending = pending[:0]
		for _, id := range chunkIDs {
			if existing[id] {
				result.AlreadyEmbedded++
			} else {
				pending = append(pending, id)
			}
		}
	}
	if len(pending) == 0 {
		return result, nil
	}

	batchSize := s.Config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	maxConcurrent := s.Config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	var batches [][]int64
	for i := 0; i < len(pending); i += batchSize {
		end := i + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batches = append(batches, pending[i:end])
	}

	sem := make(chan struct{}, maxConcurrent)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, batch := range batches {
		batch := batch
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			embedded, err := s.processBatch(ctx, batch, provider, modelName)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, FailedBatch{ChunkIDs: batch, Error: err.Error()})
				return
			}
			result.Embedded += embedded
		}()
	}
	wg.Wait()

	return result, nil
}

// processBatch embeds and persists one batch, retrying the embedder call on
// failure with exponential backoff before giving up on the whole batch.
func (s *Service) processBatch(ctx context.Context, chunkIDs []int64, provider, modelName string) (int, error) {
	chunks, err := s.Engine.GetChunksByIDs(chunkIDs)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	codes := make([]string, len(chunks))
	for i, c := range chunks {
		codes[i] = c.Code
	}

	var vectors [][]float32
	retryErr := DownloadWithRetry(ctx, s.Retry, func() error {
		v, embedErr := s.Embedder.EmbedBatch(ctx, codes)
		if embedErr != nil {
			return embedErr
		}
		vectors = v
		return nil
	})
	if retryErr != nil {
		return 0, cherrors.Storage("embedding provider call failed", retryErr)
	}
	if len(vectors) != len(chunks) {
		return 0, cherrors.Storage("embedder returned mismatched vector count", nil)
	}

	dims := s.Embedder.Dimensions()
	if dims == 0 && len(vectors) > 0 {
		dims = len(vectors[0])
	}

	s.ensureVectorIndex(provider, modelName, dims)

	embeddings := make([]*model.Embedding, len(chunks))
	for i, c := range chunks {
		embeddings[i] = &model.Embedding{
			ChunkID:  c.ID,
			Provider: provider,
			Model:    modelName,
			Vector:   vectors[i],
			Dims:     dims,
		}
	}

	if len(embeddings) >= bulkIndexManagementThreshold {
		if err := s.Engine.BulkOperationWithIndexManagement(func() error {
			_, err := s.Engine.InsertEmbeddingsBatch(embeddings, s.Config.BatchSize)
			return err
		}); err != nil {
			return 0, err
		}
	} else {
		if _, err := s.Engine.InsertEmbeddingsBatch(embeddings, s.Config.BatchSize); err != nil {
			return 0, err
		}
	}

	return len(embeddings), nil
}

// ensureVectorIndex creates the per-dimension HNSW index on first sight of a
// (provider, model, dims) triple, per §4.D step 5's auto-detection rule.
// CreateVectorIndex is itself idempotent, so no additional bookkeeping is
// needed to avoid recreating an index that already exists.
func (s *Service) ensureVectorIndex(provider, modelName string, dims int) {
	if dims <= 0 {
		return
	}
	if err := s.Engine.CreateVectorIndex(provider, modelName, dims, "cosine"); err != nil {
		slog.Warn("failed to ensure vector index", slog.String("provider", provider),
			slog.String("model", modelName), slog.Int("dims", dims), slog.String("error", err.Error()))
	}
}
