package store

import (
	"log/slog"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// CreateVectorIndex ensures a VectorIndex (and its backing embeddings_{dims}
// table) exists for (provider, model, dims, metric).
func (e *Engine) CreateVectorIndex(provider, modelName string, dims int, metric string) error {
	_, err := e.vectorIndexFor(dims, metric)
	return err
}

// DropVectorIndex discards the in-memory VectorIndex for dims. The
// embeddings_{dims} table itself is untouched; the index is rebuilt from it
// on next CreateVectorIndex or Open.
func (e *Engine) DropVectorIndex(dims int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.vectors, dims)
}

// ExistingVectorIndex describes one active per-dimension vector index.
type ExistingVectorIndex struct {
	IndexName string
	Dims      int
	Metric    string
	Size      int
}

// GetExistingVectorIndexes lists every currently loaded VectorIndex.
func (e *Engine) GetExistingVectorIndexes() []ExistingVectorIndex {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]ExistingVectorIndex, 0, len(e.vectors))
	for dims, vi := range e.vectors {
		out = append(out, ExistingVectorIndex{
			IndexName: model.EmbeddingsTableName(dims) + "_hnsw",
			Dims:      dims,
			Metric:    vi.metric,
			Size:      vi.Len(),
		})
	}
	return out
}

// BulkOperationWithIndexManagement runs fn as a bulk write: it drops all
// currently loaded vector indexes, runs fn, then recreates and rehydrates
// each dropped index from its embeddings_{D} table, and forces a checkpoint.
// On any failure the dropped indexes are best-effort recreated before the
// error is returned, so a failed bulk operation never leaves the engine
// without searchable vector indexes. It opens no transaction of its own:
// fn's writes commit through fn's own transactions, and whatever fn
// committed before failing stays committed.
//
// Used by the embedding service for large batches (see SPEC_FULL §4.D step
// 4): disabling per-insert index maintenance during a big write is
// substantially faster than updating the HNSW graph incrementally for every
// row, at the cost of a full index rebuild from the embeddings table
// afterward. The spec's "disable insertion-order preservation" step is a
// DuckDB-specific optimization with no SQLite analogue; it's a no-op here.
func (e *Engine) BulkOperationWithIndexManagement(fn func() error) error {
	e.mu.Lock()
	dropped := make(map[int]string, len(e.vectors))
	for dims, vi := range e.vectors {
		dropped[dims] = vi.metric
	}
	for dims := range dropped {
		delete(e.vectors, dims)
	}
	e.mu.Unlock()

	recreate := func() {
		for dims, metric := range dropped {
			if _, err := e.vectorIndexFor(dims, metric); err != nil {
				slog.Warn("failed to recreate vector index after bulk operation",
					slog.Int("dims", dims), slog.String("error", err.Error()))
			}
		}
	}

	if err := fn(); err != nil {
		recreate()
		return err
	}

	recreate()

	if err := forceCheckpoint(e.db); err != nil {
		return cherrors.Storage("failed to checkpoint after bulk operation", err)
	}
	return nil
}
