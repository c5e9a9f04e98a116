package embed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofriw/chunkhound-sub000/internal/config"
	"github.com/ofriw/chunkhound-sub000/internal/model"
	"github.com/ofriw/chunkhound-sub000/internal/store"
)

func newTestService(t *testing.T, embedder Embedder) (*Service, *store.Engine) {
	t.Helper()
	engine, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	cfg := config.EmbeddingConfig{BatchSize: 4, MaxConcurrent: 2}
	return NewService(engine, embedder, cfg), engine
}

func insertTestChunk(t *testing.T, engine *store.Engine, code string) int64 {
	t.Helper()
	fileID, err := engine.InsertFile(&model.File{Path: code + ".go", SizeBytes: 1, MTime: 1})
	require.NoError(t, err)
	ids, err := engine.InsertChunksBatch([]*model.Chunk{
		{FileID: fileID, ChunkType: model.ChunkTypeFunction, Code: code},
	})
	require.NoError(t, err)
	return ids[0]
}

func TestEmbedChunks_EmbedsAllAndPersists(t *testing.T) {
	embedder := NewStaticEmbedder(StaticDimensions)
	svc, engine := newTestService(t, embedder)

	ids := []int64{
		insertTestChunk(t, engine, "func A() {}"),
		insertTestChunk(t, engine, "func B() {}"),
		insertTestChunk(t, engine, "func C() {}"),
	}

	result, err := svc.EmbedChunks(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, 3, result.Embedded)
	assert.Empty(t, result.Failed)

	existing, err := engine.GetExistingEmbeddings(ids, "static", "static", StaticDimensions)
	require.NoError(t, err)
	for _, id := range ids {
		assert.True(t, existing[id])
	}
}

func TestEmbedChunks_SkipsAlreadyEmbedded(t *testing.T) {
	embedder := NewStaticEmbedder(StaticDimensions)
	svc, engine := newTestService(t, embedder)

	id := insertTestChunk(t, engine, "func Once() {}")
	_, err := svc.EmbedChunks(context.Background(), []int64{id})
	require.NoError(t, err)

	result, err := svc.EmbedChunks(context.Background(), []int64{id})
	require.NoError(t, err)
	assert.Equal(t, 1, result.AlreadyEmbedded)
	assert.Equal(t, 0, result.Embedded)
}

func TestEmbedChunks_NilEmbedderIsNoop(t *testing.T) {
	svc, engine := newTestService(t, nil)
	id := insertTestChunk(t, engine, "func NoEmbedder() {}")

	result, err := svc.EmbedChunks(context.Background(), []int64{id})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Embedded)
}

type failingEmbedder struct{ Embedder }

func (f failingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return nil, assertError{}
}

type assertError struct{}

func (assertError) Error() string { return "embedder unavailable" }

func TestEmbedChunks_FailedBatchDoesNotBlockOthers(t *testing.T) {
	inner := NewStaticEmbedder(StaticDimensions)
	svc, engine := newTestService(t, failingEmbedder{Embedder: inner})
	svc.Retry = RetryConfig{MaxRetries: 0, InitialDelay: 0, MaxDelay: 0, Multiplier: 1}

	id := insertTestChunk(t, engine, "func WillFail() {}")
	result, err := svc.EmbedChunks(context.Background(), []int64{id})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Embedded)
	require.Len(t, result.Failed, 1)
}

func TestEnqueue_ImplementsIndexEmbedEnqueuerShape(t *testing.T) {
	embedder := NewStaticEmbedder(StaticDimensions)
	svc, engine := newTestService(t, embedder)
	id := insertTestChunk(t, engine, "func Enqueued() {}")

	err := svc.Enqueue(context.Background(), []int64{id})
	require.NoError(t, err)

	existing, err := engine.GetExistingEmbeddings([]int64{id}, "static", "static", StaticDimensions)
	require.NoError(t, err)
	assert.True(t, existing[id])
}
