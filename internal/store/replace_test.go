package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofriw/chunkhound-sub000/internal/model"
)

func TestReplaceFileChunks_InsertsNewFileAndChunks(t *testing.T) {
	e := newTestEngine(t)

	fileID, ids, err := e.ReplaceFileChunks(
		&model.File{Path: "/repo/a.go", SizeBytes: 10, MTime: 1, Checksum: "abc"},
		[]*model.Chunk{
			{ChunkType: model.ChunkTypeFunction, Symbol: "Foo", Code: "func Foo() {}"},
		},
		nil,
	)
	require.NoError(t, err)
	assert.NotZero(t, fileID)
	require.Len(t, ids, 1)

	got, err := e.GetFileByPath("/repo/a.go")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.Checksum)
	assert.Equal(t, "a.go", got.Name)
	assert.Equal(t, ".go", got.Extension)

	chunks, err := e.GetChunksByFileID(fileID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Foo", chunks[0].Symbol)
}

func TestReplaceFileChunks_DeletesSupersededChunksAndEmbeddings(t *testing.T) {
	e := newTestEngine(t)

	fileID, err := e.InsertFile(&model.File{Path: "/repo/a.go", SizeBytes: 10, MTime: 1})
	require.NoError(t, err)
	ids, err := e.InsertChunksBatch([]*model.Chunk{
		{FileID: fileID, ChunkType: model.ChunkTypeFunction, Code: "func Old() {}"},
	})
	require.NoError(t, err)
	_, err = e.InsertEmbedding(&model.Embedding{
		ChunkID: ids[0], Provider: "openai", Model: "m", Vector: []float32{1, 2}, Dims: 2,
	})
	require.NoError(t, err)

	_, newIDs, err := e.ReplaceFileChunks(
		&model.File{Path: "/repo/a.go", SizeBytes: 12, MTime: 2, Checksum: "def"},
		[]*model.Chunk{
			{ChunkType: model.ChunkTypeFunction, Code: "func New() {}"},
		},
		ids,
	)
	require.NoError(t, err)
	require.Len(t, newIDs, 1)

	chunks, err := e.GetChunksByFileID(fileID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "func New() {}", chunks[0].Code)

	oldChunk, err := e.GetChunkByID(ids[0])
	require.NoError(t, err)
	assert.Nil(t, oldChunk)

	existing, err := e.GetExistingEmbeddings(ids, "openai", "m", 2)
	require.NoError(t, err)
	assert.False(t, existing[ids[0]])
}

func TestReplaceFileChunks_KeepsUnmentionedChunksUntouched(t *testing.T) {
	e := newTestEngine(t)

	fileID, err := e.InsertFile(&model.File{Path: "/repo/a.go", SizeBytes: 10, MTime: 1})
	require.NoError(t, err)
	ids, err := e.InsertChunksBatch([]*model.Chunk{
		{FileID: fileID, ChunkType: model.ChunkTypeFunction, Code: "func Keep() {}"},
	})
	require.NoError(t, err)

	_, newIDs, err := e.ReplaceFileChunks(
		&model.File{Path: "/repo/a.go", SizeBytes: 20, MTime: 2},
		[]*model.Chunk{{ChunkType: model.ChunkTypeFunction, Code: "func Added() {}"}},
		nil, // nothing deleted
	)
	require.NoError(t, err)
	require.Len(t, newIDs, 1)

	chunks, err := e.GetChunksByFileID(fileID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	kept, err := e.GetChunkByID(ids[0])
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, "func Keep() {}", kept.Code)
}

func TestListFilePaths_ReturnsAllTrackedPaths(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.InsertFile(&model.File{Path: "/repo/a.go", SizeBytes: 1, MTime: 1})
	require.NoError(t, err)
	_, err = e.InsertFile(&model.File{Path: "/repo/b.go", SizeBytes: 1, MTime: 1})
	require.NoError(t, err)

	paths, err := e.ListFilePaths()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/repo/a.go", "/repo/b.go"}, paths)
}
