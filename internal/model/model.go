// Package model defines the record types shared by the storage engine,
// indexing coordinator, embedding service and search service: File, Chunk,
// Embedding and the vector index descriptor, per the data model.
package model

import "time"

// Language is a detected or declared source language. UNKNOWN is used when
// detection fails or the file has no recognized extension.
type Language string

const (
	LanguageUnknown Language = "UNKNOWN"
)

// ChunkType classifies the syntactic unit a Chunk was extracted from.
type ChunkType string

const (
	ChunkTypeFunction ChunkType = "function"
	ChunkTypeMethod   ChunkType = "method"
	ChunkTypeClass    ChunkType = "class"
	ChunkTypeBlock    ChunkType = "block"
	ChunkTypeComment  ChunkType = "comment"
	ChunkTypeUnknown  ChunkType = "unknown"
)

// File is a tracked source file. Path is unique; File rows are created on
// first index and mutated only by the indexing coordinator.
type File struct {
	ID        int64
	Path      string
	Name      string
	Extension string
	SizeBytes int64
	MTime     float64
	Language  Language
	Checksum  string // sampled head+tail digest; empty until the gating step populates it
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is a contiguous span of a File's content carrying a symbol and kind.
// (FileID, StartByte, EndByte, content hash) uniquely identifies content.
type Chunk struct {
	ID        int64
	FileID    int64
	ChunkType ChunkType
	Symbol    string // empty when the chunk has no identifiable symbol
	Code      string
	StartLine int
	EndLine   int
	StartByte int
	EndByte   int
	Size      int // == len(Code)
	Signature string
	Language  Language
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContentHash is a stable digest of a chunk's identifying fields, used by
// the indexing coordinator's diff step to detect unchanged chunks without
// depending on database-assigned ids.
func (c Chunk) ContentHash() string {
	return contentHash(string(c.ChunkType), c.Symbol, c.StartByte, c.EndByte, c.Code)
}

// Embedding is a fixed-length vector of a Chunk under a specific
// provider+model, stored in a table partitioned by Dims.
type Embedding struct {
	ID        int64
	ChunkID   int64
	Provider  string
	Model     string
	Vector    []float32
	Dims      int
	CreatedAt time.Time
}

// VectorIndexDescriptor identifies a physical per-dimension vector index.
type VectorIndexDescriptor struct {
	Provider  string
	Model     string
	Dims      int
	Metric    string // "cosine" or "l2"
	IndexName string
}

// TableName returns the embeddings_{dims} table name for d.
func (d VectorIndexDescriptor) TableName() string {
	return EmbeddingsTableName(d.Dims)
}

// SearchRow is a result row shared by regex and semantic search, with
// Similarity populated only for semantic results.
type SearchRow struct {
	ChunkID    int64
	Symbol     string
	Content    string
	ChunkType  ChunkType
	StartLine  int
	EndLine    int
	FilePath   string
	Language   Language
	Similarity float64 // semantic only; zero value for regex rows
}

// Pagination describes the page of results returned alongside SearchRows.
type Pagination struct {
	Offset     int
	PageSize   int
	HasMore    bool
	NextOffset int
	Total      int
}

// Stats aggregates row counts across all per-dimension tables.
type Stats struct {
	Files      int
	Chunks     int
	Embeddings int
	Providers  []string
}
