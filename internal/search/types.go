// Package search implements the search service (§4.F): independent regex
// and semantic search operations over the index store, plus a concurrent
// fan-out helper, ConcurrentSearch, that runs both at once.
package search

import (
	"github.com/ofriw/chunkhound-sub000/internal/model"
)

const (
	// MinPageSize and MaxPageSize bound page_size for both search kinds.
	MinPageSize     = 1
	MaxPageSize     = 100
	DefaultPageSize = 10
)

// RegexParams are the inputs to a regex search.
type RegexParams struct {
	// Pattern is an RE2 pattern matched against chunk content.
	Pattern string
	// PageSize is clamped to [MinPageSize, MaxPageSize].
	PageSize int
	// Offset is clamped to >= 0.
	Offset int
	// PathFilter optionally restricts results to a path prefix/glob.
	PathFilter string
}

// SemanticParams are the inputs to a semantic search. Query is embedded by
// the configured Embedder before the vector search runs.
type SemanticParams struct {
	Query      string
	PageSize   int
	Offset     int
	Threshold  *float64
	PathFilter string
}

// clampPageSize normalizes a requested page size into [MinPageSize, MaxPageSize].
func clampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	if n < MinPageSize {
		return MinPageSize
	}
	return n
}

// clampOffset normalizes a requested offset to >= 0.
func clampOffset(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// Result is the uniform shape both search kinds return: a page of rows plus
// pagination metadata for the caller to request the next page.
type Result struct {
	Rows       []model.SearchRow
	Pagination model.Pagination
}
