package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

func contentHash(chunkType, symbol string, startByte, endByte int, code string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d|%s", chunkType, symbol, startByte, endByte, code)
	return hex.EncodeToString(h.Sum(nil))
}

// EmbeddingsTableName returns the per-dimension table name for dims, e.g.
// "embeddings_1536".
func EmbeddingsTableName(dims int) string {
	return "embeddings_" + strconv.Itoa(dims)
}

// ClampPageSize enforces the [1, 100] bound on a requested page size.
func ClampPageSize(pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	if pageSize > 100 {
		return 100
	}
	return pageSize
}

// ClampOffset enforces offset >= 0.
func ClampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// ClampMaxResponseTokens enforces the [1000, 25000] bound from the protocol
// server's max_response_tokens parameter.
func ClampMaxResponseTokens(tokens int) int {
	if tokens < 1000 {
		return 1000
	}
	if tokens > 25000 {
		return 25000
	}
	return tokens
}

// EstimateTokens estimates the token count of s using the ceil(len/3) rule
// used throughout the specification for budget arithmetic.
func EstimateTokens(s string) int {
	return (len(s) + 2) / 3
}

// NewPagination builds a Pagination from a clamped offset/pageSize, the
// number of rows actually returned, and the total row count for the query.
func NewPagination(offset, pageSize, returned, total int) Pagination {
	p := Pagination{Offset: offset, PageSize: returned, Total: total}
	nextOffset := offset + returned
	p.HasMore = nextOffset < total
	if p.HasMore {
		p.NextOffset = nextOffset
	}
	return p
}
