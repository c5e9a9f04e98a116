package store

import (
	"fmt"
	"regexp"
	"strings"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// literalPatternRE matches patterns containing no RE2 metacharacters, used
// to decide whether the FTS5 index can prefilter candidate rows before the
// authoritative regexp.MatchString pass, per SPEC_FULL §11's "FTS5 virtual
// table backing search_regex's content scan fallback".
var literalPatternRE = regexp.MustCompile(`^[\w\s./:-]+$`)

// SearchRegex scans chunk content for pattern (Go's RE2 syntax — a
// POSIX-ERE-compatible superset; PCRE-only constructs like backreferences or
// lookaround are not supported, per DESIGN.md's open-question resolution),
// returning up to pageSize rows starting at offset. rawPathFilter, if
// non-empty, is normalized and applied against file.path.
func (e *Engine) SearchRegex(pattern string, pageSize, offset int, rawPathFilter string) ([]model.SearchRow, model.Pagination, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, model.Pagination{}, cherrors.Config("invalid regex pattern", err).WithDetail("pattern", pattern)
	}

	pathFilter, err := NormalizePathFilter(rawPathFilter)
	if err != nil {
		return nil, model.Pagination{}, err
	}

	candidates, err := e.regexCandidateRows(pattern, pathFilter)
	if err != nil {
		return nil, model.Pagination{}, err
	}

	var matches []model.SearchRow
	for _, row := range candidates {
		if re.MatchString(row.Content) {
			matches = append(matches, row)
		}
	}

	return paginateRows(matches, pageSize, offset)
}

// regexCandidateRows returns the chunk rows to run the regex against: if
// pattern is a plain literal (no metacharacters), it uses the FTS5 index to
// narrow candidates; otherwise it scans every chunk row (still narrowed by
// pathFilter via a SQL LIKE pushdown).
func (e *Engine) regexCandidateRows(pattern, pathFilter string) ([]model.SearchRow, error) {
	var query string
	var args []any

	base := `
		SELECT c.id, c.symbol, c.code, c.chunk_type, c.start_line, c.end_line, f.path, c.language
		FROM chunks c JOIN files f ON f.id = c.file_id`

	switch {
	case literalPatternRE.MatchString(pattern) && pathFilter == "":
		query = base + ` JOIN fts_content fc ON fc.doc_id = c.id WHERE fc MATCH ? ORDER BY c.id`
		args = []any{ftsQuery(pattern)}
	case literalPatternRE.MatchString(pattern):
		query = base + ` JOIN fts_content fc ON fc.doc_id = c.id WHERE fc MATCH ? AND f.path LIKE ? ORDER BY c.id`
		args = []any{ftsQuery(pattern), pathFilterLikePattern(pathFilter)}
	case pathFilter == "":
		query = base + ` ORDER BY c.id`
	default:
		query = base + ` WHERE f.path LIKE ? ORDER BY c.id`
		args = []any{pathFilterLikePattern(pathFilter)}
	}

	rows, err := e.db.Query(query, args...)
	if err != nil {
		return nil, cherrors.Storage("failed to scan chunks for regex search", err)
	}
	defer rows.Close()

	var out []model.SearchRow
	for rows.Next() {
		var r model.SearchRow
		var chunkType, language string
		if err := rows.Scan(&r.ChunkID, &r.Symbol, &r.Content, &chunkType, &r.StartLine, &r.EndLine, &r.FilePath, &language); err != nil {
			return nil, cherrors.Storage("failed to scan search row", err)
		}
		r.ChunkType = model.ChunkType(chunkType)
		r.Language = model.Language(language)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ftsQuery escapes a literal pattern for use as an FTS5 MATCH query: each
// whitespace-delimited word becomes a quoted phrase token, matched
// conjunctively.
func ftsQuery(literal string) string {
	fields := strings.Fields(literal)
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// SearchSemantic finds the pageSize nearest neighbors (after offset) of
// queryVec among chunks with an embedding for (provider, model), optionally
// filtered by minimum similarity threshold and a normalized path filter.
func (e *Engine) SearchSemantic(queryVec []float32, provider, modelName string, pageSize, offset int, threshold *float64, rawPathFilter string) ([]model.SearchRow, model.Pagination, error) {
	dims := len(queryVec)

	e.mu.RLock()
	vi, ok := e.vectors[dims]
	e.mu.RUnlock()
	if !ok {
		// No embeddings_{dims} table yet: an empty page, not an error, per
		// spec §4.F/§8 boundary behavior for an unrecognized dims value.
		return paginateRows(nil, pageSize, offset)
	}

	pathFilter, err := NormalizePathFilter(rawPathFilter)
	if err != nil {
		return nil, model.Pagination{}, err
	}

	// Over-fetch generously: four times offset+pageSize nearest neighbors (at
	// least 64), then filter by path/threshold/provider-model before
	// paginating, since the HNSW graph has no native filter-predicate support.
	fetchK := (offset + pageSize) * 4
	if fetchK < 64 {
		fetchK = 64
	}
	hits, err := vi.Search(queryVec, fetchK)
	if err != nil {
		return nil, model.Pagination{}, cherrors.Storage("vector search failed", err)
	}

	var matches []model.SearchRow
	for _, hit := range hits {
		if threshold != nil && hit.Similarity < *threshold {
			continue
		}
		row, ok, err := e.semanticRowFor(hit.ChunkID, provider, modelName, dims, pathFilter)
		if err != nil {
			return nil, model.Pagination{}, err
		}
		if !ok {
			continue
		}
		row.Similarity = hit.Similarity
		matches = append(matches, row)
	}

	return paginateRows(matches, pageSize, offset)
}

// semanticRowFor loads the chunk/file metadata for a vector hit, verifying
// the chunk still has an embedding for (provider, model) and matches
// pathFilter. Returns ok=false (not an error) when the hit should be
// skipped, e.g. a stale lazily-deleted id that slipped through.
func (e *Engine) semanticRowFor(chunkID int64, provider, modelName string, dims int, pathFilter string) (model.SearchRow, bool, error) {
	table := model.EmbeddingsTableName(dims)
	query := fmt.Sprintf(`
		SELECT c.id, c.symbol, c.code, c.chunk_type, c.start_line, c.end_line, f.path, c.language
		FROM %s e
		JOIN chunks c ON c.id = e.chunk_id
		JOIN files f ON f.id = c.file_id
		WHERE e.chunk_id = ? AND e.provider = ? AND e.model = ?`, table)
	args := []any{chunkID, provider, modelName}
	if pathFilter != "" {
		query += " AND f.path LIKE ?"
		args = append(args, pathFilterLikePattern(pathFilter))
	}

	var r model.SearchRow
	var chunkType, language string
	row := e.db.QueryRow(query, args...)
	err := row.Scan(&r.ChunkID, &r.Symbol, &r.Content, &chunkType, &r.StartLine, &r.EndLine, &r.FilePath, &language)
	if err != nil {
		return model.SearchRow{}, false, nil //nolint:nilerr // sql.ErrNoRows or transient: treat as skip
	}
	r.ChunkType = model.ChunkType(chunkType)
	r.Language = model.Language(language)
	return r, true, nil
}

// paginateRows slices matches[offset:offset+pageSize] and reports whether
// more rows remain.
func paginateRows(matches []model.SearchRow, pageSize, offset int) ([]model.SearchRow, model.Pagination, error) {
	total := len(matches)
	if offset > total {
		offset = total
	}
	end := offset + pageSize
	if end > total {
		end = total
	}
	page := matches[offset:end]

	return page, model.NewPagination(offset, pageSize, len(page), total), nil
}
