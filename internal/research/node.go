package research

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ofriw/chunkhound-sub000/internal/model"
	"github.com/ofriw/chunkhound-sub000/internal/search"
)

// Searcher is the subset of search.Service the research engine depends on.
type Searcher interface {
	Regex(ctx context.Context, p search.RegexParams) (search.Result, error)
	Semantic(ctx context.Context, p search.SemanticParams) (search.Result, error)
	HasSemanticSearch() bool
}

// Reranker is the subset of search.Reranker the research engine depends on.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]search.RerankResult, error)
	Available(ctx context.Context) bool
}

const symbolSearchPageSize = 10

// runNodeSearch executes §4.G's per-node procedure steps 1-6: build the
// query, expand it, run semantic search over every variant, extract and
// rerank candidate symbols, regex-search each one, and union the results by
// chunk id.
func runNodeSearch(ctx context.Context, searcher Searcher, completer Completer, reranker Reranker, node *BFSNode, rootQuery string) ([]Chunk, error) {
	ancestors := ancestorQueries(node)
	query := buildSearchQuery(node.Query, ancestors)
	rerankQuery := rerankContext(rootQuery, ancestors, node.Query)

	variants := []string{query}
	if node.Depth > 0 && searcher.HasSemanticSearch() {
		variants = expandQueries(ctx, completer, query, numExpandedQueries)
	}

	semanticRows, err := semanticSearchVariants(ctx, searcher, variants)
	if err != nil {
		return nil, err
	}

	symbols := extractSymbols(rowSymbols(semanticRows))
	symbols = selectSymbols(ctx, reranker, symbols, rerankQuery)

	regexRows, err := regexSearchSymbols(ctx, searcher, symbols)
	if err != nil {
		return nil, err
	}

	chunks := unionChunks(semanticRows, regexRows)
	chunks = rerankChunks(ctx, reranker, chunks, rerankQuery)

	return chunks, nil
}

func semanticSearchVariants(ctx context.Context, searcher Searcher, variants []string) ([]model.SearchRow, error) {
	if !searcher.HasSemanticSearch() {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([][]model.SearchRow, len(variants))
	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			res, err := searcher.Semantic(gctx, search.SemanticParams{Query: v, PageSize: symbolSearchPageSize})
			if err != nil {
				slog.Warn("research_semantic_variant_failed", slog.String("query", v), slog.Any("error", err))
				return nil
			}
			results[i] = res.Rows
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[int64]bool)
	var merged []model.SearchRow
	for _, rows := range results {
		for _, r := range rows {
			if seen[r.ChunkID] {
				continue
			}
			seen[r.ChunkID] = true
			merged = append(merged, r)
		}
	}
	return merged, nil
}

func rowSymbols(rows []model.SearchRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Symbol != "" {
			out = append(out, r.Symbol)
		}
	}
	return out
}

// selectSymbols applies §4.G step 4: if there are more candidates than
// maxSymbolsToSearch, rerank them and keep the top ones scoring at or above
// relevanceThreshold, falling back to the top ones regardless of score if
// that filter empties the list.
func selectSymbols(ctx context.Context, reranker Reranker, symbols []string, rerankQuery string) []string {
	if len(symbols) <= maxSymbolsToSearch {
		return symbols
	}
	if reranker == nil || !reranker.Available(ctx) {
		return symbols[:maxSymbolsToSearch]
	}

	results, err := reranker.Rerank(ctx, rerankQuery, symbols, maxSymbolsToSearch)
	if err != nil || len(results) == 0 {
		return symbols[:maxSymbolsToSearch]
	}

	var filtered []string
	for _, r := range results {
		if r.Score >= relevanceThreshold {
			filtered = append(filtered, r.Document)
		}
	}
	if len(filtered) == 0 {
		for _, r := range results {
			filtered = append(filtered, r.Document)
		}
	}
	return filtered
}

func regexSearchSymbols(ctx context.Context, searcher Searcher, symbols []string) ([]model.SearchRow, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([][]model.SearchRow, len(symbols))
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			res, err := searcher.Regex(gctx, search.RegexParams{Pattern: symbolSearchPattern(sym), PageSize: symbolSearchPageSize})
			if err != nil {
				slog.Warn("research_symbol_regex_failed", slog.String("symbol", sym), slog.Any("error", err))
				return nil
			}
			results[i] = res.Rows
			return nil
		})
	}
	_ = g.Wait()

	var merged []model.SearchRow
	for _, rows := range results {
		merged = append(merged, rows...)
	}
	return merged, nil
}

func unionChunks(a, b []model.SearchRow) []Chunk {
	seen := make(map[int64]bool)
	var out []Chunk
	for _, rows := range [][]model.SearchRow{a, b} {
		for _, r := range rows {
			if seen[r.ChunkID] {
				continue
			}
			seen[r.ChunkID] = true
			out = append(out, Chunk{
				ChunkID:        r.ChunkID,
				FilePath:       r.FilePath,
				Symbol:         r.Symbol,
				ChunkType:      r.ChunkType,
				Content:        r.Content,
				StartLine:      r.StartLine,
				EndLine:        r.EndLine,
				RelevanceScore: r.Similarity,
			})
		}
	}
	return out
}

// rerankChunks reranks the unioned chunk list by rerankQuery when there is
// more than one result (§4.G step 6), sorting by score descending.
func rerankChunks(ctx context.Context, reranker Reranker, chunks []Chunk, rerankQuery string) []Chunk {
	if len(chunks) <= 1 || reranker == nil || !reranker.Available(ctx) {
		return chunks
	}

	docs := make([]string, len(chunks))
	for i, c := range chunks {
		docs[i] = c.Content
	}

	results, err := reranker.Rerank(ctx, rerankQuery, docs, len(chunks))
	if err != nil {
		return chunks
	}

	out := make([]Chunk, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(chunks) {
			continue
		}
		c := chunks[r.Index]
		c.RelevanceScore = r.Score
		out = append(out, c)
	}
	return out
}
