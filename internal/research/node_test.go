package research

import (
	"context"
	"errors"
	"testing"

	"github.com/ofriw/chunkhound-sub000/internal/model"
	"github.com/ofriw/chunkhound-sub000/internal/search"
)

type fakeSearcher struct {
	hasSemantic  bool
	semanticRows map[string][]model.SearchRow // query -> rows
	regexRows    map[string][]model.SearchRow // pattern -> rows
	semanticErr  error
	regexErr     error
}

func (f *fakeSearcher) Regex(ctx context.Context, p search.RegexParams) (search.Result, error) {
	if f.regexErr != nil {
		return search.Result{}, f.regexErr
	}
	return search.Result{Rows: f.regexRows[p.Pattern]}, nil
}

func (f *fakeSearcher) Semantic(ctx context.Context, p search.SemanticParams) (search.Result, error) {
	if f.semanticErr != nil {
		return search.Result{}, f.semanticErr
	}
	return search.Result{Rows: f.semanticRows[p.Query]}, nil
}

func (f *fakeSearcher) HasSemanticSearch() bool { return f.hasSemantic }

type fakeReranker struct {
	available bool
	results   []search.RerankResult
	err       error
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]search.RerankResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeReranker) Available(ctx context.Context) bool { return f.available }

func TestSemanticSearchVariants_MergesAndDedupesAcrossVariants(t *testing.T) {
	searcher := &fakeSearcher{
		hasSemantic: true,
		semanticRows: map[string][]model.SearchRow{
			"v1": {{ChunkID: 1, Symbol: "Foo"}, {ChunkID: 2, Symbol: "Bar"}},
			"v2": {{ChunkID: 2, Symbol: "Bar"}, {ChunkID: 3, Symbol: "Baz"}},
		},
	}

	rows, err := semanticSearchVariants(context.Background(), searcher, []string{"v1", "v2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 unique rows, got %d: %v", len(rows), rows)
	}
}

func TestSemanticSearchVariants_NoEmbedderReturnsEmpty(t *testing.T) {
	searcher := &fakeSearcher{hasSemantic: false}

	rows, err := semanticSearchVariants(context.Background(), searcher, []string{"v1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows without an embedder, got %v", rows)
	}
}

func TestSemanticSearchVariants_ToleratesPerVariantFailure(t *testing.T) {
	searcher := &fakeSearcher{
		hasSemantic: true,
		semanticErr: errors.New("embed timeout"),
	}

	rows, err := semanticSearchVariants(context.Background(), searcher, []string{"v1", "v2"})
	if err != nil {
		t.Fatalf("expected errgroup failures to be swallowed per-variant, got %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows when every variant fails, got %v", rows)
	}
}

func TestRegexSearchSymbols_MergesAcrossSymbols(t *testing.T) {
	searcher := &fakeSearcher{
		regexRows: map[string][]model.SearchRow{
			symbolSearchPattern("Foo"): {{ChunkID: 10, Symbol: "Foo"}},
			symbolSearchPattern("Bar"): {{ChunkID: 11, Symbol: "Bar"}},
		},
	}

	rows, err := regexSearchSymbols(context.Background(), searcher, []string{"Foo", "Bar"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %v", len(rows), rows)
	}
}

func TestRegexSearchSymbols_EmptySymbolsShortCircuits(t *testing.T) {
	searcher := &fakeSearcher{}
	rows, err := regexSearchSymbols(context.Background(), searcher, nil)
	if err != nil || rows != nil {
		t.Fatalf("expected nil, nil for no symbols, got %v, %v", rows, err)
	}
}

func TestUnionChunks_DedupesById(t *testing.T) {
	a := []model.SearchRow{{ChunkID: 1, FilePath: "a.go"}, {ChunkID: 2, FilePath: "b.go"}}
	b := []model.SearchRow{{ChunkID: 2, FilePath: "b.go"}, {ChunkID: 3, FilePath: "c.go"}}

	got := unionChunks(a, b)
	if len(got) != 3 {
		t.Fatalf("expected 3 unique chunks, got %d: %v", len(got), got)
	}
}

func TestSelectSymbols_BelowThresholdReturnsAllUnchanged(t *testing.T) {
	symbols := []string{"A", "B"}
	got := selectSymbols(context.Background(), nil, symbols, "ctx")
	if len(got) != 2 {
		t.Fatalf("expected both symbols kept, got %v", got)
	}
}

func TestSelectSymbols_RerankerUnavailableFallsBackToPrefix(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E", "F"}
	got := selectSymbols(context.Background(), &fakeReranker{available: false}, symbols, "ctx")
	if len(got) != maxSymbolsToSearch {
		t.Fatalf("expected %d symbols, got %d: %v", maxSymbolsToSearch, len(got), got)
	}
}

func TestSelectSymbols_FiltersByRelevanceThreshold(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E", "F"}
	reranker := &fakeReranker{
		available: true,
		results: []search.RerankResult{
			{Index: 0, Score: 0.9, Document: "A"},
			{Index: 1, Score: 0.2, Document: "B"},
			{Index: 2, Score: 0.8, Document: "C"},
		},
	}

	got := selectSymbols(context.Background(), reranker, symbols, "ctx")
	if len(got) != 2 {
		t.Fatalf("expected only scores >= threshold kept, got %v", got)
	}
}

func TestSelectSymbols_AllBelowThresholdFallsBackToAll(t *testing.T) {
	symbols := []string{"A", "B", "C", "D", "E", "F"}
	reranker := &fakeReranker{
		available: true,
		results: []search.RerankResult{
			{Index: 0, Score: 0.1, Document: "A"},
			{Index: 1, Score: 0.2, Document: "B"},
		},
	}

	got := selectSymbols(context.Background(), reranker, symbols, "ctx")
	if len(got) != 2 {
		t.Fatalf("expected fallback to the reranked results themselves, got %v", got)
	}
}

func TestRerankChunks_SortsByScoreDescending(t *testing.T) {
	chunks := []Chunk{
		{ChunkID: 1, Content: "a"},
		{ChunkID: 2, Content: "b"},
	}
	reranker := &fakeReranker{
		available: true,
		results: []search.RerankResult{
			{Index: 1, Score: 0.9, Document: "b"},
			{Index: 0, Score: 0.3, Document: "a"},
		},
	}

	got := rerankChunks(context.Background(), reranker, chunks, "ctx")
	if len(got) != 2 || got[0].ChunkID != 2 || got[1].ChunkID != 1 {
		t.Fatalf("expected chunk 2 first (higher score), got %v", got)
	}
}

func TestRerankChunks_SingleChunkSkipsReranking(t *testing.T) {
	chunks := []Chunk{{ChunkID: 1}}
	got := rerankChunks(context.Background(), &fakeReranker{available: true}, chunks, "ctx")
	if len(got) != 1 || got[0].ChunkID != 1 {
		t.Fatalf("expected unchanged single-chunk slice, got %v", got)
	}
}

func TestRunNodeSearch_RootNodeSkipsQueryExpansion(t *testing.T) {
	searcher := &fakeSearcher{
		hasSemantic: true,
		semanticRows: map[string][]model.SearchRow{
			"root query": {{ChunkID: 1, FilePath: "a.go", Symbol: "Widget"}},
		},
		regexRows: map[string][]model.SearchRow{
			symbolSearchPattern("Widget"): {{ChunkID: 2, FilePath: "b.go", Symbol: "Widget"}},
		},
	}
	completer := &fakeCompleter{response: "should not be used"}
	root := &BFSNode{Query: "root query", Depth: 0}

	chunks, err := runNodeSearch(context.Background(), searcher, completer, nil, root, "root query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if completer.calls != 0 {
		t.Errorf("expected no query expansion call at depth 0, got %d calls", completer.calls)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 unioned chunks, got %v", chunks)
	}
}
