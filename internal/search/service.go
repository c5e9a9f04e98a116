package search

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/model"
)

// embeddingTimeout bounds query-vector generation for a semantic search,
// per §4.H's "12-second timeout on query-vector generation" rule — a
// timeout here returns a retryable EmbedError rather than hanging the
// caller indefinitely.
const embeddingTimeout = 12 * time.Second

// StoreEngine is the subset of store.Engine the search service depends on.
// Declared locally so tests can substitute a fake without constructing a
// real SQLite-backed Engine.
type StoreEngine interface {
	SearchRegex(pattern string, pageSize, offset int, rawPathFilter string) ([]model.SearchRow, model.Pagination, error)
	SearchSemantic(queryVec []float32, provider, modelName string, pageSize, offset int, threshold *float64, rawPathFilter string) ([]model.SearchRow, model.Pagination, error)
}

// Embedder is the subset of embed.Embedder the search service depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Provider() string
	ModelName() string
}

// Service implements the two independent search operations named in §4.F:
// search_regex runs directly against the store; search_semantic first turns
// the query into a vector via the configured Embedder. Embedder may be nil,
// in which case Semantic always fails with a ConfigError — callers such as
// the protocol server use that to decide whether to expose the
// search_semantic tool at all (§4.H's "don't expose embedding-requiring
// tools without an embedder").
type Service struct {
	engine   StoreEngine
	embedder Embedder
}

// NewService constructs a search service over the given store engine and
// optional embedder.
func NewService(engine StoreEngine, embedder Embedder) *Service {
	return &Service{engine: engine, embedder: embedder}
}

// HasSemanticSearch reports whether this service can run semantic search,
// i.e. whether an embedder was configured.
func (s *Service) HasSemanticSearch() bool {
	return s.embedder != nil
}

// Regex runs a regex search. Pattern must be non-empty; PageSize/Offset are
// clamped rather than rejected, matching §4.F's pagination contract.
func (s *Service) Regex(_ context.Context, p RegexParams) (Result, error) {
	if p.Pattern == "" {
		return Result{}, cherrors.Config("search_regex requires a non-empty pattern", nil)
	}

	rows, pagination, err := s.engine.SearchRegex(p.Pattern, clampPageSize(p.PageSize), clampOffset(p.Offset), p.PathFilter)
	if err != nil {
		return Result{}, cherrors.Storage("regex search failed", err)
	}

	return Result{Rows: rows, Pagination: pagination}, nil
}

// Semantic runs a semantic search: embed the query, then run a vector
// search against the embeddings table matching the embedder's provider,
// model, and dimensionality. Returns a ConfigError if no embedder is
// configured, per §4.H.
func (s *Service) Semantic(ctx context.Context, p SemanticParams) (Result, error) {
	if s.embedder == nil {
		return Result{}, cherrors.Config("semantic search requires an embedding provider", nil)
	}
	if p.Query == "" {
		return Result{}, cherrors.Config("search_semantic requires a non-empty query", nil)
	}

	embedCtx, cancel := context.WithTimeout(ctx, embeddingTimeout)
	defer cancel()

	queryVec, err := s.embedder.Embed(embedCtx, p.Query)
	if err != nil {
		embedErr := cherrors.New(cherrors.KindEmbed, "query embedding failed", err)
		if embedCtx.Err() != nil {
			embedErr.Retryable = true
		}
		return Result{}, embedErr
	}

	rows, pagination, err := s.engine.SearchSemantic(
		queryVec,
		s.embedder.Provider(),
		s.embedder.ModelName(),
		clampPageSize(p.PageSize),
		clampOffset(p.Offset),
		p.Threshold,
		p.PathFilter,
	)
	if err != nil {
		return Result{}, cherrors.Storage("semantic search failed", err)
	}

	return Result{Rows: rows, Pagination: pagination}, nil
}

// CombinedResult is the outcome of a ConcurrentSearch call. Either field may
// be zero-valued if the corresponding params were not supplied. It carries no
// per-search errors: ConcurrentSearch returns the first failure as its error.
type CombinedResult struct {
	Regex    Result
	Semantic Result
}

// ConcurrentSearch runs a regex search and a semantic search in parallel via
// errgroup, grounded on the fan-out pattern the research engine needs for
// its per-node procedure (§4.G steps 2 and 5: regex search every extracted
// symbol while a semantic search over query variants runs alongside). Either
// params pointer may be nil to skip that search. errgroup cancels gctx as
// soon as either search fails, but each call already has its own work done
// by the time that happens; Wait returns whichever error occurred first.
func (s *Service) ConcurrentSearch(ctx context.Context, regexParams *RegexParams, semanticParams *SemanticParams) (CombinedResult, error) {
	var combined CombinedResult

	g, gctx := errgroup.WithContext(ctx)

	if regexParams != nil {
		g.Go(func() error {
			res, err := s.Regex(gctx, *regexParams)
			if err != nil {
				slog.Warn("concurrent_search_regex_failed", slog.String("pattern", regexParams.Pattern), slog.Any("error", err))
				return err
			}
			combined.Regex = res
			return nil
		})
	}

	if semanticParams != nil {
		g.Go(func() error {
			res, err := s.Semantic(gctx, *semanticParams)
			if err != nil {
				slog.Warn("concurrent_search_semantic_failed", slog.String("query", semanticParams.Query), slog.Any("error", err))
				return err
			}
			combined.Semantic = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return combined, err
	}

	return combined, nil
}
