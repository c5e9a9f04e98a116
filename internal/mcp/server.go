// Package mcp implements the protocol server (§4.H): the MCP tool registry,
// response-size limiting, and stdio/HTTP transports that bridge AI clients
// to the search and research services.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ofriw/chunkhound-sub000/internal/config"
	"github.com/ofriw/chunkhound-sub000/internal/embed"
	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
	"github.com/ofriw/chunkhound-sub000/internal/llm"
	"github.com/ofriw/chunkhound-sub000/internal/model"
	"github.com/ofriw/chunkhound-sub000/internal/research"
	"github.com/ofriw/chunkhound-sub000/internal/search"
	"github.com/ofriw/chunkhound-sub000/internal/watcher"
	"github.com/ofriw/chunkhound-sub000/pkg/version"
)

// StoreEngine is the subset of store.Engine the protocol server depends on
// directly (beyond what it hands to search.Service).
type StoreEngine interface {
	GetStats() (model.Stats, error)
	ActiveEmbedder() (provider, modelName string, dims int, ok bool, err error)
	IsEmbedderCompatible(provider, modelName string, dims int) (bool, error)
	Close() error
}

// Server is ChunkHound's MCP protocol server: a fixed tool registry
// (get_stats, health_check, search_regex, always present; search_semantic
// and deep_research present only when their required capability is
// configured) served over stdio or HTTP, per §4.H.
type Server struct {
	mcp *mcp.Server

	engine    StoreEngine
	search    *search.Service
	research  *research.Service // nil if deep_research is not exposed
	embedder  embed.Embedder    // nil if no embedding provider is configured
	completer llm.Completer     // nil if no LLM completer is configured
	cfg       *config.Config
	logger    *slog.Logger

	lock    *InstanceLock
	watcher *watcher.Service // nil until SetWatcher is called

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewServer constructs the protocol server and registers its tool and
// resource set. searchSvc must be non-nil; researchSvc, embedder, and
// completer may be nil, in which case the tools/fields that need them are
// omitted or reported unavailable, per §4.H's capability-gating rule.
func NewServer(cfg *config.Config, engine StoreEngine, searchSvc *search.Service, researchSvc *research.Service, embedder embed.Embedder, completer llm.Completer, lock *InstanceLock) (*Server, error) {
	if engine == nil {
		return nil, errors.New("store engine is required")
	}
	if searchSvc == nil {
		return nil, errors.New("search service is required")
	}
	if cfg == nil {
		cfg = config.Defaults()
	}

	s := &Server{
		engine:    engine,
		search:    searchSvc,
		research:  researchSvc,
		embedder:  embedder,
		completer: completer,
		cfg:       cfg,
		logger:    slog.Default(),
		lock:      lock,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "chunkhound",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerStatsResource()

	return s, nil
}

// SetWatcher attaches the realtime watcher so Close can stop it as part of
// an orderly shutdown. Optional — a server run purely for a one-shot scan
// has no watcher to stop.
func (s *Server) SetWatcher(w *watcher.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watcher = w
}

// MCPServer returns the underlying SDK server, mainly for tests that want
// to drive it through an in-memory transport.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools registers the fixed tool set, gating search_semantic on an
// embedder and deep_research on both a research service and a completer —
// per §4.H, a capability-requiring tool is never advertised to a client
// that can't use it.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_stats",
		Description: "Report indexed file, chunk, and embedding counts, and whether the active vector index matches the configured embedder.",
	}, s.handleGetStats)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "health_check",
		Description: "Report server version, storage connectivity, and configured embedding providers.",
	}, s.handleHealthCheck)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_regex",
		Description: "Search indexed code by RE2 regular expression, paginated.",
	}, s.handleSearchRegex)

	if s.search.HasSemanticSearch() {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "search_semantic",
			Description: "Search indexed code by meaning using the configured embedding provider, paginated.",
		}, s.handleSearchSemantic)
	}

	if s.research != nil && s.completer != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "deep_research",
			Description: "Investigate a question across the indexed codebase via breadth-first exploration and return a single cited, synthesized answer.",
		}, s.handleDeepResearch)
	}

	s.logger.Info("registered mcp tools",
		slog.Bool("search_semantic", s.search.HasSemanticSearch()),
		slog.Bool("deep_research", s.research != nil && s.completer != nil))
}

// buildStats assembles get_stats' payload, shared with the chunkhound://stats
// resource.
func (s *Server) buildStats(_ context.Context) (GetStatsOutput, error) {
	stats, err := s.engine.GetStats()
	if err != nil {
		return GetStatsOutput{}, err
	}

	out := GetStatsOutput{
		Files:      stats.Files,
		Chunks:     stats.Chunks,
		Embeddings: stats.Embeddings,
		Providers:  stats.Providers,
	}

	if s.embedder != nil {
		compatible, err := s.engine.IsEmbedderCompatible(s.embedder.Provider(), s.embedder.ModelName(), s.embedder.Dimensions())
		if err != nil {
			return GetStatsOutput{}, err
		}
		out.IndexCompatible = compatible
	} else {
		out.IndexCompatible = true
	}

	if provider, modelName, dims, ok, err := s.engine.ActiveEmbedder(); err != nil {
		return GetStatsOutput{}, err
	} else if ok {
		out.ActiveProvider = provider
		out.ActiveModel = modelName
		out.ActiveDimensions = dims
	}

	return out, nil
}

func (s *Server) handleGetStats(ctx context.Context, _ *mcp.CallToolRequest, _ GetStatsInput) (*mcp.CallToolResult, GetStatsOutput, error) {
	out, err := s.buildStats(ctx)
	if err != nil {
		return nil, GetStatsOutput{}, MapError(err)
	}
	return nil, out, nil
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *mcp.CallToolRequest, _ HealthCheckInput) (*mcp.CallToolResult, HealthCheckOutput, error) {
	out := HealthCheckOutput{
		Version: version.Version,
	}

	_, err := s.engine.GetStats()
	out.StorageConnected = err == nil

	if s.embedder != nil {
		out.EmbeddingProviders = []string{s.embedder.Provider()}
	}

	if out.StorageConnected {
		out.Status = "ok"
	} else {
		out.Status = "degraded"
	}

	return nil, out, nil
}

// clampMaxResponseTokens normalizes a client-supplied budget into
// [1000, 25000], falling back to the configured default when unset.
func (s *Server) clampMaxResponseTokens(n int) int {
	if n <= 0 {
		n = s.cfg.MCP.MaxResponseTokens
	}
	if n < 1000 {
		return 1000
	}
	if n > 25000 {
		return 25000
	}
	return n
}

func (s *Server) handleSearchRegex(ctx context.Context, _ *mcp.CallToolRequest, input SearchRegexInput) (*mcp.CallToolResult, SearchOutput, error) {
	if input.Pattern == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("pattern is required")
	}

	result, err := s.search.Regex(ctx, search.RegexParams{
		Pattern:    input.Pattern,
		PageSize:   input.PageSize,
		Offset:     input.Offset,
		PathFilter: input.Path,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	rows, pagination, err := fitResponseBudget(result.Rows, result.Pagination, s.clampMaxResponseTokens(input.MaxResponseTokens))
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	return nil, SearchOutput{Results: rows, Pagination: pagination}, nil
}

func (s *Server) handleSearchSemantic(ctx context.Context, _ *mcp.CallToolRequest, input SearchSemanticInput) (*mcp.CallToolResult, SearchOutput, error) {
	if !s.search.HasSemanticSearch() {
		return nil, SearchOutput{}, NewMethodNotFoundError("search_semantic")
	}
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}

	result, err := s.search.Semantic(ctx, search.SemanticParams{
		Query:      input.Query,
		PageSize:   input.PageSize,
		Offset:     input.Offset,
		Threshold:  input.Threshold,
		PathFilter: input.Path,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	rows, pagination, err := fitResponseBudget(result.Rows, result.Pagination, s.clampMaxResponseTokens(input.MaxResponseTokens))
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	return nil, SearchOutput{Results: rows, Pagination: pagination}, nil
}

func (s *Server) handleDeepResearch(ctx context.Context, _ *mcp.CallToolRequest, input DeepResearchInput) (*mcp.CallToolResult, DeepResearchOutput, error) {
	if s.research == nil {
		return nil, DeepResearchOutput{}, NewMethodNotFoundError("deep_research")
	}
	if input.Query == "" {
		return nil, DeepResearchOutput{}, NewInvalidParamsError("query is required")
	}

	result, err := s.research.DeepResearch(ctx, input.Query)
	if err != nil {
		return nil, DeepResearchOutput{}, MapError(err)
	}

	return nil, DeepResearchOutput{
		Answer:   result.Answer,
		Metadata: result.Metadata,
		Warnings: result.Warnings,
	}, nil
}

// printStartupBanner writes a short human-readable banner to stderr when
// stderr is a terminal — stdout carries nothing but newline-framed JSON-RPC
// on the stdio transport regardless of how it's invoked.
func printStartupBanner(transport config.Transport, host string, port int) {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return
	}
	if transport == config.TransportHTTP {
		fmt.Fprintf(os.Stderr, "chunkhound %s listening on http://%s:%d\n", version.Version, host, port)
		return
	}
	fmt.Fprintf(os.Stderr, "chunkhound %s serving over stdio\n", version.Version)
}

// Serve runs the server until ctx is canceled, dispatching to the
// configured transport (§4.H: stdio newline-framed JSON-RPC, or HTTP with
// optional CORS).
func (s *Server) Serve(ctx context.Context) error {
	printStartupBanner(s.cfg.MCP.Transport, s.cfg.MCP.Host, s.cfg.MCP.Port)

	switch s.cfg.MCP.Transport {
	case config.TransportStdio, "":
		return s.mcp.Run(ctx, &mcp.StdioTransport{})
	case config.TransportHTTP:
		return s.serveHTTP(ctx)
	default:
		return cherrors.Config(fmt.Sprintf("unknown mcp transport %q", s.cfg.MCP.Transport), nil)
	}
}

func (s *Server) serveHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)

	var h http.Handler = handler
	if s.cfg.MCP.CORS {
		h = withCORS(handler, s.cfg.MCP.AllowedOrigins)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.MCP.Host, s.cfg.MCP.Port)
	httpSrv := &http.Server{Addr: addr, Handler: h}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return httpSrv.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// withCORS wraps h with permissive or allow-listed CORS headers, per
// §4.H's "optional CORS" transport option.
func withCORS(h http.Handler, allowedOrigins []string) http.Handler {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if _, ok := allowed[origin]; allowAll || ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Mcp-Session-Id")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// Close shuts the server down: stops the watcher (if any), force-checkpoints
// and disconnects storage, and releases the instance lock. Idempotent.
func (s *Server) Close() error {
	var firstErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		w := s.watcher
		s.mu.Unlock()

		if w != nil {
			if err := w.Stop(); err != nil {
				firstErr = err
			}
		}
		if err := s.engine.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.lock.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}
