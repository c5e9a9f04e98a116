package mcp

import (
	"github.com/ofriw/chunkhound-sub000/internal/model"
	"github.com/ofriw/chunkhound-sub000/internal/research"
)

// GetStatsInput defines the input schema for the get_stats tool (no
// parameters, per §4.H's tool table).
type GetStatsInput struct{}

// GetStatsOutput defines the output schema for the get_stats tool.
type GetStatsOutput struct {
	Files            int      `json:"files" jsonschema:"indexed file count"`
	Chunks           int      `json:"chunks" jsonschema:"indexed chunk count"`
	Embeddings       int      `json:"embeddings" jsonschema:"stored embedding count"`
	Providers        []string `json:"providers" jsonschema:"embedding providers that have produced stored embeddings"`
	IndexCompatible  bool     `json:"index_compatible" jsonschema:"whether the configured embedder matches the embedder that built the active vector index"`
	ActiveProvider   string   `json:"active_provider,omitempty" jsonschema:"embedding provider that built the active vector index"`
	ActiveModel      string   `json:"active_model,omitempty" jsonschema:"embedding model that built the active vector index"`
	ActiveDimensions int      `json:"active_dimensions,omitempty" jsonschema:"vector dimensionality of the active index"`
}

// HealthCheckInput defines the input schema for the health_check tool (no
// parameters).
type HealthCheckInput struct{}

// HealthCheckOutput defines the output schema for the health_check tool,
// per §4.H's exact contract.
type HealthCheckOutput struct {
	Status             string   `json:"status" jsonschema:"ok or degraded"`
	Version            string   `json:"version" jsonschema:"server version"`
	StorageConnected   bool     `json:"storage_connected" jsonschema:"whether the storage engine responded to a liveness probe"`
	EmbeddingProviders []string `json:"embedding_providers" jsonschema:"embedding providers currently configured, empty if none"`
}

// SearchRegexInput defines the input schema for the search_regex tool.
type SearchRegexInput struct {
	Pattern           string `json:"pattern" jsonschema:"RE2 regular expression matched against chunk content"`
	PageSize          int    `json:"page_size,omitempty" jsonschema:"results per page, 1-100, default 10"`
	Offset            int    `json:"offset,omitempty" jsonschema:"starting offset into the result set, default 0"`
	Path              string `json:"path,omitempty" jsonschema:"restrict results to files under this path prefix"`
	MaxResponseTokens int    `json:"max_response_tokens,omitempty" jsonschema:"cap on response size in estimated tokens, 1000-25000, default 20000"`
}

// SearchSemanticInput defines the input schema for the search_semantic
// tool. Provider and Model are informational overrides the client may
// supply to confirm which embedder it expects to be active; the search
// itself always uses the server's configured embedder.
type SearchSemanticInput struct {
	Query             string   `json:"query" jsonschema:"natural-language query embedded and searched semantically"`
	PageSize          int      `json:"page_size,omitempty" jsonschema:"results per page, 1-100, default 10"`
	Offset            int      `json:"offset,omitempty" jsonschema:"starting offset into the result set, default 0"`
	Path              string   `json:"path,omitempty" jsonschema:"restrict results to files under this path prefix"`
	Provider          string   `json:"provider,omitempty" jsonschema:"expected embedding provider, informational"`
	Model             string   `json:"model,omitempty" jsonschema:"expected embedding model, informational"`
	Threshold         *float64 `json:"threshold,omitempty" jsonschema:"minimum cosine similarity, omit to disable filtering"`
	MaxResponseTokens int      `json:"max_response_tokens,omitempty" jsonschema:"cap on response size in estimated tokens, 1000-25000, default 20000"`
}

// SearchOutput is the shared output schema for search_regex and
// search_semantic: a page of rows plus the pagination state the client
// needs to request the next page.
type SearchOutput struct {
	Results    []model.SearchRow `json:"results" jsonschema:"matching chunks"`
	Pagination model.Pagination  `json:"pagination" jsonschema:"pagination state for the next request"`
}

// DeepResearchInput defines the input schema for the deep_research tool, a
// supplement beyond §4.H's 4-tool table: component G (the BFS research
// engine) otherwise has no caller anywhere in the protocol surface. Gated
// behind LLM-completer availability exactly as search_semantic is gated
// behind embedder availability.
type DeepResearchInput struct {
	Query string `json:"query" jsonschema:"the research question to investigate across the indexed codebase"`
}

// DeepResearchOutput defines the output schema for the deep_research tool.
type DeepResearchOutput struct {
	Answer   string            `json:"answer" jsonschema:"synthesized, cited answer"`
	Metadata research.Metadata `json:"metadata" jsonschema:"exploration statistics"`
	Warnings []string          `json:"warnings,omitempty" jsonschema:"quality warnings about the synthesized answer"`
}
