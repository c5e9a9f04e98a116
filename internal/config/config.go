// Package config implements ChunkHound's layered configuration: built-in
// defaults, environment variables, an explicit YAML config file, a
// project-local .chunkhound.json, and finally CLI-supplied overrides, merged
// in that order of increasing precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	cherrors "github.com/ofriw/chunkhound-sub000/internal/errors"
)

// EmbeddingProvider enumerates the supported embedding backends.
type EmbeddingProvider string

const (
	EmbeddingProviderOpenAI           EmbeddingProvider = "openai"
	EmbeddingProviderOpenAICompatible EmbeddingProvider = "openai-compatible"
	EmbeddingProviderVoyageAI         EmbeddingProvider = "voyageai"
	EmbeddingProviderOllama           EmbeddingProvider = "ollama"
	EmbeddingProviderTEI              EmbeddingProvider = "tei"
	EmbeddingProviderBGEInICL         EmbeddingProvider = "bge-in-icl"
)

// Transport enumerates the protocol server's transports.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// DatabaseConfig configures the storage engine's backing file.
type DatabaseConfig struct {
	Path             string `json:"path,omitempty" yaml:"path,omitempty"`
	Provider         string `json:"provider,omitempty" yaml:"provider,omitempty"`
	LanceDBIndexType string `json:"lancedb_index_type,omitempty" yaml:"lancedb_index_type,omitempty"`
}

// EmbeddingConfig configures the embedding provider used by the embedding
// service and the deep research engine's semantic search.
type EmbeddingConfig struct {
	Provider      EmbeddingProvider `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model         string            `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey        string            `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL       string            `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	BatchSize     int               `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	MaxConcurrent int               `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
}

// MCPConfig configures the protocol server.
type MCPConfig struct {
	Transport             Transport `json:"transport,omitempty" yaml:"transport,omitempty"`
	Host                  string    `json:"host,omitempty" yaml:"host,omitempty"`
	Port                  int       `json:"port" yaml:"port"`
	CORS                  bool      `json:"cors,omitempty" yaml:"cors,omitempty"`
	AllowedOrigins        []string  `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	MaxResponseTokens     int       `json:"max_response_tokens,omitempty" yaml:"max_response_tokens,omitempty"`
	RequestTimeout        int       `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	MaxConcurrentRequests int       `json:"max_concurrent_requests,omitempty" yaml:"max_concurrent_requests,omitempty"`
	ResponseCacheSize     int       `json:"response_cache_size,omitempty" yaml:"response_cache_size,omitempty"`
}

// LLMConfig configures the optional LLM completer the deep research engine
// uses for query expansion, follow-ups, and synthesis. An empty BaseURL
// leaves the completer unconfigured, which disables the deep_research tool.
type LLMConfig struct {
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// IndexingConfig configures the indexing coordinator and discovery cache.
type IndexingConfig struct {
	ForceReindex                 bool     `json:"force_reindex,omitempty" yaml:"force_reindex,omitempty"`
	BatchSize                    int      `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	DBBatchSize                  int      `json:"db_batch_size,omitempty" yaml:"db_batch_size,omitempty"`
	MaxConcurrent                int      `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
	Cleanup                      bool     `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`
	IgnoreGitignore              bool     `json:"ignore_gitignore,omitempty" yaml:"ignore_gitignore,omitempty"`
	MaxFileSizeMB                float64  `json:"max_file_size_mb,omitempty" yaml:"max_file_size_mb,omitempty"`
	ConfigFileSizeThresholdKB    float64  `json:"config_file_size_threshold_kb,omitempty" yaml:"config_file_size_threshold_kb,omitempty"`
	PerFileTimeoutSeconds        float64  `json:"per_file_timeout_seconds" yaml:"per_file_timeout_seconds"`
	PerFileTimeoutMinSizeKB      float64  `json:"per_file_timeout_min_size_kb,omitempty" yaml:"per_file_timeout_min_size_kb,omitempty"`
	MTimeEpsilonSeconds          float64  `json:"mtime_epsilon_seconds,omitempty" yaml:"mtime_epsilon_seconds,omitempty"`
	VerifyChecksumWhenMTimeEqual bool     `json:"verify_checksum_when_mtime_equal,omitempty" yaml:"verify_checksum_when_mtime_equal,omitempty"`
	ChecksumSampleKB             float64  `json:"checksum_sample_kb,omitempty" yaml:"checksum_sample_kb,omitempty"`
	Include                      []string `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude                      []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	perFileTimeoutExplicitZero bool
}

// Config is the complete ChunkHound configuration, per spec §6.
type Config struct {
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	MCP       MCPConfig       `json:"mcp" yaml:"mcp"`
	Indexing  IndexingConfig  `json:"indexing" yaml:"indexing"`
	Debug     bool            `json:"debug,omitempty" yaml:"debug,omitempty"`
}

var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

var defaultIncludePatterns = []string{
	"**/*.go", "**/*.py", "**/*.js", "**/*.jsx", "**/*.ts", "**/*.tsx",
	"**/*.java", "**/*.c", "**/*.h", "**/*.cpp", "**/*.hpp", "**/*.cs",
	"**/*.rb", "**/*.rs", "**/*.php", "**/*.swift", "**/*.kt", "**/*.scala",
	"**/*.md", "**/*.mdx", "**/*.yaml", "**/*.yml", "**/*.json", "**/*.toml",
	"**/Makefile", "**/makefile", "**/GNUmakefile",
}

// Defaults returns the built-in configuration, the base of the precedence
// chain in Load.
func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:     filepath.Join(".chunkhound", "db"),
			Provider: "sqlite",
		},
		Embedding: EmbeddingConfig{
			Provider:      EmbeddingProviderOllama,
			Model:         "nomic-embed-text",
			BaseURL:       "http://localhost:11434",
			BatchSize:     32,
			MaxConcurrent: runtime.NumCPU(),
		},
		MCP: MCPConfig{
			Transport:             TransportStdio,
			Host:                  "localhost",
			Port:                  3000,
			MaxResponseTokens:     20000,
			RequestTimeout:        60,
			MaxConcurrentRequests: 8,
			ResponseCacheSize:     100,
		},
		Indexing: IndexingConfig{
			BatchSize:                 100,
			DBBatchSize:               500,
			MaxConcurrent:             runtime.NumCPU(),
			Cleanup:                   true,
			MaxFileSizeMB:             10,
			ConfigFileSizeThresholdKB: 20,
			PerFileTimeoutSeconds:     3.0,
			PerFileTimeoutMinSizeKB:   128,
			MTimeEpsilonSeconds:       0.01,
			ChecksumSampleKB:          64,
			Include:                   defaultIncludePatterns,
			Exclude:                   defaultExcludePatterns,
		},
	}
}

// ProjectConfigPath returns the project-local config path, <dir>/.chunkhound.json.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, ".chunkhound.json")
}

// DatabaseDir returns <project>/.chunkhound, the persisted-state directory.
func DatabaseDir(projectDir string) string {
	return filepath.Join(projectDir, ".chunkhound")
}

// LoadOptions controls Load's precedence chain. All fields are optional;
// an empty LoadOptions loads only defaults plus environment variables.
type LoadOptions struct {
	// ProjectDir is searched for .chunkhound.json. Required to locate the
	// project-local config and to compute the default database path.
	ProjectDir string
	// ExplicitConfigPath, if set, is loaded before the project-local config
	// (lower precedence), e.g. from a --config flag.
	ExplicitConfigPath string
	// CLIOverrides, if set, is deep-merged last (highest precedence). Only
	// non-zero fields in CLIOverrides take effect.
	CLIOverrides *Config
}

// Load builds the final Config by merging, in order of increasing
// precedence: built-in defaults, environment variables (CHUNKHOUND_*),
// an explicit config file, the project-local .chunkhound.json, and CLI
// overrides. Objects are deep-merged; array-valued fields are replaced
// wholesale by whichever layer sets them last.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Defaults()
	if opts.ProjectDir != "" {
		cfg.Database.Path = filepath.Join(DatabaseDir(opts.ProjectDir), "db")
	}

	applyEnvOverrides(cfg)

	if opts.ExplicitConfigPath != "" {
		if err := mergeFile(cfg, opts.ExplicitConfigPath); err != nil {
			return nil, err
		}
	}

	if opts.ProjectDir != "" {
		projPath := ProjectConfigPath(opts.ProjectDir)
		if fileExists(projPath) {
			if err := mergeFile(cfg, projPath); err != nil {
				return nil, err
			}
		}
	}

	if opts.CLIOverrides != nil {
		mergeInto(cfg, opts.CLIOverrides)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile loads path and deep-merges it into cfg. The explicit config file
// layer (--config) is YAML, matching the teacher's global config file; the
// project-local .chunkhound.json override is always JSON regardless of
// extension sniffing, since ProjectConfigPath hardcodes the .json suffix.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return cherrors.Config(fmt.Sprintf("failed to read config file %s", path), err)
	}
	var parsed Config
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &parsed)
	default:
		err = json.Unmarshal(data, &parsed)
	}
	if err != nil {
		return cherrors.Config(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	mergeInto(cfg, &parsed)
	return nil
}

// mergeInto deep-merges non-zero fields of other into c. Slice fields are
// replaced wholesale, never appended, per the configuration contract.
func mergeInto(c, other *Config) {
	// Database
	if other.Database.Path != "" {
		c.Database.Path = other.Database.Path
	}
	if other.Database.Provider != "" {
		c.Database.Provider = other.Database.Provider
	}
	if other.Database.LanceDBIndexType != "" {
		c.Database.LanceDBIndexType = other.Database.LanceDBIndexType
	}

	// Embedding
	if other.Embedding.Provider != "" {
		c.Embedding.Provider = other.Embedding.Provider
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.APIKey != "" {
		c.Embedding.APIKey = other.Embedding.APIKey
	}
	if other.Embedding.BaseURL != "" {
		c.Embedding.BaseURL = other.Embedding.BaseURL
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.MaxConcurrent != 0 {
		c.Embedding.MaxConcurrent = other.Embedding.MaxConcurrent
	}

	// LLM
	if other.LLM.BaseURL != "" {
		c.LLM.BaseURL = other.LLM.BaseURL
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.APIKey != "" {
		c.LLM.APIKey = other.LLM.APIKey
	}

	// MCP
	if other.MCP.Transport != "" {
		c.MCP.Transport = other.MCP.Transport
	}
	if other.MCP.Host != "" {
		c.MCP.Host = other.MCP.Host
	}
	if other.MCP.Port != 0 {
		c.MCP.Port = other.MCP.Port
	}
	if other.MCP.CORS {
		c.MCP.CORS = other.MCP.CORS
	}
	if len(other.MCP.AllowedOrigins) > 0 {
		c.MCP.AllowedOrigins = other.MCP.AllowedOrigins
	}
	if other.MCP.MaxResponseTokens != 0 {
		c.MCP.MaxResponseTokens = other.MCP.MaxResponseTokens
	}
	if other.MCP.RequestTimeout != 0 {
		c.MCP.RequestTimeout = other.MCP.RequestTimeout
	}
	if other.MCP.MaxConcurrentRequests != 0 {
		c.MCP.MaxConcurrentRequests = other.MCP.MaxConcurrentRequests
	}
	if other.MCP.ResponseCacheSize != 0 {
		c.MCP.ResponseCacheSize = other.MCP.ResponseCacheSize
	}

	// Indexing
	if other.Indexing.ForceReindex {
		c.Indexing.ForceReindex = other.Indexing.ForceReindex
	}
	if other.Indexing.BatchSize != 0 {
		c.Indexing.BatchSize = other.Indexing.BatchSize
	}
	if other.Indexing.DBBatchSize != 0 {
		c.Indexing.DBBatchSize = other.Indexing.DBBatchSize
	}
	if other.Indexing.MaxConcurrent != 0 {
		c.Indexing.MaxConcurrent = other.Indexing.MaxConcurrent
	}
	if other.Indexing.Cleanup {
		c.Indexing.Cleanup = other.Indexing.Cleanup
	}
	if other.Indexing.IgnoreGitignore {
		c.Indexing.IgnoreGitignore = other.Indexing.IgnoreGitignore
	}
	if other.Indexing.MaxFileSizeMB != 0 {
		c.Indexing.MaxFileSizeMB = other.Indexing.MaxFileSizeMB
	}
	if other.Indexing.ConfigFileSizeThresholdKB != 0 {
		c.Indexing.ConfigFileSizeThresholdKB = other.Indexing.ConfigFileSizeThresholdKB
	}
	if other.Indexing.PerFileTimeoutSeconds != 0 || hasPerFileTimeoutOverride(other) {
		c.Indexing.PerFileTimeoutSeconds = other.Indexing.PerFileTimeoutSeconds
	}
	if other.Indexing.PerFileTimeoutMinSizeKB != 0 {
		c.Indexing.PerFileTimeoutMinSizeKB = other.Indexing.PerFileTimeoutMinSizeKB
	}
	if other.Indexing.MTimeEpsilonSeconds != 0 {
		c.Indexing.MTimeEpsilonSeconds = other.Indexing.MTimeEpsilonSeconds
	}
	if other.Indexing.VerifyChecksumWhenMTimeEqual {
		c.Indexing.VerifyChecksumWhenMTimeEqual = other.Indexing.VerifyChecksumWhenMTimeEqual
	}
	if other.Indexing.ChecksumSampleKB != 0 {
		c.Indexing.ChecksumSampleKB = other.Indexing.ChecksumSampleKB
	}
	if len(other.Indexing.Include) > 0 {
		c.Indexing.Include = other.Indexing.Include
	}
	if len(other.Indexing.Exclude) > 0 {
		c.Indexing.Exclude = other.Indexing.Exclude
	}

	if other.Debug {
		c.Debug = other.Debug
	}
}

// hasPerFileTimeoutOverride reports whether other explicitly set
// PerFileTimeoutSeconds to 0 (disabling the timeout), which mergeInto's
// plain non-zero check would otherwise miss. CLI/file layers that want to
// disable the timeout must set this sentinel via WithPerFileTimeoutDisabled.
func hasPerFileTimeoutOverride(other *Config) bool {
	return other.Indexing.perFileTimeoutExplicitZero
}

// WithPerFileTimeoutDisabled marks cfg's PerFileTimeoutSeconds as an
// explicit override of zero (disabling the per-file parse timeout), for use
// building a LoadOptions.CLIOverrides value.
func WithPerFileTimeoutDisabled(cfg *Config) {
	cfg.Indexing.PerFileTimeoutSeconds = 0
	cfg.Indexing.perFileTimeoutExplicitZero = true
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("CHUNKHOUND_DATABASE__PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CHUNKHOUND_DATABASE__PROVIDER"); v != "" {
		c.Database.Provider = v
	}
	if v := os.Getenv("CHUNKHOUND_EMBEDDING__PROVIDER"); v != "" {
		c.Embedding.Provider = EmbeddingProvider(v)
	}
	if v := os.Getenv("CHUNKHOUND_EMBEDDING__MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("CHUNKHOUND_EMBEDDING__API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("CHUNKHOUND_EMBEDDING__BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("CHUNKHOUND_EMBEDDING__BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embedding.BatchSize = n
		}
	}
	if v := os.Getenv("CHUNKHOUND_EMBEDDING__MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Embedding.MaxConcurrent = n
		}
	}
	if v := os.Getenv("CHUNKHOUND_LLM__BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("CHUNKHOUND_LLM__MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("CHUNKHOUND_LLM__API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("CHUNKHOUND_MCP__TRANSPORT"); v != "" {
		c.MCP.Transport = Transport(v)
	}
	if v := os.Getenv("CHUNKHOUND_MCP__HOST"); v != "" {
		c.MCP.Host = v
	}
	if v := os.Getenv("CHUNKHOUND_MCP__PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MCP.Port = n
		}
	}
	if v := os.Getenv("CHUNKHOUND_MCP__CORS"); v != "" {
		c.MCP.CORS = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("CHUNKHOUND_MCP__ALLOWED_ORIGINS"); v != "" {
		c.MCP.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("CHUNKHOUND_MCP__MAX_RESPONSE_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MCP.MaxResponseTokens = n
		}
	}
	if v := os.Getenv("CHUNKHOUND_INDEXING__FORCE_REINDEX"); v != "" {
		c.Indexing.ForceReindex = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("CHUNKHOUND_INDEXING__IGNORE_GITIGNORE"); v != "" {
		c.Indexing.IgnoreGitignore = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("CHUNKHOUND_DEBUG"); v != "" {
		c.Debug = strings.EqualFold(v, "true") || v == "1"
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Validate checks the merged configuration against the constraints named in
// spec §6 and §8, returning a ConfigError describing the first violation.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case EmbeddingProviderOpenAI, EmbeddingProviderOpenAICompatible, EmbeddingProviderVoyageAI,
		EmbeddingProviderOllama, EmbeddingProviderTEI, EmbeddingProviderBGEInICL:
	default:
		return cherrors.Config(fmt.Sprintf("embedding.provider must be one of openai, openai-compatible, voyageai, ollama, tei, bge-in-icl; got %q", c.Embedding.Provider), nil)
	}

	switch c.MCP.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return cherrors.Config(fmt.Sprintf("mcp.transport must be stdio or http; got %q", c.MCP.Transport), nil)
	}

	if c.MCP.Transport == TransportHTTP && c.MCP.Port != 0 && (c.MCP.Port < 1024 || c.MCP.Port > 65535) {
		return cherrors.Config(fmt.Sprintf("mcp.port must be 0 (OS-assigned) or in 1024..65535; got %d", c.MCP.Port), nil)
	}

	if c.Indexing.MaxFileSizeMB < 0 {
		return cherrors.Config("indexing.max_file_size_mb must be non-negative", nil)
	}
	if c.Embedding.BatchSize <= 0 {
		return cherrors.Config("embedding.batch_size must be positive", nil)
	}
	if c.Embedding.MaxConcurrent <= 0 {
		return cherrors.Config("embedding.max_concurrent must be positive", nil)
	}

	c.MCP.MaxResponseTokens = clampInt(c.MCP.MaxResponseTokens, 1000, 25000)
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
