package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults_AreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestLoad_ProjectLocalOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	data, err := json.Marshal(map[string]any{
		"embedding": map[string]any{"model": "text-embedding-3-small"},
		"mcp":       map[string]any{"port": 4000},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ProjectConfigPath(dir), data, 0o644))

	cfg, err := Load(LoadOptions{ProjectDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 4000, cfg.MCP.Port)
	assert.Equal(t, filepath.Join(dir, ".chunkhound", "db"), cfg.Database.Path)
}

func TestLoad_CLIOverridesWinOverProjectFile(t *testing.T) {
	dir := t.TempDir()
	data, _ := json.Marshal(map[string]any{"mcp": map[string]any{"port": 4000}})
	require.NoError(t, os.WriteFile(ProjectConfigPath(dir), data, 0o644))

	cfg, err := Load(LoadOptions{
		ProjectDir:   dir,
		CLIOverrides: &Config{MCP: MCPConfig{Port: 9000}},
	})
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.MCP.Port)
}

func TestLoad_EnvOverridesDefaultsButNotFile(t *testing.T) {
	t.Setenv("CHUNKHOUND_EMBEDDING__MODEL", "from-env")
	dir := t.TempDir()
	data, _ := json.Marshal(map[string]any{"embedding": map[string]any{"model": "from-file"}})
	require.NoError(t, os.WriteFile(ProjectConfigPath(dir), data, 0o644))

	cfg, err := Load(LoadOptions{ProjectDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Embedding.Model, "project file has higher precedence than env")
}

func TestLoad_ArraysReplacedWholesaleNotAppended(t *testing.T) {
	dir := t.TempDir()
	data, _ := json.Marshal(map[string]any{
		"indexing": map[string]any{"exclude": []string{"**/only-this/**"}},
	})
	require.NoError(t, os.WriteFile(ProjectConfigPath(dir), data, 0o644))

	cfg, err := Load(LoadOptions{ProjectDir: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"**/only-this/**"}, cfg.Indexing.Exclude)
}

func TestLoad_ExplicitYAMLConfigFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "chunkhound.yaml")
	yamlBody := "embedding:\n  model: from-yaml\nmcp:\n  port: 5000\n"
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlBody), 0o644))

	cfg, err := Load(LoadOptions{ProjectDir: dir, ExplicitConfigPath: yamlPath})
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.Embedding.Model)
	assert.Equal(t, 5000, cfg.MCP.Port)
}

func TestLoad_ProjectLocalJSONOutranksExplicitYAML(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "chunkhound.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("embedding:\n  model: from-yaml\n"), 0o644))
	data, _ := json.Marshal(map[string]any{"embedding": map[string]any{"model": "from-project-json"}})
	require.NoError(t, os.WriteFile(ProjectConfigPath(dir), data, 0o644))

	cfg, err := Load(LoadOptions{ProjectDir: dir, ExplicitConfigPath: yamlPath})
	require.NoError(t, err)
	assert.Equal(t, "from-project-json", cfg.Embedding.Model)
}

func TestValidate_RejectsUnknownEmbeddingProvider(t *testing.T) {
	cfg := Defaults()
	cfg.Embedding.Provider = "not-a-provider"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnknownTransport(t *testing.T) {
	cfg := Defaults()
	cfg.MCP.Transport = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsOutOfRangeHTTPPort(t *testing.T) {
	cfg := Defaults()
	cfg.MCP.Transport = TransportHTTP
	cfg.MCP.Port = 80
	assert.Error(t, cfg.Validate())
}

func TestValidate_ClampsMaxResponseTokens(t *testing.T) {
	cfg := Defaults()
	cfg.MCP.MaxResponseTokens = 999999
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 25000, cfg.MCP.MaxResponseTokens)
}

func TestProjectConfigPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/repo", ".chunkhound.json"), ProjectConfigPath("/repo"))
}
