package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, 2, cfg.Pipeline.MaxRepairAttempts)
	assert.Equal(t, 5, cfg.Pipeline.RetrievalMaxChunks)
	assert.InDelta(t, 0.4, cfg.Pipeline.RetrievalThreshold, 1e-9)
	assert.InDelta(t, 0.3, cfg.Pipeline.TraceThreshold, 1e-9)
	assert.Equal(t, 800, cfg.Ingest.MinChunkTokens)
	assert.Equal(t, 1200, cfg.Ingest.MaxChunkTokens)
	assert.Contains(t, cfg.LLM.ReasoningModels, "o3-mini")
	assert.False(t, cfg.OSS.Enabled())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
llm:
  api_key: sk-test
  base_delay: 250ms
pipeline:
  max_repair_attempts: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 250*time.Millisecond, cfg.LLM.BaseDelay)
	assert.Equal(t, 4, cfg.Pipeline.MaxRepairAttempts)
	// 未出现在文件中的字段保留默认值
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, "text-embedding-3-small", cfg.LLM.EmbeddingModel)
}

func TestLoad_PrefersLocalConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 1000\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.yaml"), []byte("server:\n  port: 2000\n"), 0644))

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2000, cfg.Server.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
