package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pointConfigAway keeps tests from picking up a developer's real config file.
func pointConfigAway(t *testing.T) {
	t.Helper()
	t.Setenv("FEDSEARCH_CONFIG", filepath.Join(t.TempDir(), "missing.json"))
}

func TestLoadConfigDefaults(t *testing.T) {
	pointConfigAway(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Cache.Store)
	assert.Equal(t, 100, cfg.Cache.MaxSizeMB)
	assert.Equal(t, "1h", cfg.Cache.DefaultTTL)
	assert.Equal(t, 100, cfg.Cache.PageSize)
	assert.Equal(t, "fedsearch:qcache:", cfg.Cache.KeyPrefix)
	assert.Equal(t, 3, cfg.Schema.TopK)
	assert.Equal(t, "30s", cfg.Search.Timeout)
	assert.Equal(t, "sql,doc", cfg.Search.SourcePriority)
	assert.Equal(t, 100, cfg.Connections.DefaultRowLimit)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Empty(t, cfg.LLM.BaseURL)
}

func TestLoadConfigFromFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	testConfig := map[string]interface{}{
		"cache": map[string]interface{}{
			"store":       "redis",
			"max_size_mb": 250,
			"default_ttl": "2h",
		},
		"search": map[string]interface{}{
			"top_k":           25,
			"source_priority": "doc,sql",
		},
		"logging": map[string]interface{}{
			"level":  "debug",
			"format": "json",
		},
	}

	data, err := json.MarshalIndent(testConfig, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(configPath, data, 0600))

	t.Setenv("FEDSEARCH_CONFIG", configPath)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Cache.Store)
	assert.Equal(t, 250, cfg.Cache.MaxSizeMB)
	assert.Equal(t, "2h", cfg.Cache.DefaultTTL)
	assert.Equal(t, 25, cfg.Search.TopK)
	assert.Equal(t, "doc,sql", cfg.Search.SourcePriority)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Untouched sections keep their defaults
	assert.Equal(t, 100, cfg.Cache.PageSize)
	assert.Equal(t, "30s", cfg.Search.Timeout)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")

	require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0600))
	t.Setenv("FEDSEARCH_CONFIG", configPath)

	_, err := LoadConfig()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestEnvironmentOverrides(t *testing.T) {
	pointConfigAway(t)

	t.Setenv("FEDSEARCH_CACHE_STORE", "redis")
	t.Setenv("FEDSEARCH_CACHE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("FEDSEARCH_SEARCH_TIMEOUT", "45s")
	t.Setenv("FEDSEARCH_LOG_LEVEL", "warn")
	t.Setenv("FEDSEARCH_LLM_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("FEDSEARCH_EMBEDDING_PROVIDER", "openai")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Cache.Store)
	assert.Equal(t, "redis.internal:6380", cfg.Cache.RedisAddr)
	assert.Equal(t, "45s", cfg.Search.Timeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
}

func TestFlagOverrides(t *testing.T) {
	pointConfigAway(t)

	cfg, err := LoadConfigWithOverrides(map[string]interface{}{
		"connections-file": "/tmp/conns.json",
		"log-level":        "debug",
		"cache-store":      "redis",
	})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/conns.json", cfg.Connections.File)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "redis", cfg.Cache.Store)
}

func TestValidateConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "invalid log level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid log format",
		},
		{
			name:    "bad cache store",
			mutate:  func(c *Config) { c.Cache.Store = "dynamo" },
			wantErr: "invalid cache store",
		},
		{
			name:    "bad embedding provider",
			mutate:  func(c *Config) { c.Embedding.Provider = "cohere" },
			wantErr: "invalid embedding provider",
		},
		{
			name:    "bad duration",
			mutate:  func(c *Config) { c.Cache.DefaultTTL = "soon" },
			wantErr: "invalid cache default TTL",
		},
		{
			name:    "zero page size",
			mutate:  func(c *Config) { c.Cache.PageSize = 0 },
			wantErr: "page size must be positive",
		},
		{
			name:    "bad priority entry",
			mutate:  func(c *Config) { c.Search.SourcePriority = "sql,web" },
			wantErr: "invalid source priority entry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pointConfigAway(t)

			cfg, err := LoadConfig()
			require.NoError(t, err)

			tt.mutate(cfg)

			err = validateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	tests := []struct {
		input    string
		expected string
	}{
		{"~/connections.json", filepath.Join(homeDir, "connections.json")},
		{"~", homeDir},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, expandPath(tt.input))
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	pointConfigAway(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.Cache.TTLDuration())
	assert.Equal(t, 5*time.Minute, cfg.Cache.CleanupFreqDuration())
	assert.Equal(t, 30*time.Second, cfg.Search.TimeoutDuration())
	assert.Equal(t, 20*time.Second, cfg.Search.SQLTimeoutDuration())
	assert.Equal(t, 20*time.Second, cfg.Search.DocTimeoutDuration())
	assert.Equal(t, time.Hour, cfg.Schema.TTLDuration())
}

func TestSourcePriorityList(t *testing.T) {
	cfg := SearchConfig{SourcePriority: "doc, sql"}

	assert.Equal(t, []string{"doc", "sql"}, cfg.SourcePriorityList())
}

func TestSaveAndReloadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("FEDSEARCH_CONFIG", configPath)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	cfg.Search.TopK = 42
	require.NoError(t, SaveConfig(cfg))

	reloaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 42, reloaded.Search.TopK)
}
