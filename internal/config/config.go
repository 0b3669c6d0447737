package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Connections ConnectionsConfig `json:"connections" envPrefix:"FEDSEARCH_"`
	Schema      SchemaConfig      `json:"schema"      envPrefix:"FEDSEARCH_"`
	Cache       CacheConfig       `json:"cache"       envPrefix:"FEDSEARCH_"`
	Search      SearchConfig      `json:"search"      envPrefix:"FEDSEARCH_"`
	LLM         LLMConfig         `json:"llm"         envPrefix:"FEDSEARCH_"`
	Embedding   EmbeddingConfig   `json:"embedding"   envPrefix:"FEDSEARCH_"`
	Vector      VectorConfig      `json:"vector"      envPrefix:"FEDSEARCH_"`
	Export      ExportConfig      `json:"export"      envPrefix:"FEDSEARCH_"`
	API         APIConfig         `json:"api"         envPrefix:"FEDSEARCH_"`
	Logging     LoggingConfig     `json:"logging"     envPrefix:"FEDSEARCH_"`
}

// ConnectionsConfig locates the connection registry and its defaults
type ConnectionsConfig struct {
	File            string `json:"file"              env:"CONNECTIONS_FILE"    envDefault:"~/.config/fedsearch/connections.json"`
	DefaultRowLimit int    `json:"default_row_limit" env:"DEFAULT_ROW_LIMIT"   envDefault:"100"`
	ConnectTimeout  string `json:"connect_timeout"   env:"CONNECT_TIMEOUT"     envDefault:"10s"`
	MaxOpenConns    int    `json:"max_open_conns"    env:"MAX_OPEN_CONNS"      envDefault:"5"`
	MaxIdleConns    int    `json:"max_idle_conns"    env:"MAX_IDLE_CONNS"      envDefault:"2"`
}

// SchemaConfig controls the schema embedding index
type SchemaConfig struct {
	TTL          string `json:"ttl"           env:"SCHEMA_TTL"           envDefault:"1h"`
	TopK         int    `json:"top_k"         env:"SCHEMA_TOP_K"         envDefault:"3"`
	SampleValues int    `json:"sample_values" env:"SCHEMA_SAMPLE_VALUES" envDefault:"3"`
}

// CacheConfig represents query-result cache configuration
type CacheConfig struct {
	Store       string `json:"store"        env:"CACHE_STORE"        envDefault:"memory"` // memory, redis
	MaxSizeMB   int    `json:"max_size_mb"  env:"CACHE_MAX_SIZE_MB"  envDefault:"100"`
	DefaultTTL  string `json:"default_ttl"  env:"CACHE_TTL"          envDefault:"1h"`
	PageSize    int    `json:"page_size"    env:"CACHE_PAGE_SIZE"    envDefault:"100"`
	CleanupFreq string `json:"cleanup_freq" env:"CACHE_CLEANUP_FREQ" envDefault:"5m"`
	KeyPrefix   string `json:"key_prefix"   env:"CACHE_KEY_PREFIX"   envDefault:"fedsearch:qcache:"`
	RedisAddr   string `json:"redis_addr"   env:"CACHE_REDIS_ADDR"   envDefault:"localhost:6379"`
	RedisDB     int    `json:"redis_db"     env:"CACHE_REDIS_DB"     envDefault:"0"`
	RedisPass   string `json:"-"            env:"CACHE_REDIS_PASSWORD"`
}

// SearchConfig represents coordinator defaults
type SearchConfig struct {
	Timeout        string `json:"timeout"         env:"SEARCH_TIMEOUT"         envDefault:"30s"`
	SQLTimeout     string `json:"sql_timeout"     env:"SEARCH_SQL_TIMEOUT"     envDefault:"20s"`
	DocTimeout     string `json:"doc_timeout"     env:"SEARCH_DOC_TIMEOUT"     envDefault:"20s"`
	TopK           int    `json:"top_k"           env:"SEARCH_TOP_K"           envDefault:"10"`
	SourcePriority string `json:"source_priority" env:"SEARCH_SOURCE_PRIORITY" envDefault:"sql,doc"`
}

// LLMConfig represents the optional language-model strategy. An empty BaseURL
// disables the strategy entirely; generation then uses the rule-based path.
type LLMConfig struct {
	BaseURL    string `json:"base_url"    env:"LLM_BASE_URL"`
	APIKey     string `json:"-"           env:"LLM_API_KEY"`
	Model      string `json:"model"       env:"LLM_MODEL"       envDefault:"llama3.2"`
	Timeout    string `json:"timeout"     env:"LLM_TIMEOUT"     envDefault:"30s"`
	MaxRetries int    `json:"max_retries" env:"LLM_MAX_RETRIES" envDefault:"2"`
}

// EmbeddingConfig represents the embedding provider
type EmbeddingConfig struct {
	Provider   string `json:"provider"   env:"EMBEDDING_PROVIDER"   envDefault:"local"` // openai, local, disabled
	BaseURL    string `json:"base_url"   env:"EMBEDDING_BASE_URL"`
	APIKey     string `json:"-"          env:"EMBEDDING_API_KEY"`
	Model      string `json:"model"      env:"EMBEDDING_MODEL"      envDefault:"text-embedding-3-small"`
	Dimensions int    `json:"dimensions" env:"EMBEDDING_DIMENSIONS" envDefault:"256"`
	BatchSize  int    `json:"batch_size" env:"EMBEDDING_BATCH_SIZE" envDefault:"64"`
	Timeout    string `json:"timeout"    env:"EMBEDDING_TIMEOUT"    envDefault:"30s"`
}

// VectorConfig represents the document vector store
type VectorConfig struct {
	URL        string `json:"url"        env:"VECTOR_URL"        envDefault:"http://localhost:6333"`
	APIKey     string `json:"-"          env:"VECTOR_API_KEY"`
	Collection string `json:"collection" env:"VECTOR_COLLECTION" envDefault:"documents"`
	Timeout    string `json:"timeout"    env:"VECTOR_TIMEOUT"    envDefault:"15s"`
}

// ExportConfig represents result export settings
type ExportConfig struct {
	Dir       string `json:"dir"        env:"EXPORT_DIR"        envDefault:"~/.local/share/fedsearch/exports"`
	Endpoint  string `json:"endpoint"   env:"EXPORT_S3_ENDPOINT"`
	AccessKey string `json:"-"          env:"EXPORT_S3_ACCESS_KEY"`
	SecretKey string `json:"-"          env:"EXPORT_S3_SECRET_KEY"`
	Bucket    string `json:"bucket"     env:"EXPORT_S3_BUCKET"   envDefault:"fedsearch-exports"`
	UseSSL    bool   `json:"use_ssl"    env:"EXPORT_S3_USE_SSL"  envDefault:"true"`
}

// APIConfig represents the HTTP API server
type APIConfig struct {
	Addr            string `json:"addr"             env:"API_ADDR"             envDefault:":8080"`
	ShutdownTimeout string `json:"shutdown_timeout" env:"API_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level     string `json:"level"      env:"LOG_LEVEL"      envDefault:"info"`    // debug, info, warn, error
	Format    string `json:"format"     env:"LOG_FORMAT"     envDefault:"console"` // console, json
	AddSource bool   `json:"add_source" env:"LOG_ADD_SOURCE" envDefault:"false"`
}

// LoadConfig loads configuration from .env, config file, and environment
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	// Best-effort .env load so local runs pick up credentials
	_ = godotenv.Load()

	config := &Config{}

	// Load from config file if it exists
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Apply environment variable overrides using env library (also sets defaults)
	if err := env.ParseWithOptions(config, env.Options{
		Prefix: "FEDSEARCH_",
	}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.ExpandAllPaths()

	return config, nil
}

// loadConfigFromFile loads configuration from a JSON file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig)

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) error {
	for key, value := range overrides {
		switch key {
		case "connections-file":
			if str, ok := value.(string); ok && str != "" {
				config.Connections.File = str
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "log-format":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Format = str
			}
		case "cache-store":
			if str, ok := value.(string); ok && str != "" {
				config.Cache.Store = str
			}
		}
	}

	return nil
}

// mergeConfigs merges source configuration into target configuration
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := range s.NumField() {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if s.Kind() == reflect.Bool {
			t.Set(s)
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{
		"console": true, "json": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be console or json)", config.Logging.Format)
	}

	validStores := map[string]bool{
		"memory": true, "redis": true,
	}
	if !validStores[strings.ToLower(config.Cache.Store)] {
		return fmt.Errorf("invalid cache store: %s (must be memory or redis)", config.Cache.Store)
	}

	validEmbedding := map[string]bool{
		"openai": true, "local": true, "disabled": true,
	}
	if !validEmbedding[strings.ToLower(config.Embedding.Provider)] {
		return fmt.Errorf(
			"invalid embedding provider: %s (must be openai, local, or disabled)",
			config.Embedding.Provider,
		)
	}

	for name, value := range map[string]string{
		"cache default TTL":       config.Cache.DefaultTTL,
		"cache cleanup frequency": config.Cache.CleanupFreq,
		"schema TTL":              config.Schema.TTL,
		"search timeout":          config.Search.Timeout,
		"search SQL timeout":      config.Search.SQLTimeout,
		"search doc timeout":      config.Search.DocTimeout,
		"connect timeout":         config.Connections.ConnectTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
	}

	if config.Cache.PageSize <= 0 {
		return fmt.Errorf("cache page size must be positive: %d", config.Cache.PageSize)
	}

	if config.Connections.DefaultRowLimit <= 0 {
		return fmt.Errorf(
			"default row limit must be positive: %d",
			config.Connections.DefaultRowLimit,
		)
	}

	for _, source := range strings.Split(config.Search.SourcePriority, ",") {
		if s := strings.TrimSpace(source); s != "sql" && s != "doc" {
			return fmt.Errorf("invalid source priority entry: %s (must be sql or doc)", s)
		}
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv("FEDSEARCH_CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(homeDir, ".config", "fedsearch", "config.json")
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Connections.File = expandPath(c.Connections.File)
	c.Export.Dir = expandPath(c.Export.Dir)
}

// ConfigPath returns the resolved configuration file path
func ConfigPath() string {
	return getConfigPath()
}

// GetConfigDir returns the configuration directory
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".config/fedsearch"
	}

	return filepath.Join(homeDir, ".config", "fedsearch")
}

// EnsureDirectories creates necessary directories for the configuration
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Connections.File),
		c.Export.Dir,
	}

	for _, dir := range dirs {
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// Duration accessors. Values are validated at load time, so parse failures
// fall back to the zero duration only for hand-built configs.

func (c SchemaConfig) TTLDuration() time.Duration        { return parseDuration(c.TTL) }
func (c CacheConfig) TTLDuration() time.Duration         { return parseDuration(c.DefaultTTL) }
func (c CacheConfig) CleanupFreqDuration() time.Duration { return parseDuration(c.CleanupFreq) }
func (c SearchConfig) TimeoutDuration() time.Duration    { return parseDuration(c.Timeout) }
func (c SearchConfig) SQLTimeoutDuration() time.Duration { return parseDuration(c.SQLTimeout) }
func (c SearchConfig) DocTimeoutDuration() time.Duration { return parseDuration(c.DocTimeout) }
func (c LLMConfig) TimeoutDuration() time.Duration       { return parseDuration(c.Timeout) }
func (c EmbeddingConfig) TimeoutDuration() time.Duration { return parseDuration(c.Timeout) }
func (c VectorConfig) TimeoutDuration() time.Duration    { return parseDuration(c.Timeout) }
func (c APIConfig) ShutdownTimeoutDuration() time.Duration {
	return parseDuration(c.ShutdownTimeout)
}

func (c ConnectionsConfig) ConnectTimeoutDuration() time.Duration {
	return parseDuration(c.ConnectTimeout)
}

// SourcePriorityList parses the comma-separated priority order
func (c SearchConfig) SourcePriorityList() []string {
	parts := strings.Split(c.SourcePriority, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}
