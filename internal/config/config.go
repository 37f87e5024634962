// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TunnelTokenEnv is the environment variable holding the tunnel credential.
// It is required when server.tunnel_enabled is set; absence is a startup error.
const TunnelTokenEnv = "KOTAE_TUNNEL_AUTHTOKEN"

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Oracle    OracleConfig    `yaml:"oracle"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	TunnelEnabled bool   `yaml:"tunnel_enabled"`
}

// StorageConfig holds paths for the corpus, embedding cache, and interaction log.
type StorageConfig struct {
	CorpusPath         string `yaml:"corpus_path"`
	CorpusURL          string `yaml:"corpus_url"`
	EmbeddingCachePath string `yaml:"embedding_cache_path"`
	InteractionLogPath string `yaml:"interaction_log_path"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	BatchSize  int    `yaml:"batch_size"`
	CacheSize  int    `yaml:"cache_size"`
}

// RetrievalConfig holds vector search settings.
type RetrievalConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
}

// OracleConfig holds generation oracle settings. Sampling fields map directly
// onto the oracle's decoding parameters; when DoSample is false the oracle
// decodes greedily and Seed/Temperature/TopP are ignored.
type OracleConfig struct {
	Model        string  `yaml:"model"`
	BaseURL      string  `yaml:"base_url"`
	MaxNewTokens int     `yaml:"max_new_tokens"`
	DoSample     *bool   `yaml:"do_sample"`
	Temperature  float32 `yaml:"temperature"`
	TopP         float32 `yaml:"top_p"`
	Seed         *int    `yaml:"seed"`
	TimeoutSecs  int     `yaml:"timeout_secs"`
	MaxInFlight  int     `yaml:"max_in_flight"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.CorpusPath = expandPath(cfg.Storage.CorpusPath, configDir)
	cfg.Storage.EmbeddingCachePath = expandPath(cfg.Storage.EmbeddingCachePath, configDir)
	cfg.Storage.InteractionLogPath = expandPath(cfg.Storage.InteractionLogPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)

	return &cfg, nil
}

// ValidateStartup checks settings that must hold before the server accepts any
// query. A missing tunnel credential is a configuration error here, never a
// runtime retrieval error.
func (c *Config) ValidateStartup() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Server.TunnelEnabled && os.Getenv(TunnelTokenEnv) == "" {
		return fmt.Errorf("tunnel enabled but %s is not set", TunnelTokenEnv)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
