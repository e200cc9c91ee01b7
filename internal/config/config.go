// Package config provides configuration loading and structs for the Repolens server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	GenAI     GenAIConfig     `yaml:"genai"`
	GitHub    GitHubConfig    `yaml:"github"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Session   SessionConfig   `yaml:"session"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// GenAIConfig holds model provider settings. The API key is read from the
// environment variable named by APIKeyEnv, never from the config file.
type GenAIConfig struct {
	BaseURL         string `yaml:"base_url"`
	APIKeyEnv       string `yaml:"api_key_env"`
	EmbeddingModel  string `yaml:"embedding_model"`
	GenerationModel string `yaml:"generation_model"`
	ChatModel       string `yaml:"chat_model"`
	TimeoutSecs     int    `yaml:"timeout_secs"`
}

// GitHubConfig holds source acquisition settings.
type GitHubConfig struct {
	APIBaseURL   string `yaml:"api_base_url"`
	TokenEnv     string `yaml:"token_env"`
	MaxFileBytes int64  `yaml:"max_file_bytes"`
	TimeoutSecs  int    `yaml:"timeout_secs"`
}

// IndexingConfig holds chunking and background job settings.
type IndexingConfig struct {
	ChunkWindow        int `yaml:"chunk_window"`
	ChunkOverlap       int `yaml:"chunk_overlap"`
	SummaryConcurrency int `yaml:"summary_concurrency"`
}

// RetrievalConfig holds the two-stage search pool sizes and result limits.
type RetrievalConfig struct {
	MapCandidates      int `yaml:"map_candidates"`
	MapLimit           int `yaml:"map_limit"`
	RetrieveCandidates int `yaml:"retrieve_candidates"`
	RetrieveLimit      int `yaml:"retrieve_limit"`
}

// SessionConfig holds session retention settings.
type SessionConfig struct {
	TTLHours          int `yaml:"ttl_hours"`
	SweepIntervalSecs int `yaml:"sweep_interval_secs"`
}

// TTL returns the absolute session retention window.
func (s *SessionConfig) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}

// SweepInterval returns how often expired sessions are swept.
func (s *SessionConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSecs) * time.Second
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
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)

	return &cfg, nil
}

// Default returns a config with all defaults applied, for running without a file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
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
