// Package config provides configuration loading and structs for the ragcore server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	MockMode    bool              `yaml:"mock_mode"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Generation  GenerationConfig  `yaml:"generation"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds local paths for the index mirror and the document catalog.
type StorageConfig struct {
	MirrorDir   string `yaml:"mirror_dir"`
	CatalogPath string `yaml:"catalog_path"`
	IndexType   string `yaml:"index_type"`
}

// ObjectStoreConfig holds the S3-compatible bucket that replicates tenant indexes.
// An empty bucket keeps indexes local-only.
type ObjectStoreConfig struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

// Embedding fallback policies.
const (
	FallbackFailClosed = "fail_closed"
	FallbackFailOpen   = "fail_open"
)

// EmbeddingConfig holds the primary (OpenAI) and fallback (ONNX) embedder settings.
type EmbeddingConfig struct {
	Model             string  `yaml:"model"`
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	Dimensions        int     `yaml:"dimensions"`
	FallbackPolicy    string  `yaml:"fallback_policy"`
	ONNXModelPath     string  `yaml:"onnx_model_path"`
	ONNXDimensions    int     `yaml:"onnx_dimensions"`
	MaxTokens         int     `yaml:"max_tokens"`
	CacheSize         int     `yaml:"cache_size"`
	PricePerMillion   float64 `yaml:"price_per_million"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	MaxConcurrent     int     `yaml:"max_concurrent"`
}

// ProviderConfig describes one OpenAI-compatible chat completion endpoint.
type ProviderConfig struct {
	Name                  string  `yaml:"name"`
	Model                 string  `yaml:"model"`
	BaseURL               string  `yaml:"base_url"`
	APIKey                string  `yaml:"api_key"`
	InputPricePerMillion  float64 `yaml:"input_price_per_million"`
	OutputPricePerMillion float64 `yaml:"output_price_per_million"`
}

// GenerationConfig holds the cheap and premium generation providers.
type GenerationConfig struct {
	Cheap             ProviderConfig `yaml:"cheap"`
	Premium           ProviderConfig `yaml:"premium"`
	MaxTokens         int            `yaml:"max_tokens"`
	Temperature       float64        `yaml:"temperature"`
	MaxConcurrent     int            `yaml:"max_concurrent"`
	RequestsPerSecond float64        `yaml:"requests_per_second"`
}

// PipelineConfig holds query pipeline settings.
type PipelineConfig struct {
	TopK                int     `yaml:"top_k"`
	EscalationThreshold float64 `yaml:"escalation_threshold"`
	MaxCitations        int     `yaml:"max_citations"`
}

// Load reads and parses the config file at path, applies environment secrets and defaults,
// and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.MirrorDir = expandPath(cfg.Storage.MirrorDir, configDir)
	cfg.Storage.CatalogPath = expandPath(cfg.Storage.CatalogPath, configDir)
	if cfg.Embedding.ONNXModelPath != "" {
		cfg.Embedding.ONNXModelPath = expandPath(cfg.Embedding.ONNXModelPath, configDir)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file exists: environment
// secrets plus defaults.
func Default() *Config {
	var cfg Config
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	return &cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv fills empty secrets from the environment.
func ApplyEnv(cfg *Config) {
	setFromEnv(&cfg.Embedding.APIKey, "OPENAI_API_KEY")
	setFromEnv(&cfg.Generation.Premium.APIKey, "OPENAI_API_KEY")
	setFromEnv(&cfg.Generation.Cheap.APIKey, "GROQ_API_KEY")
	setFromEnv(&cfg.ObjectStore.AccessKey, "DO_SPACES_KEY")
	setFromEnv(&cfg.ObjectStore.SecretKey, "DO_SPACES_SECRET")
	setFromEnv(&cfg.ObjectStore.Bucket, "DO_SPACES_BUCKET")
	setFromEnv(&cfg.ObjectStore.Region, "DO_SPACES_REGION")
}

func setFromEnv(dst *string, key string) {
	if *dst != "" {
		return
	}
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
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
