package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  catalog_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.CatalogPath == "" {
		t.Error("catalog_path should be set")
	}
	if cfg.Debug || cfg.MockMode {
		t.Error("debug and mock_mode should default to false when unset")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  mirror_dir: "./data/indexes"
  catalog_path: "./data/db/catalog.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "indexes"); cfg.Storage.MirrorDir != want {
		t.Errorf("mirror_dir = %s, want %s", cfg.Storage.MirrorDir, want)
	}
	if want := filepath.Join(dir, "data", "db", "catalog.db"); cfg.Storage.CatalogPath != want {
		t.Errorf("catalog_path = %s, want %s", cfg.Storage.CatalogPath, want)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"host", cfg.Server.Host, "localhost"},
		{"port", cfg.Server.Port, 8080},
		{"index_type", cfg.Storage.IndexType, "hnsw"},
		{"embedding model", cfg.Embedding.Model, "text-embedding-3-small"},
		{"embedding dimensions", cfg.Embedding.Dimensions, 1536},
		{"fallback policy", cfg.Embedding.FallbackPolicy, FallbackFailClosed},
		{"onnx dimensions", cfg.Embedding.ONNXDimensions, 384},
		{"embedding price", cfg.Embedding.PricePerMillion, 0.02},
		{"cheap input price", cfg.Generation.Cheap.InputPricePerMillion, 0.27},
		{"cheap output price", cfg.Generation.Cheap.OutputPricePerMillion, 0.27},
		{"premium input price", cfg.Generation.Premium.InputPricePerMillion, 0.15},
		{"premium output price", cfg.Generation.Premium.OutputPricePerMillion, 0.60},
		{"max tokens", cfg.Generation.MaxTokens, 500},
		{"temperature", cfg.Generation.Temperature, 0.3},
		{"top k", cfg.Pipeline.TopK, 5},
		{"threshold", cfg.Pipeline.EscalationThreshold, 0.3},
		{"citations", cfg.Pipeline.MaxCitations, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
	if cfg.ObjectStore.Endpoint != "" {
		t.Errorf("endpoint should stay empty without a bucket, got %s", cfg.ObjectStore.Endpoint)
	}
}

func TestApplyDefaults_SpacesEndpoint(t *testing.T) {
	cfg := &Config{ObjectStore: ObjectStoreConfig{Bucket: "kb", Region: "nyc3"}}
	ApplyDefaults(cfg)
	if cfg.ObjectStore.Endpoint != "https://nyc3.digitaloceanspaces.com" {
		t.Errorf("endpoint = %s", cfg.ObjectStore.Endpoint)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GROQ_API_KEY", "gsk-groq")
	t.Setenv("DO_SPACES_KEY", "spaces-key")
	t.Setenv("DO_SPACES_SECRET", "spaces-secret")

	cfg := &Config{}
	cfg.Generation.Cheap.APIKey = "from-yaml"
	ApplyEnv(cfg)

	if cfg.Embedding.APIKey != "sk-openai" || cfg.Generation.Premium.APIKey != "sk-openai" {
		t.Errorf("openai keys not applied: %+v", cfg)
	}
	if cfg.Generation.Cheap.APIKey != "from-yaml" {
		t.Errorf("yaml value should win over env, got %s", cfg.Generation.Cheap.APIKey)
	}
	if cfg.ObjectStore.AccessKey != "spaces-key" || cfg.ObjectStore.SecretKey != "spaces-secret" {
		t.Errorf("spaces credentials not applied: %+v", cfg.ObjectStore)
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-groq")
	cfg := Default()
	if cfg.Generation.Cheap.APIKey != "gsk-groq" {
		t.Errorf("env not applied: %s", cfg.Generation.Cheap.APIKey)
	}
	if cfg.Pipeline.TopK != 5 || cfg.Storage.IndexType != "hnsw" {
		t.Errorf("defaults not applied: %+v", cfg.Pipeline)
	}
}

func TestToggles(t *testing.T) {
	t.Run("env_read_on_every_call", func(t *testing.T) {
		toggle := EnvToggle(MockEnvVar)
		t.Setenv(MockEnvVar, "")
		if toggle.Enabled() {
			t.Error("empty value should be disabled")
		}
		t.Setenv(MockEnvVar, "TRUE")
		if !toggle.Enabled() {
			t.Error("TRUE should be enabled")
		}
		t.Setenv(MockEnvVar, "1")
		if toggle.Enabled() {
			t.Error("only \"true\" enables the toggle")
		}
	})
	t.Run("static", func(t *testing.T) {
		if !StaticToggle(true).Enabled() || StaticToggle(false).Enabled() {
			t.Error("StaticToggle mismatch")
		}
	})
	t.Run("any", func(t *testing.T) {
		if (AnyToggle{StaticToggle(false), nil}).Enabled() {
			t.Error("all disabled should be disabled")
		}
		if !(AnyToggle{StaticToggle(false), StaticToggle(true)}).Enabled() {
			t.Error("one enabled should be enabled")
		}
	})
	t.Run("config_mock_mode", func(t *testing.T) {
		t.Setenv(MockEnvVar, "")
		cfg := &Config{MockMode: true}
		if !cfg.MockToggle().Enabled() {
			t.Error("mock_mode should enable the toggle")
		}
	})
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{CatalogPath: "/tmp/catalog.db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
}
