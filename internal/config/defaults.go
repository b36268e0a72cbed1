package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.MirrorDir == "" {
		cfg.Storage.MirrorDir = "/usr/local/var/ragcore/data/indexes"
	}
	if cfg.Storage.CatalogPath == "" {
		cfg.Storage.CatalogPath = "/usr/local/var/ragcore/data/db/catalog.db"
	}
	if cfg.Storage.IndexType == "" {
		cfg.Storage.IndexType = "hnsw"
	}
	if cfg.ObjectStore.Region == "" {
		cfg.ObjectStore.Region = "blr1"
	}
	if cfg.ObjectStore.Endpoint == "" && cfg.ObjectStore.Bucket != "" {
		cfg.ObjectStore.Endpoint = "https://" + cfg.ObjectStore.Region + ".digitaloceanspaces.com"
	}

	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.FallbackPolicy == "" {
		cfg.Embedding.FallbackPolicy = FallbackFailClosed
	}
	if cfg.Embedding.ONNXDimensions == 0 {
		cfg.Embedding.ONNXDimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.PricePerMillion == 0 {
		cfg.Embedding.PricePerMillion = 0.02
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 50
	}
	if cfg.Embedding.MaxConcurrent == 0 {
		cfg.Embedding.MaxConcurrent = 8
	}

	if cfg.Generation.Cheap.Name == "" {
		cfg.Generation.Cheap.Name = "groq"
	}
	if cfg.Generation.Cheap.Model == "" {
		cfg.Generation.Cheap.Model = "llama-3.1-8b-instant"
	}
	if cfg.Generation.Cheap.BaseURL == "" {
		cfg.Generation.Cheap.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Generation.Cheap.InputPricePerMillion == 0 {
		cfg.Generation.Cheap.InputPricePerMillion = 0.27
	}
	if cfg.Generation.Cheap.OutputPricePerMillion == 0 {
		cfg.Generation.Cheap.OutputPricePerMillion = 0.27
	}
	if cfg.Generation.Premium.Name == "" {
		cfg.Generation.Premium.Name = "openai"
	}
	if cfg.Generation.Premium.Model == "" {
		cfg.Generation.Premium.Model = "gpt-4o-mini"
	}
	if cfg.Generation.Premium.InputPricePerMillion == 0 {
		cfg.Generation.Premium.InputPricePerMillion = 0.15
	}
	if cfg.Generation.Premium.OutputPricePerMillion == 0 {
		cfg.Generation.Premium.OutputPricePerMillion = 0.60
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 500
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.3
	}
	if cfg.Generation.MaxConcurrent == 0 {
		cfg.Generation.MaxConcurrent = 16
	}
	if cfg.Generation.RequestsPerSecond == 0 {
		cfg.Generation.RequestsPerSecond = 20
	}

	if cfg.Pipeline.TopK == 0 {
		cfg.Pipeline.TopK = 5
	}
	if cfg.Pipeline.EscalationThreshold == 0 {
		cfg.Pipeline.EscalationThreshold = 0.3
	}
	if cfg.Pipeline.MaxCitations == 0 {
		cfg.Pipeline.MaxCitations = 3
	}
}
