package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.CorpusPath == "" {
		cfg.Storage.CorpusPath = "/usr/local/var/kotae/data/corpus.csv"
	}
	if cfg.Storage.EmbeddingCachePath == "" {
		cfg.Storage.EmbeddingCachePath = "/usr/local/var/kotae/data/embeddings.f32"
	}
	if cfg.Storage.InteractionLogPath == "" {
		cfg.Storage.InteractionLogPath = "/usr/local/var/kotae/data/interactions.csv"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kotae/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Retrieval.DefaultTopK == 0 {
		cfg.Retrieval.DefaultTopK = 3
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = 20
	}
	if cfg.Oracle.Model == "" {
		cfg.Oracle.Model = "gpt-4o-mini"
	}
	if cfg.Oracle.MaxNewTokens == 0 {
		cfg.Oracle.MaxNewTokens = 256
	}
	// Sampling defaults to on; production answers are stochastic unless a
	// seed or do_sample: false is configured.
	if cfg.Oracle.DoSample == nil {
		t := true
		cfg.Oracle.DoSample = &t
	}
	if cfg.Oracle.Temperature == 0 {
		cfg.Oracle.Temperature = 0.7
	}
	if cfg.Oracle.TopP == 0 {
		cfg.Oracle.TopP = 0.9
	}
	if cfg.Oracle.TimeoutSecs == 0 {
		cfg.Oracle.TimeoutSecs = 60
	}
	if cfg.Oracle.MaxInFlight == 0 {
		cfg.Oracle.MaxInFlight = 4
	}
}
