package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./repolens.db"
	}
	if cfg.GenAI.BaseURL == "" {
		cfg.GenAI.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.GenAI.APIKeyEnv == "" {
		cfg.GenAI.APIKeyEnv = "GEMINI_API_KEY"
	}
	if cfg.GenAI.EmbeddingModel == "" {
		cfg.GenAI.EmbeddingModel = "embedding-001"
	}
	if cfg.GenAI.GenerationModel == "" {
		cfg.GenAI.GenerationModel = "gemini-2.0-flash-lite"
	}
	if cfg.GenAI.ChatModel == "" {
		cfg.GenAI.ChatModel = "gemini-2.5-flash"
	}
	if cfg.GenAI.TimeoutSecs == 0 {
		cfg.GenAI.TimeoutSecs = 120
	}
	if cfg.GitHub.APIBaseURL == "" {
		cfg.GitHub.APIBaseURL = "https://api.github.com"
	}
	if cfg.GitHub.TokenEnv == "" {
		cfg.GitHub.TokenEnv = "GITHUB_TOKEN"
	}
	if cfg.GitHub.MaxFileBytes == 0 {
		cfg.GitHub.MaxFileBytes = 1024 * 1024
	}
	if cfg.GitHub.TimeoutSecs == 0 {
		cfg.GitHub.TimeoutSecs = 60
	}
	if cfg.Indexing.ChunkWindow == 0 {
		cfg.Indexing.ChunkWindow = 1500
	}
	if cfg.Indexing.ChunkOverlap == 0 {
		cfg.Indexing.ChunkOverlap = 200
	}
	if cfg.Indexing.SummaryConcurrency == 0 {
		cfg.Indexing.SummaryConcurrency = 4
	}
	if cfg.Retrieval.MapCandidates == 0 {
		cfg.Retrieval.MapCandidates = 50
	}
	if cfg.Retrieval.MapLimit == 0 {
		cfg.Retrieval.MapLimit = 5
	}
	if cfg.Retrieval.RetrieveCandidates == 0 {
		cfg.Retrieval.RetrieveCandidates = 150
	}
	if cfg.Retrieval.RetrieveLimit == 0 {
		cfg.Retrieval.RetrieveLimit = 15
	}
	if cfg.Session.TTLHours == 0 {
		cfg.Session.TTLHours = 24
	}
	if cfg.Session.SweepIntervalSecs == 0 {
		cfg.Session.SweepIntervalSecs = 60
	}
}
