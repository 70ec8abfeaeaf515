// Package config holds the persistent trendwatch configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config is the persistent application configuration.
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Embedding EmbeddingConfig `json:"embedding"`
	Filter    FilterConfig    `json:"filter"`
	Sampling  SamplingConfig  `json:"sampling"`
	Analysis  AnalysisConfig  `json:"analysis"`
	Storage   StorageConfig   `json:"storage"`
}

// LLMConfig selects and configures the text-generation provider.
type LLMConfig struct {
	Provider       string `json:"provider"` // "openai" or "ollama"
	APIKey         string `json:"api_key,omitempty"`
	BaseURL        string `json:"base_url,omitempty"` // OpenAI-compatible endpoint override
	Model          string `json:"model,omitempty"`
	OllamaEndpoint string `json:"ollama_endpoint,omitempty"`
	OllamaModel    string `json:"ollama_model,omitempty"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string `json:"provider"` // "jina" or "ollama"
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`
	Endpoint string `json:"endpoint,omitempty"` // For Ollama
}

// FilterConfig controls validity filtering and top-item extraction.
type FilterConfig struct {
	MinLength      int    `json:"min_length"`
	MaxLength      int    `json:"max_length"`
	TargetLanguage string `json:"target_language"`
	FilterAds      bool   `json:"filter_ads"`
	FilterBots     bool   `json:"filter_bots"`
	TopLimit       int    `json:"top_limit"`
	MinEngagement  int    `json:"min_engagement"`
}

// SamplingConfig controls the representative sampler and the per-platform
// candidate pool bound.
type SamplingConfig struct {
	Enabled       bool    `json:"enabled"`
	MaxItems      int     `json:"max_items"` // candidate-pool capacity per platform
	TargetCount   int     `json:"target_count"`
	KMin          int     `json:"k_min"`
	KMax          int     `json:"k_max"`
	OutlierRatio  float64 `json:"outlier_ratio"`
	BatchSize     int     `json:"batch_size"`
	TextMaxLength int     `json:"text_max_length"`
}

// AnalysisConfig controls the LLM analysis stages.
type AnalysisConfig struct {
	OpinionCountMin        int     `json:"opinion_count_min"`
	OpinionCountMax        int     `json:"opinion_count_max"`
	OpinionCountThresholds string  `json:"opinion_count_thresholds"`
	TextTruncationLimit    int     `json:"text_truncation_limit"`
	SentimentBatchSize     int     `json:"sentiment_batch_size"`
	SentimentFanout        int     `json:"sentiment_fanout"`
	HalfLifeHours          float64 `json:"half_life_hours"`
	ReportLanguage         string  `json:"report_language"`
	AlertThreshold         int     `json:"alert_threshold"` // 0 disables alerts
}

// StorageConfig locates the results database.
type StorageConfig struct {
	DBPath string `json:"db_path"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			OllamaEndpoint: "http://localhost:11434",
		},
		Embedding: EmbeddingConfig{
			Provider: "jina",
			Model:    "jina-embeddings-v3",
			Endpoint: "http://localhost:11434",
		},
		Filter: FilterConfig{
			MinLength:      10,
			MaxLength:      5000,
			TargetLanguage: "en",
			FilterAds:      true,
			FilterBots:     true,
			TopLimit:       50,
			MinEngagement:  5,
		},
		Sampling: SamplingConfig{
			Enabled:       true,
			MaxItems:      200,
			TargetCount:   50,
			KMin:          3,
			KMax:          10,
			OutlierRatio:  0.1,
			BatchSize:     64,
			TextMaxLength: 400,
		},
		Analysis: AnalysisConfig{
			OpinionCountMin:        2,
			OpinionCountMax:        6,
			OpinionCountThresholds: "12,24,36,48",
			TextTruncationLimit:    200,
			SentimentBatchSize:     10,
			SentimentFanout:        4,
			HalfLifeHours:          24,
			ReportLanguage:         "auto",
		},
		Storage: StorageConfig{
			DBPath: filepath.Join(home, ".trendwatch", "trendwatch.db"),
		},
	}
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".trendwatch", "config.json")
}

// Load reads config from disk, or returns defaults. Malformed numeric
// settings are clamped to safe values rather than rejected.
func Load() (*Config, error) {
	return loadFrom(ConfigPath())
}

func loadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			cfg.AutoPopulateFromEnv()
			cfg.Clamp()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		fallback := DefaultConfig()
		fallback.AutoPopulateFromEnv()
		return fallback, nil
	}

	cfg.AutoPopulateFromEnv()
	cfg.Clamp()
	return &cfg, nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // Restrictive permissions for API keys
}

// AutoPopulateFromEnv fills in API keys and endpoints from environment variables.
func (c *Config) AutoPopulateFromEnv() {
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if url := os.Getenv("LLM_API_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if key := os.Getenv("JINA_API_KEY"); key != "" {
		c.Embedding.APIKey = key
	}
	if model := os.Getenv("JINA_EMBED_MODEL"); model != "" {
		c.Embedding.Model = model
	}
}

// Clamp coerces out-of-range numeric settings back to safe values.
// Bad configuration degrades, it never aborts a run.
func (c *Config) Clamp() {
	c.Filter.MinLength = clampInt(c.Filter.MinLength, 1, 1000, 10)
	c.Filter.MaxLength = maxInt(c.Filter.MaxLength, c.Filter.MinLength, 5000)
	c.Filter.TopLimit = clampInt(c.Filter.TopLimit, 1, 1000, 50)
	if c.Filter.MinEngagement < 0 {
		c.Filter.MinEngagement = 0
	}
	if c.Filter.TargetLanguage == "" {
		c.Filter.TargetLanguage = "en"
	}

	c.Sampling.MaxItems = clampInt(c.Sampling.MaxItems, 1, 10000, 200)
	c.Sampling.TargetCount = clampInt(c.Sampling.TargetCount, 1, c.Sampling.MaxItems, 50)
	c.Sampling.KMin = clampInt(c.Sampling.KMin, 1, 100, 3)
	c.Sampling.KMax = maxInt(c.Sampling.KMax, c.Sampling.KMin, 10)
	if c.Sampling.OutlierRatio < 0 {
		c.Sampling.OutlierRatio = 0
	}
	if c.Sampling.OutlierRatio > 0.5 {
		c.Sampling.OutlierRatio = 0.5
	}
	c.Sampling.BatchSize = clampInt(c.Sampling.BatchSize, 1, 1000, 64)
	c.Sampling.TextMaxLength = clampInt(c.Sampling.TextMaxLength, 50, 10000, 400)

	c.Analysis.OpinionCountMin = clampInt(c.Analysis.OpinionCountMin, 1, 100, 2)
	c.Analysis.OpinionCountMax = maxInt(c.Analysis.OpinionCountMax, c.Analysis.OpinionCountMin, 6)
	c.Analysis.TextTruncationLimit = clampInt(c.Analysis.TextTruncationLimit, 50, 10000, 200)
	c.Analysis.SentimentBatchSize = clampInt(c.Analysis.SentimentBatchSize, 1, 100, 10)
	c.Analysis.SentimentFanout = clampInt(c.Analysis.SentimentFanout, 1, 64, 4)
	if c.Analysis.HalfLifeHours <= 0 {
		c.Analysis.HalfLifeHours = 24
	}
	if c.Analysis.ReportLanguage == "" {
		c.Analysis.ReportLanguage = "auto"
	}
	if c.Analysis.AlertThreshold < 0 || c.Analysis.AlertThreshold > 100 {
		c.Analysis.AlertThreshold = 0
	}
}

func clampInt(v, min, max, fallback int) int {
	if v == 0 {
		return fallback
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func maxInt(v, floor, fallback int) int {
	if v == 0 {
		return fallback
	}
	if v < floor {
		return floor
	}
	return v
}
