// Package config loads the startup configuration. The result is an explicit
// struct constructed once and handed to each component; nothing here is
// runtime-mutable and there is no process-wide global.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/lunai408/local-agent-factory/vectorindex"
)

// Config is the full startup configuration.
type Config struct {
	DataDir string `toml:"data_dir"`

	Model     ModelConfig     `toml:"model"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Index     IndexConfig     `toml:"index"`
	Context   ContextConfig   `toml:"context"`
	Tools     ToolsConfig     `toml:"tools"`
}

// ModelConfig selects the inference model.
type ModelConfig struct {
	APIKey    string `toml:"api_key"`
	Name      string `toml:"name"`
	MaxTokens int64  `toml:"max_tokens"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	// Provider is "ollama", "onnx", or "mock".
	Provider   string `toml:"provider"`
	Dimensions int    `toml:"dimensions"`
	OllamaHost string `toml:"ollama_host"`
	Model      string `toml:"model"`
	CacheSize  int64  `toml:"cache_size"`

	// ONNX-only settings.
	ModelPath     string `toml:"model_path"`
	TokenizerPath string `toml:"tokenizer_path"`
}

// IndexConfig fixes the vector index geometry at startup.
type IndexConfig struct {
	// Metric is "cosine" or "euclidean" and must match the embedding
	// provider's geometry.
	Metric         string `toml:"metric"`
	M              int    `toml:"m"`
	EfConstruction int    `toml:"ef_construction"`
	EfSearch       int    `toml:"ef_search"`
}

// ContextConfig bounds context assembly and summarization.
type ContextConfig struct {
	BudgetBytes      int `toml:"budget_bytes"`
	RecentTurns      int `toml:"recent_turns"`
	RecallLimit      int `toml:"recall_limit"`
	KnowledgeResults int `toml:"knowledge_results"`
	SummarizeEvery   int `toml:"summarize_every"`
}

// ToolsConfig names the tool servers and their timeouts.
type ToolsConfig struct {
	ArtifactsDir   string        `toml:"artifacts_dir"`
	ChartURL       string        `toml:"chart_url"`
	PDFURL         string        `toml:"pdf_url"`
	ImageURL       string        `toml:"image_url"`
	DefaultTimeout time.Duration `toml:"default_timeout"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		DataDir: "./data",
		Model: ModelConfig{
			Name:      "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Dimensions: 768,
			OllamaHost: "http://localhost:11434",
			Model:      "nomic-embed-text",
			CacheSize:  4096,
		},
		Index: IndexConfig{
			Metric:         "cosine",
			M:              12,
			EfConstruction: 150,
			EfSearch:       40,
		},
		Context: ContextConfig{
			BudgetBytes:      16 * 1024,
			RecentTurns:      20,
			RecallLimit:      5,
			KnowledgeResults: 4,
			SummarizeEvery:   10,
		},
		Tools: ToolsConfig{
			ArtifactsDir: "./data/artifacts",
		},
	}
}

// Load reads the TOML file at path over the defaults, then applies
// environment overrides. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("AGENTD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		cfg.Embedding.OllamaHost = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations that would fail later in a worse place.
// Dimension and metric problems are configuration errors, fatal at startup.
func (c Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	switch c.Embedding.Provider {
	case "ollama", "onnx", "mock":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	if !c.Metric().Valid() {
		return fmt.Errorf("unknown index metric %q", c.Index.Metric)
	}
	if c.Context.SummarizeEvery <= 0 {
		return fmt.Errorf("context.summarize_every must be positive, got %d", c.Context.SummarizeEvery)
	}
	return nil
}

// Metric maps the configured metric name onto the index type.
func (c Config) Metric() vectorindex.Metric {
	return vectorindex.Metric(c.Index.Metric)
}
