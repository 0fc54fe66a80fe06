package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lunai408/local-agent-factory/config"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Embedding.Dimensions != 768 || cfg.Index.M != 12 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	err := os.WriteFile(path, []byte(`
data_dir = "/var/lib/agentd"

[embedding]
provider = "mock"
dimensions = 384

[context]
summarize_every = 6
`), 0o644)
	if err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/var/lib/agentd" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
	if cfg.Embedding.Provider != "mock" || cfg.Embedding.Dimensions != 384 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	if cfg.Context.SummarizeEvery != 6 {
		t.Errorf("summarize_every = %d", cfg.Context.SummarizeEvery)
	}
	// Untouched sections keep their defaults.
	if cfg.Index.EfConstruction != 150 {
		t.Errorf("ef_construction = %d", cfg.Index.EfConstruction)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("AGENTD_DATA_DIR", "/tmp/env-data")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/tmp/env-data" {
		t.Errorf("data_dir = %q", cfg.DataDir)
	}
}

func TestValidate_RejectsBadConfig(t *testing.T) {
	cases := []func(*config.Config){
		func(c *config.Config) { c.Embedding.Dimensions = 0 },
		func(c *config.Config) { c.Embedding.Provider = "voyage" },
		func(c *config.Config) { c.Index.Metric = "manhattan" },
		func(c *config.Config) { c.Context.SummarizeEvery = 0 },
	}
	for i, mutate := range cases {
		cfg := config.Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: invalid config accepted", i)
		}
	}
}
